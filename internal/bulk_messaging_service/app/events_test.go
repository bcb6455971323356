package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	subject string
	data    []byte
	err     error
}

func (p *capturePublisher) Publish(_ context.Context, subject string, data []byte) error {
	p.subject = subject
	p.data = data
	return p.err
}

func TestNatsRunEventPublisher_PublishRunCompleted(t *testing.T) {
	pub := &capturePublisher{}
	publisher := NewNatsRunEventPublisher(pub, "", discardLogger())
	started := time.Date(2025, time.March, 5, 13, 0, 0, 0, time.UTC)

	err := publisher.PublishRunCompleted(context.Background(), RunCompletedEvent{
		RequestID:   "req-1",
		TenantID:    testTenantID,
		Total:       4,
		Success:     3,
		Failed:      1,
		SuccessRate: 75,
		StartedAt:   started,
		FinishedAt:  started.Add(5 * time.Second),
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultRunCompletedSubject, pub.subject)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(pub.data, &decoded))
	assert.Equal(t, "req-1", decoded["request_id"])
	assert.EqualValues(t, 4, decoded["total"])
	assert.EqualValues(t, 75, decoded["success_rate"])
}

func TestNatsRunEventPublisher_PublishError(t *testing.T) {
	pub := &capturePublisher{err: errors.New("nats: connection closed")}
	publisher := NewNatsRunEventPublisher(pub, "custom.subject", discardLogger())

	err := publisher.PublishRunCompleted(context.Background(), RunCompletedEvent{RequestID: "req-1"})

	assert.ErrorContains(t, err, "custom.subject")
	assert.Equal(t, "custom.subject", pub.subject)
}
