package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRunCompletedSubject is the NATS subject for finished runs.
const DefaultRunCompletedSubject = "bulk_messaging.run.completed"

// RunCompletedEvent is published once per run that passed pre-flight.
type RunCompletedEvent struct {
	RequestID   string    `json:"request_id"`
	TenantID    string    `json:"tenant_id"`
	UserID      string    `json:"user_id,omitempty"`
	TemplateID  string    `json:"template_id,omitempty"`
	Total       int       `json:"total"`
	Success     int       `json:"success"`
	Failed      int       `json:"failed"`
	SuccessRate float64   `json:"success_rate"`
	DryRun      bool      `json:"dry_run"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// RunEventPublisher announces finished runs to other services.
type RunEventPublisher interface {
	PublishRunCompleted(ctx context.Context, event RunCompletedEvent) error
}

// MessagePublisher is satisfied by *messagebroker.NatsClient.
type MessagePublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// NatsRunEventPublisher publishes run events as JSON on a single subject.
type NatsRunEventPublisher struct {
	publisher MessagePublisher
	subject   string
	logger    *slog.Logger
}

func NewNatsRunEventPublisher(publisher MessagePublisher, subject string, logger *slog.Logger) *NatsRunEventPublisher {
	if subject == "" {
		subject = DefaultRunCompletedSubject
	}
	return &NatsRunEventPublisher{
		publisher: publisher,
		subject:   subject,
		logger:    logger.With("component", "run_event_publisher"),
	}
}

func (p *NatsRunEventPublisher) PublishRunCompleted(ctx context.Context, event RunCompletedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling run completed event: %w", err)
	}
	if err := p.publisher.Publish(ctx, p.subject, data); err != nil {
		return fmt.Errorf("publishing run completed event to %s: %w", p.subject, err)
	}
	p.logger.DebugContext(ctx, "Run completed event published", "subject", p.subject, "request_id", event.RequestID)
	return nil
}
