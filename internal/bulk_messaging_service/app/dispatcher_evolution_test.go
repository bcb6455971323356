package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/revalya/golang_services/internal/bulk_messaging_service/domain"
	"github.com/revalya/golang_services/internal/bulk_messaging_service/provider"
	"github.com/revalya/golang_services/internal/bulk_messaging_service/render"
)

// TestDispatcher_Run_EvolutionRetries drives the real Evolution client against a fake
// gateway: one number fails twice with 500 before succeeding, the other gets a 400.
func TestDispatcher_Run_EvolutionRetries(t *testing.T) {
	const (
		flakyNumber   = "5511988880001"
		invalidNumber = "5511988880002"
	)

	var mu sync.Mutex
	calls := map[string]int{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body provider.EvolutionSendTextBody
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		mu.Lock()
		calls[body.Number]++
		n := calls[body.Number]
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case body.Number == invalidNumber:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"status":400,"error":"Bad Request","response":{"message":"number does not exist"}}`))
		case n < 3:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"status":500,"error":"Internal Server Error"}`))
		default:
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"key":{"remoteJid":"` + body.Number + `@s.whatsapp.net","fromMe":true,"id":"evo-ok"},"status":"PENDING"}`))
		}
	}))
	defer server.Close()

	clock := newFakeClock()
	integrations := new(MockIntegrationRepository)
	integrations.On("GetActive", mock.Anything, testTenantID, domain.EnvironmentProduction).
		Return(&domain.TenantIntegration{TenantID: testTenantID, InstanceName: "revalya", IsActive: true}, nil)
	targets := new(MockTargetRepository)
	targets.On("ListByChargeIDs", mock.Anything, testTenantID, []string{"A", "B"}).
		Return([]domain.Target{target("A", "Ana", "11 98888-0001"), target("B", "Bruno", "11 98888-0002")}, nil)
	recorder := &memoryRecorder{}

	evolution := provider.NewEvolutionProvider(discardLogger(), server.Client(), provider.EvolutionConfig{
		RequestTimeout: 5 * time.Second,
		Sleep:          func(context.Context, time.Duration) error { return nil },
	})
	dispatcher := NewDispatcher(
		NewConfigResolver(integrations, GatewayDefaults{BaseURL: server.URL, APIKey: "key"}, discardLogger()),
		targets,
		new(MockTemplateRepository),
		evolution,
		provider.NewDryRunProvider(discardLogger()),
		render.NewRenderer(time.UTC, clock.Now),
		recorder,
		nil,
		clock,
		"55",
		discardLogger(),
	)

	summary, err := dispatcher.Run(context.Background(), domain.DispatchRequest{
		TenantID:      testTenantID,
		RequestID:     "req-retry",
		TargetIDs:     []string{"A", "B"},
		CustomMessage: "Olá {cliente.nome}",
	})

	require.NoError(t, err)
	assertSummaryInvariants(t, summary, recorder, 2)
	assert.Equal(t, 1, summary.Success)
	assert.Equal(t, 1, summary.Failed)

	byTarget := attemptsByTarget(summary.Details)
	assert.True(t, byTarget["A"].Success)
	assert.Equal(t, "evo-ok", byTarget["A"].MessageID)
	assert.False(t, byTarget["B"].Success)
	assert.Empty(t, byTarget["B"].MessageID)
	assert.Contains(t, byTarget["B"].Error, "400")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, calls[flakyNumber])
	assert.Equal(t, 1, calls[invalidNumber])
}
