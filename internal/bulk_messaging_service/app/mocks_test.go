package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/revalya/golang_services/internal/bulk_messaging_service/domain"
	"github.com/revalya/golang_services/internal/bulk_messaging_service/provider"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mocks ---

type MockIntegrationRepository struct {
	mock.Mock
}

func (m *MockIntegrationRepository) GetActive(ctx context.Context, tenantID string, env domain.Environment) (*domain.TenantIntegration, error) {
	args := m.Called(ctx, tenantID, env)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TenantIntegration), args.Error(1)
}

type MockTargetRepository struct {
	mock.Mock
}

func (m *MockTargetRepository) ListByChargeIDs(ctx context.Context, tenantID string, chargeIDs []string) ([]domain.Target, error) {
	args := m.Called(ctx, tenantID, chargeIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Target), args.Error(1)
}

type MockTemplateRepository struct {
	mock.Mock
}

func (m *MockTemplateRepository) GetByID(ctx context.Context, tenantID, templateID string) (*domain.MessageTemplate, error) {
	args := m.Called(ctx, tenantID, templateID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MessageTemplate), args.Error(1)
}

type MockMessageHistoryRepository struct {
	mock.Mock
}

func (m *MockMessageHistoryRepository) Create(ctx context.Context, entry *domain.MessageHistoryEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

type MockRunEventPublisher struct {
	mock.Mock
}

func (m *MockRunEventPublisher) PublishRunCompleted(ctx context.Context, event RunCompletedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// --- Fakes ---

// fakeClock advances only when slept on.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, time.March, 5, 13, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// stubGateway records every send and its start time on the fake clock.
type stubGateway struct {
	clock   *fakeClock
	respond func(req provider.SendRequest) (*provider.SendResult, error)

	mu     sync.Mutex
	calls  []provider.SendRequest
	starts []time.Time
}

func (g *stubGateway) Send(ctx context.Context, req provider.SendRequest) (*provider.SendResult, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	g.starts = append(g.starts, g.clock.Now())
	g.mu.Unlock()

	if g.respond != nil {
		return g.respond(req)
	}
	return &provider.SendResult{MessageID: "msg-" + req.Recipient, StatusCode: 201, Attempts: 1}, nil
}

func (g *stubGateway) GetName() string { return "stub" }

func (g *stubGateway) Calls() []provider.SendRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]provider.SendRequest(nil), g.calls...)
}

func (g *stubGateway) Starts() []time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]time.Time(nil), g.starts...)
}

// memoryRecorder keeps every recorded attempt in memory.
type memoryRecorder struct {
	mu          sync.Mutex
	attempts    []domain.DeliveryAttempt
	templateIDs []string
}

func (r *memoryRecorder) Record(_ context.Context, attempt domain.DeliveryAttempt, _ string, templateID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, attempt)
	r.templateIDs = append(r.templateIDs, templateID)
}

func (r *memoryRecorder) Attempts() []domain.DeliveryAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.DeliveryAttempt(nil), r.attempts...)
}
