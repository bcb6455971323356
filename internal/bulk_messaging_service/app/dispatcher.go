package app

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/revalya/golang_services/internal/bulk_messaging_service/domain"
	"github.com/revalya/golang_services/internal/bulk_messaging_service/provider"
	"github.com/revalya/golang_services/internal/bulk_messaging_service/render"
	"github.com/revalya/golang_services/internal/bulk_messaging_service/repository"
)

const (
	DefaultBatchSize   = 10
	MaxBatchSize       = 100
	DefaultConcurrency = 3
	MaxConcurrency     = 10
	// InterBatchPause is slept between two consecutive batches.
	InterBatchPause = time.Second
)

// GatewayConfigResolver is implemented by *ConfigResolver.
type GatewayConfigResolver interface {
	Resolve(ctx context.Context, tenantID string, env domain.Environment, overrides domain.GatewayOverrides) (*domain.GatewayConfig, error)
}

// DeliveryRecorder is implemented by *DeliveryLogWriter.
type DeliveryRecorder interface {
	Record(ctx context.Context, attempt domain.DeliveryAttempt, tenantID, templateID string)
}

// Dispatcher runs bulk sends: pre-flight checks, then paced, batched delivery.
type Dispatcher struct {
	resolver           GatewayConfigResolver
	targets            repository.TargetRepository
	templates          repository.TemplateRepository
	gateway            provider.GatewayClient
	dryRun             provider.GatewayClient
	renderer           *render.Renderer
	recorder           DeliveryRecorder
	events             RunEventPublisher
	clock              Clock
	defaultCountryCode string
	logger             *slog.Logger
	tracer             trace.Tracer
}

// NewDispatcher wires a Dispatcher. events may be nil.
func NewDispatcher(
	resolver GatewayConfigResolver,
	targets repository.TargetRepository,
	templates repository.TemplateRepository,
	gateway provider.GatewayClient,
	dryRun provider.GatewayClient,
	renderer *render.Renderer,
	recorder DeliveryRecorder,
	events RunEventPublisher,
	clock Clock,
	defaultCountryCode string,
	logger *slog.Logger,
) *Dispatcher {
	if clock == nil {
		clock = SystemClock()
	}
	if defaultCountryCode == "" {
		defaultCountryCode = domain.DefaultCountryCode
	}
	return &Dispatcher{
		resolver:           resolver,
		targets:            targets,
		templates:          templates,
		gateway:            gateway,
		dryRun:             dryRun,
		renderer:           renderer,
		recorder:           recorder,
		events:             events,
		clock:              clock,
		defaultCountryCode: defaultCountryCode,
		logger:             logger.With("service", "bulk_messaging_dispatcher"),
		tracer:             otel.Tracer("bulk_messaging_service/app"),
	}
}

// RunParams are the clamped execution parameters of one run.
type RunParams struct {
	BatchSize       int
	Concurrency     int
	MinSendInterval time.Duration
	CountryCode     string
	DryRun          bool
}

// ResolveRunParams clamps caller overrides to the safe ranges.
func ResolveRunParams(o domain.RunOverrides, targetCount int, defaultCountryCode string) RunParams {
	p := RunParams{
		BatchSize:       o.BatchSize,
		Concurrency:     o.Concurrency,
		MinSendInterval: o.MinSendInterval,
		CountryCode:     strings.TrimSpace(o.CountryCode),
		DryRun:          o.DryRun,
	}
	if p.BatchSize <= 0 {
		p.BatchSize = DefaultBatchSize
	}
	p.BatchSize = min(p.BatchSize, MaxBatchSize)
	if p.Concurrency <= 0 {
		p.Concurrency = DefaultConcurrency
	}
	p.Concurrency = min(p.Concurrency, MaxConcurrency)
	if targetCount == 1 {
		p.Concurrency = 1
	}
	if p.MinSendInterval < MinSendInterval {
		p.MinSendInterval = MinSendInterval
	}
	if p.CountryCode == "" {
		p.CountryCode = defaultCountryCode
	}
	return p
}

// run is the state shared by the workers of one dispatch run.
type run struct {
	req        domain.DispatchRequest
	gateway    domain.GatewayConfig
	client     provider.GatewayClient
	template   string
	templateID string
	params     RunParams
	pacer      *Pacer

	mu      sync.Mutex
	claimed map[string]struct{}
	summary domain.RunSummary
}

// claim marks id as taken and reports whether the caller got it first.
func (r *run) claim(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.claimed[id]; ok {
		return false
	}
	r.claimed[id] = struct{}{}
	return true
}

func (r *run) add(a domain.DeliveryAttempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary.Total++
	if a.Success {
		r.summary.Success++
	} else {
		r.summary.Failed++
	}
	r.summary.Details = append(r.summary.Details, a)
}

// Run executes one dispatch. Errors are returned only for pre-flight failures;
// per-target failures are reported in the summary.
func (d *Dispatcher) Run(ctx context.Context, req domain.DispatchRequest) (*domain.RunSummary, error) {
	startedAt := d.clock.Now()
	ctx, span := d.tracer.Start(ctx, "dispatcher.run", trace.WithAttributes(
		attribute.String("tenant.id", req.TenantID),
		attribute.String("request.id", req.RequestID),
	))
	defer span.End()
	logger := d.logger.With("request_id", req.RequestID, "tenant_id", req.TenantID)

	r, targets, err := d.preflight(ctx, req, logger)
	if err != nil {
		dispatchRunsCounter.WithLabelValues("rejected").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WarnContext(ctx, "Dispatch run rejected", "error", err)
		return nil, err
	}

	logger.InfoContext(ctx, "Dispatch run started",
		"targets", len(targets),
		"batch_size", r.params.BatchSize,
		"concurrency", r.params.Concurrency,
		"min_send_interval", r.params.MinSendInterval,
		"dry_run", r.params.DryRun,
		"provider", r.client.GetName())

	d.execute(ctx, r, targets, logger)

	summary := r.summary
	finishedAt := d.clock.Now()
	dispatchRunsCounter.WithLabelValues("completed").Inc()
	dispatchRunDurationHist.Observe(finishedAt.Sub(startedAt).Seconds())
	span.SetAttributes(
		attribute.Int("run.total", summary.Total),
		attribute.Int("run.success", summary.Success),
		attribute.Int("run.failed", summary.Failed),
	)
	logger.InfoContext(ctx, "Dispatch run finished",
		"total", summary.Total,
		"success", summary.Success,
		"failed", summary.Failed,
		"success_rate", summary.SuccessRate(),
		"duration", finishedAt.Sub(startedAt))

	d.publishCompleted(ctx, r, startedAt, finishedAt, logger)
	return &summary, nil
}

// validateRequest checks the request shape before any I/O.
func validateRequest(req domain.DispatchRequest) ([]string, error) {
	if strings.TrimSpace(req.TenantID) == "" {
		return nil, &domain.ValidationError{Field: "tenantId", Reason: "is required"}
	}
	ids := req.UniqueTargetIDs()
	if len(ids) == 0 {
		return nil, &domain.ValidationError{Field: "targetIds", Reason: "at least one target is required"}
	}
	hasTemplate := strings.TrimSpace(req.TemplateID) != ""
	hasBody := strings.TrimSpace(req.CustomMessage) != ""
	switch {
	case hasTemplate && hasBody:
		return nil, &domain.ValidationError{Field: "templateId", Reason: "templateId and customMessage are mutually exclusive"}
	case !hasTemplate && !hasBody:
		return nil, &domain.ValidationError{Field: "templateId", Reason: "either templateId or customMessage is required"}
	}
	return ids, nil
}

func (d *Dispatcher) preflight(ctx context.Context, req domain.DispatchRequest, logger *slog.Logger) (*run, []domain.Target, error) {
	ids, err := validateRequest(req)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := d.resolver.Resolve(ctx, req.TenantID, req.Gateway.Environment, req.Gateway)
	if err != nil {
		return nil, nil, err
	}

	targets, err := d.targets.ListByChargeIDs(ctx, req.TenantID, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("loading targets: %w", err)
	}
	if len(targets) == 0 {
		return nil, nil, &domain.NotFoundError{Resource: "targets"}
	}
	if missing := len(ids) - len(targets); missing > 0 {
		logger.WarnContext(ctx, "Some targets were not found for tenant", "requested", len(ids), "found", len(targets))
	}

	r := &run{
		req:     req,
		gateway: *cfg,
		claimed: make(map[string]struct{}, len(targets)),
		params:  ResolveRunParams(req.Run, len(targets), d.defaultCountryCode),
	}
	if body := strings.TrimSpace(req.CustomMessage); body != "" {
		r.template = req.CustomMessage
	} else {
		tpl, err := d.templates.GetByID(ctx, req.TenantID, strings.TrimSpace(req.TemplateID))
		if err != nil {
			return nil, nil, err
		}
		if strings.TrimSpace(tpl.Body) == "" {
			return nil, nil, &domain.ValidationError{Field: "templateId", Reason: fmt.Sprintf("template %s has an empty body", tpl.ID)}
		}
		r.template = tpl.Body
		r.templateID = tpl.ID
	}

	r.client = d.gateway
	if r.params.DryRun {
		r.client = d.dryRun
	}
	r.pacer = NewPacer(d.clock, r.params.MinSendInterval)
	r.summary.Details = make([]domain.DeliveryAttempt, 0, len(targets))
	return r, targets, nil
}

// execute runs batches strictly one after another; each batch is drained by a
// fixed pool of workers.
func (d *Dispatcher) execute(ctx context.Context, r *run, targets []domain.Target, logger *slog.Logger) {
	for start, batchNo := 0, 1; start < len(targets); start, batchNo = start+r.params.BatchSize, batchNo+1 {
		if start > 0 {
			d.clock.Sleep(InterBatchPause)
		}
		end := min(start+r.params.BatchSize, len(targets))
		batch := targets[start:end]
		logger.DebugContext(ctx, "Processing batch", "batch", batchNo, "size", len(batch))
		d.runBatch(ctx, r, batch, logger)
	}
}

func (d *Dispatcher) runBatch(ctx context.Context, r *run, batch []domain.Target, logger *slog.Logger) {
	queue := make(chan domain.Target, len(batch))
	for _, t := range batch {
		queue <- t
	}
	close(queue)

	var wg sync.WaitGroup
	workers := min(r.params.Concurrency, len(batch))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range queue {
				if !r.claim(t.ChargeID) {
					logger.WarnContext(ctx, "Target already claimed in this run, skipping", "charge_id", t.ChargeID)
					continue
				}
				r.add(d.process(ctx, r, t, logger))
			}
		}()
	}
	wg.Wait()
}

// process handles one claimed target and always yields exactly one recorded attempt.
func (d *Dispatcher) process(ctx context.Context, r *run, t domain.Target, logger *slog.Logger) (attempt domain.DeliveryAttempt) {
	attempt = domain.DeliveryAttempt{
		TargetID:   t.ChargeID,
		CustomerID: t.CustomerID,
		RequestID:  r.req.RequestID,
		DryRun:     r.params.DryRun,
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorContext(ctx, "Panic while processing target", "charge_id", t.ChargeID, "panic", rec, "stack", string(debug.Stack()))
			attempt.Success = false
			attempt.MessageID = ""
			attempt.Error = fmt.Sprintf("internal error: %v", rec)
		}
		attempt.AttemptedAt = d.clock.Now()
		deliveryAttemptsCounter.WithLabelValues(string(attempt.Status()), strconv.FormatBool(attempt.DryRun)).Inc()
		d.recorder.Record(ctx, attempt, r.req.TenantID, r.templateID)
	}()

	rawPhone := t.RecipientPhone()
	if rawPhone == "" {
		attempt.Error = fmt.Sprintf("recipient not found: no phone number for customer %s", t.CustomerID)
		return attempt
	}
	phone := domain.NormalizePhone(rawPhone, r.params.CountryCode)
	if phone == "" {
		attempt.Error = fmt.Sprintf("recipient not found: no phone digits in %q", rawPhone)
		return attempt
	}
	attempt.Phone = phone
	attempt.Message = d.renderer.Render(r.template, t)

	var (
		result  *provider.SendResult
		sendErr error
	)
	waited := r.pacer.Do(func() {
		timer := prometheus.NewTimer(gatewayRequestDurationHist.WithLabelValues(r.client.GetName()))
		defer timer.ObserveDuration()
		result, sendErr = r.client.Send(ctx, provider.SendRequest{
			Config:    r.gateway,
			Recipient: phone,
			Text:      attempt.Message,
			RequestID: r.req.RequestID,
		})
	})
	pacingWaitHist.Observe(waited.Seconds())

	if sendErr != nil {
		attempt.Error = sendErr.Error()
		logger.WarnContext(ctx, "Delivery failed", "charge_id", t.ChargeID, "error", sendErr)
		return attempt
	}
	if result == nil || result.MessageID == "" {
		attempt.Error = "gateway returned no message id"
		return attempt
	}
	attempt.Success = true
	attempt.MessageID = result.MessageID
	return attempt
}

func (d *Dispatcher) publishCompleted(ctx context.Context, r *run, startedAt, finishedAt time.Time, logger *slog.Logger) {
	if d.events == nil {
		return
	}
	event := RunCompletedEvent{
		RequestID:   r.req.RequestID,
		TenantID:    r.req.TenantID,
		UserID:      r.req.UserID,
		TemplateID:  r.templateID,
		Total:       r.summary.Total,
		Success:     r.summary.Success,
		Failed:      r.summary.Failed,
		SuccessRate: r.summary.SuccessRate(),
		DryRun:      r.params.DryRun,
		StartedAt:   startedAt,
		FinishedAt:  finishedAt,
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.events.PublishRunCompleted(pubCtx, event); err != nil {
		logger.WarnContext(ctx, "Failed to publish run completed event", "error", err)
	}
}
