package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/revalya/golang_services/internal/bulk_messaging_service/domain"
	"github.com/revalya/golang_services/internal/bulk_messaging_service/repository"
)

const defaultDeliveryLogTimeout = 5 * time.Second

// DeliveryLogWriter persists delivery attempts. Failures are logged and counted,
// never returned, so a broken history table cannot stop a run.
type DeliveryLogWriter struct {
	repo    repository.MessageHistoryRepository
	logger  *slog.Logger
	timeout time.Duration
}

func NewDeliveryLogWriter(repo repository.MessageHistoryRepository, logger *slog.Logger, timeout time.Duration) *DeliveryLogWriter {
	if timeout <= 0 {
		timeout = defaultDeliveryLogTimeout
	}
	return &DeliveryLogWriter{
		repo:    repo,
		logger:  logger.With("component", "delivery_log_writer"),
		timeout: timeout,
	}
}

// Record appends one history row for attempt. templateID may be empty for custom messages.
func (w *DeliveryLogWriter) Record(ctx context.Context, attempt domain.DeliveryAttempt, tenantID, templateID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
	defer cancel()

	entry := &domain.MessageHistoryEntry{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		ChargeID:   attempt.TargetID,
		CustomerID: attempt.CustomerID,
		Message:    attempt.Message,
		Status:     attempt.Status(),
		Metadata: domain.MessageHistoryMetadata{
			Phone:     attempt.Phone,
			RequestID: attempt.RequestID,
			DryRun:    attempt.DryRun,
			Timestamp: attempt.AttemptedAt,
		},
		CreatedAt: attempt.AttemptedAt,
	}
	if templateID != "" {
		entry.TemplateID = &templateID
	}
	if attempt.Error != "" {
		entry.ErrorMessage = &attempt.Error
	}
	if attempt.MessageID != "" {
		entry.ExternalMessageID = &attempt.MessageID
	}

	if err := w.repo.Create(ctx, entry); err != nil {
		deliveryLogFailuresCounter.Inc()
		logErr := &domain.LoggingError{TargetID: attempt.TargetID, Err: err}
		w.logger.ErrorContext(ctx, "Failed to record delivery attempt",
			"error", logErr,
			"tenant_id", tenantID,
			"charge_id", attempt.TargetID,
			"request_id", attempt.RequestID,
			"status", entry.Status)
	}
}
