package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/revalya/golang_services/internal/bulk_messaging_service/domain"
	"github.com/revalya/golang_services/internal/bulk_messaging_service/repository"
)

type PgMessageHistoryRepository struct {
	db     Querier
	logger *slog.Logger
}

func NewPgMessageHistoryRepository(db Querier, logger *slog.Logger) repository.MessageHistoryRepository {
	return &PgMessageHistoryRepository{db: db, logger: logger.With("component", "message_history_repository_pg")}
}

func (r *PgMessageHistoryRepository) Create(ctx context.Context, entry *domain.MessageHistoryEntry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling history metadata: %w", err)
	}

	query := `INSERT INTO message_history
		(id, tenant_id, charge_id, customer_id, template_id, message, status, error_message, external_message_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.db.Exec(ctx, query,
		entry.ID, entry.TenantID, entry.ChargeID, entry.CustomerID, entry.TemplateID,
		entry.Message, string(entry.Status), entry.ErrorMessage, entry.ExternalMessageID,
		metadata, entry.CreatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error inserting message history", "charge_id", entry.ChargeID, "tenant_id", entry.TenantID, "error", err)
		return fmt.Errorf("inserting message history: %w", err)
	}
	return nil
}
