package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/revalya/golang_services/internal/bulk_messaging_service/domain"
	"github.com/revalya/golang_services/internal/bulk_messaging_service/repository"
)

type PgTemplateRepository struct {
	db     Querier
	logger *slog.Logger
}

func NewPgTemplateRepository(db Querier, logger *slog.Logger) repository.TemplateRepository {
	return &PgTemplateRepository{db: db, logger: logger.With("component", "template_repository_pg")}
}

func (r *PgTemplateRepository) GetByID(ctx context.Context, tenantID, templateID string) (*domain.MessageTemplate, error) {
	query := `SELECT id, tenant_id, name, message FROM notification_templates WHERE id = $1 AND tenant_id = $2`

	var (
		tpl  domain.MessageTemplate
		name *string
	)
	err := r.db.QueryRow(ctx, query, templateID, tenantID).Scan(&tpl.ID, &tpl.TenantID, &name, &tpl.Body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.NotFoundError{Resource: "template", ID: templateID}
		}
		r.logger.ErrorContext(ctx, "Error fetching template", "template_id", templateID, "tenant_id", tenantID, "error", err)
		return nil, fmt.Errorf("fetching template %s: %w", templateID, err)
	}

	// Ownership is re-checked after the tenant-filtered query.
	if tpl.TenantID != tenantID {
		r.logger.ErrorContext(ctx, "Template belongs to another tenant", "template_id", templateID, "tenant_id", tenantID, "owner_tenant_id", tpl.TenantID)
		return nil, &domain.NotFoundError{Resource: "template", ID: templateID}
	}
	tpl.Name = deref(name)
	return &tpl, nil
}
