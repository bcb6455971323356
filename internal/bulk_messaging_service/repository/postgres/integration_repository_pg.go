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

const whatsappIntegrationType = "whatsapp"

type PgIntegrationRepository struct {
	db     Querier
	logger *slog.Logger
}

func NewPgIntegrationRepository(db Querier, logger *slog.Logger) repository.IntegrationRepository {
	return &PgIntegrationRepository{db: db, logger: logger.With("component", "integration_repository_pg")}
}

func (r *PgIntegrationRepository) GetActive(ctx context.Context, tenantID string, env domain.Environment) (*domain.TenantIntegration, error) {
	query := `SELECT id, tenant_id, environment, api_url, api_key, instance_name, is_active
		FROM tenant_integrations
		WHERE tenant_id = $1 AND integration_type = $2 AND environment = $3 AND is_active = true
		ORDER BY updated_at DESC
		LIMIT 1`

	var integration domain.TenantIntegration
	var environment string
	var apiURL, apiKey, instanceName *string
	err := r.db.QueryRow(ctx, query, tenantID, whatsappIntegrationType, string(env)).Scan(
		&integration.ID, &integration.TenantID, &environment, &apiURL, &apiKey, &instanceName, &integration.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.NotFoundError{Resource: "gateway integration", ID: string(env)}
		}
		r.logger.ErrorContext(ctx, "Error fetching gateway integration", "tenant_id", tenantID, "environment", env, "error", err)
		return nil, fmt.Errorf("fetching gateway integration: %w", err)
	}

	integration.Environment = domain.Environment(environment)
	integration.BaseURL = deref(apiURL)
	integration.APIKey = deref(apiKey)
	integration.InstanceName = deref(instanceName)
	return &integration, nil
}
