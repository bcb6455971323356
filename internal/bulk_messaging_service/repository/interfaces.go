package repository

import (
	"context"

	"github.com/revalya/golang_services/internal/bulk_messaging_service/domain"
)

// IntegrationRepository reads the tenant's messaging gateway integration.
type IntegrationRepository interface {
	// GetActive returns a *domain.NotFoundError when the tenant has no active
	// integration for env.
	GetActive(ctx context.Context, tenantID string, env domain.Environment) (*domain.TenantIntegration, error)
}

// TemplateRepository reads message templates.
type TemplateRepository interface {
	GetByID(ctx context.Context, tenantID, templateID string) (*domain.MessageTemplate, error)
}

// TargetRepository reads charges joined with their customers.
type TargetRepository interface {
	// ListByChargeIDs returns the targets found among chargeIDs, scoped to tenantID.
	// Unknown IDs are silently absent from the result.
	ListByChargeIDs(ctx context.Context, tenantID string, chargeIDs []string) ([]domain.Target, error)
}

// MessageHistoryRepository appends delivery attempts to the message history.
type MessageHistoryRepository interface {
	Create(ctx context.Context, entry *domain.MessageHistoryEntry) error
}
