package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/revalya/golang_services/internal/bulk_messaging_service/domain"
	"github.com/revalya/golang_services/internal/bulk_messaging_service/repository"
)

type PgTargetRepository struct {
	db     Querier
	logger *slog.Logger
}

func NewPgTargetRepository(db Querier, logger *slog.Logger) repository.TargetRepository {
	return &PgTargetRepository{db: db, logger: logger.With("component", "target_repository_pg")}
}

const listTargetsQuery = `SELECT c.id, c.tenant_id, c.customer_id,
		cu.name, cu.email, cu.cpf_cnpj::text, cu.company, cu.phone, cu.whatsapp,
		c.valor, c.data_vencimento, c.descricao, c.status, c.link_pagamento, c.codigo_barras, c.pix_key
	FROM charges c
	JOIN customers cu ON cu.id = c.customer_id AND cu.tenant_id = c.tenant_id
	WHERE c.id = ANY($1::uuid[]) AND c.tenant_id = $2`

func (r *PgTargetRepository) ListByChargeIDs(ctx context.Context, tenantID string, chargeIDs []string) ([]domain.Target, error) {
	if len(chargeIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx, listTargetsQuery, chargeIDs, tenantID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error querying targets", "tenant_id", tenantID, "count", len(chargeIDs), "error", err)
		return nil, fmt.Errorf("querying targets: %w", err)
	}
	defer rows.Close()

	targets := make([]domain.Target, 0, len(chargeIDs))
	for rows.Next() {
		var t domain.Target
		var name, email, document, company, phone, whatsapp *string
		var description, status, link, barcode, pix *string
		var amount *float64
		var dueDate *time.Time

		if err := rows.Scan(
			&t.ChargeID, &t.TenantID, &t.CustomerID,
			&name, &email, &document, &company, &phone, &whatsapp,
			&amount, &dueDate, &description, &status, &link, &barcode, &pix,
		); err != nil {
			r.logger.ErrorContext(ctx, "Error scanning target row", "tenant_id", tenantID, "error", err)
			return nil, fmt.Errorf("scanning target row: %w", err)
		}

		if t.TenantID != tenantID {
			r.logger.ErrorContext(ctx, "Security violation: charge belongs to another tenant, dropping", "charge_id", t.ChargeID, "tenant_id", tenantID, "owner_tenant_id", t.TenantID)
			continue
		}

		t.CustomerName = deref(name)
		t.CustomerEmail = deref(email)
		t.CustomerDocument = deref(document)
		t.CustomerCompany = deref(company)
		t.Phone = deref(phone)
		t.WhatsApp = deref(whatsapp)
		t.Amount = amount
		t.DueDate = dueDate
		t.Description = deref(description)
		t.Status = deref(status)
		t.PaymentLink = deref(link)
		t.Barcode = deref(barcode)
		t.PixKey = deref(pix)
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		r.logger.ErrorContext(ctx, "Error iterating target rows", "tenant_id", tenantID, "error", err)
		return nil, fmt.Errorf("iterating target rows: %w", err)
	}

	r.logger.DebugContext(ctx, "Targets fetched", "tenant_id", tenantID, "requested", len(chargeIDs), "found", len(targets))
	return targets, nil
}
