package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revalya/golang_services/internal/bulk_messaging_service/domain"
)

func ptr[T any](v T) *T { return &v }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPgIntegrationRepository_GetActive(t *testing.T) {
	tenantID := "5f0c2d8e-1111-4a2b-9c3d-000000000001"

	t.Run("Found", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		repo := NewPgIntegrationRepository(mockPool, discardLogger())

		rows := mockPool.NewRows([]string{"id", "tenant_id", "environment", "api_url", "api_key", "instance_name", "is_active"}).
			AddRow("int-1", tenantID, "production", ptr("https://evo.example.com"), ptr("secret"), (*string)(nil), true)
		mockPool.ExpectQuery(`FROM tenant_integrations\s+WHERE tenant_id = \$1 AND integration_type = \$2 AND environment = \$3 AND is_active = true`).
			WithArgs(tenantID, "whatsapp", "production").
			WillReturnRows(rows)

		integration, err := repo.GetActive(context.Background(), tenantID, domain.EnvironmentProduction)
		require.NoError(t, err)
		assert.Equal(t, "https://evo.example.com", integration.BaseURL)
		assert.Equal(t, "secret", integration.APIKey)
		assert.Empty(t, integration.InstanceName)
		assert.Equal(t, domain.EnvironmentProduction, integration.Environment)
		assert.True(t, integration.IsActive)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		repo := NewPgIntegrationRepository(mockPool, discardLogger())
		mockPool.ExpectQuery(`FROM tenant_integrations`).
			WithArgs(tenantID, "whatsapp", "sandbox").
			WillReturnError(pgx.ErrNoRows)

		integration, err := repo.GetActive(context.Background(), tenantID, domain.EnvironmentSandbox)
		assert.Nil(t, integration)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("DBError", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		repo := NewPgIntegrationRepository(mockPool, discardLogger())
		dbErr := errors.New("connection reset")
		mockPool.ExpectQuery(`FROM tenant_integrations`).
			WithArgs(tenantID, "whatsapp", "production").
			WillReturnError(dbErr)

		_, err = repo.GetActive(context.Background(), tenantID, domain.EnvironmentProduction)
		assert.ErrorIs(t, err, dbErr)
		assert.NotErrorIs(t, err, domain.ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPgTemplateRepository_GetByID(t *testing.T) {
	tenantID := "tenant-a"

	t.Run("Found", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		repo := NewPgTemplateRepository(mockPool, discardLogger())
		rows := mockPool.NewRows([]string{"id", "tenant_id", "name", "message"}).
			AddRow("tpl-1", tenantID, ptr("Lembrete"), "Olá {cliente.nome}")
		mockPool.ExpectQuery(`SELECT id, tenant_id, name, message FROM notification_templates WHERE id = \$1 AND tenant_id = \$2`).
			WithArgs("tpl-1", tenantID).
			WillReturnRows(rows)

		tpl, err := repo.GetByID(context.Background(), tenantID, "tpl-1")
		require.NoError(t, err)
		assert.Equal(t, "Olá {cliente.nome}", tpl.Body)
		assert.Equal(t, "Lembrete", tpl.Name)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		repo := NewPgTemplateRepository(mockPool, discardLogger())
		mockPool.ExpectQuery(`FROM notification_templates`).
			WithArgs("missing", tenantID).
			WillReturnError(pgx.ErrNoRows)

		_, err = repo.GetByID(context.Background(), tenantID, "missing")
		var nf *domain.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "template", nf.Resource)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("ForeignTenantRejected", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		repo := NewPgTemplateRepository(mockPool, discardLogger())
		rows := mockPool.NewRows([]string{"id", "tenant_id", "name", "message"}).
			AddRow("tpl-1", "tenant-b", (*string)(nil), "body")
		mockPool.ExpectQuery(`FROM notification_templates`).
			WithArgs("tpl-1", tenantID).
			WillReturnRows(rows)

		_, err = repo.GetByID(context.Background(), tenantID, "tpl-1")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPgTargetRepository_ListByChargeIDs(t *testing.T) {
	tenantID := "tenant-a"
	columns := []string{"id", "tenant_id", "customer_id", "name", "email", "cpf_cnpj", "company", "phone", "whatsapp",
		"valor", "data_vencimento", "descricao", "status", "link_pagamento", "codigo_barras", "pix_key"}
	due := time.Date(2025, time.March, 9, 0, 0, 0, 0, time.UTC)
	var noText *string

	t.Run("ScansAndDropsForeignRows", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		repo := NewPgTargetRepository(mockPool, discardLogger())
		ids := []string{"charge-1", "charge-2", "charge-3"}
		rows := mockPool.NewRows(columns).
			AddRow("charge-1", tenantID, "cust-1", ptr("Ana"), ptr("ana@example.com"), noText, noText, ptr("11999990000"), ptr("11988887777"),
				ptr(150.0), &due, ptr("Mensalidade"), ptr("PENDING"), ptr("https://pay/1"), noText, noText).
			AddRow("charge-2", tenantID, "cust-2", ptr("Bruno"), noText, noText, noText, noText, noText,
				(*float64)(nil), (*time.Time)(nil), noText, noText, noText, noText, noText).
			AddRow("charge-3", "tenant-b", "cust-3", ptr("Mallory"), noText, noText, noText, ptr("11911112222"), noText,
				(*float64)(nil), (*time.Time)(nil), noText, noText, noText, noText, noText)
		mockPool.ExpectQuery(`FROM charges c\s+JOIN customers cu ON cu.id = c.customer_id AND cu.tenant_id = c.tenant_id\s+WHERE c.id = ANY\(\$1::uuid\[\]\) AND c.tenant_id = \$2`).
			WithArgs(ids, tenantID).
			WillReturnRows(rows)

		targets, err := repo.ListByChargeIDs(context.Background(), tenantID, ids)
		require.NoError(t, err)
		require.Len(t, targets, 2)

		assert.Equal(t, "Ana", targets[0].CustomerName)
		assert.Equal(t, "11988887777", targets[0].RecipientPhone())
		require.NotNil(t, targets[0].Amount)
		assert.InDelta(t, 150.0, *targets[0].Amount, 0.001)
		assert.Equal(t, due, *targets[0].DueDate)

		assert.Equal(t, "Bruno", targets[1].CustomerName)
		assert.Empty(t, targets[1].RecipientPhone())
		assert.Nil(t, targets[1].Amount)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("EmptyInputSkipsQuery", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		targets, err := NewPgTargetRepository(mockPool, discardLogger()).ListByChargeIDs(context.Background(), tenantID, nil)
		assert.NoError(t, err)
		assert.Empty(t, targets)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("QueryError", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectQuery(`FROM charges c`).
			WithArgs([]string{"charge-1"}, tenantID).
			WillReturnError(errors.New("db down"))

		_, err = NewPgTargetRepository(mockPool, discardLogger()).ListByChargeIDs(context.Background(), tenantID, []string{"charge-1"})
		assert.ErrorContains(t, err, "querying targets")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPgMessageHistoryRepository_Create(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	repo := NewPgMessageHistoryRepository(mockPool, discardLogger())
	now := time.Date(2025, time.March, 5, 13, 0, 0, 0, time.UTC)
	entry := &domain.MessageHistoryEntry{
		ID:                "hist-1",
		TenantID:          "tenant-a",
		ChargeID:          "charge-1",
		CustomerID:        "cust-1",
		Message:           "Hi Ana",
		Status:            domain.DeliveryStatusSent,
		ExternalMessageID: ptr("BAE5F1"),
		Metadata: domain.MessageHistoryMetadata{
			Phone:     "5511988887777",
			RequestID: "req-1",
			Timestamp: now,
		},
		CreatedAt: now,
	}
	metadata, err := json.Marshal(entry.Metadata)
	require.NoError(t, err)

	mockPool.ExpectExec(`INSERT INTO message_history`).
		WithArgs("hist-1", "tenant-a", "charge-1", "cust-1", (*string)(nil), "Hi Ana", "SENT", (*string)(nil), entry.ExternalMessageID, metadata, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), entry))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgMessageHistoryRepository_Create_Error(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	repo := NewPgMessageHistoryRepository(mockPool, discardLogger())
	mockPool.ExpectExec(`INSERT INTO message_history`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("relation does not exist"))

	err = repo.Create(context.Background(), &domain.MessageHistoryEntry{ID: "hist-2", Status: domain.DeliveryStatusFailed})
	assert.ErrorContains(t, err, "inserting message history")
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
