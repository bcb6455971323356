package domain

import (
	"strings"
	"time"
)

// Environment selects which gateway integration record of a tenant is used.
type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentSandbox    Environment = "sandbox"
)

// IsValid reports whether e is one of the known gateway environments.
func (e Environment) IsValid() bool {
	return e == EnvironmentProduction || e == EnvironmentSandbox
}

// DeliveryStatus is the coarse outcome stored in the message history.
type DeliveryStatus string

const (
	DeliveryStatusSent   DeliveryStatus = "SENT"
	DeliveryStatusFailed DeliveryStatus = "FAILED"
)

// GatewayOverrides are per-request values supplied by the caller, usually via headers.
// Zero values mean "not overridden".
type GatewayOverrides struct {
	Environment  Environment
	BaseURL      string
	APIKey       string
	InstanceName string
}

// RunOverrides tune a single dispatch run. Zero values fall back to service defaults.
type RunOverrides struct {
	CountryCode     string
	MinSendInterval time.Duration
	BatchSize       int
	Concurrency     int
	DryRun          bool
}

// DispatchRequest is the input to one dispatch run.
type DispatchRequest struct {
	TenantID      string
	UserID        string
	RequestID     string
	TargetIDs     []string
	TemplateID    string
	CustomMessage string
	Gateway       GatewayOverrides
	Run           RunOverrides
}

// UniqueTargetIDs returns the trimmed, non-empty target IDs with duplicates removed,
// preserving first-seen order.
func (r DispatchRequest) UniqueTargetIDs() []string {
	seen := make(map[string]struct{}, len(r.TargetIDs))
	ids := make([]string, 0, len(r.TargetIDs))
	for _, id := range r.TargetIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// GatewayConfig is the resolved messaging gateway configuration for a tenant and environment.
type GatewayConfig struct {
	BaseURL      string
	APIKey       string
	InstanceName string
	Environment  Environment
}

// TenantIntegration is the stored gateway integration record of a tenant.
type TenantIntegration struct {
	ID           string
	TenantID     string
	Environment  Environment
	BaseURL      string
	APIKey       string
	InstanceName string
	IsActive     bool
}

// MessageTemplate is a stored message body owned by a tenant.
type MessageTemplate struct {
	ID       string
	TenantID string
	Name     string
	Body     string
}

// Target is one charge joined with the customer that should receive the message.
type Target struct {
	ChargeID         string     `json:"charge_id"`
	TenantID         string     `json:"tenant_id"`
	CustomerID       string     `json:"customer_id"`
	CustomerName     string     `json:"customer_name"`
	CustomerEmail    string     `json:"customer_email,omitempty"`
	CustomerDocument string     `json:"customer_document,omitempty"`
	CustomerCompany  string     `json:"customer_company,omitempty"`
	Phone            string     `json:"phone,omitempty"`
	WhatsApp         string     `json:"whatsapp,omitempty"`
	Amount           *float64   `json:"amount,omitempty"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	Description      string     `json:"description,omitempty"`
	Status           string     `json:"status,omitempty"`
	PaymentLink      string     `json:"payment_link,omitempty"`
	Barcode          string     `json:"barcode,omitempty"`
	PixKey           string     `json:"pix_key,omitempty"`
}

// RecipientPhone returns the WhatsApp number when present, otherwise the generic phone.
func (t Target) RecipientPhone() string {
	if wa := strings.TrimSpace(t.WhatsApp); wa != "" {
		return wa
	}
	return strings.TrimSpace(t.Phone)
}

// DeliveryAttempt is the immutable outcome of one send attempt for one target in one run.
type DeliveryAttempt struct {
	TargetID    string    `json:"targetId"`
	CustomerID  string    `json:"customerId,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Message     string    `json:"message,omitempty"`
	Success     bool      `json:"success"`
	MessageID   string    `json:"messageId,omitempty"`
	Error       string    `json:"error,omitempty"`
	RequestID   string    `json:"requestId"`
	DryRun      bool      `json:"dryRun,omitempty"`
	AttemptedAt time.Time `json:"attemptedAt"`
}

// Status maps the attempt outcome to the stored delivery status.
func (a DeliveryAttempt) Status() DeliveryStatus {
	if a.Success {
		return DeliveryStatusSent
	}
	return DeliveryStatusFailed
}

// RunSummary aggregates all attempts of one dispatch run.
type RunSummary struct {
	Total   int               `json:"total"`
	Success int               `json:"success"`
	Failed  int               `json:"failed"`
	Details []DeliveryAttempt `json:"details"`
}

// SuccessRate returns the share of successful attempts in percent.
func (s RunSummary) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Success) / float64(s.Total) * 100
}

// MessageHistoryMetadata is stored as JSON alongside every history row.
type MessageHistoryMetadata struct {
	Phone     string    `json:"phone"`
	RequestID string    `json:"request_id"`
	DryRun    bool      `json:"dry_run"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageHistoryEntry is the persisted form of a DeliveryAttempt. Rows are append-only.
type MessageHistoryEntry struct {
	ID                string
	TenantID          string
	ChargeID          string
	CustomerID        string
	TemplateID        *string
	Message           string
	Status            DeliveryStatus
	ErrorMessage      *string
	ExternalMessageID *string
	Metadata          MessageHistoryMetadata
	CreatedAt         time.Time
}
