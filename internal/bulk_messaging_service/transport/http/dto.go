package http

import "github.com/revalya/golang_services/internal/bulk_messaging_service/domain"

// BulkMessageRequest is the body of POST /api/v1/messages/bulk.
type BulkMessageRequest struct {
	TargetIDs     []string `json:"targetIds" validate:"required,min=1,max=1000,dive,required,uuid"`
	TemplateID    string   `json:"templateId,omitempty" validate:"omitempty,uuid"`
	CustomMessage string   `json:"customMessage,omitempty" validate:"omitempty,max=4096"`
}

// BulkMessageResponse wraps the run summary.
type BulkMessageResponse struct {
	Success   bool               `json:"success"`
	Data      *domain.RunSummary `json:"data"`
	RequestID string             `json:"requestId"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}
