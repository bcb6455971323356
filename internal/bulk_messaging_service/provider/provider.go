// Package provider contains the messaging gateway clients used to deliver rendered messages.
package provider

import (
	"context"

	"github.com/revalya/golang_services/internal/bulk_messaging_service/domain"
)

// SendRequest is a single outbound text message.
type SendRequest struct {
	Config    domain.GatewayConfig
	Recipient string
	Text      string
	RequestID string
}

// SendResult is returned only when the gateway accepted the message.
type SendResult struct {
	MessageID  string
	Status     string
	StatusCode int
	Attempts   int
}

// GatewayClient delivers one message. Failures are *domain.GatewayError values
// that can be matched with domain.ErrGatewayTransient / domain.ErrGatewayPermanent.
type GatewayClient interface {
	Send(ctx context.Context, req SendRequest) (*SendResult, error)
	GetName() string
}
