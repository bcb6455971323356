package provider

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// DryRunMessageIDPrefix marks message ids that were synthesised without a gateway call.
const DryRunMessageIDPrefix = "dry-run-"

// DryRunProvider accepts every message locally and never touches the network.
type DryRunProvider struct {
	logger *slog.Logger
}

func NewDryRunProvider(logger *slog.Logger) *DryRunProvider {
	return &DryRunProvider{logger: logger.With("provider", "dry_run")}
}

// Send simulates a successful delivery.
func (p *DryRunProvider) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	messageID := DryRunMessageIDPrefix + uuid.NewString()
	p.logger.DebugContext(ctx, "Dry run, message not sent",
		"request_id", req.RequestID,
		"recipient", req.Recipient,
		"content_length", len(req.Text),
		"provider_message_id", messageID)

	return &SendResult{
		MessageID: messageID,
		Status:    "DRY_RUN",
		Attempts:  0,
	}, nil
}

func (p *DryRunProvider) GetName() string {
	return "dry_run"
}
