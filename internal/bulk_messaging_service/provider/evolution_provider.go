package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/revalya/golang_services/internal/bulk_messaging_service/domain"
)

const maxResponseBytes = 1 << 20

// EvolutionConfig tunes the Evolution API client. Zero values take the defaults below.
type EvolutionConfig struct {
	RequestTimeout time.Duration // per attempt, default 30s
	PresenceDelay  time.Duration // "delay" field sent with every message, default 1s
	MaxAttempts    int           // default 3
	BaseBackoff    time.Duration // doubled after every failed attempt, default 1s
	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (c EvolutionConfig) withDefaults() EvolutionConfig {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.PresenceDelay < 0 {
		c.PresenceDelay = 0
	} else if c.PresenceDelay == 0 {
		c.PresenceDelay = time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = time.Second
	}
	if c.Sleep == nil {
		c.Sleep = sleepContext
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// EvolutionProvider sends WhatsApp text messages through an Evolution API instance.
type EvolutionProvider struct {
	logger     *slog.Logger
	httpClient *http.Client
	cfg        EvolutionConfig
	tracer     trace.Tracer
}

func NewEvolutionProvider(logger *slog.Logger, httpClient *http.Client, cfg EvolutionConfig) *EvolutionProvider {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &EvolutionProvider{
		logger:     logger.With("provider", "evolution"),
		httpClient: httpClient,
		cfg:        cfg.withDefaults(),
		tracer:     otel.Tracer("bulk_messaging_service/provider"),
	}
}

// EvolutionSendTextBody is the body of POST /message/sendText/{instance}.
type EvolutionSendTextBody struct {
	Number      string `json:"number"`
	Text        string `json:"text"`
	LinkPreview bool   `json:"linkPreview"`
	Delay       int    `json:"delay"`
}

// EvolutionSendTextResponse is the subset of the gateway reply we rely on.
type EvolutionSendTextResponse struct {
	Key struct {
		RemoteJid string `json:"remoteJid"`
		FromMe    bool   `json:"fromMe"`
		ID        string `json:"id"`
	} `json:"key"`
	Status string `json:"status"`
}

func (p *EvolutionProvider) GetName() string {
	return "evolution"
}

// Send posts the message, retrying transient failures with exponential backoff.
// 4xx responses are returned immediately.
func (p *EvolutionProvider) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	ctx, span := p.tracer.Start(ctx, "evolution.send_text", trace.WithAttributes(
		attribute.String("gateway.instance", req.Config.InstanceName),
		attribute.String("gateway.environment", string(req.Config.Environment)),
		attribute.String("request.id", req.RequestID),
	))
	defer span.End()

	body, err := json.Marshal(EvolutionSendTextBody{
		Number:      req.Recipient,
		Text:        req.Text,
		LinkPreview: false,
		Delay:       int(p.cfg.PresenceDelay / time.Millisecond),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request for Evolution: %w", err)
	}
	endpoint := fmt.Sprintf("%s/message/sendText/%s",
		strings.TrimRight(req.Config.BaseURL, "/"), url.PathEscape(req.Config.InstanceName))

	backoff := p.cfg.BaseBackoff
	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		result, err := p.sendOnce(ctx, endpoint, req, body)
		if err == nil {
			result.Attempts = attempt
			span.SetAttributes(attribute.Int("gateway.attempts", attempt), attribute.String("gateway.message_id", result.MessageID))
			p.logger.InfoContext(ctx, "Message accepted by Evolution", "request_id", req.RequestID, "provider_message_id", result.MessageID, "attempt", attempt)
			return result, nil
		}
		lastErr = err
		if errors.Is(err, domain.ErrGatewayPermanent) || attempt == p.cfg.MaxAttempts {
			break
		}

		p.logger.WarnContext(ctx, "Evolution send failed, retrying", "request_id", req.RequestID, "attempt", attempt, "backoff", backoff, "error", err)
		if sleepErr := p.cfg.Sleep(ctx, backoff); sleepErr != nil {
			break
		}
		backoff *= 2
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	p.logger.WarnContext(ctx, "Evolution send failed", "request_id", req.RequestID, "error", lastErr)
	return nil, lastErr
}

func (p *EvolutionProvider) sendOnce(ctx context.Context, endpoint string, req SendRequest, body []byte) (*SendResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewPermanentGatewayError(0, domain.GatewayErrorOther, fmt.Sprintf("invalid gateway url: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("apikey", req.Config.APIKey)
	if req.RequestID != "" {
		httpReq.Header.Set("X-Request-Id", req.RequestID)
	}

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return nil, domain.NewTransientGatewayError(0, domain.GatewayErrorTimeout, "gateway request timed out", err)
		}
		return nil, domain.NewTransientGatewayError(0, domain.GatewayErrorConnectivity, fmt.Sprintf("gateway unreachable: %v", err), err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, domain.NewTransientGatewayError(httpResp.StatusCode, domain.GatewayErrorOther, fmt.Sprintf("failed to read gateway response: %v", err), err)
	}

	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		var parsed EvolutionSendTextResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return nil, domain.NewTransientGatewayError(httpResp.StatusCode, domain.GatewayErrorOther, "malformed gateway response", err)
		}
		if parsed.Key.ID == "" {
			return nil, domain.NewTransientGatewayError(httpResp.StatusCode, domain.GatewayErrorOther, "gateway response without message id", nil)
		}
		return &SendResult{
			MessageID:  parsed.Key.ID,
			Status:     parsed.Status,
			StatusCode: httpResp.StatusCode,
		}, nil
	}

	raw := extractErrorMessage(respBody)
	if raw == "" {
		raw = fmt.Sprintf("status %d %s", httpResp.StatusCode, http.StatusText(httpResp.StatusCode))
	}
	category, message := classify(httpResp.StatusCode, raw)
	if httpResp.StatusCode >= 400 && httpResp.StatusCode < 500 {
		return nil, domain.NewPermanentGatewayError(httpResp.StatusCode, category, message)
	}
	return nil, domain.NewTransientGatewayError(httpResp.StatusCode, category, message, nil)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// extractErrorMessage pulls a human readable message out of the gateway error body.
// Evolution nests it as response.message (string or array), other versions use
// message or error at the top level.
func extractErrorMessage(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		s := strings.TrimSpace(string(body))
		if len(s) > 200 {
			s = s[:200]
		}
		return s
	}
	if resp, ok := payload["response"].(map[string]any); ok {
		if msg := flatten(resp["message"]); msg != "" {
			return msg
		}
	}
	if msg := flatten(payload["message"]); msg != "" {
		return msg
	}
	return flatten(payload["error"])
}

func flatten(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := flatten(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	case map[string]any:
		return flatten(t["message"])
	}
	return ""
}

var (
	authMarkers         = []string{"unauthorized", "forbidden", "apikey", "api key", "invalid token"}
	timeoutMarkers      = []string{"timeout", "timed out", "deadline exceeded"}
	connectivityMarkers = []string{"connection closed", "not connected", "disconnected", "connection refused", "session", "qrcode", "econnreset"}
)

// classify maps well known gateway messages to coarse categories for operators.
// Anything unrecognised is passed through as-is.
func classify(status int, raw string) (domain.GatewayErrorCategory, string) {
	lower := strings.ToLower(raw)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden || containsAny(lower, authMarkers):
		return domain.GatewayErrorAuthentication, "gateway authentication failed: " + raw
	case status == http.StatusGatewayTimeout || containsAny(lower, timeoutMarkers):
		return domain.GatewayErrorTimeout, "gateway timeout: " + raw
	case containsAny(lower, connectivityMarkers):
		return domain.GatewayErrorConnectivity, "gateway session not connected: " + raw
	}
	return domain.GatewayErrorOther, raw
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
