package app

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/revalya/golang_services/internal/bulk_messaging_service/domain"
	"github.com/revalya/golang_services/internal/bulk_messaging_service/repository"
)

// GatewayDefaults are the process-wide fallbacks used when neither the caller nor
// the tenant integration provides a value. The instance name has no default.
type GatewayDefaults struct {
	BaseURL     string
	APIKey      string
	Environment domain.Environment
}

// ConfigResolver builds the gateway configuration for one tenant and environment.
type ConfigResolver struct {
	integrations repository.IntegrationRepository
	defaults     GatewayDefaults
	logger       *slog.Logger
}

func NewConfigResolver(integrations repository.IntegrationRepository, defaults GatewayDefaults, logger *slog.Logger) *ConfigResolver {
	if !defaults.Environment.IsValid() {
		defaults.Environment = domain.EnvironmentProduction
	}
	return &ConfigResolver{
		integrations: integrations,
		defaults:     defaults,
		logger:       logger.With("component", "gateway_config_resolver"),
	}
}

// Resolve applies, per field, override -> stored integration -> process default.
// The instance name has no process default. A *domain.ConfigurationError names the
// first field left empty.
func (r *ConfigResolver) Resolve(ctx context.Context, tenantID string, env domain.Environment, overrides domain.GatewayOverrides) (*domain.GatewayConfig, error) {
	env = domain.Environment(strings.ToLower(strings.TrimSpace(string(env))))
	if env == "" {
		env = r.defaults.Environment
	}
	if !env.IsValid() {
		configResolutionFailuresCounter.WithLabelValues("environment").Inc()
		return nil, &domain.ConfigurationError{Field: "environment", Reason: fmt.Sprintf("%q is not one of production, sandbox", env)}
	}

	var stored domain.TenantIntegration
	integration, err := r.integrations.GetActive(ctx, tenantID, env)
	switch {
	case err == nil:
		stored = *integration
	case errors.Is(err, domain.ErrNotFound):
		r.logger.DebugContext(ctx, "No stored gateway integration, relying on overrides and defaults", "tenant_id", tenantID, "environment", env)
	default:
		return nil, fmt.Errorf("loading gateway integration: %w", err)
	}

	baseURL, baseURLSource := firstNonEmpty(overrides.BaseURL, stored.BaseURL, r.defaults.BaseURL)
	apiKey, apiKeySource := firstNonEmpty(overrides.APIKey, stored.APIKey, r.defaults.APIKey)
	instance, instanceSource := firstNonEmpty(overrides.InstanceName, stored.InstanceName, "")

	cfg := &domain.GatewayConfig{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		APIKey:       apiKey,
		InstanceName: instance,
		Environment:  env,
	}

	for _, f := range []struct{ name, value string }{
		{"baseUrl", cfg.BaseURL},
		{"apiKey", cfg.APIKey},
		{"instanceName", cfg.InstanceName},
	} {
		if f.value == "" {
			configResolutionFailuresCounter.WithLabelValues(f.name).Inc()
			r.logger.WarnContext(ctx, "Gateway configuration incomplete", "tenant_id", tenantID, "environment", env, "missing_field", f.name)
			return nil, &domain.ConfigurationError{Field: f.name}
		}
	}

	r.logger.InfoContext(ctx, "Gateway configuration resolved",
		"tenant_id", tenantID,
		"environment", env,
		"base_url", cfg.BaseURL,
		"base_url_source", baseURLSource,
		"api_key_fingerprint", KeyFingerprint(cfg.APIKey),
		"api_key_source", apiKeySource,
		"instance", cfg.InstanceName,
		"instance_source", instanceSource)
	return cfg, nil
}

func firstNonEmpty(override, stored, fallback string) (string, string) {
	if v := strings.TrimSpace(override); v != "" {
		return v, "override"
	}
	if v := strings.TrimSpace(stored); v != "" {
		return v, "stored"
	}
	if v := strings.TrimSpace(fallback); v != "" {
		return v, "default"
	}
	return "", ""
}

// KeyFingerprint identifies a credential in logs without revealing it.
func KeyFingerprint(key string) string {
	if key == "" {
		return ""
	}
	sum := sha3.Sum256([]byte(key))
	return hex.EncodeToString(sum[:6])
}
