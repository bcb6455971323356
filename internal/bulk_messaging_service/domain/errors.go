package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or incomplete dispatch requests.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks unresolved gateway configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound indicates that a requested resource was not found.
	ErrNotFound = errors.New("resource not found")
	// ErrGatewayTransient marks gateway failures that may succeed on retry.
	ErrGatewayTransient = errors.New("transient gateway error")
	// ErrGatewayPermanent marks gateway failures that must not be retried.
	ErrGatewayPermanent = errors.New("permanent gateway error")
	// ErrLogging marks a failure to persist a delivery attempt.
	ErrLogging = errors.New("delivery log error")
)

// ValidationError describes why a dispatch request was rejected before any work started.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConfigurationError names the gateway setting that could not be resolved.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("gateway configuration: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("gateway configuration: %s is not configured", e.Field)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// NotFoundError reports a missing resource, e.g. no targets or an unknown template.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// GatewayErrorCategory is a coarse, operator-facing classification of gateway failures.
type GatewayErrorCategory string

const (
	GatewayErrorConnectivity   GatewayErrorCategory = "connectivity"
	GatewayErrorAuthentication GatewayErrorCategory = "authentication"
	GatewayErrorTimeout        GatewayErrorCategory = "timeout"
	GatewayErrorOther          GatewayErrorCategory = "other"
)

// GatewayError is returned by the gateway client. Permanent errors (4xx) are never retried.
type GatewayError struct {
	StatusCode int
	Category   GatewayErrorCategory
	Message    string
	Permanent  bool
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("gateway error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gateway error: %s", e.Message)
}

// Is lets errors.Is match the transient/permanent sentinels.
func (e *GatewayError) Is(target error) bool {
	switch target {
	case ErrGatewayPermanent:
		return e.Permanent
	case ErrGatewayTransient:
		return !e.Permanent
	}
	return false
}

func (e *GatewayError) Unwrap() error { return e.Err }

// NewTransientGatewayError builds a retryable gateway error.
func NewTransientGatewayError(status int, category GatewayErrorCategory, message string, cause error) *GatewayError {
	return &GatewayError{StatusCode: status, Category: category, Message: message, Err: cause}
}

// NewPermanentGatewayError builds a gateway error that must not be retried.
func NewPermanentGatewayError(status int, category GatewayErrorCategory, message string) *GatewayError {
	return &GatewayError{StatusCode: status, Category: category, Message: message, Permanent: true}
}

// LoggingError wraps a failure to persist a delivery attempt.
type LoggingError struct {
	TargetID string
	Err      error
}

func (e *LoggingError) Error() string {
	return fmt.Sprintf("recording delivery attempt for %s: %v", e.TargetID, e.Err)
}

func (e *LoggingError) Is(target error) bool { return target == ErrLogging }

func (e *LoggingError) Unwrap() error { return e.Err }
