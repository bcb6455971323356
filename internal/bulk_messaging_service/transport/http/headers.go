package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/revalya/golang_services/internal/bulk_messaging_service/domain"
)

// Override headers accepted by the bulk endpoint.
const (
	HeaderGatewayEnvironment = "X-Gateway-Environment"
	HeaderGatewayInstance    = "X-Gateway-Instance"
	HeaderGatewayBaseURL     = "X-Gateway-Base-Url"
	HeaderGatewayAPIKey      = "X-Gateway-Api-Key"
	HeaderDefaultCountryCode = "X-Default-Country-Code"
	HeaderDryRun             = "X-Dry-Run"
	HeaderThrottleMs         = "X-Throttle-Ms"
	HeaderBatchSize          = "X-Batch-Size"
	HeaderConcurrency        = "X-Concurrency"
)

// headerError names the override header that could not be parsed.
type headerError struct {
	header string
	reason string
}

func (e *headerError) Error() string {
	return fmt.Sprintf("invalid %s header: %s", e.header, e.reason)
}

// parseOverrides reads the gateway and run overrides from the request headers.
// Absent headers leave the zero value so service defaults apply.
func parseOverrides(h http.Header, validate *validator.Validate) (domain.GatewayOverrides, domain.RunOverrides, error) {
	var gw domain.GatewayOverrides
	var run domain.RunOverrides

	// Unknown environments are rejected by the config resolver as a configuration error.
	gw.Environment = domain.Environment(strings.ToLower(strings.TrimSpace(h.Get(HeaderGatewayEnvironment))))
	gw.InstanceName = strings.TrimSpace(h.Get(HeaderGatewayInstance))
	gw.APIKey = strings.TrimSpace(h.Get(HeaderGatewayAPIKey))
	if v := strings.TrimSpace(h.Get(HeaderGatewayBaseURL)); v != "" {
		if err := validate.Var(v, "url"); err != nil {
			return gw, run, &headerError{HeaderGatewayBaseURL, "must be an absolute URL"}
		}
		gw.BaseURL = v
	}

	if v := strings.TrimPrefix(strings.TrimSpace(h.Get(HeaderDefaultCountryCode)), "+"); v != "" {
		if err := validate.Var(v, "numeric,min=1,max=4"); err != nil {
			return gw, run, &headerError{HeaderDefaultCountryCode, "must be 1 to 4 digits"}
		}
		run.CountryCode = v
	}

	if v := strings.TrimSpace(h.Get(HeaderDryRun)); v != "" {
		dry, err := strconv.ParseBool(v)
		if err != nil {
			return gw, run, &headerError{HeaderDryRun, "must be true or false"}
		}
		run.DryRun = dry
	}

	ms, err := positiveInt(h, HeaderThrottleMs, true)
	if err != nil {
		return gw, run, err
	}
	run.MinSendInterval = time.Duration(ms) * time.Millisecond

	if run.BatchSize, err = positiveInt(h, HeaderBatchSize, false); err != nil {
		return gw, run, err
	}
	if run.Concurrency, err = positiveInt(h, HeaderConcurrency, false); err != nil {
		return gw, run, err
	}
	return gw, run, nil
}

func positiveInt(h http.Header, name string, allowZero bool) (int, error) {
	v := strings.TrimSpace(h.Get(name))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || (n == 0 && !allowZero) {
		return 0, &headerError{name, "must be a positive integer"}
	}
	return n, nil
}
