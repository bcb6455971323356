package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type tenantLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// TenantRateLimiter keeps one token bucket per tenant.
type TenantRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*tenantLimiter
	perMinute int
	lastSweep time.Time
	now       func() time.Time
}

// NewTenantRateLimiter allows perMinute requests per tenant with a burst of the same size.
func NewTenantRateLimiter(perMinute int) *TenantRateLimiter {
	if perMinute <= 0 {
		perMinute = 200
	}
	return &TenantRateLimiter{
		limiters:  make(map[string]*tenantLimiter),
		perMinute: perMinute,
		now:       time.Now,
	}
}

// Allow reports whether tenantID may make another request now.
func (l *TenantRateLimiter) Allow(tenantID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > limiterIdleTTL {
		for id, tl := range l.limiters {
			if now.Sub(tl.lastSeen) > limiterIdleTTL {
				delete(l.limiters, id)
			}
		}
		l.lastSweep = now
	}

	tl, ok := l.limiters[tenantID]
	if !ok {
		tl = &tenantLimiter{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)}
		l.limiters[tenantID] = tl
	}
	tl.lastSeen = now
	return tl.limiter.AllowN(now, 1)
}

// Middleware rejects requests over the tenant's budget with 429. It must run after Auth.
func (l *TenantRateLimiter) Middleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID, ok := TenantIDFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			if !l.Allow(tenantID) {
				logger.WarnContext(r.Context(), "Tenant rate limit exceeded", "tenant_id", tenantID, "limit_per_minute", l.perMinute)
				w.Header().Set("Retry-After", strconv.Itoa(int((time.Minute / time.Duration(l.perMinute)).Seconds())+1))
				WriteError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
