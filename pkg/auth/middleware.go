package auth

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"relaydesk/pkg/logger"
	"relaydesk/pkg/models"
)

type ctxCallerKey struct{}

// Caller identity headers set by the upstream gateway after token
// verification (token issuance itself is out of scope here).
const (
	HeaderTenant   = "X-Relaydesk-Tenant"
	HeaderOperator = "X-Relaydesk-Operator"
	HeaderRole     = "X-Relaydesk-Role"
)

// Middleware authenticates the API key, applies per-key rate limiting,
// extracts the caller identity headers into the request context and
// gates /v1/admin behind admin-class keys. Health and metrics endpoints
// pass through unauthenticated for probes and scrapers.
func Middleware(cfg SecConfig) func(http.Handler) http.Handler {
	limiters := &limiterPool{cfg: cfg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			key, class := authenticate(r, cfg)
			if cfg.Open() {
				class = ClassAdmin
				if key == "" {
					key = r.RemoteAddr
				}
			}
			if class == ClassUnauth {
				logger.Warn("request_unauthorized", "path", r.URL.Path, "remote", r.RemoteAddr)
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			if !limiters.Allow(key) {
				logger.Warn("request_rate_limited", "path", r.URL.Path)
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}
			if strings.HasPrefix(r.URL.Path, "/v1/admin/") && class != ClassAdmin {
				logger.Warn("request_forbidden", "reason", "admin_key_required", "path", r.URL.Path)
				http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
				return
			}

			caller, ok := callerFromHeaders(r)
			if ok {
				r = r.WithContext(context.WithValue(r.Context(), ctxCallerKey{}, caller))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// authenticate resolves the API key from Authorization: Bearer or
// X-API-Key and classifies it.
func authenticate(r *http.Request, cfg SecConfig) (string, KeyClass) {
	key := strings.TrimSpace(r.Header.Get("X-API-Key"))
	if key == "" {
		h := r.Header.Get("Authorization")
		if strings.HasPrefix(h, "Bearer ") {
			key = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		}
	}
	if key == "" {
		return "", ClassUnauth
	}
	if _, ok := cfg.AdminKeys[key]; ok {
		return key, ClassAdmin
	}
	if _, ok := cfg.BackendKeys[key]; ok {
		return key, ClassBackend
	}
	return key, ClassUnauth
}

func callerFromHeaders(r *http.Request) (models.Caller, bool) {
	tenantRaw := strings.TrimSpace(r.Header.Get(HeaderTenant))
	if tenantRaw == "" {
		return models.Caller{}, false
	}
	tenantID, err := strconv.ParseInt(tenantRaw, 10, 64)
	if err != nil || tenantID <= 0 {
		return models.Caller{}, false
	}
	var operatorID int64
	if v := strings.TrimSpace(r.Header.Get(HeaderOperator)); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			operatorID = id
		}
	}
	role := models.Role(strings.ToUpper(strings.TrimSpace(r.Header.Get(HeaderRole))))
	switch role {
	case models.RoleOperator, models.RoleManager, models.RoleAdmin:
	default:
		role = models.RoleOperator
	}
	return models.Caller{TenantID: tenantID, OperatorID: operatorID, Role: role}, true
}

// CallerFromContext returns the verified caller identity, if present.
func CallerFromContext(ctx context.Context) (models.Caller, bool) {
	if v := ctx.Value(ctxCallerKey{}); v != nil {
		if c, ok := v.(models.Caller); ok {
			return c, true
		}
	}
	return models.Caller{}, false
}
