package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"

	"github.com/Piyushhbhutoria/memory-wall/internal/platform/httpx"
)

// MetricsRecorder records verification outcomes.
type MetricsRecorder interface {
	RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration)
}

// OIDCValidator guards the internal maintenance routes that Cloud Scheduler (or IAP) calls with a
// Google-signed identity token.
type OIDCValidator struct {
	cache    *JWKSCache
	logger   Logger
	metrics  MetricsRecorder
	now      func() time.Time
	accounts []string
}

type OIDCOption func(*OIDCValidator)

func NewOIDCValidator(cache *JWKSCache, opts ...OIDCOption) *OIDCValidator {
	v := &OIDCValidator{cache: cache, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

func WithOIDCLogger(logger Logger) OIDCOption {
	return func(v *OIDCValidator) { v.logger = logger }
}

func WithOIDCMetrics(recorder MetricsRecorder) OIDCOption {
	return func(v *OIDCValidator) { v.metrics = recorder }
}

func WithOIDCClock(now func() time.Time) OIDCOption {
	return func(v *OIDCValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithOIDCServiceAccounts only admits tokens whose verified email is listed. No accounts admits
// any caller the audience and issuer checks accept.
func WithOIDCServiceAccounts(emails ...string) OIDCOption {
	return func(v *OIDCValidator) {
		for _, email := range emails {
			if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
				v.accounts = append(v.accounts, email)
			}
		}
	}
}

// ServiceIdentity is the verified caller of an internal route.
type ServiceIdentity struct {
	Subject  string
	Email    string
	Issuer   string
	Audience string
}

type serviceIdentityContextKey struct{}

func WithServiceIdentity(ctx context.Context, identity *ServiceIdentity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, serviceIdentityContextKey{}, identity)
}

func ServiceIdentityFromContext(ctx context.Context) (*ServiceIdentity, bool) {
	identity, ok := ctx.Value(serviceIdentityContextKey{}).(*ServiceIdentity)
	return identity, ok && identity != nil
}

// googleClaims is the payload of a Google-issued OIDC or IAP token.
type googleClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

// oidcFailure carries the HTTP answer and the metric reason for a rejected token.
type oidcFailure struct {
	status  int
	code    string
	message string
	reason  string
}

// RequireOIDC reads the token from Authorization or X-Goog-Iap-Jwt-Assertion and demands the
// given audience and one of issuers.
func (v *OIDCValidator) RequireOIDC(audience string, issuers []string) func(http.Handler) http.Handler {
	audience = strings.TrimSpace(audience)
	var allowed []string
	for _, issuer := range issuers {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			allowed = append(allowed, issuer)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := v.now()
			ctx := r.Context()
			identity, failure := v.verify(ctx, r, audience, allowed)
			if failure != nil {
				v.record(ctx, false, failure.reason, started)
				httpx.WriteError(ctx, w, httpx.NewError(failure.code, failure.message, failure.status))
				return
			}
			v.record(ctx, true, "ok", started)
			next.ServeHTTP(w, r.WithContext(WithServiceIdentity(ctx, identity)))
		})
	}
}

func (v *OIDCValidator) verify(ctx context.Context, r *http.Request, audience string, issuers []string) (*ServiceIdentity, *oidcFailure) {
	if audience == "" {
		return nil, &oidcFailure{http.StatusServiceUnavailable, "verification_unavailable", "oidc audience not configured", "audience_not_configured"}
	}
	raw := oidcToken(r)
	if raw == "" {
		return nil, &oidcFailure{http.StatusUnauthorized, "unauthenticated", "oidc token missing", "token_missing"}
	}
	if v.cache == nil {
		return nil, &oidcFailure{http.StatusServiceUnavailable, "verification_unavailable", "oidc verification unavailable", "cache_unavailable"}
	}

	var claims googleClaims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if _, err := parser.ParseWithClaims(raw, &claims, v.cache.Keyfunc(ctx)); err != nil {
		v.logf("auth: oidc token rejected: %v", err)
		if errors.Is(err, ErrJWKSFetchFailed) {
			return nil, &oidcFailure{http.StatusServiceUnavailable, "invalid_token", "oidc token verification failed", "jwks_unavailable"}
		}
		return nil, &oidcFailure{http.StatusUnauthorized, "invalid_token", "oidc token verification failed", "token_invalid"}
	}

	if len(issuers) > 0 && !slices.Contains(issuers, claims.Issuer) {
		v.logf("auth: oidc issuer %q not allowed", claims.Issuer)
		return nil, &oidcFailure{http.StatusUnauthorized, "invalid_token", "oidc issuer mismatch", "issuer_mismatch"}
	}
	if !claims.VerifyAudience(audience, true) {
		v.logf("auth: oidc audience %v does not include %q", claims.Audience, audience)
		return nil, &oidcFailure{http.StatusUnauthorized, "invalid_token", "oidc audience mismatch", "audience_mismatch"}
	}
	if len(v.accounts) > 0 {
		email := strings.ToLower(claims.Email)
		if !claims.EmailVerified || !slices.Contains(v.accounts, email) {
			v.logf("auth: oidc caller %q not in service account allowlist", claims.Email)
			return nil, &oidcFailure{http.StatusForbidden, "forbidden", "caller not allowed", "caller_not_allowed"}
		}
	}

	return &ServiceIdentity{
		Subject:  claims.Subject,
		Email:    claims.Email,
		Issuer:   claims.Issuer,
		Audience: audience,
	}, nil
}

func (v *OIDCValidator) record(ctx context.Context, success bool, reason string, started time.Time) {
	if v.metrics != nil {
		v.metrics.RecordVerification(ctx, "oidc", success, reason, v.now().Sub(started))
	}
}

func (v *OIDCValidator) logf(format string, args ...any) {
	if v.logger != nil {
		v.logger.Printf(format, args...)
	}
}

func oidcToken(r *http.Request) string {
	if bearer, ok := extractBearerToken(r.Header.Get("Authorization")); ok {
		return bearer
	}
	return strings.TrimSpace(r.Header.Get("X-Goog-Iap-Jwt-Assertion"))
}
