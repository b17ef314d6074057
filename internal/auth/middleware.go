package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	httperrors "github.com/gokatarajesh/weakest-rival/pkg/http/errors"
)

type principalKey struct{}

// Resolver maps a bearer credential to a principal.
type Resolver interface {
	ResolvePrincipal(ctx context.Context, credential string) (Principal, error)
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal injected by Middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Middleware requires a valid "Authorization: Bearer <token>" header and
// injects the resolved principal into the request context.
func Middleware(resolver Resolver, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				httperrors.RespondUnauthorized(w, httperrors.ErrCodeInvalidToken, "Invalid authorization header")
				return
			}

			p, err := resolver.ResolvePrincipal(r.Context(), token)
			if err != nil {
				RespondAuthError(w, err, logger)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RespondAuthError writes the HTTP response for a ResolvePrincipal failure.
func RespondAuthError(w http.ResponseWriter, err error, logger zerolog.Logger) {
	var sanctioned *SanctionedError
	if errors.As(err, &sanctioned) {
		httperrors.RespondErrorWithDetails(w, http.StatusForbidden, httperrors.ErrCodeSanctioned, "Account is sanctioned",
			map[string]interface{}{"sanction_end_at_utc": sanctioned.EndsAt.UTC().Format(time.RFC3339)})
		return
	}
	logger.Debug().Err(err).Msg("credential rejected")
	httperrors.RespondUnauthorized(w, httperrors.ErrCodeInvalidToken, "Invalid or expired token")
}
