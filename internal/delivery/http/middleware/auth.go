package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	h "membershipinitiation/internal/delivery/http/helpers"
	"membershipinitiation/internal/domain"
)

type contextKey string

const identityKey contextKey = "identity"

// SetIdentity returns a context with the caller identity set. Used by auth middleware.
func SetIdentity(ctx context.Context, id *domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the authenticated identity from the context, if present.
func IdentityFromContext(ctx context.Context) (*domain.Identity, bool) {
	id, ok := ctx.Value(identityKey).(*domain.Identity)
	return id, ok
}

// RequireAdmin returns a wrapper that validates the Bearer credential and sets
// the caller identity in the request context. The credential is either the
// static operator token or a JWT carrying the admin role. Missing or invalid
// credentials get 401; a valid token without the admin role gets 403.
func RequireAdmin(verifier domain.TokenVerifier, operatorToken string, logger *slog.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "missing authorization header")
				return
			}
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) {
				h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "invalid authorization format")
				return
			}
			token := strings.TrimSpace(auth[len(prefix):])
			if token == "" {
				h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "missing token")
				return
			}

			var identity *domain.Identity
			if operatorToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(operatorToken)) == 1 {
				identity = &domain.Identity{
					Subject: domain.AutomationSubject,
					Roles:   []string{domain.RoleAdmin},
				}
			} else {
				id, err := verifier.Verify(token)
				if err != nil {
					h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "invalid or expired token")
					return
				}
				identity = id
			}

			if !identity.HasRole(domain.RoleAdmin) {
				logger.Warn("admin access denied", "subject", identity.Subject)
				h.WriteJSONError(w, http.StatusForbidden, h.ErrCodeForbidden, "admin role required")
				return
			}

			r = r.WithContext(SetIdentity(r.Context(), identity))
			next(w, r)
		}
	}
}
