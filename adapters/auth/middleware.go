package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/RayBen445/ChatBot/pkg/respond"
	"github.com/RayBen445/ChatBot/ports"
	"github.com/rs/zerolog"
)

type ctxKey int

const identityKey ctxKey = iota

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id ports.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext returns the verified identity stored by Middleware.
func FromContext(ctx context.Context) (ports.Identity, bool) {
	id, ok := ctx.Value(identityKey).(ports.Identity)
	return id, ok && id.UID != ""
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// FailureRecorder counts rejected tokens. Optional.
type FailureRecorder interface {
	AuthFailure(reason string)
}

// Middleware verifies the bearer token and stores the identity in the
// request context. Requests without a valid token get 401.
func Middleware(v ports.IdentityVerifier, logger zerolog.Logger, rec FailureRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				if rec != nil {
					rec.AuthFailure("missing")
				}
				respond.Error(w, http.StatusUnauthorized, "unauthenticated", "identity token required")
				return
			}
			id, err := v.Verify(r.Context(), token)
			if err != nil {
				if rec != nil {
					rec.AuthFailure("invalid")
				}
				logger.Debug().Err(err).Str("path", r.URL.Path).Msg("identity token rejected")
				respond.Error(w, http.StatusUnauthorized, "unauthenticated", "invalid identity token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
