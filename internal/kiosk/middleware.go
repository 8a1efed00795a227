package kiosk

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ejmockler/frontier-meals/internal/api"
)

type contextKey string

const sessionKey contextKey = "kiosk_session"

// errSessionInvalid is what the kiosk sees for every credential-shaped
// failure. The precise reason stays in metrics and the audit log so a
// probing client learns nothing from the response.
var errSessionInvalid = api.NewTaggedError(http.StatusUnauthorized, "SESSION_INVALID", "invalid or expired session")

// Middleware authenticates kiosk requests: bearer JWT, signature check,
// then the session row decides.
func Middleware(svc *Service, jwtMgr *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			claims, err := jwtMgr.Parse(parts[1])
			if err != nil {
				api.HandleError(w, errSessionInvalid)
				return
			}

			jti, err := uuid.Parse(claims.ID)
			if err != nil {
				api.HandleError(w, errSessionInvalid)
				return
			}

			session, err := svc.Validate(r.Context(), jti)
			if err != nil {
				var valErr *ValidationError
				if errors.As(err, &valErr) {
					api.HandleError(w, errSessionInvalid)
					return
				}
				api.HandleError(w, api.ErrTransientStore)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		})
	}
}

// WithSession returns a context carrying the validated session.
func WithSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// GetSession returns the validated session from the context, or nil.
func GetSession(ctx context.Context) *Session {
	session, _ := ctx.Value(sessionKey).(*Session)
	return session
}
