package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	id "realhub/pkg/domain"
	"realhub/pkg/requestcontext"
)

// Claims represents what the middleware needs from a validated token.
type Claims struct {
	UserID string
}

// TokenValidator resolves a bearer token into claims. Satisfied by the token
// adapter; narrowed to an interface so handler tests can stub it.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// Authenticate resolves a Bearer token, if present, into the request context.
// It does not reject unauthenticated requests; RequireAuth does. Public
// listing endpoints run with the anonymous principal.
func Authenticate(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "invalid bearer token", "error", err)
				writeUnauthorized(w)
				return
			}
			userID, err := id.ParseUserID(claims.UserID)
			if err != nil {
				logger.WarnContext(r.Context(), "token subject unparseable", "error", err)
				writeUnauthorized(w)
				return
			}

			ctx := requestcontext.WithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests that did not authenticate.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requestcontext.UserID(r.Context()).IsNil() {
			writeUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
}
