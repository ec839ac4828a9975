package middleware

import (
	"net/http"
	"strings"

	"github.com/HammerMeetNail/levelup/internal/auth"
	"github.com/HammerMeetNail/levelup/internal/handlers"
	"github.com/HammerMeetNail/levelup/internal/logging"
)

type AuthMiddleware struct {
	verifier auth.Verifier
}

func NewAuthMiddleware(verifier auth.Verifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authenticate verifies the bearer token and adds the principal to context if valid.
// Does not reject unauthenticated requests.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" || m.verifier == nil {
			next.ServeHTTP(w, r)
			return
		}

		principal, err := m.verifier.Verify(r.Context(), token)
		if err != nil {
			logging.Debug("Bearer token rejected", map[string]interface{}{
				"error": err.Error(),
				"path":  r.URL.Path,
			})
			next.ServeHTTP(w, r)
			return
		}

		ctx := handlers.SetPrincipalInContext(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects unauthenticated requests with 401.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handlers.GetPrincipalFromContext(r.Context()) == nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="levelup"`)
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
