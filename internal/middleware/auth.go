package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/jordansalagala21/GymTribe/internal/handlers"
	"github.com/jordansalagala21/GymTribe/internal/logging"
	"github.com/jordansalagala21/GymTribe/internal/services"
)

const sessionCookieName = "session_token"

type AuthMiddleware struct {
	sessions services.SessionServiceInterface
}

func NewAuthMiddleware(sessions services.SessionServiceInterface) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions}
}

// sessionToken reads the token from the session cookie, a bearer header or,
// for websocket upgrades, the token query parameter.
func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// Authenticate resolves the session and adds the user to the context.
// Does not reject unauthenticated requests.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		userID, err := m.sessions.Resolve(r.Context(), token)
		if err != nil {
			if errors.Is(err, services.ErrStoreUnavailable) {
				logging.Warn("Session lookup failed", map[string]interface{}{"error": err.Error()})
				writeError(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		ctx := handlers.SetUserIDInContext(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects unauthenticated requests with 401.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := handlers.GetUserIDFromContext(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
