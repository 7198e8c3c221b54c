package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/briangreenhill/youthloop/internal/auth"
)

type contextKey string

const SessionKey contextKey = "auth_session"

// CurrentPathHeader carries the page the browser is on, used to pick the
// locale of login redirects
const CurrentPathHeader = "X-Current-Path"

// WithSession stores the browser's auth session in ctx
func WithSession(ctx context.Context, s *auth.Session) context.Context {
	return context.WithValue(ctx, SessionKey, s)
}

// SessionFrom returns the session stored by WithSession
func SessionFrom(ctx context.Context) (*auth.Session, bool) {
	s, ok := ctx.Value(SessionKey).(*auth.Session)
	return s, ok && s != nil
}

// RequireLogin rejects requests whose session is not logged in. JSON clients
// get a 401 with the login target, browsers are redirected to it.
func RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := SessionFrom(r.Context())
		if ok && s.IsLoggedIn(r.Context()) {
			next.ServeHTTP(w, r)
			return
		}

		path := auth.CurrentPath(r.Context())
		if path == "" {
			path = r.URL.Path
		}
		target := auth.LoginPath(path)
		if !wantsJSON(r) {
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "login required", "redirect": target})
	})
}

func wantsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/") || strings.Contains(r.Header.Get("Accept"), "application/json")
}
