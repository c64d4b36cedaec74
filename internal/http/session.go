package http

import (
	"net/http"
	"strings"
	"time"

	"expensetracker/internal/auth"
	applog "expensetracker/internal/log"
)

const sessionCookieName = "tracker_session"

// withSession resolves the session cookie (or a bearer token) into an
// auth.Session on the request context. Requests without one are anonymous.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, fromCookie := sessionToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		sess, err := s.issuer.Parse(token)
		if err != nil {
			applog.FromContext(r.Context()).WithComponent(applog.ComponentAuth).
				DebugContext(r.Context(), "Ignoring invalid session token", applog.FieldError, err)
			if fromCookie {
				s.clearSessionCookie(w, r)
			}
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), sess)))
	})
}

func sessionToken(r *http.Request) (string, bool) {
	if c, err := r.Cookie(sessionCookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token), false
		}
	}
	return "", false
}

func (s *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.issuer.TTL() / time.Second),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

// requireSession writes 401 and returns false for anonymous requests.
func requireSession(w http.ResponseWriter, r *http.Request) (auth.Session, bool) {
	sess := auth.FromContext(r.Context())
	if err := sess.Require(); err != nil {
		if isHTMX(r) {
			ErrorFragment(http.StatusUnauthorized, "Please sign in first").Redirect("/").Write(w)
		} else {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "not signed in"})
		}
		return sess, false
	}
	return sess, true
}
