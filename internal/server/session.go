package server

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunegate/internal/shared"
)

// SessionCookie is the name of the cookie carrying the session id.
const SessionCookie = "tunegate_session"

const sessionMaxAge = 30 * 24 * time.Hour

type sessionKey struct{}

// SessionID returns the session id placed in ctx by [Sessions], or "".
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// WithSessionID returns a copy of ctx carrying id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// Sessions issues the session cookie when the request carries none (or a malformed one)
// and stores the id in the request context.
func Sessions(secure bool, logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if c, err := r.Cookie(SessionCookie); err == nil && shared.IsID(c.Value) {
				id = c.Value
			}

			if id == "" {
				id = shared.GenerateID()
				http.SetCookie(w, sessionCookie(id, secure, int(sessionMaxAge.Seconds())))
				logger.Debug("issued session", "path", r.URL.Path)
			}

			next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), id)))
		})
	}
}

// expireSession tells the browser to drop the session cookie.
func expireSession(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, sessionCookie("", secure, -1))
}

func sessionCookie(value string, secure bool, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}
