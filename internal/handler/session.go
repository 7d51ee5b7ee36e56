package handler

import (
	"context"
	"net/http"

	"github.com/xenking/storefront/internal/session"
)

type sessionKey struct{}

// withSession resolves the session cookie, starting a new session when the
// cookie is missing or stale.
func (h *Handler) withSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(h.session.CookieName); err == nil {
			id = c.Value
		}

		s, created := h.Sessions.Resolve(id)
		if created {
			c := &http.Cookie{
				Name:     h.session.CookieName,
				Value:    s.ID,
				Path:     "/",
				HttpOnly: true,
				Secure:   h.session.Secure,
				SameSite: http.SameSiteLaxMode,
			}
			if h.session.MaxAge > 0 {
				c.MaxAge = int(h.session.MaxAge.Seconds())
			}
			http.SetCookie(w, c)
		}
		next(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, s)))
	}
}

func sessionFrom(r *http.Request) *session.Session {
	return r.Context().Value(sessionKey{}).(*session.Session)
}
