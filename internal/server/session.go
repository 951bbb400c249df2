package server

import (
	"net/http"

	"github.com/jonathan/taxform-extractor/internal/types"
)

const (
	sessionCookie = "session_id"
	sessionHeader = "X-Session-ID"
)

// session resolves the caller's session from the X-Session-ID header or the
// session_id cookie, starting a new one when neither names a live session.
// The token is echoed in both the header and the cookie.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*types.Session, error) {
	token := r.Header.Get(sessionHeader)
	if token == "" {
		if c, err := r.Cookie(sessionCookie); err == nil {
			token = c.Value
		}
	}

	sess, created, err := s.store.Resolve(token)
	if err != nil {
		return nil, err
	}

	if created || token != sess.ID {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    sess.ID,
			Path:     "/",
			MaxAge:   int(s.store.MaxAge().Seconds()),
			HttpOnly: true,
			Secure:   s.secureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
	w.Header().Set(sessionHeader, sess.ID)
	return sess, nil
}
