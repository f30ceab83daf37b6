package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/sessions"

	"github.com/ButyrinIA/blog/internal/storage"
)

const (
	sessionName = "blog-session"
	userIDKey   = "user_id"

	LoginPath = "/login/"
)

type Sessions struct {
	store  *sessions.CookieStore
	users  UserStore
	logger *slog.Logger
}

// NewSessions signs cookies with key. secure marks them HTTPS-only.
func NewSessions(key []byte, secure bool, users UserStore, logger *slog.Logger) *Sessions {
	store := sessions.NewCookieStore(key)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   14 * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &Sessions{store: store, users: users, logger: logger.With("component", "sessions")}
}

func (s *Sessions) Login(w http.ResponseWriter, r *http.Request, userID int64) error {
	session, _ := s.store.Get(r, sessionName)
	session.Values[userIDKey] = userID
	return session.Save(r, w)
}

func (s *Sessions) Logout(w http.ResponseWriter, r *http.Request) error {
	session, _ := s.store.Get(r, sessionName)
	delete(session.Values, userIDKey)
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

// Middleware loads the viewer named by the session cookie into the request
// context. Unreadable cookies and deleted users leave the request anonymous.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := s.store.Get(r, sessionName)
		if err != nil {
			s.logger.Debug("ignoring unreadable session", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		id, ok := session.Values[userIDKey].(int64)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		user, err := s.users.GetUser(r.Context(), id)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			next.ServeHTTP(w, r)
			return
		case err != nil:
			s.logger.Error("failed to load session user", "user_id", id, "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// RequireLogin redirects anonymous viewers to the login page, remembering
// where they were going. The request body is never read.
func RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFrom(r.Context()); !ok {
			http.Redirect(w, r, LoginURL(r.URL.RequestURI()), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LoginURL is the login page that sends the viewer back to next.
func LoginURL(next string) string {
	return LoginPath + "?next=" + strings.ReplaceAll(url.QueryEscape(next), "%2F", "/")
}

// SafeNext returns next when it is a path on this site, "/" otherwise.
func SafeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, `/\`) {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return next
}
