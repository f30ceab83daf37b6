package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/storage/memory"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func whoAmI() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, ok := UserFrom(r.Context()); ok {
			_, _ = io.WriteString(w, user.Username)
			return
		}
		_, _ = io.WriteString(w, "anonymous")
	})
}

func TestSessionsRoundTrip(t *testing.T) {
	store := memory.New()
	user := &models.User{Username: "leo", PasswordHash: "x"}
	require.NoError(t, store.CreateUser(context.Background(), user))

	s := NewSessions([]byte("0123456789abcdef0123456789abcdef"), false, store, discard())

	login := httptest.NewRecorder()
	require.NoError(t, s.Login(login, httptest.NewRequest(http.MethodPost, "/login/", nil), user.ID))
	cookies := login.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	s.Middleware(whoAmI()).ServeHTTP(rr, req)
	assert.Equal(t, "leo", rr.Body.String())

	rr = httptest.NewRecorder()
	s.Middleware(whoAmI()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "anonymous", rr.Body.String())
}

func TestSessionsForgedCookie(t *testing.T) {
	s := NewSessions([]byte("0123456789abcdef0123456789abcdef"), false, memory.New(), discard())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionName, Value: "forged"})
	rr := httptest.NewRecorder()
	s.Middleware(whoAmI()).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "anonymous", rr.Body.String())
}

func TestLogoutExpiresCookie(t *testing.T) {
	s := NewSessions([]byte("0123456789abcdef0123456789abcdef"), false, memory.New(), discard())

	rr := httptest.NewRecorder()
	require.NoError(t, s.Logout(rr, httptest.NewRequest(http.MethodGet, "/logout/", nil)))

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestRequireLogin(t *testing.T) {
	called := false
	h := RequireLogin(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/new/", nil))
	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/login/?next=/new/", rr.Header().Get("Location"))
	assert.False(t, called)

	req := httptest.NewRequest(http.MethodGet, "/follow/", nil)
	req = req.WithContext(WithUser(req.Context(), &models.User{ID: 1, Username: "leo"}))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.True(t, called)
}

func TestLoginURL(t *testing.T) {
	assert.Equal(t, "/login/?next=/follow/%3Fpage%3D2", LoginURL("/follow/?page=2"))
}

func TestSafeNext(t *testing.T) {
	assert.Equal(t, "/follow/", SafeNext("/follow/"))
	assert.Equal(t, "/", SafeNext(""))
	assert.Equal(t, "/", SafeNext("https://evil.example/"))
	assert.Equal(t, "/", SafeNext("//evil.example/"))
	assert.Equal(t, "/", SafeNext(`/\evil.example`))
}

func TestViewerKey(t *testing.T) {
	assert.Equal(t, "", ViewerKey(context.Background()))
	ctx := WithUser(context.Background(), &models.User{ID: 42})
	assert.Equal(t, "42", ViewerKey(ctx))
}
