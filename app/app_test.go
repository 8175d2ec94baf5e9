package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatline/config"
	"chatline/session"
)

func jwtToken(t *testing.T, exp time.Time) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("k"))
	require.NoError(t, err)
	return s
}

func openTestApp(t *testing.T, token string) *App {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/auth/api/manual-login/":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access":  token,
				"refresh": "r",
				"user":    map[string]string{"username": "alice"},
			})
		case "/auth/api/user/":
			_ = json.NewEncoder(w).Encode(map[string]string{"username": "alice"})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	t.Setenv(config.DataDirEnv, t.TempDir())
	t.Setenv("CHATLINE_BASE_API_URL", srv.URL)
	t.Setenv("CHATLINE_BASE_WS_URL", "ws://chat.example.test")
	t.Setenv(AccessTokenEnv, "")
	t.Setenv(EmailEnv, "")
	t.Setenv(PasswordEnv, "")

	a, err := Open(Options{LogToStderr: true})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestSocketURLsCarryToken(t *testing.T) {
	token := jwtToken(t, time.Now().Add(time.Hour))
	a := openTestApp(t, token)

	_, err := a.Login(context.Background(), "alice@example.com", "pw")
	require.NoError(t, err)

	chatURL, err := a.ChatSocketURL("12")()
	require.NoError(t, err)
	assert.Equal(t, "ws://chat.example.test/ws/chat/12/?token="+token, chatURL)

	notifyURL, err := a.NotificationsSocketURL()
	require.NoError(t, err)
	assert.Equal(t, "ws://chat.example.test/ws/notifications/?token="+token, notifyURL)
}

func TestSocketURLsRefuseExpiredToken(t *testing.T) {
	a := openTestApp(t, jwtToken(t, time.Now().Add(-time.Minute)))

	_, err := a.Login(context.Background(), "alice@example.com", "pw")
	require.NoError(t, err)

	_, err = a.ChatSocketURL("12")()
	assert.ErrorIs(t, err, session.ErrExpired)
	_, err = a.NotificationsSocketURL()
	assert.ErrorIs(t, err, session.ErrExpired)
}

func TestLoginRemembersEmail(t *testing.T) {
	a := openTestApp(t, "opaque")

	_, err := a.Login(context.Background(), " alice@example.com ", "pw")
	require.NoError(t, err)

	cfg, err := config.Load(a.ConfigPath)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", cfg.Username)

	stored, err := config.LoadFile(a.ConfigPath)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", stored.Username)
	assert.Equal(t, config.DefaultBaseAPIURL, stored.BaseAPIURL)
	assert.Equal(t, config.DefaultBaseWSURL, stored.BaseWSURL)
	assert.NotEqual(t, a.Config.BaseAPIURL, stored.BaseAPIURL)
}

func TestAuthenticateWithoutCredentials(t *testing.T) {
	a := openTestApp(t, "opaque")

	_, err := a.Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestAuthenticateRestoresFromEnvironment(t *testing.T) {
	token := jwtToken(t, time.Now().Add(time.Hour))
	a := openTestApp(t, token)
	t.Setenv(AccessTokenEnv, token)

	user, err := a.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, token, a.Session.Token())
}
