package session

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatline/api"
	"chatline/models"
)

type fakeAuth struct {
	token     string
	user      models.User
	loginErr  error
	meErr     error
	logoutErr error
	logouts   []string
	lastCreds api.Credentials
}

func (f *fakeAuth) Login(_ context.Context, creds api.Credentials) (*api.AuthResult, error) {
	f.lastCreds = creds
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &api.AuthResult{Access: "access-1", Refresh: "refresh-1", User: f.user}, nil
}

func (f *fakeAuth) Signup(_ context.Context, form api.SignupForm) (*api.AuthResult, error) {
	return &api.AuthResult{Access: "access-2", Refresh: "refresh-2", User: models.User{Username: form.Username, Email: form.Email}}, nil
}

func (f *fakeAuth) CurrentUser(context.Context) (*models.User, error) {
	if f.meErr != nil {
		return nil, f.meErr
	}
	u := f.user
	return &u, nil
}

func (f *fakeAuth) UpdateProfile(_ context.Context, update api.ProfileUpdate) (*models.User, error) {
	u := f.user
	u.FirstName = update.FirstName
	return &u, nil
}

func (f *fakeAuth) Logout(_ context.Context, refresh string) error {
	f.logouts = append(f.logouts, refresh)
	return f.logoutErr
}

func (f *fakeAuth) SetToken(token string) {
	f.token = token
}

type resetCounter struct{ n int }

func (r *resetCounter) ResetAll() { r.n++ }

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("k"))
	require.NoError(t, err)
	return s
}

func TestLoginAdoptsTokens(t *testing.T) {
	auth := &fakeAuth{user: models.User{Username: "jane"}}
	s := New(auth, nil)

	user, err := s.Login(context.Background(), " jane@example.com ", "pw")
	require.NoError(t, err)
	assert.Equal(t, "jane", user.Username)
	assert.Equal(t, "jane@example.com", auth.lastCreds.Email)
	assert.Equal(t, "access-1", auth.token)
	assert.Equal(t, "access-1", s.Token())
	assert.True(t, s.Authenticated())
	assert.Equal(t, "jane", s.Username())
}

func TestLoginRejectsMissingFields(t *testing.T) {
	s := New(&fakeAuth{}, nil)
	_, err := s.Login(context.Background(), "", "pw")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.Signup(context.Background(), "jane", "not-an-email", "pw")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.False(t, s.Authenticated())
}

func TestLoginFailureKeepsSignedOut(t *testing.T) {
	auth := &fakeAuth{loginErr: &api.Error{Status: http.StatusUnauthorized, Message: "Invalid credentials"}}
	s := New(auth, nil)

	_, err := s.Login(context.Background(), "a@b.c", "bad")
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrUnauthorized)
	assert.Equal(t, "Invalid credentials", api.Message(err, ""))
	assert.False(t, s.Authenticated())
}

func TestSignup(t *testing.T) {
	s := New(&fakeAuth{}, nil)
	user, err := s.Signup(context.Background(), "jane", "jane@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "jane", user.Username)
	assert.Equal(t, "access-2", s.Token())
}

func TestRestoreValidatesToken(t *testing.T) {
	auth := &fakeAuth{user: models.User{Username: "jane"}}
	s := New(auth, nil)

	_, err := s.Restore(context.Background(), signedToken(t, time.Now().Add(-time.Minute)), "r")
	assert.ErrorIs(t, err, ErrExpired)

	live := signedToken(t, time.Now().Add(time.Hour))
	user, err := s.Restore(context.Background(), live, "r")
	require.NoError(t, err)
	assert.Equal(t, "jane", user.Username)
	assert.Equal(t, live, auth.token)
	assert.False(t, s.Expired())

	auth.meErr = &api.Error{Status: http.StatusUnauthorized}
	_, err = s.Restore(context.Background(), live, "r")
	assert.ErrorIs(t, err, api.ErrUnauthorized)
	assert.False(t, s.Authenticated())
	assert.Equal(t, "", auth.token)
}

func TestLogoutAlwaysClearsState(t *testing.T) {
	auth := &fakeAuth{user: models.User{Username: "jane"}, logoutErr: errors.New("offline")}
	counts := &resetCounter{}
	s := New(auth, nil, counts)
	_, err := s.Login(context.Background(), "jane@example.com", "pw")
	require.NoError(t, err)

	err = s.Logout(context.Background())
	assert.Error(t, err)
	assert.Equal(t, []string{"refresh-1"}, auth.logouts)
	assert.False(t, s.Authenticated())
	assert.Equal(t, "", s.Token())
	assert.Equal(t, 1, counts.n)

	require.NoError(t, s.Logout(context.Background()))
	assert.Len(t, auth.logouts, 1)
	assert.Equal(t, 2, counts.n)
}

func TestUpdateProfileRequiresLogin(t *testing.T) {
	auth := &fakeAuth{user: models.User{Username: "jane"}}
	s := New(auth, nil)
	_, err := s.UpdateProfile(context.Background(), api.ProfileUpdate{FirstName: "Jane"})
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = s.Login(context.Background(), "jane@example.com", "pw")
	require.NoError(t, err)
	user, err := s.UpdateProfile(context.Background(), api.ProfileUpdate{FirstName: "Jane"})
	require.NoError(t, err)
	assert.Equal(t, "Jane", user.FirstName)
	got, _ := s.User()
	assert.Equal(t, "Jane", got.DisplayName())
}
