// Package session holds the signed-in user and tokens in memory.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"chatline/api"
	"chatline/logging"
	"chatline/models"
)

var (
	ErrNotAuthenticated = errors.New("session: not authenticated")
	ErrExpired          = errors.New("session: token expired")
	ErrInvalidInput     = errors.New("session: invalid input")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Authenticator is the auth part of the REST client.
type Authenticator interface {
	Login(ctx context.Context, creds api.Credentials) (*api.AuthResult, error)
	Signup(ctx context.Context, form api.SignupForm) (*api.AuthResult, error)
	CurrentUser(ctx context.Context) (*models.User, error)
	UpdateProfile(ctx context.Context, update api.ProfileUpdate) (*models.User, error)
	Logout(ctx context.Context, refresh string) error
	SetToken(token string)
}

// Resetter is cleared on logout; the notification Counts store satisfies it.
type Resetter interface {
	ResetAll()
}

type loginInput struct {
	Email    string `validate:"required"`
	Password string `validate:"required"`
}

type signupInput struct {
	Username string `validate:"required"`
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// Session is the in-memory auth state. Tokens are never written to disk.
type Session struct {
	auth   Authenticator
	resets []Resetter
	log    *zap.SugaredLogger
	now    func() time.Time

	mu      sync.Mutex
	user    *models.User
	access  string
	refresh string
}

// New builds a signed-out Session. resets are cleared on every logout.
func New(auth Authenticator, logger *zap.SugaredLogger, resets ...Resetter) *Session {
	return &Session{
		auth:   auth,
		resets: resets,
		log:    logging.OrNop(logger).With("component", "session"),
		now:    time.Now,
	}
}

// Login signs in with email and password.
func (s *Session) Login(ctx context.Context, email, password string) (*models.User, error) {
	in := loginInput{Email: strings.TrimSpace(email), Password: password}
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	res, err := s.auth.Login(ctx, api.Credentials{Email: in.Email, Password: in.Password})
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	s.adopt(res)
	s.log.Infow("logged in", "user", res.User.Username)
	return &res.User, nil
}

// Signup creates an account and signs in.
func (s *Session) Signup(ctx context.Context, username, email, password string) (*models.User, error) {
	in := signupInput{Username: strings.TrimSpace(username), Email: strings.TrimSpace(email), Password: password}
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	res, err := s.auth.Signup(ctx, api.SignupForm{Username: in.Username, Email: in.Email, Password: in.Password})
	if err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}
	s.adopt(res)
	s.log.Infow("signed up", "user", res.User.Username)
	return &res.User, nil
}

// Restore adopts tokens obtained elsewhere and checks them against the server.
// An expired or rejected token leaves the session signed out.
func (s *Session) Restore(ctx context.Context, access, refresh string) (*models.User, error) {
	if access == "" {
		return nil, ErrNotAuthenticated
	}
	if api.TokenExpired(access, s.now()) {
		return nil, ErrExpired
	}

	s.auth.SetToken(access)
	user, err := s.auth.CurrentUser(ctx)
	if err != nil {
		s.clear()
		return nil, fmt.Errorf("restore session: %w", err)
	}

	s.mu.Lock()
	s.user = user
	s.access = access
	s.refresh = refresh
	s.mu.Unlock()
	return user, nil
}

// UpdateProfile saves profile fields and keeps the returned user.
func (s *Session) UpdateProfile(ctx context.Context, update api.ProfileUpdate) (*models.User, error) {
	if !s.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	user, err := s.auth.UpdateProfile(ctx, update)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	return user, nil
}

// Logout tells the server to drop the refresh token. Local state is cleared
// even when that call fails.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	refresh := s.refresh
	s.mu.Unlock()

	var err error
	if refresh != "" {
		if err = s.auth.Logout(ctx, refresh); err != nil {
			s.log.Warnw("server logout failed", "error", err)
			err = fmt.Errorf("logout: %w", err)
		}
	}
	s.clear()
	for _, r := range s.resets {
		r.ResetAll()
	}
	return err
}

// User returns the signed-in user.
func (s *Session) User() (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return models.User{}, false
	}
	return *s.user, true
}

// Username returns the signed-in username, or "".
func (s *Session) Username() string {
	u, _ := s.User()
	return u.Username
}

// Token returns the access token, or "".
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access
}

// Authenticated reports whether a user is signed in.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user != nil && s.access != ""
}

// Expired reports whether the access token's exp claim has passed.
func (s *Session) Expired() bool {
	token := s.Token()
	return token != "" && api.TokenExpired(token, s.now())
}

func (s *Session) adopt(res *api.AuthResult) {
	s.auth.SetToken(res.Access)
	user := res.User
	s.mu.Lock()
	s.user = &user
	s.access = res.Access
	s.refresh = res.Refresh
	s.mu.Unlock()
}

func (s *Session) clear() {
	s.auth.SetToken("")
	s.mu.Lock()
	s.user = nil
	s.access = ""
	s.refresh = ""
	s.mu.Unlock()
}
