package api

import (
	"context"
	"net/http"

	"chatline/models"
)

// Credentials are the manual login fields.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupForm are the manual signup fields.
type SignupForm struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult is returned by login and signup.
type AuthResult struct {
	Access  string      `json:"access"`
	Refresh string      `json:"refresh"`
	User    models.User `json:"user"`
}

// ProfileUpdate holds the editable profile fields. Empty fields are not sent.
type ProfileUpdate struct {
	Username    string
	FirstName   string
	LastName    string
	PhoneNumber string
	Bio         string
	Gender      string
	DateOfBirth string

	PictureName string
	Picture     []byte
}

func (p ProfileUpdate) fields() map[string]string {
	out := make(map[string]string)
	add := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	add("username", p.Username)
	add("first_name", p.FirstName)
	add("last_name", p.LastName)
	add("phone_number", p.PhoneNumber)
	add("bio", p.Bio)
	add("gender", p.Gender)
	add("date_of_birth", p.DateOfBirth)
	return out
}

// Login exchanges credentials for tokens.
func (c *Client) Login(ctx context.Context, creds Credentials) (*AuthResult, error) {
	var out AuthResult
	if err := c.do(ctx, request{method: http.MethodPost, path: "/auth/api/manual-login/", json: creds}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Signup creates an account and returns its tokens.
func (c *Client) Signup(ctx context.Context, form SignupForm) (*AuthResult, error) {
	var out AuthResult
	if err := c.do(ctx, request{method: http.MethodPost, path: "/auth/api/manual-signup/", json: form}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CurrentUser fetches the profile behind the current token.
func (c *Client) CurrentUser(ctx context.Context) (*models.User, error) {
	var out models.User
	if err := c.do(ctx, request{method: http.MethodGet, path: "/auth/api/user/"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile sends a multipart profile update and returns the stored profile.
func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (*models.User, error) {
	req := request{method: http.MethodPut, path: "/auth/api/update-profile/", form: update.fields()}
	if len(update.Picture) > 0 {
		name := update.PictureName
		if name == "" {
			name = "profile.png"
		}
		req.file = &formFile{field: "profile_picture", filename: name, data: update.Picture}
	}

	var out models.User
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout invalidates the refresh token server-side.
func (c *Client) Logout(ctx context.Context, refresh string) error {
	body := map[string]string{"refresh": refresh}
	return c.do(ctx, request{method: http.MethodPost, path: "/auth/api/logout/", json: body}, nil)
}
