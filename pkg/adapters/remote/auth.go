package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Tokens is a JWT pair. Refresh may be empty in a refresh response when the
// server does not rotate refresh tokens.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// Registration is the payload of Register.
type Registration struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// User is the account returned by Register.
type User struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// ObtainToken exchanges credentials for a token pair.
func (c *Client) ObtainToken(ctx context.Context, email, password string) (Tokens, error) {
	var t Tokens
	in := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/token/", in, &t, false); err != nil {
		return Tokens{}, err
	}
	if t.Access == "" {
		return Tokens{}, fmt.Errorf("token response has no access token")
	}
	return t, nil
}

// RefreshToken trades a refresh token for a new access token. A 401 means
// the refresh token is no longer valid; the error then matches core.ErrUnauthorized.
func (c *Client) RefreshToken(ctx context.Context, refresh string) (Tokens, error) {
	var t Tokens
	in := map[string]string{"refresh": refresh}
	if err := c.do(ctx, http.MethodPost, "/api/token/refresh/", in, &t, false); err != nil {
		return Tokens{}, err
	}
	if t.Access == "" {
		return Tokens{}, fmt.Errorf("refresh response has no access token")
	}
	return t, nil
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, r Registration) (User, error) {
	var u User
	if err := c.do(ctx, http.MethodPost, "/api/register/", r, &u, false); err != nil {
		return User{}, err
	}
	return u, nil
}

// Logout tells the server the session ended. Tokens stay valid until they
// expire; callers still drop them locally.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/logout/", nil, nil, true)
}

type detailResponse struct {
	Detail string `json:"detail"`
}

// RequestPasswordReset asks the server to mail a reset link to email.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	var out detailResponse
	in := map[string]string{"email": email}
	if err := c.do(ctx, http.MethodPost, "/api/password-reset/", in, &out, false); err != nil {
		return "", err
	}
	return out.Detail, nil
}

// ConfirmPasswordReset sets a new password using the id and token from the reset link.
func (c *Client) ConfirmPasswordReset(ctx context.Context, userID int64, token, newPassword string) (string, error) {
	var out detailResponse
	path := "/api/password-reset-confirm/" + strconv.FormatInt(userID, 10) + "/" + url.PathEscape(token) + "/"
	in := map[string]string{"new_password": newPassword}
	if err := c.do(ctx, http.MethodPost, path, in, &out, false); err != nil {
		return "", err
	}
	return out.Detail, nil
}
