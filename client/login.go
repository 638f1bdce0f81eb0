package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/habedi/gigsync/db"
	"github.com/rs/zerolog/log"
)

// Login exchanges email and password for a session and saves it in the credential store.
func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password cannot be empty")
	}
	data, err := json.Marshal(LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}

	target := c.endpoint(loginPath, nil)
	resp, err := c.send(ctx, http.MethodPost, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer closeResponseBody(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read login response: %w", err)
	}
	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to parse login response: %w", err)
	}
	if user.AccessToken == "" {
		return nil, fmt.Errorf("login response carried no access token")
	}

	cookie := cookieValue(resp, c.cfg.RefreshCookieName)
	if cookie == "" {
		log.Warn().Str("cookie", c.cfg.RefreshCookieName).Msg("Login response did not set a refresh cookie; the session cannot be renewed")
	}
	cred := &db.Credential{
		AccessToken:     user.AccessToken,
		SessionCookie:   cookie,
		UserID:          user.ID,
		Email:           user.Email,
		NickName:        user.NickName,
		Role:            user.Role,
		ProfileImageURL: user.ProfileImageURL,
	}
	if err := c.store.Upsert(ctx, cred); err != nil {
		return nil, fmt.Errorf("failed to save credentials: %w", err)
	}
	log.Info().Int64("user_id", user.ID).Msg("Logged in")

	user.AccessToken = ""
	return &user, nil
}

// Session returns the stored credential, or ErrNotLoggedIn.
func (c *Client) Session(ctx context.Context) (*db.Credential, error) {
	cred, err := c.store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	if !cred.HasToken() {
		return nil, ErrNotLoggedIn
	}
	return cred, nil
}

// Logout tells the server to end the session and forgets it locally, even if the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	cred, err := c.Session(ctx)
	if err != nil {
		return err
	}

	target := c.endpoint("/logout", nil)
	resp, callErr := c.send(ctx, http.MethodPost, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, http.NoBody)
		if err != nil {
			return nil, err
		}
		if cred.SessionCookie != "" {
			req.AddCookie(&http.Cookie{Name: c.cfg.RefreshCookieName, Value: cred.SessionCookie})
		}
		return req, nil
	})
	if callErr == nil {
		closeResponseBody(resp)
	} else {
		log.Warn().Err(callErr).Msg("Server logout failed, clearing local session anyway")
	}

	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return callErr
}

// Signup registers a new account.
func (c *Client) Signup(ctx context.Context, req SignupRequest) error {
	return c.sendJSON(ctx, http.MethodPost, signupPath, req, nil)
}

// AdminSignup registers a new account with the admin role.
func (c *Client) AdminSignup(ctx context.Context, req SignupRequest) error {
	return c.sendJSON(ctx, http.MethodPost, adminSignupPath, req, nil)
}

// SendVerificationCode asks the server to mail a verification code, used by signup and password reset.
func (c *Client) SendVerificationCode(ctx context.Context, email string) error {
	return c.sendJSON(ctx, http.MethodPost, verifyEmailPath, map[string]string{"email": email}, nil)
}

// FindEmail returns the account email registered for a phone number.
func (c *Client) FindEmail(ctx context.Context, phoneNumber string) (string, error) {
	var out struct {
		Email string `json:"email"`
	}
	if err := c.sendJSON(ctx, http.MethodPost, findEmailPath, FindEmailRequest{PhoneNumber: phoneNumber}, &out); err != nil {
		return "", err
	}
	if out.Email == "" {
		return "", fmt.Errorf("find email: server returned no address")
	}
	return out.Email, nil
}

// ResetPassword sets a new password, authorised by a mailed verification code.
func (c *Client) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	return c.sendJSON(ctx, http.MethodPost, resetPasswordPath, req, nil)
}
