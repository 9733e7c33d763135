package backoffice

import (
	"context"
	"net/http"

	"github.com/cartstack/backoffice-go/forms"
	"github.com/cartstack/backoffice-go/gateway"
	"github.com/cartstack/backoffice-go/session"
)

// LoginForm carries password-login credentials.
type LoginForm struct {
	Email    string `json:"email" jsonschema:"required,format=email"`
	Password string `json:"password" jsonschema:"required,minLength=8"`
}

// ForgotPasswordForm requests a login link by email.
type ForgotPasswordForm struct {
	Email string `json:"email" jsonschema:"required,format=email"`
}

// AuthService signs users in and out against the /auth endpoints.
type AuthService struct {
	c *Client
}

// Auth returns the authentication service.
func (c *Client) Auth() *AuthService { return &AuthService{c: c} }

type loginResponse struct {
	Token       string         `json:"token"`
	Role        string         `json:"role"`
	Permissions []string       `json:"permissions"`
	User        map[string]any `json:"user"`
}

// Login validates the form, exchanges the credentials, and persists the
// resulting session. On success the route guard immediately reports
// Authenticated.
func (a *AuthService) Login(ctx context.Context, form LoginForm) error {
	if err := forms.Validate(form); err != nil {
		return err
	}

	res, err := a.c.gw.Do(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   "/auth/login",
		Body:   form,
	})
	if err != nil {
		return err
	}

	var lr loginResponse
	if err := res.Decode(&lr); err != nil {
		return err
	}
	return a.c.store.Login(ctx, session.LoginPayload{
		Token:       lr.Token,
		Role:        lr.Role,
		Permissions: lr.Permissions,
		User:        lr.User,
	})
}

// ForgotPassword asks the server to mail a one-time login link. The
// server's acknowledgement message is returned for display.
func (a *AuthService) ForgotPassword(ctx context.Context, form ForgotPasswordForm) (string, error) {
	if err := forms.Validate(form); err != nil {
		return "", err
	}

	res, err := a.c.gw.Do(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   "/auth/forgot-password",
		Body:   form,
	})
	if err != nil {
		return "", err
	}
	return res.Message, nil
}

// ExchangeLoginLink redeems a one-time login-link code. When a session is
// already active the fresh token and profile are merged into it; otherwise
// a new session is established.
func (a *AuthService) ExchangeLoginLink(ctx context.Context, code string) error {
	res, err := a.c.gw.Do(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   "/auth/login/verify",
		Body:   map[string]string{"code": code},
	})
	if err != nil {
		return err
	}

	var lr loginResponse
	if err := res.Decode(&lr); err != nil {
		return err
	}

	if a.c.store.Current().IsAuthenticated {
		return a.c.store.UpdateUser(ctx, session.Update{
			Token: &lr.Token,
			User:  lr.User,
		})
	}
	return a.c.store.Login(ctx, session.LoginPayload{
		Token:       lr.Token,
		Role:        lr.Role,
		Permissions: lr.Permissions,
		User:        lr.User,
	})
}

// Logout clears the session locally. The server is notified best-effort;
// a failed notification never keeps the user signed in.
func (a *AuthService) Logout(ctx context.Context) error {
	if a.c.store.Token() != "" {
		_, _ = a.c.gw.Do(ctx, gateway.Request{
			Method:       http.MethodPost,
			Path:         "/auth/logout",
			AuthRequired: true,
		})
	}
	return a.c.store.Logout(ctx)
}
