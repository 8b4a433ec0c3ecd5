package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// GoTrueProvider talks to a hosted GoTrue auth endpoint (…/auth/v1)
type GoTrueProvider struct {
	client *resty.Client
	log    *zap.Logger
}

type gotrueUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type gotrueToken struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	ExpiresIn   int64      `json:"expires_in"`
	ExpiresAt   int64      `json:"expires_at"`
	User        gotrueUser `json:"user"`
}

type gotrueError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e *gotrueError) text() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// NewGoTrueProvider creates a GoTrueProvider for the auth root, e.g. https://project.example/auth/v1
func NewGoTrueProvider(baseURL, apiKey string, timeout time.Duration, log *zap.Logger) *GoTrueProvider {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetError(&gotrueError{})
	if apiKey != "" {
		client.SetHeader("apikey", apiKey)
	}
	return &GoTrueProvider{client: client, log: log}
}

// Name implements Provider
func (p *GoTrueProvider) Name() string {
	return "gotrue"
}

func (p *GoTrueProvider) fail(op string, resp *resty.Response, err error) error {
	if err != nil {
		p.log.Error("identity request failed", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	msg := fmt.Sprintf("HTTP %d", resp.StatusCode())
	if e, ok := resp.Error().(*gotrueError); ok && e.text() != "" {
		msg = e.text()
	}
	p.log.Warn("identity request rejected", zap.String("op", op), zap.Int("status", resp.StatusCode()))
	return fmt.Errorf("%s", msg)
}

// SignIn implements Provider
func (p *GoTrueProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var tok gotrueToken
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("grant_type", "password").
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&tok).
		Post("/token")
	if err != nil {
		return nil, p.fail("sign in", resp, err)
	}
	if resp.StatusCode() == http.StatusBadRequest || resp.StatusCode() == http.StatusUnauthorized {
		return nil, ErrInvalidCredentials
	}
	if resp.IsError() {
		return nil, p.fail("sign in", resp, nil)
	}

	expires := time.Unix(tok.ExpiresAt, 0)
	if tok.ExpiresAt == 0 {
		expires = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	return &Session{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ExpiresAt:   expires,
		User:        Identity{ID: tok.User.ID, Email: tok.User.Email},
	}, nil
}

// GetSession implements Provider. GoTrue does not report token expiry on /user.
func (p *GoTrueProvider) GetSession(ctx context.Context, token string) (*Session, error) {
	var user gotrueUser
	resp, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&user).
		Get("/user")
	if err != nil {
		return nil, p.fail("get session", resp, err)
	}
	if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
		return nil, ErrInvalidSession
	}
	if resp.IsError() {
		return nil, p.fail("get session", resp, nil)
	}
	return &Session{
		AccessToken: token,
		TokenType:   "bearer",
		User:        Identity{ID: user.ID, Email: user.Email},
	}, nil
}

// SignOut implements Provider
func (p *GoTrueProvider) SignOut(ctx context.Context, token string) error {
	resp, err := p.client.R().SetContext(ctx).SetAuthToken(token).Post("/logout")
	if err != nil || (resp.IsError() && resp.StatusCode() != http.StatusUnauthorized) {
		return p.fail("sign out", resp, err)
	}
	return nil
}

// RequestPasswordReset implements Provider
func (p *GoTrueProvider) RequestPasswordReset(ctx context.Context, email, redirectTo string) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("redirect_to", redirectTo).
		SetBody(map[string]string{"email": email}).
		Post("/recover")
	if err != nil || resp.IsError() {
		return p.fail("recover", resp, err)
	}
	return nil
}

// UpdatePassword implements Provider
func (p *GoTrueProvider) UpdatePassword(ctx context.Context, token, password string) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(map[string]string{"password": password}).
		Put("/user")
	if err != nil {
		return p.fail("update password", resp, err)
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return ErrInvalidSession
	}
	if resp.IsError() {
		return p.fail("update password", resp, nil)
	}
	return nil
}

// Ping implements Provider
func (p *GoTrueProvider) Ping(ctx context.Context) error {
	resp, err := p.client.R().SetContext(ctx).Get("/health")
	if err != nil || resp.IsError() {
		return p.fail("health", resp, err)
	}
	return nil
}
