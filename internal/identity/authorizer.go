package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/localnerve/authorizer-go"
	"github.com/localnerve/reportdesk/internal/utils"
	"go.uber.org/zap"
)

// AuthorizerProvider signs users in against an Authorizer instance.
// Password recovery is handled by Authorizer's own pages and is not exposed here.
type AuthorizerProvider struct {
	client *authorizer.AuthorizerClient
	url    string
	log    *zap.Logger
}

type authorizerUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type authorizerToken struct {
	AccessToken string          `json:"access_token"`
	ExpiresIn   int64           `json:"expires_in"`
	User        *authorizerUser `json:"user"`
}

// NewAuthorizerProvider pings the Authorizer service and creates its client
func NewAuthorizerProvider(authzURL, clientID, redirectURL string, log *zap.Logger) (*AuthorizerProvider, error) {
	if err := utils.Reachable(context.Background(), authzURL); err != nil {
		return nil, fmt.Errorf("authorizer ping failed: %w", err)
	}

	log.Info("initializing authorizer",
		zap.String("url", authzURL),
		zap.String("client_id", clientID),
		zap.String("redirect_url", redirectURL))

	client, err := authorizer.NewAuthorizerClient(clientID, authzURL, redirectURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorizer client: %w", err)
	}
	return &AuthorizerProvider{client: client, url: authzURL, log: log}, nil
}

// Name implements Provider
func (p *AuthorizerProvider) Name() string {
	return "authorizer"
}

// recast moves an SDK value into a local shape through its JSON form
func recast(from, to interface{}) error {
	raw, err := json.Marshal(from)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, to)
}

// SignIn implements Provider
func (p *AuthorizerProvider) SignIn(_ context.Context, email, password string) (*Session, error) {
	res, err := p.client.Login(&authorizer.LoginInput{
		Email:    &email,
		Password: password,
	})
	if err != nil {
		p.log.Info("authorizer login failed", zap.Error(err))
		return nil, ErrInvalidCredentials
	}
	if res == nil || res.AccessToken == nil {
		return nil, ErrInvalidCredentials
	}

	var tok authorizerToken
	if err := recast(res, &tok); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}
	session := &Session{
		AccessToken: *res.AccessToken,
		TokenType:   "bearer",
		ExpiresAt:   time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
	}
	if tok.User != nil {
		session.User = Identity{ID: tok.User.ID, Email: tok.User.Email}
	}
	return session, nil
}

// GetSession implements Provider. Bearer access tokens are checked against the profile
// endpoint; anything else is treated as an Authorizer session cookie.
func (p *AuthorizerProvider) GetSession(_ context.Context, token string) (*Session, error) {
	var user authorizerUser

	profile, err := p.client.GetProfile(map[string]string{"Authorization": "Bearer " + token})
	if err == nil && profile != nil {
		if err := recast(profile, &user); err != nil {
			return nil, fmt.Errorf("decode profile: %w", err)
		}
	} else {
		res, verr := p.client.ValidateSession(&authorizer.ValidateSessionInput{Cookie: token})
		if verr != nil || res == nil || !res.IsValid {
			return nil, ErrInvalidSession
		}
		if err := recast(res.User, &user); err != nil {
			return nil, fmt.Errorf("decode session user: %w", err)
		}
	}

	if user.ID == "" {
		return nil, ErrInvalidSession
	}
	return &Session{
		AccessToken: token,
		TokenType:   "bearer",
		User:        Identity{ID: user.ID, Email: user.Email},
	}, nil
}

// SignOut implements Provider
func (p *AuthorizerProvider) SignOut(_ context.Context, token string) error {
	if _, err := p.client.Logout(map[string]string{"Authorization": "Bearer " + token}); err != nil {
		p.log.Warn("authorizer logout failed", zap.Error(err))
		return err
	}
	return nil
}

// RequestPasswordReset implements Provider
func (p *AuthorizerProvider) RequestPasswordReset(context.Context, string, string) error {
	return ErrUnsupported
}

// UpdatePassword implements Provider
func (p *AuthorizerProvider) UpdatePassword(context.Context, string, string) error {
	return ErrUnsupported
}

// Ping implements Provider
func (p *AuthorizerProvider) Ping(ctx context.Context) error {
	return utils.Reachable(ctx, p.url)
}
