package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/localnerve/reportdesk/internal/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenTypeSession  = "session"
	tokenTypeRecovery = "recovery"
)

// Credentials is the password storage a LocalProvider signs in against
type Credentials interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	SetPasswordHash(ctx context.Context, authUserID, hash string) error
	Ping(ctx context.Context) error
}

// RecoveryMailer delivers a password reset link
type RecoveryMailer interface {
	SendRecoveryLink(ctx context.Context, email, link string) error
}

type claims struct {
	Email string `json:"email"`
	Type  string `json:"typ"`
	jwt.RegisteredClaims
}

// LocalProvider issues HS256 tokens for users whose bcrypt hashes live in the store
type LocalProvider struct {
	creds       Credentials
	mailer      RecoveryMailer
	secret      []byte
	sessionTTL  time.Duration
	recoveryTTL time.Duration
	log         *zap.Logger
	now         func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time
}

// NewLocalProvider creates a LocalProvider. mailer may be nil, in which case reset links are only logged.
func NewLocalProvider(creds Credentials, mailer RecoveryMailer, secret string, sessionTTL, recoveryTTL time.Duration, log *zap.Logger) *LocalProvider {
	return &LocalProvider{
		creds:       creds,
		mailer:      mailer,
		secret:      []byte(secret),
		sessionTTL:  sessionTTL,
		recoveryTTL: recoveryTTL,
		log:         log,
		now:         time.Now,
		revoked:     make(map[string]time.Time),
	}
}

// Name implements Provider
func (p *LocalProvider) Name() string {
	return "local"
}

func (p *LocalProvider) issue(user *models.User, tokenType string, ttl time.Duration) (*Session, error) {
	now := p.now()
	expires := now.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: user.Email,
		Type:  tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.AuthUserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        fmt.Sprintf("%s-%d", user.AuthUserID, now.UnixNano()),
		},
	})
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &Session{
		AccessToken: signed,
		TokenType:   "bearer",
		ExpiresAt:   expires,
		User:        Identity{ID: user.AuthUserID, Email: user.Email},
		Recovery:    tokenType == tokenTypeRecovery,
	}, nil
}

func (p *LocalProvider) parse(token string) (*claims, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidSession
	}
	if c.ExpiresAt == nil || !p.now().Before(c.ExpiresAt.Time) {
		return nil, ErrInvalidSession
	}

	p.mu.Lock()
	_, revoked := p.revoked[c.ID]
	p.mu.Unlock()
	if revoked {
		return nil, ErrInvalidSession
	}
	return &c, nil
}

func (p *LocalProvider) revoke(c *claims) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for id, exp := range p.revoked {
		if now.After(exp) {
			delete(p.revoked, id)
		}
	}
	p.revoked[c.ID] = c.ExpiresAt.Time
}

// SignIn implements Provider
func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	user, err := p.creds.GetUserByEmail(ctx, email)
	if err != nil || user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return p.issue(user, tokenTypeSession, p.sessionTTL)
}

// GetSession implements Provider
func (p *LocalProvider) GetSession(_ context.Context, token string) (*Session, error) {
	c, err := p.parse(token)
	if err != nil {
		return nil, err
	}
	return &Session{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   c.ExpiresAt.Time,
		User:        Identity{ID: c.Subject, Email: c.Email},
		Recovery:    c.Type == tokenTypeRecovery,
	}, nil
}

// SignOut implements Provider
func (p *LocalProvider) SignOut(_ context.Context, token string) error {
	c, err := p.parse(token)
	if err != nil {
		// already unusable
		return nil
	}
	p.revoke(c)
	return nil
}

// RequestPasswordReset implements Provider. Unknown emails succeed silently.
func (p *LocalProvider) RequestPasswordReset(ctx context.Context, email, redirectTo string) error {
	user, err := p.creds.GetUserByEmail(ctx, email)
	if err != nil {
		p.log.Info("password reset requested for unknown email")
		return nil
	}

	session, err := p.issue(user, tokenTypeRecovery, p.recoveryTTL)
	if err != nil {
		return err
	}

	link := redirectTo + "#" + url.Values{
		"type":         {"recovery"},
		"access_token": {session.AccessToken},
	}.Encode()

	if p.mailer == nil {
		p.log.Warn("no recovery mailer configured; reset link not delivered", zap.String("email", user.Email))
		return nil
	}
	return p.mailer.SendRecoveryLink(ctx, user.Email, link)
}

// UpdatePassword implements Provider. Recovery tokens are single use.
func (p *LocalProvider) UpdatePassword(ctx context.Context, token, password string) error {
	c, err := p.parse(token)
	if err != nil {
		return err
	}
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := p.creds.SetPasswordHash(ctx, c.Subject, string(hash)); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("update password: %w", err)
	}

	if c.Type == tokenTypeRecovery {
		p.revoke(c)
	}
	return nil
}

// Ping implements Provider; the local provider is as healthy as its credential store
func (p *LocalProvider) Ping(ctx context.Context) error {
	return p.creds.Ping(ctx)
}
