package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const refreshKind = "refresh"

// TokenConfig configures TokenIssuer. The two secrets must differ.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// AccessClaims is the payload of an access token.
type AccessClaims struct {
	Username string `json:"username,omitempty"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// UserID parses the subject.
func (c AccessClaims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// RefreshClaims is the payload of a refresh token. ID (jti) makes every
// refresh token unique and doubles as the lookup fingerprint.
type RefreshClaims struct {
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

// UserID parses the subject.
func (c RefreshClaims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// TokenIssuer signs and verifies access and refresh tokens.
type TokenIssuer struct {
	cfg           TokenConfig
	accessSecret  []byte
	refreshSecret []byte
	now           func() time.Time
}

// NewTokenIssuer validates cfg and returns an issuer. now may be nil.
func NewTokenIssuer(cfg TokenConfig, now func() time.Time) (*TokenIssuer, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("auth: token secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 30 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{
		cfg:           cfg,
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		now:           now,
	}, nil
}

// AccessTTL returns the configured access token lifetime.
func (t *TokenIssuer) AccessTTL() time.Duration { return t.cfg.AccessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (t *TokenIssuer) RefreshTTL() time.Duration { return t.cfg.RefreshTTL }

// Issue signs a fresh access/refresh pair for user.
func (t *TokenIssuer) Issue(user User) (TokenPair, error) {
	now := t.now()
	subject := strconv.FormatInt(user.ID, 10)
	accessExp := now.Add(t.cfg.AccessTTL)
	refreshExp := now.Add(t.cfg.RefreshTTL)

	access := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		Username: user.DisplayUsername(),
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.cfg.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExp),
			ID:        uuid.NewString(),
		},
	})
	accessToken, err := access.SignedString(t.accessSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refreshID := uuid.NewString()
	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, RefreshClaims{
		Kind: refreshKind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.cfg.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(refreshExp),
			ID:        refreshID,
		},
	})
	refreshToken, err := refresh.SignedString(t.refreshSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		RefreshID:        refreshID,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccess checks signature and expiry of an access token.
func (t *TokenIssuer) VerifyAccess(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := t.parse(raw, claims, t.accessSecret); err != nil {
		return nil, err
	}
	if _, err := claims.UserID(); err != nil {
		return nil, newError(KindInvalidSignature, fmt.Errorf("subject: %w", err))
	}
	return claims, nil
}

// VerifyRefresh checks signature and expiry of a refresh token.
func (t *TokenIssuer) VerifyRefresh(raw string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := t.parse(raw, claims, t.refreshSecret); err != nil {
		return nil, err
	}
	if claims.Kind != refreshKind || claims.ID == "" {
		return nil, newError(KindInvalidSignature, errors.New("not a refresh token"))
	}
	if _, err := claims.UserID(); err != nil {
		return nil, newError(KindInvalidSignature, fmt.Errorf("subject: %w", err))
	}
	return claims, nil
}

func (t *TokenIssuer) parse(raw string, claims jwt.Claims, secret []byte) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	}
	if t.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.cfg.Issuer))
	}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err == nil {
		return nil
	}
	if errors.Is(err, jwt.ErrTokenExpired) {
		return newError(KindTokenExpired, err)
	}
	return newError(KindInvalidSignature, err)
}
