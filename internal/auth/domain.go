package auth

import "time"

// User represents an account that can authenticate.
type User struct {
	ID           int64
	Username     *string
	Email        string
	Name         string
	PasswordHash string
	Role         string
	RoleID       *int64
	AllowLogin   *bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LoginAllowed reports whether the per-user login flag permits sign-in. An
// unset flag means allowed.
func (u User) LoginAllowed() bool {
	return u.AllowLogin == nil || *u.AllowLogin
}

// DisplayUsername returns the username or an empty string.
func (u User) DisplayUsername() string {
	if u.Username == nil {
		return ""
	}
	return *u.Username
}

// RefreshTokenRecord is the persisted trace of one issued refresh token. The
// raw token is never stored; records are revoked, never deleted.
type RefreshTokenRecord struct {
	ID          int64
	UserID      int64
	TokenHash   string
	Fingerprint string
	IP          string
	UserAgent   string
	ExpiresAt   time.Time
	Revoked     bool
	LastUsedAt  time.Time
	CreatedAt   time.Time
}

// ClientMetadata describes where a request came from.
type ClientMetadata struct {
	IP        string
	UserAgent string
}

// TokenPair is the result of a successful issuance.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	RefreshID        string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Session bundles issued tokens with the authenticated user.
type Session struct {
	Tokens TokenPair
	User   User
}

// RegisterInput carries the fields accepted at sign-up.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Name     string
}

// LoginInput carries submitted credentials. Login is a username or an email.
type LoginInput struct {
	Login    string
	Password string
}
