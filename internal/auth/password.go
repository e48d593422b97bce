package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Hasher produces and verifies one-way hashes of secrets.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, encoded string) (bool, error)
}

// BcryptHasher hashes passwords and PINs.
type BcryptHasher struct {
	Cost int
}

// Hash returns a salted bcrypt hash of secret.
func (h BcryptHasher) Hash(secret string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	out, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify compares secret against a bcrypt hash. A mismatch is not an error.
func (h BcryptHasher) Verify(secret, encoded string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(secret))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

// Argon2Params configures Argon2Hasher.
type Argon2Params struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params are used for refresh token hashes.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{Memory: 19 * 1024, Time: 2, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

// Argon2Hasher hashes refresh tokens. Signed tokens exceed bcrypt's 72 byte
// input limit, so they get argon2id in PHC encoding instead.
type Argon2Hasher struct {
	params Argon2Params
}

// NewArgon2Hasher validates params and builds a hasher.
func NewArgon2Hasher(params Argon2Params) (*Argon2Hasher, error) {
	if params.Memory == 0 || params.Time == 0 || params.Parallelism == 0 {
		return nil, errors.New("argon2: memory, time and parallelism must be positive")
	}
	if params.SaltLength < 8 || params.KeyLength < 16 {
		return nil, errors.New("argon2: salt or key length too short")
	}
	return &Argon2Hasher{params: params}, nil
}

// Hash returns $argon2id$v=19$m=..,t=..,p=..$salt$hash.
func (h *Argon2Hasher) Hash(secret string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(secret), salt, h.params.Time, h.params.Memory, h.params.Parallelism, h.params.KeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.Memory, h.params.Time, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the hash with the encoded parameters and compares in
// constant time.
func (h *Argon2Hasher) Verify(secret, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, errors.New("argon2: malformed hash")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("argon2: version: %w", err)
	}
	if version != argon2.Version {
		return false, errors.New("argon2: unsupported version")
	}
	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, fmt.Errorf("argon2: params: %w", err)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("argon2: salt: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("argon2: hash: %w", err)
	}
	if len(want) == 0 || uint32(len(want)) != h.params.KeyLength {
		return false, errors.New("argon2: malformed hash: key length")
	}
	got := argon2.IDKey([]byte(secret), salt, iterations, memory, parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
