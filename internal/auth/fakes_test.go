package auth_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nusapos/nusapos/internal/auth"
	"github.com/nusapos/nusapos/internal/shared"
	_ "github.com/nusapos/nusapos/testing"
)

type memoryRepo struct {
	mu          sync.Mutex
	users       map[int64]auth.User
	tokens      map[int64]*auth.RefreshTokenRecord
	nextUserID  int64
	nextTokenID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		users:  make(map[int64]auth.User),
		tokens: make(map[int64]*auth.RefreshTokenRecord),
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, auth.TokenStore) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) FindUserByLogin(_ context.Context, login string) (auth.User, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.ToLower(u.Email) == login || strings.ToLower(u.DisplayUsername()) == login {
			return u, nil
		}
	}
	return auth.User{}, shared.ErrNotFound
}

func (m *memoryRepo) CreateUser(_ context.Context, user *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return shared.ErrConflict
		}
		if user.Username != nil && strings.EqualFold(u.DisplayUsername(), *user.Username) {
			return shared.ErrConflict
		}
	}
	m.nextUserID++
	user.ID = m.nextUserID
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = *user
	return nil
}

func (m *memoryRepo) FindUserByID(_ context.Context, id int64) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return auth.User{}, shared.ErrNotFound
	}
	return u, nil
}

func (m *memoryRepo) CreateRefreshToken(_ context.Context, rec *auth.RefreshTokenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTokenID++
	rec.ID = m.nextTokenID
	stored := *rec
	m.tokens[rec.ID] = &stored
	return nil
}

func (m *memoryRepo) ActiveRefreshTokens(_ context.Context, userID int64, fingerprint string) ([]auth.RefreshTokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []auth.RefreshTokenRecord
	for _, rec := range m.tokens {
		if rec.UserID != userID || rec.Revoked {
			continue
		}
		if rec.Fingerprint == fingerprint || rec.Fingerprint == "" {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *memoryRepo) RevokeRefreshToken(_ context.Context, id int64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tokens[id]
	if !ok || rec.Revoked {
		return false, nil
	}
	rec.Revoked = true
	rec.LastUsedAt = at
	return true, nil
}

// update mutates stored records in place.
func (m *memoryRepo) update(fn func(rec *auth.RefreshTokenRecord)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.tokens {
		fn(rec)
	}
}

func (m *memoryRepo) activeCount(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rec := range m.tokens {
		if rec.UserID == userID && !rec.Revoked {
			n++
		}
	}
	return n
}

func (m *memoryRepo) setAllowLogin(userID int64, allowed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[userID]
	u.AllowLogin = &allowed
	m.users[userID] = u
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (e *eventLog) RecordAuthEvent(event, outcome string) {
	e.mu.Lock()
	e.events = append(e.events, event+":"+outcome)
	e.mu.Unlock()
}

func (e *eventLog) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

type fixture struct {
	repo     *memoryRepo
	clock    *fakeClock
	issuer   *auth.TokenIssuer
	registry *auth.Registry
	throttle *auth.MemoryThrottle
	service  *auth.Service
	events   *eventLog
	hasher   auth.BcryptHasher
}

var testTokenConfig = auth.TokenConfig{
	AccessSecret:  "access-secret-for-tests",
	RefreshSecret: "refresh-secret-for-tests",
	AccessTTL:     30 * time.Minute,
	RefreshTTL:    7 * 24 * time.Hour,
	Issuer:        "nusapos-test",
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testArgon2(t *testing.T) *auth.Argon2Hasher {
	t.Helper()
	hasher, err := auth.NewArgon2Hasher(auth.Argon2Params{Memory: 64, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)
	return hasher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newFakeClock()
	repo := newMemoryRepo()
	issuer, err := auth.NewTokenIssuer(testTokenConfig, clock.Now)
	require.NoError(t, err)
	registry := auth.NewRegistry(repo, issuer, testArgon2(t), auth.RegistryConfig{IdleTimeout: 60 * time.Minute}, quietLogger(), clock.Now)
	throttle := auth.NewMemoryThrottle(auth.ThrottleConfig{MaxFailures: 5, LockDuration: 15 * time.Minute}, clock.Now)
	events := &eventLog{}
	hasher := auth.BcryptHasher{Cost: bcrypt.MinCost}
	service := auth.NewService(repo, hasher, registry, throttle, auth.ServiceConfig{DefaultRole: "CASHIER"}, events, quietLogger())
	return &fixture{
		repo:     repo,
		clock:    clock,
		issuer:   issuer,
		registry: registry,
		throttle: throttle,
		service:  service,
		events:   events,
		hasher:   hasher,
	}
}

// seedUser stores a user with a bcrypt hash of password.
func (f *fixture) seedUser(t *testing.T, username, email, password, role string) auth.User {
	t.Helper()
	hash, err := f.hasher.Hash(password)
	require.NoError(t, err)
	user := auth.User{Email: email, PasswordHash: hash, Role: role}
	if username != "" {
		user.Username = &username
	}
	require.NoError(t, f.repo.CreateUser(context.Background(), &user))
	return user
}
