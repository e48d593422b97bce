package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nusapos/nusapos/internal/shared"
)

// EventRecorder receives auth outcomes for metrics.
type EventRecorder interface {
	RecordAuthEvent(event, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) RecordAuthEvent(string, string) {}

// ServiceConfig configures Service.
type ServiceConfig struct {
	// DefaultRole is assigned to self-registered users.
	DefaultRole string
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	hasher   Hasher
	registry *Registry
	throttle Throttle
	events   EventRecorder
	logger   *slog.Logger
	cfg      ServiceConfig

	dummyOnce sync.Once
	dummyHash string
}

// NewService constructs a new Service. events and logger may be nil.
func NewService(repo Repository, hasher Hasher, registry *Registry, throttle Throttle, cfg ServiceConfig, events EventRecorder, logger *slog.Logger) *Service {
	if cfg.DefaultRole == "" {
		cfg.DefaultRole = "CASHIER"
	}
	if events == nil {
		events = noopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		hasher:   hasher,
		registry: registry,
		throttle: throttle,
		events:   events,
		logger:   logger,
		cfg:      cfg,
	}
}

// Register creates an account with the default role and signs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput, meta ClientMetadata) (session Session, err error) {
	defer func() { s.record("register", err) }()

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}
	user := User{
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		Role:         s.cfg.DefaultRole,
	}
	if username := strings.TrimSpace(in.Username); username != "" {
		user.Username = &username
	}
	if err := s.repo.CreateUser(ctx, &user); err != nil {
		return Session{}, err
	}

	pair, err := s.registry.Issue(ctx, user, meta)
	if err != nil {
		return Session{}, err
	}
	return Session{Tokens: pair, User: user}, nil
}

// Login checks credentials under the lockout policy. A locked pair is
// rejected before the password is looked at and without counting a failure.
func (s *Service) Login(ctx context.Context, in LoginInput, meta ClientMetadata) (session Session, err error) {
	defer func() { s.record("login", err) }()

	identity := strings.TrimSpace(in.Login)
	if identity == "" {
		return Session{}, ErrInvalidCredentials
	}

	locked, err := s.throttle.IsLocked(ctx, identity, meta.IP)
	if err != nil {
		s.logger.Warn("login throttle unavailable", slog.Any("error", err))
	}
	if locked {
		return Session{}, ErrAccountLocked
	}

	user, err := s.repo.FindUserByLogin(ctx, identity)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			return Session{}, fmt.Errorf("find user: %w", err)
		}
		s.burnVerify(in.Password)
		s.recordFailure(ctx, identity, meta.IP)
		return Session{}, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(in.Password, user.PasswordHash)
	if err != nil {
		s.logger.Warn("password hash unreadable", slog.Int64("user_id", user.ID), slog.Any("error", err))
	}
	if !ok {
		s.recordFailure(ctx, identity, meta.IP)
		return Session{}, ErrInvalidCredentials
	}

	if !user.LoginAllowed() {
		return Session{}, ErrLoginDisabled
	}

	if err := s.throttle.Clear(ctx, identity, meta.IP); err != nil {
		s.logger.Warn("clear login throttle", slog.Any("error", err))
	}

	pair, err := s.registry.Issue(ctx, user, meta)
	if err != nil {
		return Session{}, err
	}
	return Session{Tokens: pair, User: user}, nil
}

// Refresh rotates a refresh token.
func (s *Service) Refresh(ctx context.Context, raw string, meta ClientMetadata) (session Session, err error) {
	defer func() { s.record("refresh", err) }()
	return s.registry.Rotate(ctx, raw, meta)
}

// Logout revokes raw if it is a live refresh token. It always succeeds.
func (s *Service) Logout(ctx context.Context, raw string) {
	if raw != "" {
		s.registry.Revoke(ctx, raw)
	}
	s.record("logout", nil)
}

// User loads the account behind an authenticated principal.
func (s *Service) User(ctx context.Context, id int64) (User, error) {
	return s.repo.FindUserByID(ctx, id)
}

func (s *Service) recordFailure(ctx context.Context, identity, origin string) {
	if err := s.throttle.RecordFailure(ctx, identity, origin); err != nil {
		s.logger.Warn("record login failure", slog.Any("error", err))
	}
}

// burnVerify spends a hash comparison for unknown users so response time
// does not reveal whether the account exists.
func (s *Service) burnVerify(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("nusapos-unknown-user")
	})
	if s.dummyHash != "" {
		_, _ = s.hasher.Verify(password, s.dummyHash)
	}
}

func (s *Service) record(event string, err error) {
	outcome := "success"
	if err != nil {
		if kind := KindOf(err); kind != "" {
			outcome = strings.ToLower(string(kind))
		} else if errors.Is(err, shared.ErrConflict) {
			outcome = "conflict"
		} else {
			outcome = "error"
		}
	}
	s.events.RecordAuthEvent(event, outcome)
}
