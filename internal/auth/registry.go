package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nusapos/nusapos/internal/shared"
)

// RegistryConfig configures Registry.
type RegistryConfig struct {
	// IdleTimeout bounds the time between two uses of a refresh chain.
	IdleTimeout time.Duration
}

// Registry tracks issued refresh tokens and enforces single use on rotation.
type Registry struct {
	store       TxTokenStore
	issuer      *TokenIssuer
	hasher      Hasher
	idleTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewRegistry constructs a Registry. now may be nil.
func NewRegistry(store TxTokenStore, issuer *TokenIssuer, hasher Hasher, cfg RegistryConfig, logger *slog.Logger, now func() time.Time) *Registry {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Registry{
		store:       store,
		issuer:      issuer,
		hasher:      hasher,
		idleTimeout: cfg.IdleTimeout,
		logger:      logger,
		now:         now,
	}
}

// Issue signs a new pair for user and records its refresh token.
func (r *Registry) Issue(ctx context.Context, user User, meta ClientMetadata) (TokenPair, error) {
	pair, err := r.issuer.Issue(user)
	if err != nil {
		return TokenPair{}, err
	}
	if err := r.persist(ctx, r.store, user.ID, pair, meta); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// Rotate consumes raw and returns a new pair. Of any number of concurrent
// calls presenting the same token at most one succeeds.
func (r *Registry) Rotate(ctx context.Context, raw string, meta ClientMetadata) (Session, error) {
	claims, err := r.issuer.VerifyRefresh(raw)
	if err != nil {
		return Session{}, newError(KindInvalidRefreshToken, err)
	}
	userID, _ := claims.UserID()

	var session Session
	err = r.store.WithTx(ctx, func(ctx context.Context, store TokenStore) error {
		rec, err := r.match(ctx, store, userID, claims.ID, raw)
		if err != nil {
			return err
		}

		now := r.now()
		if !now.Before(rec.ExpiresAt) {
			return ErrRefreshExpired
		}
		if now.Sub(rec.LastUsedAt) > r.idleTimeout {
			return ErrSessionIdleTimeout
		}

		user, err := store.FindUserByID(ctx, userID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return ErrTokenNotRecognized
			}
			return fmt.Errorf("load user: %w", err)
		}
		if !user.LoginAllowed() {
			return ErrLoginDisabled
		}

		revoked, err := store.RevokeRefreshToken(ctx, rec.ID, now)
		if err != nil {
			return fmt.Errorf("revoke refresh token: %w", err)
		}
		if !revoked {
			return ErrTokenNotRecognized
		}

		pair, err := r.issuer.Issue(user)
		if err != nil {
			return err
		}
		if err := r.persist(ctx, store, user.ID, pair, meta); err != nil {
			return err
		}
		session = Session{Tokens: pair, User: user}
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	return session, nil
}

// Revoke invalidates raw. It never fails: unknown, malformed or already
// revoked tokens are ignored.
func (r *Registry) Revoke(ctx context.Context, raw string) {
	claims, err := r.issuer.VerifyRefresh(raw)
	if err != nil {
		r.logger.Debug("revoke ignored", slog.String("reason", string(KindOf(err))))
		return
	}
	userID, _ := claims.UserID()
	rec, err := r.match(ctx, r.store, userID, claims.ID, raw)
	if err != nil {
		r.logger.Debug("revoke ignored", slog.Any("error", err))
		return
	}
	if _, err := r.store.RevokeRefreshToken(ctx, rec.ID, r.now()); err != nil {
		r.logger.Warn("revoke refresh token", slog.Any("error", err))
	}
}

func (r *Registry) match(ctx context.Context, store TokenStore, userID int64, fingerprint, raw string) (RefreshTokenRecord, error) {
	candidates, err := store.ActiveRefreshTokens(ctx, userID, fingerprint)
	if err != nil {
		return RefreshTokenRecord{}, fmt.Errorf("list refresh tokens: %w", err)
	}
	for _, rec := range candidates {
		ok, err := r.hasher.Verify(raw, rec.TokenHash)
		if err != nil {
			r.logger.Warn("refresh token hash unreadable", slog.Int64("record_id", rec.ID), slog.Any("error", err))
			continue
		}
		if ok {
			return rec, nil
		}
	}
	return RefreshTokenRecord{}, ErrTokenNotRecognized
}

func (r *Registry) persist(ctx context.Context, store TokenStore, userID int64, pair TokenPair, meta ClientMetadata) error {
	hash, err := r.hasher.Hash(pair.RefreshToken)
	if err != nil {
		return fmt.Errorf("hash refresh token: %w", err)
	}
	rec := &RefreshTokenRecord{
		UserID:      userID,
		TokenHash:   hash,
		Fingerprint: pair.RefreshID,
		IP:          meta.IP,
		UserAgent:   meta.UserAgent,
		ExpiresAt:   pair.RefreshExpiresAt,
		LastUsedAt:  r.now(),
	}
	if err := store.CreateRefreshToken(ctx, rec); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}
