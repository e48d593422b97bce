package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nusapos/nusapos/internal/auth"
)

func issueFor(t *testing.T, f *fixture, user auth.User) auth.TokenPair {
	t.Helper()
	pair, err := f.registry.Issue(context.Background(), user, auth.ClientMetadata{IP: "10.0.0.1", UserAgent: "pos-terminal"})
	require.NoError(t, err)
	return pair
}

func TestRotateIsSingleUse(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, "alice", "alice@example.com", "correct-horse", "CASHIER")
	pair := issueFor(t, f, user)

	session, err := f.registry.Rotate(context.Background(), pair.RefreshToken, auth.ClientMetadata{})
	require.NoError(t, err)
	require.Equal(t, user.ID, session.User.ID)
	require.NotEqual(t, pair.RefreshToken, session.Tokens.RefreshToken)

	_, err = f.registry.Rotate(context.Background(), pair.RefreshToken, auth.ClientMetadata{})
	require.ErrorIs(t, err, auth.ErrTokenNotRecognized)

	_, err = f.registry.Rotate(context.Background(), session.Tokens.RefreshToken, auth.ClientMetadata{})
	require.NoError(t, err)
	require.Equal(t, 1, f.repo.activeCount(user.ID))
}

func TestRotateStoresOnlyHashes(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, "", "bob@example.com", "correct-horse", "CASHIER")
	pair := issueFor(t, f, user)

	f.repo.update(func(rec *auth.RefreshTokenRecord) {
		require.NotEqual(t, pair.RefreshToken, rec.TokenHash)
		require.Equal(t, pair.RefreshID, rec.Fingerprint)
		require.Equal(t, "10.0.0.1", rec.IP)
	})
}

func TestRotateConcurrentlyYieldsOneWinner(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, "alice", "alice@example.com", "correct-horse", "CASHIER")
	pair := issueFor(t, f, user)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
	)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.registry.Rotate(context.Background(), pair.RefreshToken, auth.ClientMetadata{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, auth.ErrTokenNotRecognized):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, 1, successes)
	require.Equal(t, attempts-1, rejected)
	require.Equal(t, 1, f.repo.activeCount(user.ID))
}

func TestRotateEnforcesIdleTimeout(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, "alice", "alice@example.com", "correct-horse", "CASHIER")

	pair := issueFor(t, f, user)
	f.clock.Advance(59 * time.Minute)
	session, err := f.registry.Rotate(context.Background(), pair.RefreshToken, auth.ClientMetadata{})
	require.NoError(t, err)

	f.clock.Advance(61 * time.Minute)
	_, err = f.registry.Rotate(context.Background(), session.Tokens.RefreshToken, auth.ClientMetadata{})
	require.ErrorIs(t, err, auth.ErrSessionIdleTimeout)
}

func TestRotateRejectsExpiredRecord(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, "alice", "alice@example.com", "correct-horse", "CASHIER")
	pair := issueFor(t, f, user)

	expired := f.clock.Now().Add(-time.Second)
	f.repo.update(func(rec *auth.RefreshTokenRecord) { rec.ExpiresAt = expired })

	_, err := f.registry.Rotate(context.Background(), pair.RefreshToken, auth.ClientMetadata{})
	require.ErrorIs(t, err, auth.ErrRefreshExpired)
}

func TestRotateRejectsInvalidToken(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, "alice", "alice@example.com", "correct-horse", "CASHIER")
	pair := issueFor(t, f, user)

	_, err := f.registry.Rotate(context.Background(), "not-a-token", auth.ClientMetadata{})
	require.ErrorIs(t, err, auth.ErrInvalidRefreshToken)

	_, err = f.registry.Rotate(context.Background(), pair.AccessToken, auth.ClientMetadata{})
	require.ErrorIs(t, err, auth.ErrInvalidRefreshToken)

	f.clock.Advance(8 * 24 * time.Hour)
	_, err = f.registry.Rotate(context.Background(), pair.RefreshToken, auth.ClientMetadata{})
	require.ErrorIs(t, err, auth.ErrInvalidRefreshToken)
	require.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestRotateRejectsSignedButUnrecordedToken(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, "alice", "alice@example.com", "correct-horse", "CASHIER")

	pair, err := f.issuer.Issue(user)
	require.NoError(t, err)

	_, err = f.registry.Rotate(context.Background(), pair.RefreshToken, auth.ClientMetadata{})
	require.ErrorIs(t, err, auth.ErrTokenNotRecognized)
}

func TestRotateMatchesRecordsWithoutFingerprint(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, "alice", "alice@example.com", "correct-horse", "CASHIER")
	pair := issueFor(t, f, user)
	f.repo.update(func(rec *auth.RefreshTokenRecord) { rec.Fingerprint = "" })

	_, err := f.registry.Rotate(context.Background(), pair.RefreshToken, auth.ClientMetadata{})
	require.NoError(t, err)
}

func TestRotateRefusesDisabledUser(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, "alice", "alice@example.com", "correct-horse", "CASHIER")
	pair := issueFor(t, f, user)
	f.repo.setAllowLogin(user.ID, false)

	_, err := f.registry.Rotate(context.Background(), pair.RefreshToken, auth.ClientMetadata{})
	require.ErrorIs(t, err, auth.ErrLoginDisabled)
}

func TestRevokeIsBestEffort(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, "alice", "alice@example.com", "correct-horse", "CASHIER")
	pair := issueFor(t, f, user)

	f.registry.Revoke(context.Background(), "garbage")
	f.registry.Revoke(context.Background(), pair.RefreshToken)
	f.registry.Revoke(context.Background(), pair.RefreshToken)
	require.Equal(t, 0, f.repo.activeCount(user.ID))

	_, err := f.registry.Rotate(context.Background(), pair.RefreshToken, auth.ClientMetadata{})
	require.ErrorIs(t, err, auth.ErrTokenNotRecognized)
}

func TestRevokeLeavesOtherSessionsAlive(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, "alice", "alice@example.com", "correct-horse", "CASHIER")
	till := issueFor(t, f, user)
	backOffice := issueFor(t, f, user)

	f.registry.Revoke(context.Background(), till.RefreshToken)

	_, err := f.registry.Rotate(context.Background(), backOffice.RefreshToken, auth.ClientMetadata{})
	require.NoError(t, err)
}
