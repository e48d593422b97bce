package rbac

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"
)

// Service resolves effective permissions for principals.
type Service struct {
	store    Store
	resolver *Resolver
	inflight singleflight.Group
}

// NewService constructs a Service.
func NewService(store Store, resolver *Resolver) *Service {
	if resolver == nil {
		resolver = NewDefaultResolver()
	}
	return &Service{store: store, resolver: resolver}
}

// Resolver exposes the permission resolver.
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// grantLoadTimeout bounds a shared grant load, which outlives the
// cancellation of whichever request started it.
const grantLoadTimeout = 5 * time.Second

// EffectivePermissions reads the user's grant from the store and expands it.
// Concurrent calls for the same user share one store round-trip; nothing is
// cached past the call. Each caller waits on its own ctx, so one cancelled
// request does not fail the others.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) (Grant, Set, error) {
	ch := s.inflight.DoChan(strconv.FormatInt(userID, 10), func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grantLoadTimeout)
		defer cancel()
		return s.store.GrantForUser(loadCtx, userID)
	})
	select {
	case <-ctx.Done():
		return Grant{}, nil, fmt.Errorf("rbac: load grant: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return Grant{}, nil, fmt.Errorf("rbac: load grant: %w", res.Err)
		}
		grant := res.Val.(Grant)
		return grant, s.resolver.Expand(grant.Permissions), nil
	}
}

// Allowed reports whether the user may perform an operation guarded by any
// of required.
func (s *Service) Allowed(ctx context.Context, userID int64, required ...string) (bool, error) {
	grant, effective, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return s.resolver.Authorize(grant.Role, effective, required), nil
}
