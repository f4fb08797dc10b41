package statemachine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realhub/internal/authz"
	"realhub/internal/identity"
	id "realhub/pkg/domain"
	dErrors "realhub/pkg/domain-errors"
	"realhub/pkg/platform/sentinel"
	"realhub/pkg/requestcontext"
)

func newTestEngine(opts ...Option) *Engine {
	return NewEngine(authz.NewEngine(), NewInProcessLocker(), opts...)
}

func govActor() identity.Actor {
	return identity.Actor{ID: id.UserID(uuid.New()), Role: identity.RoleGovernment, Verified: true}
}

func verifyTransition(entityID string, apply func(ctx context.Context, now time.Time) error) Transition {
	return Transition{
		Kind:      id.KindProperty,
		EntityID:  entityID,
		Action:    authz.ActionVerifyProperty,
		Current:   PropertyPending,
		Requested: PropertyVerified,
		Apply:     apply,
	}
}

func TestRun_AppliesWithPinnedClock(t *testing.T) {
	engine := newTestEngine()
	pinned := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), pinned)

	var appliedAt time.Time
	tr := verifyTransition("prop-1", func(_ context.Context, now time.Time) error {
		appliedAt = now
		return nil
	})

	require.NoError(t, engine.Run(ctx, govActor(), tr))
	assert.Equal(t, pinned, appliedAt)
}

func TestRun_RejectionOrder(t *testing.T) {
	engine := newTestEngine()
	ctx := context.Background()
	buyer := identity.Actor{ID: id.UserID(uuid.New()), Role: identity.RoleBuyerRenter}

	t.Run("lattice checked before authorization", func(t *testing.T) {
		// The actor could never verify, but the illegal edge must win.
		tr := verifyTransition("prop-1", nil)
		tr.Current = PropertyVerified
		tr.Requested = PropertyVerified

		err := engine.Run(ctx, buyer, tr)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	t.Run("authorization checked before payload validation", func(t *testing.T) {
		validateCalled := false
		tr := verifyTransition("prop-1", nil)
		tr.Validate = func() error {
			validateCalled = true
			return dErrors.New(dErrors.CodeValidation, "should not run")
		}

		err := engine.Run(ctx, buyer, tr)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
		assert.False(t, validateCalled)
	})

	t.Run("payload validation checked before apply", func(t *testing.T) {
		applied := false
		tr := verifyTransition("prop-1", func(context.Context, time.Time) error {
			applied = true
			return nil
		})
		tr.Validate = func() error {
			return dErrors.New(dErrors.CodeValidation, "missing rejection reason")
		}

		err := engine.Run(ctx, govActor(), tr)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		assert.False(t, applied)
	})
}

func TestRun_OwnerGatedTransition(t *testing.T) {
	engine := newTestEngine()
	ctx := context.Background()
	owner := identity.Actor{ID: id.UserID(uuid.New()), Role: identity.RolePropertyOwner, Verified: true}

	tr := Transition{
		Kind:      id.KindSubscription,
		EntityID:  "sub-1",
		Action:    authz.ActionCancelSubscription,
		Owner:     owner.ID,
		Current:   SubscriptionActive,
		Requested: SubscriptionCancelled,
		Apply:     func(context.Context, time.Time) error { return nil },
	}
	require.NoError(t, engine.Run(ctx, owner, tr))

	stranger := identity.Actor{ID: id.UserID(uuid.New()), Role: identity.RoleBuyerRenter, Verified: true}
	err := engine.Run(ctx, stranger, tr)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	assert.Contains(t, err.Error(), authz.ReasonNotOwner)
}

func TestRun_StaleApplyBecomesStaleState(t *testing.T) {
	engine := newTestEngine()

	tr := verifyTransition("prop-1", func(context.Context, time.Time) error {
		return sentinel.ErrStaleState
	})

	err := engine.Run(context.Background(), govActor(), tr)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStaleState))
}

func TestRun_ContendedEntityTimesOut(t *testing.T) {
	locker := NewInProcessLocker()
	engine := NewEngine(authz.NewEngine(), locker, WithLockWait(20*time.Millisecond))

	release, err := locker.Acquire(context.Background(), id.KindProperty, "prop-1", time.Second)
	require.NoError(t, err)
	defer release()

	tr := verifyTransition("prop-1", func(context.Context, time.Time) error { return nil })
	err = engine.Run(context.Background(), govActor(), tr)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeContention))
}

func TestRun_DistinctEntitiesDoNotContend(t *testing.T) {
	locker := NewInProcessLocker()
	engine := NewEngine(authz.NewEngine(), locker, WithLockWait(20*time.Millisecond))

	release, err := locker.Acquire(context.Background(), id.KindProperty, "prop-1", time.Second)
	require.NoError(t, err)
	defer release()

	tr := verifyTransition("prop-2", func(context.Context, time.Time) error { return nil })
	assert.NoError(t, engine.Run(context.Background(), govActor(), tr))
}
