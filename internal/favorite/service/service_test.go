package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realhub/internal/authz"
	"realhub/internal/events"
	"realhub/internal/favorite/store"
	"realhub/internal/identity"
	propertymodels "realhub/internal/property/models"
	propertystore "realhub/internal/property/store"
	id "realhub/pkg/domain"
	dErrors "realhub/pkg/domain-errors"
)

type fixture struct {
	svc        *Service
	properties *propertystore.InMemory
	sink       *events.MemorySink

	owner identity.Actor
	buyer identity.Actor
	admin identity.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		properties: propertystore.NewInMemory(),
		sink:       events.NewMemorySink(),
		owner:      identity.Actor{ID: id.UserID(uuid.New()), Role: identity.RolePropertyOwner, Verified: true},
		buyer:      identity.Actor{ID: id.UserID(uuid.New()), Role: identity.RoleBuyerRenter, Verified: true},
		admin:      identity.Actor{ID: id.UserID(uuid.New()), Role: identity.RoleAdmin, Verified: true},
	}
	f.svc = New(store.NewInMemory(), f.properties, authz.NewEngine(), f.sink)
	return f
}

func (f *fixture) listing(t *testing.T, public bool) id.PropertyID {
	t.Helper()
	property, err := propertymodels.NewProperty(
		id.PropertyID(uuid.New()), f.owner.ID, "Studio near the park",
		decimal.NewFromInt(850), propertymodels.TypeApartment, propertymodels.ListingForRent,
		time.Now().UTC(),
	)
	require.NoError(t, err)
	if public {
		property.ApplyVerification(f.admin.ID, time.Now().UTC())
	}
	require.NoError(t, f.properties.Create(context.Background(), property))
	return property.ID
}

func TestAdd(t *testing.T) {
	ctx := context.Background()

	t.Run("bookmarks a public listing", func(t *testing.T) {
		f := newFixture(t)
		propertyID := f.listing(t, true)

		favorite, err := f.svc.Add(ctx, f.buyer, propertyID)
		require.NoError(t, err)
		assert.Equal(t, f.buyer.ID, favorite.UserID)
		assert.Equal(t, propertyID, favorite.PropertyID)
		assert.Len(t, f.sink.Named("favorite.created"), 1)
	})

	t.Run("same property twice conflicts", func(t *testing.T) {
		f := newFixture(t)
		propertyID := f.listing(t, true)
		_, err := f.svc.Add(ctx, f.buyer, propertyID)
		require.NoError(t, err)

		_, err = f.svc.Add(ctx, f.buyer, propertyID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("hidden listing looks missing to strangers", func(t *testing.T) {
		f := newFixture(t)
		propertyID := f.listing(t, false)

		_, err := f.svc.Add(ctx, f.buyer, propertyID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("hidden listing tells its owner why", func(t *testing.T) {
		f := newFixture(t)
		propertyID := f.listing(t, false)

		_, err := f.svc.Add(ctx, f.owner, propertyID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = f.svc.Add(ctx, f.admin, propertyID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("anonymous actors are rejected", func(t *testing.T) {
		f := newFixture(t)
		propertyID := f.listing(t, true)

		_, err := f.svc.Add(ctx, identity.Anonymous(), propertyID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func TestRemove(t *testing.T) {
	ctx := context.Background()

	t.Run("owner removes their bookmark", func(t *testing.T) {
		f := newFixture(t)
		favorite, err := f.svc.Add(ctx, f.buyer, f.listing(t, true))
		require.NoError(t, err)

		require.NoError(t, f.svc.Remove(ctx, f.buyer, favorite.ID))
		assert.Len(t, f.sink.Named("favorite.removed"), 1)

		err = f.svc.Remove(ctx, f.buyer, favorite.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("someone else's bookmark looks missing", func(t *testing.T) {
		f := newFixture(t)
		favorite, err := f.svc.Add(ctx, f.buyer, f.listing(t, true))
		require.NoError(t, err)

		err = f.svc.Remove(ctx, f.owner, favorite.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("admin may remove any bookmark", func(t *testing.T) {
		f := newFixture(t)
		favorite, err := f.svc.Add(ctx, f.buyer, f.listing(t, true))
		require.NoError(t, err)

		assert.NoError(t, f.svc.Remove(ctx, f.admin, favorite.ID))
	})
}

func TestList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.listing(t, true)
	second := f.listing(t, true)

	_, err := f.svc.Add(ctx, f.buyer, first)
	require.NoError(t, err)
	_, err = f.svc.Add(ctx, f.buyer, second)
	require.NoError(t, err)
	_, err = f.svc.Add(ctx, f.admin, first)
	require.NoError(t, err)

	mine, err := f.svc.List(ctx, f.buyer)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	theirs, err := f.svc.List(ctx, f.admin)
	require.NoError(t, err)
	assert.Len(t, theirs, 1)
}

func TestPropertyDeleted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	propertyID := f.listing(t, true)
	kept := f.listing(t, true)

	_, err := f.svc.Add(ctx, f.buyer, propertyID)
	require.NoError(t, err)
	_, err = f.svc.Add(ctx, f.buyer, kept)
	require.NoError(t, err)

	require.NoError(t, f.svc.PropertyDeleted(ctx, propertyID))

	remaining, err := f.svc.List(ctx, f.buyer)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, kept, remaining[0].PropertyID)
}
