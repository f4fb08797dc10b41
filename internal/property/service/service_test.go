package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realhub/internal/authz"
	"realhub/internal/events"
	"realhub/internal/identity"
	"realhub/internal/property/models"
	"realhub/internal/property/store"
	"realhub/internal/statemachine"
	id "realhub/pkg/domain"
	dErrors "realhub/pkg/domain-errors"
)

type recordingCascade struct {
	deleted []id.PropertyID
}

func (c *recordingCascade) PropertyDeleted(_ context.Context, propertyID id.PropertyID) error {
	c.deleted = append(c.deleted, propertyID)
	return nil
}

type fixture struct {
	svc     *Service
	sink    *events.MemorySink
	cascade *recordingCascade

	owner     identity.Actor
	inspector identity.Actor
	buyer     identity.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sink:      events.NewMemorySink(),
		cascade:   &recordingCascade{},
		owner:     identity.Actor{ID: id.UserID(uuid.New()), Role: identity.RolePropertyOwner, Verified: true},
		inspector: identity.Actor{ID: id.UserID(uuid.New()), Role: identity.RoleGovernment, Verified: true},
		buyer:     identity.Actor{ID: id.UserID(uuid.New()), Role: identity.RoleBuyerRenter, Verified: true},
	}
	authzEngine := authz.NewEngine()
	f.svc = New(
		store.NewInMemory(),
		authzEngine,
		statemachine.NewEngine(authzEngine, statemachine.NewInProcessLocker()),
		f.sink,
		WithCascades(f.cascade),
	)
	return f
}

func (f *fixture) listing(t *testing.T) *models.Property {
	t.Helper()
	property, err := f.svc.Create(context.Background(), f.owner, CreateInput{
		Title:        "Three-bedroom duplex",
		Price:        decimal.NewFromInt(450000),
		PropertyType: models.TypeHouse,
		ListingType:  models.ListingForSale,
		City:         "Lagos",
		Bedrooms:     3,
		Bathrooms:    2,
	})
	require.NoError(t, err)
	return property
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("verified owner lists a pending property", func(t *testing.T) {
		f := newFixture(t)
		property := f.listing(t)
		assert.Equal(t, statemachine.PropertyPending, property.Status)
		assert.True(t, property.Active)
		assert.False(t, property.IsPubliclyVisible())
		assert.Len(t, f.sink.Named("property.created"), 1)
	})

	t.Run("buyers cannot list", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Create(ctx, f.buyer, CreateInput{
			Title: "x", Price: decimal.NewFromInt(1),
			PropertyType: models.TypeHouse, ListingType: models.ListingForSale,
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("unverified owners cannot list", func(t *testing.T) {
		f := newFixture(t)
		unverified := identity.Actor{ID: id.UserID(uuid.New()), Role: identity.RolePropertyOwner}
		_, err := f.svc.Create(ctx, unverified, CreateInput{
			Title: "x", Price: decimal.NewFromInt(1),
			PropertyType: models.TypeHouse, ListingType: models.ListingForSale,
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("non-positive price rejected", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Create(ctx, f.owner, CreateInput{
			Title: "x", Price: decimal.Zero,
			PropertyType: models.TypeHouse, ListingType: models.ListingForSale,
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestVisibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	property := f.listing(t)

	t.Run("pending listing is invisible to the public", func(t *testing.T) {
		_, err := f.svc.Get(ctx, f.buyer, property.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

		_, err = f.svc.Get(ctx, identity.Anonymous(), property.ID)
		require.Error(t, err)
	})

	t.Run("owner and inspector see it regardless", func(t *testing.T) {
		_, err := f.svc.Get(ctx, f.owner, property.ID)
		assert.NoError(t, err)
		_, err = f.svc.Get(ctx, f.inspector, property.ID)
		assert.NoError(t, err)
	})

	t.Run("verification opens it to everyone", func(t *testing.T) {
		_, err := f.svc.Verify(ctx, f.inspector, property.ID)
		require.NoError(t, err)

		got, err := f.svc.Get(ctx, identity.Anonymous(), property.ID)
		require.NoError(t, err)
		assert.True(t, got.IsPubliclyVisible())
	})

	t.Run("deactivation hides it again without touching status", func(t *testing.T) {
		inactive := false
		updated, err := f.svc.Update(ctx, f.owner, property.ID, UpdateInput{Active: &inactive})
		require.NoError(t, err)
		assert.Equal(t, statemachine.PropertyVerified, updated.Status)

		_, err = f.svc.Get(ctx, f.buyer, property.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestReviewFlow(t *testing.T) {
	ctx := context.Background()

	t.Run("owner cannot verify their own listing", func(t *testing.T) {
		f := newFixture(t)
		property := f.listing(t)
		_, err := f.svc.Verify(ctx, f.owner, property.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("rejection requires a reason", func(t *testing.T) {
		f := newFixture(t)
		property := f.listing(t)
		_, err := f.svc.Reject(ctx, f.inspector, property.ID, "")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

		rejected, err := f.svc.Reject(ctx, f.inspector, property.ID, "no title deed")
		require.NoError(t, err)
		assert.Equal(t, statemachine.PropertyRejected, rejected.Status)
		assert.Equal(t, "no title deed", rejected.RejectionReason)
	})

	t.Run("rejected listing can reopen and be verified", func(t *testing.T) {
		f := newFixture(t)
		property := f.listing(t)
		_, err := f.svc.Reject(ctx, f.inspector, property.ID, "no title deed")
		require.NoError(t, err)

		reopened, err := f.svc.Reopen(ctx, f.inspector, property.ID)
		require.NoError(t, err)
		assert.Equal(t, statemachine.PropertyPending, reopened.Status)
		assert.Empty(t, reopened.RejectionReason)

		_, err = f.svc.Verify(ctx, f.inspector, property.ID)
		assert.NoError(t, err)
	})

	t.Run("verifying twice is an invalid transition", func(t *testing.T) {
		f := newFixture(t)
		property := f.listing(t)
		_, err := f.svc.Verify(ctx, f.inspector, property.ID)
		require.NoError(t, err)

		_, err = f.svc.Verify(ctx, f.inspector, property.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	t.Run("pending queue is inspector-only", func(t *testing.T) {
		f := newFixture(t)
		f.listing(t)
		queue, err := f.svc.PendingVerification(ctx, f.inspector)
		require.NoError(t, err)
		assert.Len(t, queue, 1)

		_, err = f.svc.PendingVerification(ctx, f.owner)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	property := f.listing(t)

	t.Run("owner edits fields without touching status", func(t *testing.T) {
		price := decimal.NewFromInt(475000)
		title := "Renovated three-bedroom duplex"
		updated, err := f.svc.Update(ctx, f.owner, property.ID, UpdateInput{
			Title: &title,
			Price: &price,
		})
		require.NoError(t, err)
		assert.Equal(t, "Renovated three-bedroom duplex", updated.Title)
		assert.True(t, updated.Price.Equal(price))
		assert.Equal(t, statemachine.PropertyPending, updated.Status)
	})

	t.Run("non-owner cannot edit", func(t *testing.T) {
		title := "hijacked"
		_, err := f.svc.Update(ctx, f.inspector, property.ID, UpdateInput{Title: &title})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("negative price rejected", func(t *testing.T) {
		price := decimal.NewFromInt(-5)
		_, err := f.svc.Update(ctx, f.owner, property.ID, UpdateInput{Price: &price})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cheap := f.listing(t)
	_, err := f.svc.Verify(ctx, f.inspector, cheap.ID)
	require.NoError(t, err)

	expensive, err := f.svc.Create(ctx, f.owner, CreateInput{
		Title:        "Penthouse",
		Price:        decimal.NewFromInt(2000000),
		PropertyType: models.TypeApartment,
		ListingType:  models.ListingForSale,
		City:         "Abuja",
		Bedrooms:     5,
	})
	require.NoError(t, err)
	_, err = f.svc.Verify(ctx, f.inspector, expensive.ID)
	require.NoError(t, err)

	t.Run("price ceiling filters", func(t *testing.T) {
		max := decimal.NewFromInt(1000000)
		results, err := f.svc.Search(ctx, identity.Anonymous(), store.Filter{MaxPrice: &max})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, cheap.ID, results[0].ID)
	})

	t.Run("bedrooms floor filters", func(t *testing.T) {
		results, err := f.svc.Search(ctx, identity.Anonymous(), store.Filter{MinBedrooms: 4})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, expensive.ID, results[0].ID)
	})

	t.Run("location match", func(t *testing.T) {
		results, err := f.svc.Search(ctx, identity.Anonymous(), store.Filter{Location: "abuja"})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, expensive.ID, results[0].ID)
	})

	t.Run("owners see their pending rows in listings", func(t *testing.T) {
		pending, err := f.svc.Create(ctx, f.owner, CreateInput{
			Title: "Unreviewed", Price: decimal.NewFromInt(100),
			PropertyType: models.TypeLand, ListingType: models.ListingForSale,
		})
		require.NoError(t, err)

		mine, err := f.svc.MyProperties(ctx, f.owner)
		require.NoError(t, err)
		assert.Len(t, mine, 3)

		public, err := f.svc.List(ctx, identity.Anonymous(), store.Filter{})
		require.NoError(t, err)
		assert.Len(t, public, 2)
		for _, p := range public {
			assert.NotEqual(t, pending.ID, p.ID)
		}
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("owner delete cascades", func(t *testing.T) {
		f := newFixture(t)
		property := f.listing(t)

		require.NoError(t, f.svc.Delete(ctx, f.owner, property.ID))
		assert.Equal(t, []id.PropertyID{property.ID}, f.cascade.deleted)
		assert.Len(t, f.sink.Named("property.deleted"), 1)

		_, err := f.svc.Get(ctx, f.owner, property.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("stranger cannot delete and cannot probe", func(t *testing.T) {
		f := newFixture(t)
		property := f.listing(t)

		err := f.svc.Delete(ctx, f.buyer, property.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
		assert.Empty(t, f.cascade.deleted)
	})
}
