//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"realhub/internal/authz"
	"realhub/internal/property/models"
	"realhub/internal/property/store"
	id "realhub/pkg/domain"
	"realhub/pkg/platform/sentinel"
	"realhub/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetPostgres(s.T())
	s.Require().NoError(s.postgres.ApplySchema(context.Background(), store.Schema()))
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "properties"))
}

func (s *PostgresStoreSuite) newProperty(ownerID id.UserID, price int64, verified bool) *models.Property {
	property, err := models.NewProperty(
		id.PropertyID(uuid.New()), ownerID, "Listing "+uuid.NewString()[:8],
		decimal.NewFromInt(price), models.TypeHouse, models.ListingForSale,
		time.Now().UTC(),
	)
	s.Require().NoError(err)
	if verified {
		property.ApplyVerification(id.UserID(uuid.New()), time.Now().UTC())
	}
	s.Require().NoError(s.store.Create(context.Background(), property))
	return property
}

func (s *PostgresStoreSuite) TestPublicScopeHidesUnverifiedRows() {
	ctx := context.Background()
	owner := id.UserID(uuid.New())
	public := s.newProperty(owner, 100000, true)
	s.newProperty(owner, 200000, false)

	hidden := s.newProperty(owner, 300000, true)
	loaded, err := s.store.FindByID(ctx, hidden.ID)
	s.Require().NoError(err)
	loaded.Active = false
	s.Require().NoError(s.store.Update(ctx, loaded))

	results, err := s.store.List(ctx, authz.Scope{PublicOnly: true}, store.Filter{})
	s.Require().NoError(err)
	s.Require().Len(results, 1)
	s.Equal(public.ID, results[0].ID)
}

func (s *PostgresStoreSuite) TestOwnerScopeSeesOwnRowsPlusPublic() {
	ctx := context.Background()
	owner := id.UserID(uuid.New())
	stranger := id.UserID(uuid.New())

	mine := s.newProperty(owner, 100000, false)
	theirsPublic := s.newProperty(stranger, 200000, true)
	s.newProperty(stranger, 300000, false)

	results, err := s.store.List(ctx, authz.Scope{UserID: owner, PublicOnly: true}, store.Filter{})
	s.Require().NoError(err)
	s.Len(results, 2)

	ids := map[id.PropertyID]bool{}
	for _, p := range results {
		ids[p.ID] = true
	}
	s.True(ids[mine.ID])
	s.True(ids[theirsPublic.ID])
}

func (s *PostgresStoreSuite) TestFilters() {
	ctx := context.Background()
	owner := id.UserID(uuid.New())
	cheap := s.newProperty(owner, 90000, true)
	expensive := s.newProperty(owner, 750000, true)

	loaded, err := s.store.FindByID(ctx, expensive.ID)
	s.Require().NoError(err)
	loaded.City = "Abuja"
	loaded.Bedrooms = 5
	s.Require().NoError(s.store.Update(ctx, loaded))

	max := decimal.NewFromInt(100000)
	results, err := s.store.List(ctx, authz.Scope{All: true}, store.Filter{MaxPrice: &max})
	s.Require().NoError(err)
	s.Require().Len(results, 1)
	s.Equal(cheap.ID, results[0].ID)

	results, err = s.store.List(ctx, authz.Scope{All: true}, store.Filter{MinBedrooms: 3})
	s.Require().NoError(err)
	s.Require().Len(results, 1)
	s.Equal(expensive.ID, results[0].ID)

	results, err = s.store.List(ctx, authz.Scope{All: true}, store.Filter{Location: "abuja"})
	s.Require().NoError(err)
	s.Require().Len(results, 1)
	s.Equal(expensive.ID, results[0].ID)
}

func (s *PostgresStoreSuite) TestAmenitiesAndPriceRoundTrip() {
	ctx := context.Background()
	property := s.newProperty(id.UserID(uuid.New()), 100000, false)

	loaded, err := s.store.FindByID(ctx, property.ID)
	s.Require().NoError(err)
	loaded.Amenities = []string{"parking", "borehole", "solar"}
	loaded.SizeSqm = decimal.RequireFromString("245.50")
	s.Require().NoError(s.store.Update(ctx, loaded))

	found, err := s.store.FindByID(ctx, property.ID)
	s.Require().NoError(err)
	s.Equal([]string{"parking", "borehole", "solar"}, found.Amenities)
	s.True(found.SizeSqm.Equal(decimal.RequireFromString("245.50")))
	s.True(found.Price.Equal(decimal.NewFromInt(100000)))
}

func (s *PostgresStoreSuite) TestStaleUpdateLoses() {
	ctx := context.Background()
	property := s.newProperty(id.UserID(uuid.New()), 100000, false)

	first, err := s.store.FindByID(ctx, property.ID)
	s.Require().NoError(err)
	second, err := s.store.FindByID(ctx, property.ID)
	s.Require().NoError(err)

	first.Title = "First Writer"
	s.Require().NoError(s.store.Update(ctx, first))

	second.Title = "Second Writer"
	s.ErrorIs(s.store.Update(ctx, second), sentinel.ErrStaleState)
}

func (s *PostgresStoreSuite) TestDelete() {
	ctx := context.Background()
	property := s.newProperty(id.UserID(uuid.New()), 100000, false)

	s.Require().NoError(s.store.Delete(ctx, property.ID))
	_, err := s.store.FindByID(ctx, property.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.ErrorIs(s.store.Delete(ctx, property.ID), sentinel.ErrNotFound)
}
