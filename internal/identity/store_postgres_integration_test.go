//go:build integration

package identity_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"realhub/internal/identity"
	id "realhub/pkg/domain"
	"realhub/pkg/platform/sentinel"
	"realhub/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *identity.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetPostgres(s.T())
	s.Require().NoError(s.postgres.ApplySchema(context.Background(), identity.Schema()))
	s.store = identity.NewPostgresStore(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "users"))
}

func newTestUser(s *PostgresStoreSuite, email string) *identity.User {
	user, err := identity.NewUser(id.UserID(uuid.New()), email, "Test User", identity.RoleBuyerRenter, time.Now().UTC())
	s.Require().NoError(err)
	return user
}

// TestConcurrentEmailUniqueness verifies that concurrent registrations with
// the same email produce exactly one account.
func (s *PostgresStoreSuite) TestConcurrentEmailUniqueness() {
	ctx := context.Background()
	email := "race-" + uuid.NewString() + "@example.com"
	const goroutines = 50

	var wg sync.WaitGroup
	var successCount atomic.Int32
	var conflictCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.CreateIfEmailAvailable(ctx, newTestUser(s, email))
			if err == nil {
				successCount.Add(1)
			} else if errors.Is(err, sentinel.ErrConflict) {
				conflictCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one create should succeed")
	s.Equal(int32(goroutines-1), conflictCount.Load(), "all others should conflict")

	found, err := s.store.FindByEmail(ctx, email)
	s.Require().NoError(err)
	s.Equal(email, found.Email)
}

func (s *PostgresStoreSuite) TestEmailLookupIsCaseInsensitive() {
	ctx := context.Background()
	user := newTestUser(s, "Mixed.Case@Example.com")
	s.Require().NoError(s.store.CreateIfEmailAvailable(ctx, user))

	found, err := s.store.FindByEmail(ctx, "mixed.case@example.com")
	s.Require().NoError(err)
	s.Equal(user.ID, found.ID)

	dup := newTestUser(s, "MIXED.CASE@EXAMPLE.COM")
	s.ErrorIs(s.store.CreateIfEmailAvailable(ctx, dup), sentinel.ErrConflict)
}

// TestStaleUpdateLoses verifies the optimistic concurrency check: the second
// writer working from the same snapshot gets ErrStaleState.
func (s *PostgresStoreSuite) TestStaleUpdateLoses() {
	ctx := context.Background()
	user := newTestUser(s, "cas@example.com")
	s.Require().NoError(s.store.CreateIfEmailAvailable(ctx, user))

	first, err := s.store.FindByID(ctx, user.ID)
	s.Require().NoError(err)
	second, err := s.store.FindByID(ctx, user.ID)
	s.Require().NoError(err)

	first.FullName = "First Writer"
	s.Require().NoError(s.store.Update(ctx, first))

	second.FullName = "Second Writer"
	s.ErrorIs(s.store.Update(ctx, second), sentinel.ErrStaleState)

	final, err := s.store.FindByID(ctx, user.ID)
	s.Require().NoError(err)
	s.Equal("First Writer", final.FullName)
}

func (s *PostgresStoreSuite) TestRoundTripPreservesProfile() {
	ctx := context.Background()
	user := newTestUser(s, "profile@example.com")
	user.PhoneNumber = "+234 800 000 0000"
	user.Address = "12 Marina Road"
	user.IDType = "passport"
	user.IDNumber = "P1234567"
	s.Require().NoError(user.SetPassword("long enough pass"))
	s.Require().NoError(s.store.CreateIfEmailAvailable(ctx, user))

	found, err := s.store.FindByID(ctx, user.ID)
	s.Require().NoError(err)
	s.Equal(user.PhoneNumber, found.PhoneNumber)
	s.Equal(user.Address, found.Address)
	s.Equal(user.IDType, found.IDType)
	s.True(found.CheckPassword("long enough pass"))
	s.False(found.CheckPassword("wrong password"))
}

func (s *PostgresStoreSuite) TestFindMissingUser() {
	_, err := s.store.FindByID(context.Background(), id.UserID(uuid.New()))
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.FindByEmail(context.Background(), "nobody@example.com")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
