//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	platformredis "realhub/internal/platform/redis"
	id "realhub/pkg/domain"
	"realhub/pkg/platform/sentinel"
	"realhub/pkg/testutil/containers"
)

type RedisLockerSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	locker *platformredis.Locker
}

func TestRedisLockerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisLockerSuite))
}

func (s *RedisLockerSuite) SetupSuite() {
	s.redis = containers.GetRedis(s.T())
	s.locker = platformredis.NewLocker(&platformredis.Client{Client: s.redis.Client})
}

func (s *RedisLockerSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisLockerSuite) TestSerializesSameEntity() {
	ctx := context.Background()

	release, err := s.locker.Acquire(ctx, id.KindPayment, "pay-1", time.Second)
	s.Require().NoError(err)

	_, err = s.locker.Acquire(ctx, id.KindPayment, "pay-1", 100*time.Millisecond)
	s.ErrorIs(err, sentinel.ErrLockTimeout)

	release()
	release2, err := s.locker.Acquire(ctx, id.KindPayment, "pay-1", 100*time.Millisecond)
	s.Require().NoError(err)
	release2()
}

func (s *RedisLockerSuite) TestKindsAreIndependent() {
	ctx := context.Background()

	release1, err := s.locker.Acquire(ctx, id.KindPayment, "x", time.Second)
	s.Require().NoError(err)
	defer release1()

	release2, err := s.locker.Acquire(ctx, id.KindInvoice, "x", 100*time.Millisecond)
	s.Require().NoError(err)
	release2()
}

func (s *RedisLockerSuite) TestWaiterAcquiresAfterRelease() {
	ctx := context.Background()

	release, err := s.locker.Acquire(ctx, id.KindProperty, "prop-1", time.Second)
	s.Require().NoError(err)

	acquired := make(chan error, 1)
	go func() {
		release2, err := s.locker.Acquire(ctx, id.KindProperty, "prop-1", 2*time.Second)
		if err == nil {
			release2()
		}
		acquired <- err
	}()

	time.Sleep(100 * time.Millisecond)
	release()

	select {
	case err := <-acquired:
		s.NoError(err)
	case <-time.After(3 * time.Second):
		s.Fail("waiter never acquired the lock")
	}
}

func (s *RedisLockerSuite) TestCancelledContextAborts() {
	ctx := context.Background()

	release, err := s.locker.Acquire(ctx, id.KindLead, "lead-1", time.Second)
	s.Require().NoError(err)
	defer release()

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.locker.Acquire(cancelled, id.KindLead, "lead-1", time.Second)
	s.ErrorIs(err, context.Canceled)
}

// TestReleaseIsOwnerScoped verifies a stale holder cannot delete a lock it no
// longer owns.
func (s *RedisLockerSuite) TestReleaseIsOwnerScoped() {
	ctx := context.Background()

	release1, err := s.locker.Acquire(ctx, id.KindKYC, "kyc-1", time.Second)
	s.Require().NoError(err)
	release1()

	release2, err := s.locker.Acquire(ctx, id.KindKYC, "kyc-1", time.Second)
	s.Require().NoError(err)
	defer release2()

	// The first holder's release ran already; running it again must not free
	// the second holder's lock.
	release1()
	_, err = s.locker.Acquire(ctx, id.KindKYC, "kyc-1", 100*time.Millisecond)
	s.ErrorIs(err, sentinel.ErrLockTimeout)
}
