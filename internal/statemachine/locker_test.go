package statemachine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "realhub/pkg/domain"
	"realhub/pkg/platform/sentinel"
)

func TestInProcessLocker_SerializesSameEntity(t *testing.T) {
	locker := NewInProcessLocker()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, id.KindInvoice, "inv-1", time.Second)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, id.KindInvoice, "inv-1", 10*time.Millisecond)
	assert.ErrorIs(t, err, sentinel.ErrLockTimeout)

	release()
	release2, err := locker.Acquire(ctx, id.KindInvoice, "inv-1", 10*time.Millisecond)
	require.NoError(t, err)
	release2()
}

func TestInProcessLocker_KindsAreIndependent(t *testing.T) {
	locker := NewInProcessLocker()
	ctx := context.Background()

	release1, err := locker.Acquire(ctx, id.KindInvoice, "x", time.Second)
	require.NoError(t, err)
	defer release1()

	release2, err := locker.Acquire(ctx, id.KindPayment, "x", 10*time.Millisecond)
	require.NoError(t, err)
	release2()
}

func TestInProcessLocker_CancelledContextAborts(t *testing.T) {
	locker := NewInProcessLocker()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, id.KindLead, "lead-1", time.Second)
	require.NoError(t, err)
	defer release()

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = locker.Acquire(cancelled, id.KindLead, "lead-1", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInProcessLocker_ConcurrentWaiters(t *testing.T) {
	locker := NewInProcessLocker()
	ctx := context.Background()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			release, err := locker.Acquire(ctx, id.KindProperty, "prop", 5*time.Second)
			require.NoError(t, err)
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			release()
		}(i)
	}
	wg.Wait()
	assert.Len(t, order, 8)
}
