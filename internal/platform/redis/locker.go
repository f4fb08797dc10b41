package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	id "realhub/pkg/domain"
	"realhub/pkg/platform/sentinel"
)

// lockTTL caps how long a crashed holder can keep an entity locked.
const lockTTL = 10 * time.Second

// retryInterval is the poll interval while waiting for a contended lock.
const retryInterval = 25 * time.Millisecond

// releaseScript deletes the lock only if the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Locker serializes transitions across processes using SET NX with a TTL.
// Acquire polls until the wait bound elapses, then reports ErrLockTimeout.
type Locker struct {
	client *Client
}

func NewLocker(client *Client) *Locker {
	return &Locker{client: client}
}

func (l *Locker) Acquire(ctx context.Context, kind id.EntityKind, entityID string, wait time.Duration) (func(), error) {
	key := "realhub:lock:" + string(kind) + ":" + entityID
	owner := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := l.client.SetNX(ctx, key, owner, lockTTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			release := func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_, _ = releaseScript.Run(releaseCtx, l.client, []string{key}, owner).Result()
			}
			return release, nil
		}
		if time.Now().After(deadline) {
			return nil, sentinel.ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}
