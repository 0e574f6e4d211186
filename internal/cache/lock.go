package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/devflowinc/trieve-sub001/internal/errs"
)

// releaseScript deletes the lock key only if it still holds the token
// this process set, so a lock that expired and was re-acquired by
// another worker is never torn down out from under it.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// GroupLock is a held per-group advisory lock (spec §5): one Redis `SET
// NX PX` key per group, grounded on the teacher's Redis client wrapper
// but built directly against go-redis/v9, matching the rest of this
// module's departure from the teacher's private cache abstraction.
type GroupLock struct {
	client *redis.Client
	key    string
	token  string
}

func groupLockKey(groupID uuid.UUID) string {
	return "grouptag:lock:" + groupID.String()
}

// AcquireGroupLock tries to take the advisory lock for groupID, returning
// ok=false without error if another worker already holds it (spec §4.J:
// only one propagator run should walk a given group's member pages at a
// time).
func AcquireGroupLock(ctx context.Context, client *redis.Client, groupID uuid.UUID, ttl time.Duration) (*GroupLock, bool, error) {
	token := uuid.New().String()
	key := groupLockKey(groupID)
	ok, err := client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, errs.Transient(errs.CodeQueueIO, "failed to acquire group lock", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &GroupLock{client: client, key: key, token: token}, true, nil
}

// Release drops the lock if this process still owns it.
func (l *GroupLock) Release(ctx context.Context) error {
	if err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Err(); err != nil {
		return errs.Transient(errs.CodeQueueIO, "failed to release group lock", err)
	}
	return nil
}
