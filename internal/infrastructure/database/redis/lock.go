package redis

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShortCut-Intelligence/pkg/errors"
)

var (
	ErrLockNotAcquired = errors.New(errors.ErrCodeConflict, "lock held by another owner")
	ErrLockNotHeld     = errors.New(errors.ErrCodeConflict, "lock not held by this owner")
)

// unlockScript releases the lock only when the caller still owns it.
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// extendScript refreshes the TTL only when the caller still owns the lock.
const extendScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`

// Mutex is a single-owner distributed lock.  The ingestion worker takes it
// before a corpus rebuild so two workers never bulk-write the indexes at the
// same time.
type Mutex struct {
	client *Client
	key    string
	value  string
	ttl    time.Duration
	log    logging.Logger
}

func NewMutex(client *Client, name string, ttl time.Duration, log logging.Logger) *Mutex {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Mutex{
		client: client,
		key:    client.Key("lock", name),
		value:  uuid.NewString(),
		ttl:    ttl,
		log:    log.Named("lock"),
	}
}

// TryLock attempts to take the lock without waiting.
func (m *Mutex) TryLock(ctx context.Context) (bool, error) {
	ok, err := m.client.Raw().SetNX(ctx, m.key, m.value, m.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCacheError, "lock acquire failed")
	}
	return ok, nil
}

// Unlock releases the lock if this mutex still owns it.
func (m *Mutex) Unlock(ctx context.Context) error {
	res, err := m.client.Raw().Eval(ctx, unlockScript, []string{m.key}, m.value).Result()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "lock release failed")
	}
	if n, ok := res.(int64); !ok || n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Extend refreshes the TTL for long-running holders.
func (m *Mutex) Extend(ctx context.Context) error {
	res, err := m.client.Raw().Eval(ctx, extendScript, []string{m.key}, m.value, m.ttl.Milliseconds()).Result()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "lock extend failed")
	}
	if n, ok := res.(int64); !ok || n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// TTL reports the remaining lifetime of the lock key.
func (m *Mutex) TTL(ctx context.Context) (time.Duration, error) {
	ttl, err := m.client.Raw().TTL(ctx, m.key).Result()
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeCacheError, "lock ttl failed")
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
