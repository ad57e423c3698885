package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrLockNotAcquired = errors.New("staff lock not acquired")

	errLockBackend = errors.New("lock backend unavailable")
)

const retryDelay = 25 * time.Millisecond

// Locker is used by the appointment service to serialize writes per staff member
type Locker interface {
	WithStaffLock(ctx context.Context, staffID int64, fn func(ctx context.Context) error) error
}

type redisStaffLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	log    *zap.Logger
}

// NewRedisStaffLocker creates a locker that uses a per staff Redis key.
// A busy key is retried for up to wait before giving up. When Redis cannot
// be reached fn still runs; writers are then serialized by the Postgres
// advisory lock and the exclusion constraint alone.
func NewRedisStaffLocker(client *redis.Client, ttl, wait time.Duration, log *zap.Logger) Locker {
	return &redisStaffLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
		log:    log,
	}
}

func StaffLockKey(staffID int64) string {
	return fmt.Sprintf("lock:staff:%d", staffID)
}

func (l *redisStaffLocker) WithStaffLock(ctx context.Context, staffID int64, fn func(ctx context.Context) error) error {
	key := StaffLockKey(staffID)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		if !errors.Is(err, errLockBackend) {
			return err
		}
		l.log.Warn("redis unavailable, running without staff lock",
			zap.Int64("staff_id", staffID),
			zap.Error(err),
		)
		return l.run(ctx, fn)
	}

	defer func() {
		// the caller's ctx may already be done; release must still run
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = l.release(releaseCtx, key, token)
	}()

	return l.run(ctx, fn)
}

func (l *redisStaffLocker) run(ctx context.Context, fn func(ctx context.Context) error) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()
	return fn(ctxWithTimeout)
}

func (l *redisStaffLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("acquire staff lock: %w: %w", errLockBackend, err)
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisStaffLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release staff lock: %w", err)
	}
	return nil
}

// LocalLocker serializes per staff member inside one process. It backs tests
// and the simulator when no Redis is configured.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[int64]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[int64]chan struct{})}
}

func (l *LocalLocker) WithStaffLock(ctx context.Context, staffID int64, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	ch, ok := l.locks[staffID]
	if !ok {
		ch = make(chan struct{}, 1)
		ch <- struct{}{}
		l.locks[staffID] = ch
	}
	l.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
	}
	defer func() { ch <- struct{}{} }()

	return fn(ctx)
}
