package runlock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"vodpipe/internal/services"
)

const redisKeyPrefix = "vodpipe:run:"

// Deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Extends the key's expiry only while it still carries our token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a Locker shared across processes.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis wraps client. A held lock is refreshed every ttl/3 so long runs
// keep it; a holder that dies stops refreshing and the lock expires after ttl.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Acquire claims videoID with SET NX and keeps it alive until released.
func (r *Redis) Acquire(ctx context.Context, videoID string) (Release, error) {
	key := redisKeyPrefix + videoID
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "runlock", "acquire", videoID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHeld, videoID)
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(key, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, r.client, []string{key}, token).Err()
		})
	}, nil
}

func (r *Redis) keepAlive(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := r.ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			kept, err := refreshScript.Run(ctx, r.client, []string{key}, token, r.ttl.Milliseconds()).Int()
			cancel()
			if err == nil && kept == 0 {
				// Expired or taken over; nothing left to refresh.
				return
			}
		}
	}
}

// Ping checks the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
