// Package runlock guarantees at most one pipeline run per video at a time.
//
// The memory backend covers a single process. The redis backend extends the
// guarantee across processes sharing an upload root, using SET NX with a TTL
// so a crashed holder cannot wedge a video forever.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"vodpipe/internal/config"
	"vodpipe/internal/services"
)

// ErrHeld reports that another run already holds the video.
var ErrHeld = errors.New("run already in progress")

// Release frees a held lock. It is safe to call more than once.
type Release func()

// Locker grants exclusive run rights per video ID.
type Locker interface {
	Acquire(ctx context.Context, videoID string) (Release, error)
	Close() error
}

// New builds the backend named by cfg.RunLock.Backend.
func New(ctx context.Context, cfg *config.Config) (Locker, error) {
	switch strings.ToLower(cfg.RunLock.Backend) {
	case "", "memory":
		return NewMemory(), nil
	case "redis":
		opts, err := redis.ParseURL(cfg.RunLock.RedisURL)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "runlock", "parse redis url", "", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, services.Wrap(services.ErrExternalTool, "runlock", "ping redis", opts.Addr, err)
		}
		return NewRedis(client, cfg.RunLockTTL()), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "runlock", "select backend", fmt.Sprintf("unknown backend %q", cfg.RunLock.Backend), nil)
	}
}

// Memory is an in-process Locker.
type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemory returns an empty in-process locker.
func NewMemory() *Memory {
	return &Memory{held: make(map[string]struct{})}
}

// Acquire claims videoID or returns ErrHeld.
func (m *Memory) Acquire(_ context.Context, videoID string) (Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[videoID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrHeld, videoID)
	}
	m.held[videoID] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, videoID)
			m.mu.Unlock()
		})
	}, nil
}

// Held reports whether videoID is currently claimed.
func (m *Memory) Held(videoID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[videoID]
	return ok
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
