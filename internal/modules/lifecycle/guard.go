// README: In-flight guard so a record is mutated by one submission at a time.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Guard serialises mutating operations per key. Acquire returns ErrInFlight
// when the key is already held.
type Guard interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

func guardKey(domain Domain, id string) string {
	return fmt.Sprintf("opsconsole:inflight:%s:%s", domain, id)
}

// LocalGuard is a process-local Guard.
type LocalGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{held: make(map[string]struct{})}
}

func (g *LocalGuard) Acquire(_ context.Context, key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.held[key]; ok {
		return nil, ErrInFlight
	}
	g.held[key] = struct{}{}
	return func() {
		g.mu.Lock()
		delete(g.held, key)
		g.mu.Unlock()
	}, nil
}

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisGuard shares the in-flight state between API replicas. The TTL bounds
// how long a crashed holder can block a record.
type RedisGuard struct {
	client *redis.Client
	script *redis.Script
	ttl    time.Duration
}

func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisGuard{client: client, script: redis.NewScript(releaseScript), ttl: ttl}
}

func (g *RedisGuard) Acquire(ctx context.Context, key string) (func(), error) {
	if key == "" {
		return nil, errors.New("guard key is empty")
	}
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: guard: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return nil, ErrInFlight
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = g.script.Run(ctx, g.client, []string{key}, token).Err()
	}, nil
}
