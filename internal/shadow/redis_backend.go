package shadow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	snapshotKeyPattern = "shadow:%s"
	themeKeyPattern    = "shadow:%s:theme"
)

// mergeScript updates fields of an existing snapshot hash and refreshes both TTLs.
// KEYS: hash, theme slot. ARGV: ttl in ms, theme (empty keeps the slot), then field/value pairs.
// Returns 0 without writing when the hash is gone.
var mergeScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
for i = 3, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
redis.call('PEXPIRE', KEYS[1], ARGV[1])
if ARGV[2] ~= '' then
  redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[1])
else
  redis.call('PEXPIRE', KEYS[2], ARGV[1])
end
return 1
`)

// RedisClient is the subset of the instrumented Redis client used by RedisBackend.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	RunScript(ctx context.Context, script *goredis.Script, keys []string, args ...interface{}) (int64, error)
	ScanCount(ctx context.Context, pattern string) (int, error)
	Delete(ctx context.Context, keys ...string) error
	Exec(ctx context.Context, fn func(pipe goredis.Pipeliner)) error
}

// RedisBackend stores each snapshot as a hash plus a dedicated theme string.
type RedisBackend struct {
	client RedisClient
}

// NewRedisBackend creates a Redis-backed snapshot store.
func NewRedisBackend(client RedisClient) *RedisBackend {
	return &RedisBackend{client: client}
}

// Load fetches the snapshot of sid.
func (b *RedisBackend) Load(ctx context.Context, sid string) (*Snapshot, error) {
	values, err := b.client.HGetAll(ctx, snapshotKey(sid))
	if err != nil {
		return nil, fmt.Errorf("load shadow from redis: %w", err)
	}
	if len(values) == 0 {
		return nil, ErrNoSnapshot
	}

	theme, err := b.client.Get(ctx, themeKey(sid))
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("load shadow theme from redis: %w", err)
	}

	return &Snapshot{Values: values, CurrentTheme: theme}, nil
}

// Save replaces the snapshot of sid in one MULTI block.
func (b *RedisBackend) Save(ctx context.Context, sid string, snap Snapshot, ttl time.Duration) error {
	hashKey := snapshotKey(sid)

	err := b.client.Exec(ctx, func(pipe goredis.Pipeliner) {
		pipe.Del(ctx, hashKey)
		if len(snap.Values) > 0 {
			pipe.HSet(ctx, hashKey, toArgs(snap.Values))
		}
		pipe.Expire(ctx, hashKey, ttl)
		pipe.Set(ctx, themeKey(sid), snap.CurrentTheme, ttl)
	})
	if err != nil {
		return fmt.Errorf("save shadow to redis: %w", err)
	}
	return nil
}

// Merge overwrites fields of the snapshot and, when theme is set, the theme slot.
// The existence check and the writes run as one script.
func (b *RedisBackend) Merge(ctx context.Context, sid string, fields map[string]string, theme string, ttl time.Duration) error {
	args := make([]interface{}, 0, 2+2*len(fields))
	args = append(args, ttl.Milliseconds(), theme)
	for k, v := range fields {
		args = append(args, k, v)
	}

	merged, err := b.client.RunScript(ctx, mergeScript, []string{snapshotKey(sid), themeKey(sid)}, args...)
	if err != nil {
		return fmt.Errorf("merge shadow in redis: %w", err)
	}
	if merged == 0 {
		return ErrNoSnapshot
	}
	return nil
}

// Discard removes both keys of sid.
func (b *RedisBackend) Discard(ctx context.Context, sid string) error {
	if err := b.client.Delete(ctx, snapshotKey(sid), themeKey(sid)); err != nil {
		return fmt.Errorf("discard shadow in redis: %w", err)
	}
	return nil
}

// Count returns the number of sessions with a theme slot, which every snapshot has.
func (b *RedisBackend) Count(ctx context.Context) (int, error) {
	return b.client.ScanCount(ctx, fmt.Sprintf(themeKeyPattern, "*"))
}

func toArgs(values map[string]string) map[string]interface{} {
	args := make(map[string]interface{}, len(values))
	for k, v := range values {
		args[k] = v
	}
	return args
}

func snapshotKey(sid string) string {
	return fmt.Sprintf(snapshotKeyPattern, sanitize(sid))
}

func themeKey(sid string) string {
	return fmt.Sprintf(themeKeyPattern, sanitize(sid))
}

// sanitize keeps a session id from spanning key namespaces.
func sanitize(sid string) string {
	return strings.NewReplacer(":", "_", "*", "_").Replace(sid)
}
