package runlock

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultRedisKey = "portal_automation:run_lock"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a SET NX lock with a TTL, shared by every host pointed at
// the same redis.
type RedisLocker struct {
	client *redis.Client
	Key    string
	TTL    time.Duration
}

func NewRedisLocker(redisURL string, key string, ttl time.Duration) (*RedisLocker, error) {
	url := strings.TrimSpace(redisURL)
	if url == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return NewRedisLockerWithClient(client, key, ttl), nil
}

func NewRedisLockerWithClient(client *redis.Client, key string, ttl time.Duration) *RedisLocker {
	key = strings.TrimSpace(key)
	if key == "" {
		key = DefaultRedisKey
	}
	if ttl <= 0 {
		ttl = DefaultStaleAfter
	}
	return &RedisLocker{client: client, Key: key, TTL: ttl}
}

func (l *RedisLocker) TryAcquire(ctx context.Context) (Release, error) {
	if l == nil || l.client == nil {
		return nil, errors.New("redis locker is not connected")
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.Key, token, l.TTL).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis setnx")
	}
	if !ok {
		return nil, errors.Wrapf(ErrHeld, "redis key %s", l.Key)
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{l.Key}, token).Err()
	}, nil
}

func (l *RedisLocker) Close() error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Close()
}
