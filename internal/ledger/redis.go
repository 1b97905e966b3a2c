package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrEmptyAddress is returned when the Redis address is not configured.
var ErrEmptyAddress = errors.New("redis address is required")

const (
	connectionTimeout = 5 * time.Second
	defaultRedisKey   = "anansi:seen"
	defaultLockTTL    = 30 * time.Minute
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// NewRedisClient connects and pings Redis.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// RedisStore keeps the ledger in a Redis set.
type RedisStore struct {
	client  *redis.Client
	key     string
	lockTTL time.Duration
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = defaultRedisKey
	}
	return &RedisStore{client: client, key: key, lockTTL: defaultLockTTL}
}

func (s *RedisStore) Load(ctx context.Context) (Set, error) {
	ids, err := s.client.SMembers(ctx, s.key).Result()
	if err != nil {
		return NewSet(), fmt.Errorf("load ledger %s: %w", s.key, err)
	}
	return NewSet(ids...), nil
}

// Save replaces the set inside MULTI/EXEC.
func (s *RedisStore) Save(ctx context.Context, seen Set) error {
	ids := seen.IDs()
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(ids) > 0 {
			members := make([]any, len(ids))
			for i, id := range ids {
				members[i] = id
			}
			pipe.SAdd(ctx, s.key, members...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save ledger %s: %w", s.key, err)
	}
	return nil
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Lock takes <key>:lock with SET NX and a TTL so a crashed run cannot hold it forever.
func (s *RedisStore) Lock(ctx context.Context) (func(context.Context) error, error) {
	lockKey := s.key + ":lock"
	token := uuid.New().String()

	ok, err := s.client.SetNX(ctx, lockKey, token, s.lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire ledger lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, s.client, []string{lockKey}, token).Err(); err != nil {
			return fmt.Errorf("release ledger lock: %w", err)
		}
		return nil
	}, nil
}
