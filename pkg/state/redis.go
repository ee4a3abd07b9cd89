package state

import (
	"context"
	"strconv"

	gojson "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ajitpratap0/ldes-replicator/pkg/config"
	"github.com/ajitpratap0/ldes-replicator/pkg/errors"
	"github.com/ajitpratap0/ldes-replicator/pkg/logger"
)

// optimistic transaction attempts before SetLatestPage gives up
const maxTxAttempts = 5

// RedisStore keeps a checkpoint as a JSON array of page URLs under the key
// "ldes_<identity>_pages"
type RedisStore struct {
	client  *redis.Client
	ownsCli bool
	key     string
	logger  *zap.Logger
}

func newRedisFromConfig(cfg config.StateConfig, identity string, l *zap.Logger) (Store, error) {
	opts := &redis.Options{
		Addr:     cfg.Settings["address"],
		Password: cfg.Settings["password"],
	}
	if url := cfg.Settings["url"]; url != "" {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid redis url")
		}
		opts = parsed
	}
	if opts.Addr == "" {
		host, port := cfg.Settings["host"], cfg.Settings["port"]
		if host == "" {
			host = "127.0.0.1"
		}
		if port == "" {
			port = "6379"
		}
		opts.Addr = host + ":" + port
	}
	if db := cfg.Settings["db"]; db != "" {
		n, err := strconv.Atoi(db)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid redis db")
		}
		opts.DB = n
	}

	s := NewRedisStore(redis.NewClient(opts), identity, l)
	s.ownsCli = true
	return s, nil
}

// NewRedisStore creates a store on an existing client. The caller keeps
// ownership of client.
func NewRedisStore(client *redis.Client, identity string, l *zap.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		key:    RedisKey(identity),
		logger: logger.OrDefault(l).With(zap.String("component", "redis_state"), zap.String("identity", identity)),
	}
}

// RedisKey returns the key a checkpoint is stored under
func RedisKey(identity string) string {
	return "ldes_" + identity + "_pages"
}

// Provision implements Store
func (s *RedisStore) Provision(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to redis")
	}
	return nil
}

// LatestPage implements Store
func (s *RedisStore) LatestPage(ctx context.Context) (string, error) {
	pages, err := s.read(ctx, s.client)
	if err != nil || len(pages) == 0 {
		return "", err
	}
	return pages[len(pages)-1], nil
}

// SetLatestPage implements Store. The read-modify-write runs under WATCH
// and is retried when another writer changed the key.
func (s *RedisStore) SetLatestPage(ctx context.Context, page string) error {
	txf := func(tx *redis.Tx) error {
		pages, err := s.read(ctx, tx)
		if err != nil {
			return err
		}
		if contains(pages, page) {
			return nil
		}

		data, err := gojson.Marshal(append(pages, page))
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode pages")
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, data, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, s.key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Debug("checkpoint changed concurrently, retrying", zap.Int("attempt", attempt+1))
			continue
		}
		if errors.IsType(err, errors.ErrorTypeState) || errors.IsType(err, errors.ErrorTypeInternal) {
			return err
		}
		return errors.Wrap(err, errors.ErrorTypeState, "failed to store page")
	}
	return errors.New(errors.ErrorTypeState, "checkpoint update kept conflicting").WithDetail("key", s.key)
}

// ProcessedPages implements Store
func (s *RedisStore) ProcessedPages(ctx context.Context) ([]string, error) {
	return s.read(ctx, s.client)
}

// Reset implements Store
func (s *RedisStore) Reset(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeState, "failed to reset state")
	}
	return nil
}

// Close implements Store
func (s *RedisStore) Close() error {
	if !s.ownsCli {
		return nil
	}
	return s.client.Close()
}

// getter is satisfied by both *redis.Client and *redis.Tx
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) read(ctx context.Context, c getter) ([]string, error) {
	raw, err := c.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeState, "failed to read pages")
	}

	var pages []string
	if err := gojson.Unmarshal(raw, &pages); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeState, "malformed checkpoint").WithDetail("key", s.key)
	}
	return pages, nil
}
