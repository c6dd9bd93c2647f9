package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	// DefaultStream is the default ledger stream name
	DefaultStream = "clover:ledger"

	// MaxLen bounds the stream length; the oldest entries are trimmed first
	MaxLen = 1_000_000
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

// StreamClient is the part of the go-redis client the store uses
type StreamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XRange(ctx context.Context, stream, start, stop string) *redis.XMessageSliceCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisStore archives entries to a Redis stream
type RedisStore struct {
	client StreamClient
	stream string
	logger ectologger.Logger
}

// NewRedisStore connects to Redis and returns a stream-backed store
func NewRedisStore(ctx context.Context, cfg RedisConfig, logger ectologger.Logger) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	logger.WithField("addr", cfg.Addr).Info("Connected to Redis ledger archive")

	return NewRedisStoreWithClient(rdb, cfg.Stream, logger), nil
}

// NewRedisStoreWithClient creates a store on an existing client
func NewRedisStoreWithClient(client StreamClient, stream string, logger ectologger.Logger) *RedisStore {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStore{
		client: client,
		stream: stream,
		logger: logger,
	}
}

// Archive adds an entry to the stream
func (s *RedisStore) Archive(ctx context.Context, entry models.MergeHistory) error {
	ctx, span := tracing.StartSpan(ctx, "archive.RedisStore.Archive")
	defer span.End()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry: %w", err)
	}

	_, err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: MaxLen,
		Approx: true,
		Values: map[string]any{
			"data":       string(data),
			"history_id": entry.ID,
			"primary_id": entry.PrimaryID,
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to archive ledger entry %s: %w", entry.ID, err)
	}

	return nil
}

// Replay reads every archived entry, oldest first. Unreadable entries are skipped.
func (s *RedisStore) Replay(ctx context.Context) ([]models.MergeHistory, error) {
	ctx, span := tracing.StartSpan(ctx, "archive.RedisStore.Replay")
	defer span.End()

	messages, err := s.client.XRange(ctx, s.stream, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger stream: %w", err)
	}

	entries := make([]models.MergeHistory, 0, len(messages))
	for _, msg := range messages {
		data, ok := msg.Values["data"].(string)
		if !ok {
			s.logger.WithContext(ctx).WithField("message_id", msg.ID).Warn("Ledger stream entry has no data")
			continue
		}

		var entry models.MergeHistory
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			s.logger.WithContext(ctx).WithError(err).WithField("message_id", msg.ID).Warn("Failed to unmarshal ledger stream entry")
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
