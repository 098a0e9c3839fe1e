// Package redis is a Redis list-backed job queue. Producers LPUSH and
// workers BRPOP, so delivery is FIFO across processes.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-scraper/internal/scraper"
)

// Client is the subset of *redis.Client the queue uses.
type Client interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	Close() error
}

// Config names the lists and bounds the blocking pop.
type Config struct {
	Key           string
	DeadLetterKey string
	PopTimeout    time.Duration
}

// Queue implements scraper.Queue and scraper.DeadLetterSink.
type Queue struct {
	client Client
	cfg    Config
	logger *zap.Logger
}

// NewClient dials Redis and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return rdb, nil
}

// New wraps client.
func New(client Client, cfg Config, logger *zap.Logger) *Queue {
	if cfg.Key == "" {
		cfg.Key = "scraper:jobs"
	}
	if cfg.DeadLetterKey == "" {
		cfg.DeadLetterKey = cfg.Key + ":dead"
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, cfg: cfg, logger: logger.Named("redis_queue")}
}

// Enqueue pushes item onto the job list.
func (q *Queue) Enqueue(ctx context.Context, item scraper.QueueItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", item.Job.ID, err)
	}
	if err := q.client.LPush(ctx, q.cfg.Key, payload).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", q.cfg.Key, err)
	}
	return nil
}

// Dequeue blocks until an item arrives or ctx ends. Each pop waits at most
// PopTimeout so cancellation is observed promptly. Undecodable payloads are
// moved to the dead-letter list and skipped.
func (q *Queue) Dequeue(ctx context.Context) (scraper.QueueItem, error) {
	for {
		if err := ctx.Err(); err != nil {
			return scraper.QueueItem{}, fmt.Errorf("dequeue canceled: %w", err)
		}
		res, err := q.client.BRPop(ctx, q.cfg.PopTimeout, q.cfg.Key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return scraper.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
			}
			return scraper.QueueItem{}, fmt.Errorf("brpop %s: %w", q.cfg.Key, err)
		}
		if len(res) != 2 {
			return scraper.QueueItem{}, fmt.Errorf("brpop %s: unexpected reply of %d elements", q.cfg.Key, len(res))
		}

		var item scraper.QueueItem
		if err := json.Unmarshal([]byte(res[1]), &item); err != nil {
			q.logger.Error("dropping undecodable job", zap.Error(err))
			if perr := q.client.LPush(ctx, q.cfg.DeadLetterKey, res[1]).Err(); perr != nil {
				q.logger.Error("dead-letter push failed", zap.Error(perr))
			}
			continue
		}
		return item, nil
	}
}

// DeadLetter appends letter to the dead-letter list.
func (q *Queue) DeadLetter(ctx context.Context, letter scraper.DeadLetter) error {
	payload, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	if err := q.client.LPush(ctx, q.cfg.DeadLetterKey, payload).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", q.cfg.DeadLetterKey, err)
	}
	return nil
}

// Close closes the client.
func (q *Queue) Close() error {
	return q.client.Close()
}
