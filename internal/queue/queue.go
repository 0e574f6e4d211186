// Package queue implements the durable ingestion/delete/group-update
// queues (spec §6) over Redis lists, grounded on the teacher's
// internal/cache Redis wrapper but built directly against
// github.com/redis/go-redis/v9 rather than the teacher's private cache
// abstraction layer.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/devflowinc/trieve-sub001/internal/errs"
)

// Named lists from spec §6.
const (
	Ingestion           = "ingestion"
	Processing          = "processing"
	DeadLetters         = "dead_letters"
	DeleteDataset       = "delete_dataset_queue"
	GroupUpdate         = "group_update_queue"
	CSVJSONLIngestion   = "csv_jsonl_ingestion"
	CSVJSONLProcessing  = "csv_jsonl_processing"
	DeadLettersCSVJSONL = "dead_letters_csv_jsonl"
	// BulkChunksDeletedEvents carries one BulkChunksDeletedEvent per
	// clear batch the dataset lifecycle worker processes (spec §4.K),
	// for external analytics dashboards to subscribe to.
	BulkChunksDeletedEvents = "bulk_chunks_deleted_events"
)

// MaxAttempts is the dead-letter threshold (spec §4.E, P8): the 10th
// failed attempt at a message is dead-lettered rather than retried.
const MaxAttempts = 10

// Queue is the minimal BRPOPLPUSH/LREM/LPUSH contract the ingestion and
// dataset/group workers consume (spec §6).
type Queue interface {
	// Pop moves the next message from src to dst, blocking up to timeout.
	// Returns ("", nil) on timeout with no message available.
	Pop(ctx context.Context, src, dst string, timeout time.Duration) (string, error)
	// Ack removes one occurrence of value from list (explicit LREM on
	// success, spec §4.E "pending -> processing" pattern).
	Ack(ctx context.Context, list, value string) error
	// Push enqueues value onto list (LPUSH).
	Push(ctx context.Context, list, value string) error
	Close() error
}

// RedisQueue is the production Queue backed by a single *redis.Client.
type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(addr, password string, db int) *RedisQueue {
	return &RedisQueue{client: redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})}
}

var _ Queue = (*RedisQueue)(nil)

func (q *RedisQueue) Ping(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return errs.Transient(errs.CodeQueueIO, "queue ping failed", err)
	}
	return nil
}

// Pop implements the worker's at-least-once consume loop (spec §4.E,
// §5): BRPOPLPUSH moves one message from src to dst atomically so a
// crash between pop and processing leaves the message recoverable from
// dst rather than lost.
func (q *RedisQueue) Pop(ctx context.Context, src, dst string, timeout time.Duration) (string, error) {
	val, err := q.client.BRPopLPush(ctx, src, dst, timeout).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", errs.Transient(errs.CodeQueueIO, "failed to pop queue message", err)
	}
	return val, nil
}

func (q *RedisQueue) Ack(ctx context.Context, list, value string) error {
	if err := q.client.LRem(ctx, list, 1, value).Err(); err != nil {
		return errs.Transient(errs.CodeQueueIO, "failed to ack queue message", err)
	}
	return nil
}

func (q *RedisQueue) Push(ctx context.Context, list, value string) error {
	if err := q.client.LPush(ctx, list, value).Err(); err != nil {
		return errs.Transient(errs.CodeQueueIO, "failed to push queue message", err)
	}
	return nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
