// Package taskqueue is a Redis-backed delayed task queue for invoice
// transmission. Tasks live in a sorted set scored by due time; a Lua script
// pops due tasks atomically so concurrent workers never double-claim.
package taskqueue

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/pop_due.lua
var popDueScript string

// DefaultKey is the sorted set holding pending transmission tasks
const DefaultKey = "invoices:transmission:pending"

// Task is one scheduled invoice transmission. Attempt counts completed
// delivery attempts so far.
type Task struct {
	InvoiceID string `json:"invoice_id"`
	Attempt   int    `json:"attempt"`
}

// Queue is a delayed task queue over one Redis sorted set
type Queue struct {
	rdb    *redis.Client
	key    string
	popDue *redis.Script
}

// NewQueue connects to Redis and prepares the dequeue script
func NewQueue(addr, password string, db int, key string) (*Queue, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Queue{
		rdb:    rdb,
		key:    key,
		popDue: redis.NewScript(popDueScript),
	}, nil
}

// Close closes the Redis connection
func (q *Queue) Close() error {
	return q.rdb.Close()
}

// Enqueue schedules a task to become due after delay
func (q *Queue) Enqueue(ctx context.Context, task Task, delay time.Duration) error {
	member, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	due := float64(time.Now().Add(delay).UnixMilli())
	if err := q.rdb.ZAdd(ctx, q.key, &redis.Z{Score: due, Member: member}).Err(); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// PopDue atomically removes and returns up to limit tasks due at or before
// now. Returns an empty slice when nothing is due.
func (q *Queue) PopDue(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	result, err := q.popDue.Run(ctx, q.rdb, []string{q.key}, now.UnixMilli(), limit).Result()
	if err != nil {
		return nil, fmt.Errorf("pop due script failed: %w", err)
	}

	members, ok := result.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected script result type %T", result)
	}

	tasks := make([]Task, 0, len(members))
	for _, m := range members {
		raw, ok := m.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected member type %T", m)
		}
		var task Task
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}
