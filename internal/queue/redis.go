package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const executionQueueKey = "queue:execution"

// blockTimeout bounds each BRPOP so the consumer can observe context
// cancellation between polls.
const blockTimeout = 5 * time.Second

// RedisQueue implements Publisher and Consumer on a Redis list.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue creates a queue backed by the given Redis client.
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

// Publish pushes a message onto the execution queue.
func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal queue message: %w", err)
	}
	if err := q.client.LPush(ctx, executionQueueKey, data).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", msg.JobID, err)
	}
	return nil
}

// Dequeue blocks until a message arrives. It returns the context error when
// cancelled, so consumer loops can exit cleanly.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Message, error) {
	for {
		res, err := q.client.BRPop(ctx, blockTimeout, executionQueueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Timed out with an empty queue; poll again unless cancelled.
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("dequeue: %w", err)
		}

		// BRPop returns [key, value].
		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			return nil, fmt.Errorf("malformed queue message: %w", err)
		}
		return &msg, nil
	}
}
