package cache

import (
	"context"
	"time"

	"github.com/itilprep/itil-exam-backend/internal/config"
	"github.com/redis/go-redis/v9"
)

// ResyncQueue is a Redis list of result ids parked in the local fallback
// store and waiting to be copied to the document store.
type ResyncQueue struct {
	client *redis.Client
}

func NewResyncQueue(client *redis.Client) *ResyncQueue {
	return &ResyncQueue{client: client}
}

// Enqueue appends a result id to the tail of the queue.
func (q *ResyncQueue) Enqueue(ctx context.Context, resultID string) error {
	return q.client.RPush(ctx, config.WorkerKey.ResyncResultsQueue, resultID).Err()
}

// Pop blocks up to timeout for the next id. It returns ("", redis.Nil) when
// the queue stayed empty.
func (q *ResyncQueue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	item, err := q.client.BLPop(ctx, timeout, config.WorkerKey.ResyncResultsQueue).Result()
	if err != nil {
		return "", err
	}
	if len(item) < 2 {
		return "", redis.Nil
	}
	return item[1], nil
}

// Len reports the number of ids waiting.
func (q *ResyncQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, config.WorkerKey.ResyncResultsQueue).Result()
}
