package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/chainetl/internal/core/domain"
)

// Queue is a sorted set of suspect windows, lowest block first.
type Queue struct {
	rdb *redis.Client
	key string
}

// NewQueue returns the suspect window queue of c.
func NewQueue(c *Client) *Queue {
	return &Queue{rdb: c.rdb, key: queueKey(c.prefix)}
}

// Push adds a window. Pushing the same window twice keeps one entry.
func (q *Queue) Push(ctx context.Context, s domain.SuspectRange) error {
	if s.Remains == 0 || s.Remains > s.Start+1 {
		return fmt.Errorf("invalid suspect window %d/%d", s.Start, s.Remains)
	}
	z := redis.Z{Score: float64(s.Start + 1 - s.Remains), Member: FormatRange(s)}
	if err := q.rdb.ZAdd(ctx, q.key, z).Err(); err != nil {
		return fmt.Errorf("zadd failed: %w", err)
	}
	return nil
}

// Pop removes and returns the lowest window.
func (q *Queue) Pop(ctx context.Context) (domain.SuspectRange, bool, error) {
	results, err := q.rdb.ZPopMin(ctx, q.key, 1).Result()
	if err != nil {
		return domain.SuspectRange{}, false, fmt.Errorf("zpopmin failed: %w", err)
	}
	if len(results) == 0 {
		return domain.SuspectRange{}, false, nil
	}

	member, ok := results[0].Member.(string)
	if !ok {
		return domain.SuspectRange{}, false, fmt.Errorf("unexpected member type %T", results[0].Member)
	}
	s, err := ParseRange(member)
	if err != nil {
		return domain.SuspectRange{}, false, fmt.Errorf("invalid range format: %w", err)
	}
	return s, true, nil
}

// Len returns the number of queued windows.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.ZCard(ctx, q.key).Result()
}
