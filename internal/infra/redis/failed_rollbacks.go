package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/hotstore/internal/core/domain"
)

// failedTTL bounds how long a failure record is kept without being resolved.
const failedTTL = 7 * 24 * time.Hour

// FailedRollbackRepo keeps heights whose rollback failed, ordered by height.
type FailedRollbackRepo struct {
	rdb       *redis.Client
	namespace string
}

// NewFailedRollbackRepo creates a new Redis-backed failed rollback repository.
func NewFailedRollbackRepo(client *Client) *FailedRollbackRepo {
	return &FailedRollbackRepo{
		rdb:       client.rdb,
		namespace: client.namespace,
	}
}

// Add records a failure, bumping the attempt count of an existing record.
func (r *FailedRollbackRepo) Add(ctx context.Context, fr *domain.FailedRollback) error {
	if fr.ID == "" {
		fr.ID = strconv.FormatInt(fr.Height, 10)
	}
	now := time.Now()

	existing, err := r.get(ctx, fr.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		fr.Attempts = existing.Attempts + 1
		fr.CreatedAt = existing.CreatedAt
	} else {
		fr.Attempts = 1
		fr.CreatedAt = now
	}
	fr.LastAttempt = now

	data, err := json.Marshal(fr)
	if err != nil {
		return fmt.Errorf("failed to marshal failed rollback: %w", err)
	}
	if err := r.rdb.Set(ctx, failedKey(r.namespace, fr.ID), data, failedTTL).Err(); err != nil {
		return fmt.Errorf("failed to set failed rollback: %w", err)
	}
	if err := r.rdb.ZAdd(ctx, failedQueueKey(r.namespace), redis.Z{
		Score:  float64(fr.Height),
		Member: fr.ID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add to queue: %w", err)
	}
	return nil
}

func (r *FailedRollbackRepo) get(ctx context.Context, id string) (*domain.FailedRollback, error) {
	data, err := r.rdb.Get(ctx, failedKey(r.namespace, id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get failed rollback: %w", err)
	}
	var fr domain.FailedRollback
	if err := json.Unmarshal(data, &fr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal failed rollback: %w", err)
	}
	return &fr, nil
}

// MarkResolved removes a failure record.
func (r *FailedRollbackRepo) MarkResolved(ctx context.Context, id string) error {
	if err := r.rdb.ZRem(ctx, failedQueueKey(r.namespace), id).Err(); err != nil {
		return fmt.Errorf("failed to remove from queue: %w", err)
	}
	if err := r.rdb.Del(ctx, failedKey(r.namespace, id)).Err(); err != nil {
		return fmt.Errorf("failed to delete failed rollback: %w", err)
	}
	return nil
}

// GetAll retrieves all failure records, lowest height first.
func (r *FailedRollbackRepo) GetAll(ctx context.Context) ([]*domain.FailedRollback, error) {
	ids, err := r.rdb.ZRange(ctx, failedQueueKey(r.namespace), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}

	out := make([]*domain.FailedRollback, 0, len(ids))
	for _, id := range ids {
		fr, err := r.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if fr == nil {
			// Data expired but ID still in queue
			r.rdb.ZRem(ctx, failedQueueKey(r.namespace), id)
			continue
		}
		out = append(out, fr)
	}
	return out, nil
}

// Count returns the number of failure records.
func (r *FailedRollbackRepo) Count(ctx context.Context) (int, error) {
	count, err := r.rdb.ZCard(ctx, failedQueueKey(r.namespace)).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return int(count), nil
}
