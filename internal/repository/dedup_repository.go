package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupRepository guards inbound processing against provider redeliveries.
type DedupRepository interface {
	IsDuplicate(ctx context.Context, providerMessageID string) (bool, error)
	MarkProcessed(ctx context.Context, providerMessageID string, ttl time.Duration) error
}

type redisDedupRepository struct {
	client *redis.Client
}

// NewDedupRepository builds a redis-backed dedup cache. The messages table
// unique index remains the durable backstop when redis is unavailable.
func NewDedupRepository(client *redis.Client) DedupRepository {
	return &redisDedupRepository{client: client}
}

func dedupKey(providerMessageID string) string {
	return "dedup:msg:" + providerMessageID
}

func (r *redisDedupRepository) IsDuplicate(ctx context.Context, providerMessageID string) (bool, error) {
	_, err := r.client.Get(ctx, dedupKey(providerMessageID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check duplicate: %w", err)
	}
	return true, nil
}

func (r *redisDedupRepository) MarkProcessed(ctx context.Context, providerMessageID string, ttl time.Duration) error {
	if err := r.client.Set(ctx, dedupKey(providerMessageID), time.Now().Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}
