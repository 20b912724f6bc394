// Package cache holds the redis-backed helpers of the remote store.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// dedup:{kind}:{id} -> 1, set once an append reached the repository
	KeyDedup = "dedup:%s:%s"
)

var TTLDedup = 48 * time.Hour

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Ping checks the connection once at startup.
func Ping(ctx context.Context, rdb *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Dedup remembers which sale and audit ids were already stored so a
// retried push can skip the repository round trip.
type Dedup struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewDedup(rdb *redis.Client) *Dedup {
	return &Dedup{rdb: rdb, ttl: TTLDedup}
}

func (d *Dedup) Seen(ctx context.Context, kind, id string) (bool, error) {
	n, err := d.rdb.Exists(ctx, fmt.Sprintf(KeyDedup, kind, id)).Result()
	return n > 0, err
}

func (d *Dedup) Mark(ctx context.Context, kind, id string) error {
	return d.rdb.Set(ctx, fmt.Sprintf(KeyDedup, kind, id), 1, d.ttl).Err()
}
