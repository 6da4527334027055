// README: Read-side snapshot cache backed by Redis.
package tow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eden-magar/towing-saas-sub002/internal/types"
)

const (
	snapshotKeyPrefix = "tow:%s:snapshot"
	// Snapshots are refreshed on every successful transition; the TTL only
	// bounds staleness after the last write.
	snapshotTTL = 24 * time.Hour
)

type Cache struct {
	redis *redis.Client
}

func NewCache(rdb *redis.Client) *Cache {
	return &Cache{redis: rdb}
}

func (c *Cache) Put(ctx context.Context, snap *Snapshot) error {
	blob, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	key := fmt.Sprintf(snapshotKeyPrefix, snap.Tow.ID)
	return c.redis.Set(ctx, key, blob, snapshotTTL).Err()
}

// Get returns the cached snapshot, or (nil, nil) on a miss.
func (c *Cache) Get(ctx context.Context, towID types.ID) (*Snapshot, error) {
	key := fmt.Sprintf(snapshotKeyPrefix, towID)
	blob, err := c.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Cache) Invalidate(ctx context.Context, towID types.ID) error {
	return c.redis.Del(ctx, fmt.Sprintf(snapshotKeyPrefix, towID)).Err()
}
