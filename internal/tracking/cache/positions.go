// Package cache keeps the latest known driver positions hot. Position reads
// serve dispatch dashboards; the durable event log stays in the store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"lastmile/internal/platform/redis"
	"lastmile/internal/tracking/models"
	id "lastmile/pkg/domain"
	"lastmile/pkg/platform/sentinel"
)

// Positions is the latest-position cache contract.
type Positions interface {
	Set(ctx context.Context, pos models.Position) error
	Get(ctx context.Context, driverID id.DriverID) (models.Position, error)
}

// positionTTL bounds staleness: a driver that stops reporting disappears
// from the map instead of showing a day-old location.
const positionTTL = 15 * time.Minute

func key(driverID string) string {
	return "tracking:position:" + driverID
}

// RedisPositions stores one JSON document per driver with a TTL.
type RedisPositions struct {
	client *redis.Client
}

func NewRedisPositions(client *redis.Client) *RedisPositions {
	return &RedisPositions{client: client}
}

func (c *RedisPositions) Set(ctx context.Context, pos models.Position) error {
	payload, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("marshal position: %w", err)
	}
	if err := c.client.Set(ctx, key(pos.DriverID), payload, positionTTL).Err(); err != nil {
		return fmt.Errorf("cache position: %w", err)
	}
	return nil
}

func (c *RedisPositions) Get(ctx context.Context, driverID id.DriverID) (models.Position, error) {
	raw, err := c.client.Get(ctx, key(driverID.String())).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return models.Position{}, sentinel.ErrNotFound
		}
		return models.Position{}, fmt.Errorf("read position: %w", err)
	}
	var pos models.Position
	if err := json.Unmarshal(raw, &pos); err != nil {
		return models.Position{}, fmt.Errorf("unmarshal position: %w", err)
	}
	return pos, nil
}

// MemoryPositions backs tests and Redis-less deployments. No TTL; staleness
// only matters when the cache outlives the process.
type MemoryPositions struct {
	mu        sync.RWMutex
	positions map[string]models.Position
}

func NewMemoryPositions() *MemoryPositions {
	return &MemoryPositions{positions: make(map[string]models.Position)}
}

func (c *MemoryPositions) Set(_ context.Context, pos models.Position) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positions[pos.DriverID] = pos
	return nil
}

func (c *MemoryPositions) Get(_ context.Context, driverID id.DriverID) (models.Position, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pos, ok := c.positions[driverID.String()]
	if !ok {
		return models.Position{}, sentinel.ErrNotFound
	}
	return pos, nil
}
