package cache

import (
	"context"
	"fmt"
	"time"
)

// NoopCache satisfies sentiment.Cache for an operator who runs without
// Redis: every read is a miss and every write is a no-op, the same
// behavior RedisCache falls back to once it degrades.
type NoopCache struct{}

// GetJSON always reports a miss.
func (NoopCache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	return fmt.Errorf("cache disabled")
}

// SetJSON is a no-op.
func (NoopCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return nil
}
