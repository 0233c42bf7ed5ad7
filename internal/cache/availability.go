package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// AvailabilityCache invalidates the read-through seat-availability
// cache owned by the browse side of the system.  This subsystem never
// writes availability payloads; it only deletes the per-show key
// (seats:{show}) after every committed seat-state change so readers
// cannot serve seats that just moved.
type AvailabilityCache struct {
	client *redis.Client
}

// NewAvailabilityCache returns an invalidator bound to the shared
// Redis instance.
func NewAvailabilityCache(client *redis.Client) *AvailabilityCache {
	return &AvailabilityCache{client: client}
}

// InvalidateShow drops the cached availability for one show.  Failures
// only risk a stale read elsewhere, never a correctness violation, so
// callers log and move on.
func (c *AvailabilityCache) InvalidateShow(ctx context.Context, showID uint64) error {
	if err := c.client.Del(ctx, fmt.Sprintf("seats:%d", showID)).Err(); err != nil {
		return fmt.Errorf("invalidate availability show=%d: %w", showID, err)
	}
	return nil
}
