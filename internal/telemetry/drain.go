package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
)

// drainBatchSize is how many pending items one drain pass touches.
const drainBatchSize = 10

// DrainStats summarizes one drain pass.
type DrainStats struct {
	Attempted int
	Delivered int
	Failed    int
}

// Drain re-attempts delivery for the oldest pending items. Removal
// happens strictly after confirmed delivery, so a crash mid-drain
// leaves undelivered items intact; a failed attempt records the
// reason and increments the retry counter but never evicts. Safe to
// call repeatedly and concurrently with new enqueues.
func (c *Client) Drain(ctx context.Context) (DrainStats, error) {
	var stats DrainStats

	if !c.cfg.SyncConfigured() {
		return stats, nil
	}

	items, err := c.queue.OldestPending(ctx, drainBatchSize)
	if err != nil {
		return stats, fmt.Errorf("drain: %w", err)
	}

	for _, item := range items {
		stats.Attempted++

		var batch Batch
		if err := json.Unmarshal(item.Payload, &batch); err != nil {
			// A payload that never parses would retry forever.
			// Keep it (never silently drop) but record why.
			stats.Failed++
			if rerr := c.queue.RecordFailure(ctx, item.ID, fmt.Sprintf("unmarshal: %v", err)); rerr != nil {
				c.log.Warn("record failure", "id", item.ID, "error", rerr)
			}
			continue
		}

		// Re-filter under current configuration; what was excluded
		// since enqueue should not be sent now.
		filtered := batch.Filter(c.cfg.SyncInclude)
		if filtered.Empty() {
			// Nothing left to send: the item's job is done.
			if err := c.queue.Remove(ctx, item.ID); err != nil {
				c.log.Warn("remove drained item", "id", item.ID, "error", err)
				stats.Failed++
				continue
			}
			stats.Delivered++
			continue
		}

		if _, err := c.deliver(ctx, filtered); err != nil {
			stats.Failed++
			if rerr := c.queue.RecordFailure(ctx, item.ID, err.Error()); rerr != nil {
				c.log.Warn("record failure", "id", item.ID, "error", rerr)
			}
			continue
		}

		if err := c.queue.Remove(ctx, item.ID); err != nil {
			// Delivered but not removed: the next drain re-delivers.
			// At-least-once is the contract; exactly-once applies to
			// removal, not delivery.
			c.log.Warn("remove delivered item", "id", item.ID, "error", err)
			stats.Failed++
			continue
		}
		stats.Delivered++
	}

	return stats, nil
}
