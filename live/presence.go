package live

import (
	"context"
	"time"

	"github.com/GoldenGamerLP/keeplist/domain"
)

// RunPresence publishes user statistics for every board with at least one
// subscriber, on a fixed interval, until the context is cancelled. Idle
// boards keep their viewer counts live without a mutation to trigger it.
func (h *Hub) RunPresence(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.publishPresence()
		}
	}
}

func (h *Hub) publishPresence() {
	for _, boardID := range h.registry.Boards() {
		stats := h.registry.Stats(boardID)
		if stats.ClientCount == 0 {
			continue
		}
		h.Publish(boardID, "", domain.SystemPublisher, domain.ActionUserStatistics, stats)
	}
}
