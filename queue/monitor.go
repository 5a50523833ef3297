package queue

import (
	"context"

	"github.com/gleanhub/go-claimsync/models"
)

type monitor struct {
	queue    *OfflineActionQueue
	viewerId string
}

// Monitor reports the viewer's pending-action depth for the metrics gauge.
func (q *OfflineActionQueue) Monitor(viewerId string) models.ResourceMonitor {
	return &monitor{q, viewerId}
}

func (m monitor) GetValue(ctx context.Context) (int, error) {
	return len(m.queue.Pending(ctx, m.viewerId)), nil
}
