package progress

import "context"

// Store archives terminal task snapshots. Writes are fire-and-forget from
// the tracker's point of view; a failed archive never affects live state.
type Store interface {
	SaveTask(ctx context.Context, task Task) error
	Close() error
}
