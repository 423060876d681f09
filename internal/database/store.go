// internal/database/store.go
package database

import (
	"context"
	"time"

	"solarwatch/internal/status"
)

// Store persists the last known state per site. The external dashboard
// reads this surface; the monitor is the only writer.
type Store interface {
	// GetLast returns the last persisted state for a site, or nil when the
	// site has never been recorded. Absence is not an error.
	GetLast(ctx context.Context, site string) (*SiteState, error)

	// Upsert inserts or overwrites the single row for a site.
	Upsert(ctx context.Context, site string, st status.Status, at time.Time) error

	// Transition reads the previous state and writes the new one in a
	// single transaction, so concurrent cycles on the same site key can
	// never interleave between the read and the write.
	Transition(ctx context.Context, site string, st status.Status, at time.Time) (*SiteState, error)

	// List returns the current state of every recorded site.
	List(ctx context.Context) ([]SiteState, error)

	// History returns the recorded transitions for a site since a cutoff.
	History(ctx context.Context, site string, since time.Time) ([]SiteState, error)

	Close() error
}
