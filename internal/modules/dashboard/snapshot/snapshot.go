// Package snapshot bundles the current reading, history and statistics into
// the read-only view handed to the presentation layer.
package snapshot

import (
	"time"

	"plcdash-server/internal/modules/dashboard/repository"
	"plcdash-server/internal/modules/dashboard/types"
)

// DefaultTableSize is the number of recent readings shown in the history table.
const DefaultTableSize = 10

// Snapshot is rebuilt on every cycle and never mutated after Assemble returns.
type Snapshot struct {
	GeneratedAt time.Time
	Current     types.Reading
	// Recent is the newest tableSize readings, latest first.
	Recent []types.Reading
	// Series is the full window in arrival order.
	Series []types.Reading
	Stats  types.Statistics
}

// Assemble composes a Snapshot. It copies window so the result shares no
// memory with the caller.
func Assemble(now time.Time, current types.Reading, window []types.Reading, stats types.Statistics, tableSize int) Snapshot {
	series := make([]types.Reading, len(window))
	copy(series, window)
	return Snapshot{
		GeneratedAt: now,
		Current:     current,
		Recent:      repository.ReverseTail(window, tableSize),
		Series:      series,
		Stats:       stats,
	}
}
