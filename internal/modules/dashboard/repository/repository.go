package repository

import (
	"sync"

	"plcdash-server/internal/modules/dashboard/types"
)

// DefaultCapacity is the number of readings kept in the rolling window.
const DefaultCapacity = 50

// HistoryRepository is the in-memory rolling window of readings.
// It is safe for concurrent use.
type HistoryRepository interface {
	// Append adds r as the newest entry, evicting the oldest entries when the
	// window is full, and returns a copy of the resulting window in arrival order.
	Append(r types.Reading) []types.Reading
	// Tail returns up to k of the newest entries, latest first.
	Tail(k int) []types.Reading
	// All returns a copy of the window in arrival order.
	All() []types.Reading
	// Latest returns the newest entry, if any.
	Latest() (types.Reading, bool)
	Len() int
	Cap() int
}

type repositoryImpl struct {
	mu       sync.Mutex
	readings []types.Reading
	capacity int
}

// NewRepository returns an empty window holding at most capacity readings.
// A non-positive capacity falls back to DefaultCapacity.
func NewRepository(capacity int) HistoryRepository {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &repositoryImpl{
		readings: make([]types.Reading, 0, capacity),
		capacity: capacity,
	}
}

func (r *repositoryImpl) Append(reading types.Reading) []types.Reading {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.readings) >= r.capacity {
		// Shift in place so the backing array never grows past capacity.
		drop := len(r.readings) - r.capacity + 1
		n := copy(r.readings, r.readings[drop:])
		r.readings = r.readings[:n]
	}
	r.readings = append(r.readings, reading)
	return r.copyLocked()
}

func (r *repositoryImpl) Tail(k int) []types.Reading {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ReverseTail(r.readings, k)
}

func (r *repositoryImpl) All() []types.Reading {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyLocked()
}

func (r *repositoryImpl) Latest() (types.Reading, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.readings) == 0 {
		return types.Reading{}, false
	}
	return r.readings[len(r.readings)-1], true
}

func (r *repositoryImpl) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.readings)
}

func (r *repositoryImpl) Cap() int {
	return r.capacity
}

func (r *repositoryImpl) copyLocked() []types.Reading {
	out := make([]types.Reading, len(r.readings))
	copy(out, r.readings)
	return out
}

// ReverseTail returns up to k of the last entries of window, latest first.
// The result never aliases window.
func ReverseTail(window []types.Reading, k int) []types.Reading {
	if k <= 0 || len(window) == 0 {
		return []types.Reading{}
	}
	if k > len(window) {
		k = len(window)
	}
	out := make([]types.Reading, 0, k)
	for i := len(window) - 1; i >= len(window)-k; i-- {
		out = append(out, window[i])
	}
	return out
}
