package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"plcdash-server/internal/modules/dashboard/fetcher"
	"plcdash-server/internal/modules/dashboard/repository"
	"plcdash-server/internal/modules/dashboard/snapshot"
	"plcdash-server/internal/modules/dashboard/stats"
	"plcdash-server/internal/modules/dashboard/types"
)

type Mode string

const (
	// ModePoller fetches on a fixed interval; requests read the latest snapshot.
	ModePoller Mode = "poller"
	// ModeRequest runs one full cycle per request.
	ModeRequest Mode = "request"

	DefaultInterval = time.Second
)

type Fetcher interface {
	Fetch(ctx context.Context) fetcher.Result
}

// CycleListener observes every completed cycle. Listeners run on the cycle's
// goroutine and must not block.
type CycleListener func(snap snapshot.Snapshot, res fetcher.Result)

type Options struct {
	Mode      Mode
	Interval  time.Duration
	TableSize int
}

// Status summarizes source health for operators.
type Status struct {
	Mode                Mode      `json:"mode"`
	Cycles              uint64    `json:"cycles"`
	HistoryLen          int       `json:"history_len"`
	LastAttempt         time.Time `json:"last_attempt"`
	LastSuccess         time.Time `json:"last_success"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
}

type Service struct {
	fetcher Fetcher
	history repository.HistoryRepository
	logger  *slog.Logger
	opts    Options
	now     func() time.Time

	latest    atomic.Pointer[snapshot.Snapshot]
	ready     chan struct{}
	readyOnce sync.Once

	mu        sync.Mutex
	status    Status
	listeners []CycleListener
}

func NewService(f Fetcher, history repository.HistoryRepository, opts Options, logger *slog.Logger) *Service {
	if opts.Mode == "" {
		opts.Mode = ModePoller
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.TableSize <= 0 {
		opts.TableSize = snapshot.DefaultTableSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		fetcher: f,
		history: history,
		logger:  logger,
		opts:    opts,
		now:     time.Now,
		ready:   make(chan struct{}),
		status:  Status{Mode: opts.Mode},
	}
}

func (s *Service) Mode() Mode {
	return s.opts.Mode
}

// OnCycle registers fn for every subsequent cycle.
func (s *Service) OnCycle(fn CycleListener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Cycle performs one fetch, append, statistics and assembly pass.
// The history lock is held only for the append and read-back. A cycle whose
// ctx ends during the fetch is discarded: nothing is appended, recorded or
// broadcast, and the current view is returned instead.
func (s *Service) Cycle(ctx context.Context) snapshot.Snapshot {
	res := s.fetcher.Fetch(ctx)
	if ctx.Err() != nil {
		s.logger.Debug("cycle abandoned", "error", ctx.Err())
		return s.current()
	}

	window := s.history.Append(res.Reading)
	snap := snapshot.Assemble(s.now(), res.Reading, window, stats.Compute(window), s.opts.TableSize)

	s.store(&snap)
	listeners := s.record(res, len(window))
	for _, fn := range listeners {
		fn(snap, res)
	}
	return snap
}

// Run drives Cycle every Interval until ctx is done. The first cycle runs
// immediately.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("telemetry poller started", "interval", s.opts.Interval)
	defer s.logger.Info("telemetry poller stopped")

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		s.Cycle(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Snapshot returns the view for one dashboard request. In request mode it
// runs a cycle. In poller mode it returns the latest snapshot, waiting for
// the first poll to finish if necessary; if ctx ends first it returns an
// empty snapshot without touching the history.
func (s *Service) Snapshot(ctx context.Context) snapshot.Snapshot {
	if s.opts.Mode == ModeRequest {
		return s.Cycle(ctx)
	}
	if snap, ok := s.Latest(); ok {
		return snap
	}
	select {
	case <-s.ready:
		snap, _ := s.Latest()
		return snap
	case <-ctx.Done():
		return s.current()
	}
}

// current returns the latest snapshot, or one assembled from the history as
// it stands when no cycle has completed yet.
func (s *Service) current() snapshot.Snapshot {
	if snap, ok := s.Latest(); ok {
		return snap
	}
	window := s.history.All()
	return snapshot.Assemble(s.now(), latestOf(window), window, stats.Compute(window), s.opts.TableSize)
}

// Latest returns the most recently assembled snapshot.
func (s *Service) Latest() (snapshot.Snapshot, bool) {
	p := s.latest.Load()
	if p == nil {
		return snapshot.Snapshot{}, false
	}
	return *p, true
}

func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// store keeps the newest snapshot; concurrent request-mode cycles may finish
// out of order.
func (s *Service) store(snap *snapshot.Snapshot) {
	for {
		cur := s.latest.Load()
		if cur != nil && cur.GeneratedAt.After(snap.GeneratedAt) {
			break
		}
		if s.latest.CompareAndSwap(cur, snap) {
			break
		}
	}
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *Service) record(res fetcher.Result, historyLen int) []CycleListener {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &s.status
	st.Cycles++
	st.HistoryLen = historyLen
	st.LastAttempt = res.Reading.Time
	if res.Fallback {
		st.ConsecutiveFailures++
		if res.Err != nil {
			st.LastError = res.Err.Error()
		}
	} else {
		st.LastSuccess = res.Reading.Time
		st.ConsecutiveFailures = 0
		st.LastError = ""
	}

	listeners := make([]CycleListener, len(s.listeners))
	copy(listeners, s.listeners)
	return listeners
}

func latestOf(window []types.Reading) types.Reading {
	if len(window) == 0 {
		return types.Reading{}
	}
	return window[len(window)-1]
}
