package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"plcdash-server/internal/modules/dashboard/fetcher"
	"plcdash-server/internal/modules/dashboard/repository"
	"plcdash-server/internal/modules/dashboard/snapshot"
	"plcdash-server/internal/modules/dashboard/source"
	"plcdash-server/internal/modules/dashboard/types"
)

type step struct {
	sample source.Sample
	err    error
}

// scriptedSource replays steps in order, repeating the last one.
type scriptedSource struct {
	mu    sync.Mutex
	steps []step
	calls int
}

func (s *scriptedSource) Fetch(ctx context.Context) (source.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.calls++
	return s.steps[i].sample, s.steps[i].err
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(src source.Source, opts Options) (*Service, repository.HistoryRepository) {
	history := repository.NewRepository(repository.DefaultCapacity)
	f := fetcher.New(src, history, discardLogger())
	return NewService(f, history, opts, discardLogger()), history
}

func TestCycle_EndToEndScenario(t *testing.T) {
	src := &scriptedSource{steps: []step{
		{sample: source.Sample{Humidity: 50, Temperature: 200}},
		{sample: source.Sample{Humidity: 52, Temperature: 205}},
		{sample: source.Sample{Humidity: 48, Temperature: 198}},
	}}
	svc, _ := newTestService(src, Options{Mode: ModeRequest})

	var snap snapshot.Snapshot
	for i := 0; i < 3; i++ {
		snap = svc.Cycle(context.Background())
	}

	want := types.Statistics{
		Humidity:    types.Quantity{Min: 48, Max: 52, Mean: 50.0},
		Temperature: types.Quantity{Min: 198, Max: 205, Mean: 201.0},
	}
	if snap.Stats != want {
		t.Fatalf("Stats = %+v; want %+v", snap.Stats, want)
	}
	if snap.Current.Humidity != 48 || snap.Current.Temperature != 198 {
		t.Errorf("Current = %+v; want last fetched reading", snap.Current)
	}
	if len(snap.Series) != 3 || len(snap.Recent) != 3 {
		t.Fatalf("len(Series), len(Recent) = %d, %d; want 3, 3", len(snap.Series), len(snap.Recent))
	}
	if snap.Recent[0].Humidity != 48 || snap.Recent[2].Humidity != 50 {
		t.Errorf("Recent = %+v; want latest first", snap.Recent)
	}
}

func TestCycle_FailureRepeatsLastReading(t *testing.T) {
	src := &scriptedSource{steps: []step{
		{sample: source.Sample{Humidity: 55, Temperature: 221}},
		{err: source.ErrTimeout},
	}}
	svc, history := newTestService(src, Options{Mode: ModeRequest})

	svc.Cycle(context.Background())
	snap := svc.Cycle(context.Background())
	snap = svc.Cycle(context.Background())

	if snap.Current.Humidity != 55 || snap.Current.Temperature != 221 {
		t.Errorf("Current = %+v; want stale 55/221", snap.Current)
	}
	if history.Len() != 3 {
		t.Errorf("history.Len() = %d; want 3 (fallbacks are appended)", history.Len())
	}
	if snap.Stats.Humidity.Min != 55 || snap.Stats.Humidity.Max != 55 {
		t.Errorf("Stats.Humidity = %+v; want constant 55", snap.Stats.Humidity)
	}

	st := svc.Status()
	if st.Cycles != 3 || st.ConsecutiveFailures != 2 {
		t.Errorf("Status = %+v; want 3 cycles, 2 consecutive failures", st)
	}
	if st.LastError == "" {
		t.Error("Status.LastError empty after failure")
	}
	if st.LastSuccess.IsZero() {
		t.Error("Status.LastSuccess zero after a successful fetch")
	}
}

func TestCycle_ColdStartFailure(t *testing.T) {
	svc, _ := newTestService(&scriptedSource{steps: []step{{err: source.ErrUnavailable}}}, Options{Mode: ModeRequest})

	snap := svc.Cycle(context.Background())

	if snap.Current.Humidity != 0 || snap.Current.Temperature != 0 {
		t.Errorf("Current = %+v; want zero reading", snap.Current)
	}
	if snap.Stats != (types.Statistics{}) {
		t.Errorf("Stats = %+v; want zeros over one zero reading", snap.Stats)
	}
}

func TestCycle_SuccessResetsFailures(t *testing.T) {
	src := &scriptedSource{steps: []step{
		{err: source.ErrMalformed},
		{sample: source.Sample{Humidity: 1, Temperature: 2}},
	}}
	svc, _ := newTestService(src, Options{Mode: ModeRequest})

	svc.Cycle(context.Background())
	svc.Cycle(context.Background())

	st := svc.Status()
	if st.ConsecutiveFailures != 0 || st.LastError != "" {
		t.Errorf("Status = %+v; want failures reset", st)
	}
}

func TestCycle_NotifiesListeners(t *testing.T) {
	svc, _ := newTestService(&scriptedSource{steps: []step{{sample: source.Sample{Humidity: 7}}}}, Options{Mode: ModeRequest})

	var got []fetcher.Result
	svc.OnCycle(func(_ snapshot.Snapshot, res fetcher.Result) { got = append(got, res) })
	svc.Cycle(context.Background())
	svc.Cycle(context.Background())

	if len(got) != 2 || got[0].Reading.Humidity != 7 {
		t.Fatalf("listener results = %+v; want two with humidity 7", got)
	}
}

func TestSnapshot_RequestModeRunsCycle(t *testing.T) {
	src := &scriptedSource{steps: []step{{sample: source.Sample{Humidity: 3}}}}
	svc, history := newTestService(src, Options{Mode: ModeRequest})

	svc.Snapshot(context.Background())
	svc.Snapshot(context.Background())

	if src.Calls() != 2 || history.Len() != 2 {
		t.Errorf("calls, history = %d, %d; want 2, 2", src.Calls(), history.Len())
	}
}

func TestSnapshot_PollerModeSharesFetch(t *testing.T) {
	src := &scriptedSource{steps: []step{{sample: source.Sample{Humidity: 3}}}}
	svc, _ := newTestService(src, Options{Mode: ModePoller, Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer waitCancel()
			if snap := svc.Snapshot(waitCtx); snap.Current.Humidity != 3 {
				t.Errorf("Snapshot().Current = %+v; want humidity 3", snap.Current)
			}
		}()
	}
	wg.Wait()

	if calls := src.Calls(); calls != 1 {
		t.Errorf("source calls = %d; want 1 shared fetch", calls)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v; want context.Canceled", err)
	}
}

func TestSnapshot_PollerModeContextDone(t *testing.T) {
	svc, history := newTestService(&scriptedSource{steps: []step{{}}}, Options{Mode: ModePoller})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snap := svc.Snapshot(ctx)

	if len(snap.Series) != 0 || history.Len() != 0 {
		t.Errorf("Snapshot() before first poll = %+v, history %d; want empty and untouched", snap, history.Len())
	}
}

func TestRun_PollsOnInterval(t *testing.T) {
	src := &scriptedSource{steps: []step{{sample: source.Sample{Humidity: 1}}}}
	svc, history := newTestService(src, Options{Mode: ModePoller, Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for history.Len() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if history.Len() < 3 {
		t.Fatalf("history.Len() = %d after polling; want >= 3", history.Len())
	}
	if _, ok := svc.Latest(); !ok {
		t.Fatal("Latest() empty after polling")
	}
}

func TestNewService_Defaults(t *testing.T) {
	svc := NewService(nil, repository.NewRepository(1), Options{}, nil)
	if svc.Mode() != ModePoller {
		t.Errorf("Mode() = %q; want %q", svc.Mode(), ModePoller)
	}
	if svc.opts.Interval != DefaultInterval || svc.opts.TableSize != snapshot.DefaultTableSize {
		t.Errorf("opts = %+v; want defaults", svc.opts)
	}
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []string
	data   [][]byte
}

func (b *recordingBroadcaster) Publish(eventType string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, eventType)
	b.data = append(b.data, data)
}

func TestRegisterBroadcast(t *testing.T) {
	svc, _ := newTestService(&scriptedSource{steps: []step{{sample: source.Sample{Humidity: 552, Temperature: 221}}}}, Options{Mode: ModeRequest})
	b := &recordingBroadcaster{}
	RegisterBroadcast(svc, b, discardLogger())

	svc.Cycle(context.Background())

	if len(b.events) != 1 || b.events[0] != SnapshotEvent {
		t.Fatalf("events = %v; want one %q", b.events, SnapshotEvent)
	}
	var doc snapshot.Document
	if err := json.Unmarshal(b.data[0], &doc); err != nil {
		t.Fatalf("event data is not a snapshot document: %v", err)
	}
	if doc.Current.HumidityPct != 55.2 {
		t.Errorf("Current.HumidityPct = %v; want 55.2", doc.Current.HumidityPct)
	}
}

type recordingPublisher struct {
	mu       sync.Mutex
	readings []types.Reading
	fallback []bool
	err      error
}

func (p *recordingPublisher) PublishReading(r types.Reading, fallback bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readings = append(p.readings, r)
	p.fallback = append(p.fallback, fallback)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.readings)
}

func TestRegisterMQTTRelay(t *testing.T) {
	src := &scriptedSource{steps: []step{
		{sample: source.Sample{Humidity: 10, Temperature: 20}},
		{err: source.ErrTimeout},
	}}
	svc, _ := newTestService(src, Options{Mode: ModeRequest})
	pub := &recordingPublisher{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	RegisterMQTTRelay(ctx, svc, pub, discardLogger())

	svc.Cycle(context.Background())
	svc.Cycle(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for pub.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.readings) != 2 {
		t.Fatalf("published %d readings; want 2", len(pub.readings))
	}
	if pub.fallback[0] || !pub.fallback[1] {
		t.Errorf("fallback flags = %v; want [false true]", pub.fallback)
	}
	if pub.readings[1].Humidity != 10 {
		t.Errorf("fallback reading = %+v; want repeated humidity 10", pub.readings[1])
	}
}

func TestRegisterMQTTRelay_PublishErrorDoesNotStop(t *testing.T) {
	svc, _ := newTestService(&scriptedSource{steps: []step{{sample: source.Sample{Humidity: 1}}}}, Options{Mode: ModeRequest})
	pub := &recordingPublisher{err: errors.New("broker down")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	RegisterMQTTRelay(ctx, svc, pub, discardLogger())

	svc.Cycle(context.Background())
	svc.Cycle(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for pub.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if pub.count() != 2 {
		t.Fatalf("publish attempts = %d; want 2 despite errors", pub.count())
	}
}

func TestCycle_CancelledDuringFetchIsDiscarded(t *testing.T) {
	src := &scriptedSource{steps: []step{
		{sample: source.Sample{Humidity: 55, Temperature: 221}},
		{err: source.ErrUnavailable},
	}}
	svc, history := newTestService(src, Options{Mode: ModePoller})
	pub := &recordingPublisher{}
	var cycles int
	svc.OnCycle(func(_ snapshot.Snapshot, res fetcher.Result) {
		cycles++
		_ = pub.PublishReading(res.Reading, res.Fallback)
	})

	first := svc.Cycle(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := svc.Cycle(ctx)

	if history.Len() != 1 {
		t.Errorf("history.Len() = %d; want 1 (no fallback appended on cancel)", history.Len())
	}
	if cycles != 1 || pub.count() != 1 {
		t.Errorf("listener calls, relayed = %d, %d; want 1, 1", cycles, pub.count())
	}
	if st := svc.Status(); st.Cycles != 1 || st.ConsecutiveFailures != 0 {
		t.Errorf("Status = %+v; want one cycle, no failures", st)
	}
	if !got.GeneratedAt.Equal(first.GeneratedAt) || got.Current != first.Current {
		t.Errorf("Cycle(cancelled) = %+v; want the previous snapshot", got)
	}
}

func TestCycle_CancelledColdStart(t *testing.T) {
	svc, history := newTestService(&scriptedSource{steps: []step{{err: source.ErrUnavailable}}}, Options{Mode: ModeRequest})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snap := svc.Cycle(ctx)

	if history.Len() != 0 || len(snap.Series) != 0 {
		t.Errorf("history %d, series %d; want both empty", history.Len(), len(snap.Series))
	}
	if _, ok := svc.Latest(); ok {
		t.Error("Latest() set by a discarded cycle")
	}
}
