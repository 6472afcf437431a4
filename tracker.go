package cpuinstr

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/multierror"
	"github.com/pkg/errors"
)

// DefaultTrackInterval is the Tracker polling interval used when none is set.
const DefaultTrackInterval = time.Second

// DeltaStats is an immutable summary of the instruction deltas observed on one CPU.
type DeltaStats struct {
	CPU          int
	Observations int64
	Total        Count
	Min          Count
	Max          Count
	Mean         Count
	Last         Count
	// Elapsed is the wall time covered by the observed deltas.
	Elapsed time.Duration
}

// PerSecond returns the average number of instructions retired per second.
func (s DeltaStats) PerSecond() Count {
	if s.Elapsed <= 0 {
		return Zero
	}
	return s.Total.DivFloat64(s.Elapsed.Seconds())
}

// cpuStats aggregates deltas for one CPU.
type cpuStats struct {
	mu      sync.Mutex
	count   int64
	total   Count
	min     Count
	max     Count
	last    Count
	elapsed time.Duration
}

func (c *cpuStats) record(d Count, elapsed time.Duration) {
	c.mu.Lock()
	if c.count == 0 {
		c.min, c.max = d, d
	} else {
		c.min = min(c.min, d)
		c.max = max(c.max, d)
	}
	c.count++
	c.total += d
	c.last = d
	c.elapsed += elapsed
	c.mu.Unlock()
}

func (c *cpuStats) snapshot(cpu int) DeltaStats {
	c.mu.Lock()
	s := DeltaStats{
		CPU:          cpu,
		Observations: c.count,
		Total:        c.total,
		Min:          c.min,
		Max:          c.max,
		Last:         c.last,
		Elapsed:      c.elapsed,
	}
	c.mu.Unlock()
	if s.Observations > 0 {
		s.Mean = s.Total.Div(Count(s.Observations))
	}
	return s
}

type observation struct {
	sample Sample
	at     time.Time
}

type trackerConfig struct {
	interval time.Duration
	clock    quartz.Clock
	logger   log.Logger
	onRound  func(round int)
}

// TrackerOption configures a Tracker constructed by NewTracker.
type TrackerOption func(*trackerConfig)

// WithInterval sets how often Run observes the source.
func WithInterval(d time.Duration) TrackerOption {
	return func(cfg *trackerConfig) {
		if d > 0 {
			cfg.interval = d
		}
	}
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c quartz.Clock) TrackerOption {
	return func(cfg *trackerConfig) {
		if c != nil {
			cfg.clock = c
		}
	}
}

// WithTrackerLogger sets the logger Run reports failed observations to.
func WithTrackerLogger(l log.Logger) TrackerOption {
	return func(cfg *trackerConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithRoundFunc sets a function Run calls after every periodic observation,
// with the 1-based round number. The baseline observation is not a round.
func WithRoundFunc(fn func(round int)) TrackerOption {
	return func(cfg *trackerConfig) { cfg.onRound = fn }
}

// Tracker periodically samples every CPU of a Source and aggregates the
// instruction deltas between consecutive samples per CPU.
//
// The first observation of a CPU only sets its baseline; statistics for it
// exist from the second successful observation on. A failed read keeps the
// previous baseline, so the next delta spans the gap.
type Tracker struct {
	src Source
	cfg trackerConfig

	mu    sync.Mutex // serializes observations
	last  map[int]observation
	stats sync.Map // map[int]*cpuStats
}

// NewTracker returns a Tracker reading from src. src must not be read
// concurrently by anyone else unless it is a LockedReader.
func NewTracker(src Source, opts ...TrackerOption) *Tracker {
	cfg := trackerConfig{
		interval: DefaultTrackInterval,
		clock:    quartz.NewReal(),
		logger:   log.NewNopLogger(),
	}
	for _, o := range opts {
		if o != nil {
			o(&cfg)
		}
	}
	return &Tracker{src: src, cfg: cfg, last: make(map[int]observation)}
}

func (t *Tracker) statsFor(cpu int) *cpuStats {
	if v, ok := t.stats.Load(cpu); ok {
		return v.(*cpuStats)
	}
	v, _ := t.stats.LoadOrStore(cpu, &cpuStats{})
	return v.(*cpuStats)
}

// Observe samples every CPU once and records the delta since the previous
// sample of each CPU. Read failures are returned together; CPUs that were
// read successfully are recorded regardless.
func (t *Tracker) Observe() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.cfg.clock.Now()
	errs := multierror.New()
	for _, cpu := range t.src.CPUs() {
		s, err := t.src.Instant(cpu)
		if err != nil {
			errs.Add(err)
			continue
		}
		prev, ok := t.last[cpu]
		t.last[cpu] = observation{sample: s, at: now}
		if !ok {
			continue
		}
		d, err := s.Since(prev.sample)
		if err != nil {
			errs.Add(err)
			continue
		}
		t.statsFor(cpu).record(d, now.Sub(prev.at))
	}
	return errs.Err()
}

// Run takes a baseline observation, then observes every interval until ctx is
// done. Failed observations are logged and do not stop the loop.
func (t *Tracker) Run(ctx context.Context) error {
	t.observeAndLog()
	round := 0
	w := t.cfg.clock.TickerFunc(ctx, t.cfg.interval, func() error {
		t.observeAndLog()
		round++
		if t.cfg.onRound != nil {
			t.cfg.onRound(round)
		}
		return nil
	}, "tracker")
	err := w.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (t *Tracker) observeAndLog() {
	if err := t.Observe(); err != nil {
		level.Warn(t.cfg.logger).Log("msg", "failed to observe instruction counters", "err", err)
	}
}

// Stats returns the statistics of cpu, or false if no delta was recorded for it yet.
func (t *Tracker) Stats(cpu int) (DeltaStats, bool) {
	v, ok := t.stats.Load(cpu)
	if !ok {
		return DeltaStats{}, false
	}
	return v.(*cpuStats).snapshot(cpu), true
}

// List returns the statistics of every CPU with at least one delta, ordered by CPU.
func (t *Tracker) List() []DeltaStats {
	out := make([]DeltaStats, 0)
	t.stats.Range(func(k, v interface{}) bool {
		cpu, ok := k.(int)
		st, ok2 := v.(*cpuStats)
		if !ok || !ok2 {
			return true
		}
		out = append(out, st.snapshot(cpu))
		return true
	})
	slices.SortFunc(out, func(a, b DeltaStats) int { return cmp.Compare(a.CPU, b.CPU) })
	return out
}

// Reset drops all baselines and statistics.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.last)
	t.stats.Clear()
}
