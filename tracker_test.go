package cpuinstr_test

import (
	"context"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ygrebnov/cpuinstr"
	"github.com/ygrebnov/cpuinstr/perftest"
)

func newTrackedReader(t *testing.T, cpus int) (*perftest.Backend, *cpuinstr.Reader) {
	t.Helper()
	b := perftest.New()
	r, err := cpuinstr.NewReader(cpuinstr.WithBackend(b), fixedCPUs(cpus))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return b, r
}

func TestTracker_Observe(t *testing.T) {
	b, r := newTrackedReader(t, 2)
	clock := quartz.NewMock(t)
	tr := cpuinstr.NewTracker(r, cpuinstr.WithClock(clock))

	// The first observation only sets baselines.
	b.SetCount(0, 1000)
	b.SetCount(1, 50)
	require.NoError(t, tr.Observe())
	_, ok := tr.Stats(0)
	require.False(t, ok)
	require.Empty(t, tr.List())

	clock.Advance(time.Second)
	b.AddCount(0, 300)
	b.AddCount(1, 10)
	require.NoError(t, tr.Observe())

	clock.Advance(time.Second)
	b.AddCount(0, 100)
	b.AddCount(1, 30)
	require.NoError(t, tr.Observe())

	s0, ok := tr.Stats(0)
	require.True(t, ok)
	require.Equal(t, cpuinstr.DeltaStats{
		CPU:          0,
		Observations: 2,
		Total:        400,
		Min:          100,
		Max:          300,
		Mean:         200,
		Last:         100,
		Elapsed:      2 * time.Second,
	}, s0)
	require.Equal(t, cpuinstr.Count(200), s0.PerSecond())

	list := tr.List()
	require.Len(t, list, 2)
	require.Equal(t, 0, list[0].CPU)
	require.Equal(t, 1, list[1].CPU)
	require.Equal(t, cpuinstr.Count(40), list[1].Total)
	require.Equal(t, cpuinstr.Count(10), list[1].Min)
	require.Equal(t, cpuinstr.Count(30), list[1].Max)
}

func TestTracker_FailedReadKeepsBaseline(t *testing.T) {
	b, r := newTrackedReader(t, 1)
	clock := quartz.NewMock(t)
	tr := cpuinstr.NewTracker(r, cpuinstr.WithClock(clock))

	b.SetCount(0, 10)
	require.NoError(t, tr.Observe())

	clock.Advance(time.Second)
	b.AddCount(0, 5)
	b.FailRead(0, true)
	require.ErrorContains(t, tr.Observe(), "cpu 0")
	_, ok := tr.Stats(0)
	require.False(t, ok)

	clock.Advance(time.Second)
	b.FailRead(0, false)
	b.AddCount(0, 5)
	require.NoError(t, tr.Observe())

	s, ok := tr.Stats(0)
	require.True(t, ok)
	require.Equal(t, int64(1), s.Observations)
	require.Equal(t, cpuinstr.Count(10), s.Total)
	require.Equal(t, 2*time.Second, s.Elapsed)
}

func TestTracker_Reset(t *testing.T) {
	b, r := newTrackedReader(t, 1)
	tr := cpuinstr.NewTracker(r, cpuinstr.WithClock(quartz.NewMock(t)))

	require.NoError(t, tr.Observe())
	b.AddCount(0, 7)
	require.NoError(t, tr.Observe())
	require.Len(t, tr.List(), 1)

	tr.Reset()
	require.Empty(t, tr.List())

	// After a reset the next observation is a new baseline.
	b.AddCount(0, 7)
	require.NoError(t, tr.Observe())
	require.Empty(t, tr.List())
}

func TestTracker_StatsAreCopies(t *testing.T) {
	b, r := newTrackedReader(t, 1)
	tr := cpuinstr.NewTracker(r, cpuinstr.WithClock(quartz.NewMock(t)))

	require.NoError(t, tr.Observe())
	b.AddCount(0, 3)
	require.NoError(t, tr.Observe())

	list := tr.List()
	list[0].Total = 999
	s, _ := tr.Stats(0)
	require.Equal(t, cpuinstr.Count(3), s.Total)
}

func TestTracker_Run(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	b, r := newTrackedReader(t, 1)
	clock := quartz.NewMock(t)
	tr := cpuinstr.NewTracker(r,
		cpuinstr.WithClock(clock),
		cpuinstr.WithInterval(time.Second),
		cpuinstr.WithTrackerLogger(log.NewNopLogger()),
	)

	trap := clock.Trap().TickerFunc()
	defer trap.Close()

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- tr.Run(runCtx) }()

	call, err := trap.Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, call.Release(ctx))

	b.AddCount(0, 100)
	clock.Advance(time.Second).MustWait(ctx)
	b.AddCount(0, 50)
	clock.Advance(time.Second).MustWait(ctx)

	s, ok := tr.Stats(0)
	require.True(t, ok)
	require.Equal(t, int64(2), s.Observations)
	require.Equal(t, cpuinstr.Count(150), s.Total)
	require.Equal(t, cpuinstr.Count(75), s.PerSecond())

	stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("tracker did not stop")
	}
}

func TestTracker_RunRoundFunc(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	b, r := newTrackedReader(t, 1)
	clock := quartz.NewMock(t)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	rounds := make(chan int, 4)
	tr := cpuinstr.NewTracker(r,
		cpuinstr.WithClock(clock),
		cpuinstr.WithInterval(time.Second),
		cpuinstr.WithRoundFunc(func(round int) {
			rounds <- round
			if round == 2 {
				stop()
			}
		}),
	)

	trap := clock.Trap().TickerFunc()
	defer trap.Close()

	done := make(chan error, 1)
	go func() { done <- tr.Run(runCtx) }()

	call, err := trap.Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, call.Release(ctx))

	b.AddCount(0, 10)
	clock.Advance(time.Second).MustWait(ctx)
	b.AddCount(0, 20)
	clock.Advance(time.Second).MustWait(ctx)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("tracker did not stop after the last round")
	}
	close(rounds)
	var got []int
	for n := range rounds {
		got = append(got, n)
	}
	require.Equal(t, []int{1, 2}, got)

	s, ok := tr.Stats(0)
	require.True(t, ok)
	require.Equal(t, cpuinstr.Count(30), s.Total)
}

func TestTracker_SharedWithLockedReader(t *testing.T) {
	b, r := newTrackedReader(t, 2)
	l := cpuinstr.NewLockedReader(r)
	tr := cpuinstr.NewTracker(l, cpuinstr.WithClock(quartz.NewMock(t)))

	require.NoError(t, tr.Observe())
	b.AddCount(1, 11)
	require.NoError(t, tr.Observe())

	s, ok := tr.Stats(1)
	require.True(t, ok)
	require.Equal(t, cpuinstr.Count(11), s.Last)
}
