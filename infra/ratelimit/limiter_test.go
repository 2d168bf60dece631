package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t     time.Time
	slept []time.Duration
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(_ context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	c.t = c.t.Add(d)
	return nil
}

func newFake(cfg Config) (*Limiter, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := New(cfg)
	l.now = clk.now
	l.sleep = clk.sleep
	l.start = clk.t
	return l, clk
}

func TestBurstIsSpreadOverWindows(t *testing.T) {
	const (
		ceiling = 100
		recSize = 25
		records = 40
	)
	l, clk := newFake(Config{BytesPerSecond: ceiling, Interval: time.Second})
	begin := clk.t

	for i := 0; i < records; i++ {
		require.NoError(t, l.CheckRate(context.Background(), recSize))
	}

	elapsed := clk.t.Sub(begin)
	want := time.Duration(float64(records*recSize) / ceiling * float64(time.Second))
	require.GreaterOrEqual(t, elapsed, want-time.Second)
}

func TestSoftLimitAllowsOvershootThenThrottles(t *testing.T) {
	l, clk := newFake(Config{BytesPerSecond: 100, Interval: time.Second})

	// One large record pushes the window over the ceiling without waiting.
	require.NoError(t, l.CheckRate(context.Background(), 500))
	require.Empty(t, clk.slept)

	// The next call waits out this window and the four the overshoot used up.
	clk.t = clk.t.Add(300 * time.Millisecond)
	require.NoError(t, l.CheckRate(context.Background(), 10))
	require.Equal(t, []time.Duration{
		700 * time.Millisecond, time.Second, time.Second, time.Second, time.Second,
	}, clk.slept)
}

func TestWallClockBoundForUnevenRecords(t *testing.T) {
	const (
		ceiling = 100
		records = 100
	)
	for _, recSize := range []int{25, 60, 99, 100, 101, 250} {
		t.Run(fmt.Sprintf("rec=%d", recSize), func(t *testing.T) {
			l, clk := newFake(Config{BytesPerSecond: ceiling, Interval: time.Second})
			begin := clk.t
			for i := 0; i < records; i++ {
				require.NoError(t, l.CheckRate(context.Background(), recSize))
			}
			elapsed := clk.t.Sub(begin)

			total := float64(records * recSize)
			ideal := time.Duration(total / ceiling * float64(time.Second))
			// The final record is never waited for, and it may land in a
			// window that is one interval short of paid off.
			slack := time.Second + time.Duration(float64(recSize)/ceiling*float64(time.Second))
			require.GreaterOrEqual(t, elapsed, ideal-slack)
			require.LessOrEqual(t, elapsed, ideal, "throughput must reach the ceiling")
		})
	}
}

func TestRecordCeiling(t *testing.T) {
	l, clk := newFake(Config{RecordsPerSecond: 2, Interval: 500 * time.Millisecond})

	// 2/s over 500ms is one record per window.
	for i := 0; i < 4; i++ {
		require.NoError(t, l.CheckRate(context.Background(), 1))
	}
	require.Len(t, clk.slept, 3)
	for _, d := range clk.slept {
		require.Equal(t, 500*time.Millisecond, d)
	}
}

func TestIdleWindowsPayOffOvershoot(t *testing.T) {
	l, clk := newFake(Config{BytesPerSecond: 10, Interval: time.Second})

	require.NoError(t, l.CheckRate(context.Background(), 50))
	clk.t = clk.t.Add(5 * time.Second)
	require.NoError(t, l.CheckRate(context.Background(), 5))
	require.Empty(t, clk.slept)

	// 5 bytes carried nothing over; a quiet window resets fully.
	clk.t = clk.t.Add(time.Second)
	require.NoError(t, l.CheckRate(context.Background(), 5))
	require.Empty(t, clk.slept)
}

func TestPartlyIdleWindowsStillOwe(t *testing.T) {
	l, clk := newFake(Config{BytesPerSecond: 10, Interval: time.Second})

	require.NoError(t, l.CheckRate(context.Background(), 50))
	clk.t = clk.t.Add(2 * time.Second)
	require.NoError(t, l.CheckRate(context.Background(), 5))
	// two idle windows paid 20 of the 50; the remaining 30 cost three more
	require.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, clk.slept)
}

func TestDisabledCeilingsNeverWait(t *testing.T) {
	l, clk := newFake(Config{Interval: time.Second})
	for i := 0; i < 1000; i++ {
		require.NoError(t, l.CheckRate(context.Background(), 1<<20))
	}
	require.Empty(t, clk.slept)
}

func TestOnThrottle(t *testing.T) {
	l, _ := newFake(Config{RecordsPerSecond: 1, Interval: time.Second})
	var total time.Duration
	l.OnThrottle = func(d time.Duration) { total += d }

	require.NoError(t, l.CheckRate(context.Background(), 1))
	require.NoError(t, l.CheckRate(context.Background(), 1))
	require.Equal(t, time.Second, total)
}

func TestCheckRateCancelled(t *testing.T) {
	l := New(Config{BytesPerSecond: 1, Interval: time.Hour})
	require.NoError(t, l.CheckRate(context.Background(), 4000))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, l.CheckRate(ctx, 1), context.Canceled)
}
