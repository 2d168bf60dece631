// Package ratelimit bounds outbound throughput with a fixed-window soft
// limiter. A single call may push the window over its ceiling; the calls
// after it are held back until the window closes, and whatever went over the
// ceiling is charged to the windows that follow.
package ratelimit

import (
	"context"
	"math"
	"time"
)

type Config struct {
	// BytesPerSecond and RecordsPerSecond are the ceilings. Zero disables
	// the dimension.
	BytesPerSecond   float64
	RecordsPerSecond float64
	// Interval is the length of the measurement window.
	Interval time.Duration
}

// Limiter is not safe for concurrent use; the relay consults it from a
// single goroutine.
type Limiter struct {
	maxBytes   float64
	maxRecords float64
	interval   time.Duration

	start   time.Time
	bytes   float64
	records float64

	now   func() time.Time
	sleep func(context.Context, time.Duration) error

	// OnThrottle is called with the duration of every wait.
	OnThrottle func(time.Duration)
}

func New(cfg Config) *Limiter {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	secs := cfg.Interval.Seconds()
	l := &Limiter{
		maxBytes:   cfg.BytesPerSecond * secs,
		maxRecords: cfg.RecordsPerSecond * secs,
		interval:   cfg.Interval,
		now:        time.Now,
		sleep:      sleepCtx,
	}
	l.start = l.now()
	return l
}

// CheckRate must be called once per record right before it is handed to the
// transport. It blocks while the current window is at or above either
// ceiling, then accounts for n bytes and one record.
func (l *Limiter) CheckRate(ctx context.Context, n int) error {
	if now := l.now(); now.Sub(l.start) >= l.interval {
		l.roll(now)
	}

	for l.exhausted() {
		wait := l.interval - l.now().Sub(l.start)
		if wait > 0 {
			if err := l.sleep(ctx, wait); err != nil {
				return err
			}
			if l.OnThrottle != nil {
				l.OnThrottle(wait)
			}
		}
		l.roll(l.now())
	}

	l.bytes += float64(n)
	l.records++
	return nil
}

func (l *Limiter) exhausted() bool {
	if l.maxBytes > 0 && l.bytes >= l.maxBytes {
		return true
	}
	return l.maxRecords > 0 && l.records >= l.maxRecords
}

// roll starts a new window at now. Each whole interval that has passed
// pays off one ceiling of the accumulated usage; the rest carries over.
func (l *Limiter) roll(now time.Time) {
	windows := float64(now.Sub(l.start) / l.interval)
	if windows < 1 {
		windows = 1
	}
	l.bytes = carry(l.bytes, l.maxBytes, windows)
	l.records = carry(l.records, l.maxRecords, windows)
	l.start = now
}

func carry(used, ceiling, windows float64) float64 {
	if ceiling <= 0 {
		return 0
	}
	return math.Max(0, used-ceiling*windows)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
