// Package clock derives elapsed and remaining durations from absolute
// wall-clock instants. Nothing in here counts ticks: tickers only trigger a
// re-read of the clock.
package clock

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

// ErrUnavailable is returned when the clock cannot produce an instant.
var ErrUnavailable = errors.New("clock unavailable")

// Clock reports the current wall-clock instant.
type Clock interface {
	Now() time.Time
}

// System reads the operating system wall clock.
type System struct{}

// Now strips the monotonic reading: the monotonic clock stops while the
// machine is suspended, the wall clock does not.
func (System) Now() time.Time {
	return time.Now().Round(0)
}

// Read returns the current instant or ErrUnavailable.
func Read(c Clock) (time.Time, error) {
	if c == nil {
		return time.Time{}, ErrUnavailable
	}
	now := c.Now()
	if now.IsZero() {
		return time.Time{}, ErrUnavailable
	}
	return now, nil
}

// Elapsed returns now - start - paused, clamped at zero.
func Elapsed(start, now time.Time, paused time.Duration) time.Duration {
	d := now.Sub(start) - paused
	if d < 0 {
		return 0
	}
	return d
}

// Remaining returns total minus the elapsed time, clamped at zero.
func Remaining(start, now time.Time, total, paused time.Duration) time.Duration {
	r := total - Elapsed(start, now, paused)
	if r < 0 {
		return 0
	}
	return r
}

// Until returns end - now, clamped at zero.
func Until(end, now time.Time) time.Duration {
	d := end.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// WholeSeconds truncates d to whole seconds.
func WholeSeconds(d time.Duration) int {
	return int(d / time.Second)
}

// FloorMinutes truncates d to whole minutes.
func FloorMinutes(d time.Duration) int {
	return int(d / time.Minute)
}

// RoundMinutes rounds d to the nearest minute.
func RoundMinutes(d time.Duration) int {
	return int(math.Round(d.Minutes()))
}

// CeilMinutes rounds d up to the next whole minute.
func CeilMinutes(d time.Duration) int {
	return int(math.Ceil(d.Minutes()))
}

// Watch calls fn with a fresh clock reading on every tick until ctx is done.
// fn is also called once immediately.
func Watch(ctx context.Context, c Clock, interval time.Duration, fn func(now time.Time)) {
	fn(c.Now())

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if ctx.Err() != nil {
				return
			}
			fn(c.Now())
		}
	}
}

// Fake is a manually driven clock for tests and offline rendering.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a Fake clock set to t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Set moves the clock to t. A zero t makes the clock unavailable.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}
