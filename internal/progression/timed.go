package progression

import (
	"context"
	"math"
	"time"

	"github.com/meltforce/tempo/internal/clock"
	"github.com/meltforce/tempo/internal/models"
	"github.com/meltforce/tempo/internal/store"
)

// Run estimates per minute of running.
const (
	KmPerMinute   = 0.15
	KcalPerMinute = 10
)

// TimerStatus is the derived view of a free workout or run.
type TimerStatus struct {
	Kind      models.Kind   `json:"kind"`
	Elapsed   time.Duration `json:"elapsed"`
	Planned   time.Duration `json:"planned,omitempty"`
	Remaining time.Duration `json:"remaining,omitempty"`
	Paused    bool          `json:"paused"`
	Completed bool          `json:"completed"`
}

// DeriveTimer computes the status of a free or run session at now.
func DeriveTimer(sess *models.Session, now time.Time) TimerStatus {
	t := timerOf(sess.Progress)
	st := TimerStatus{
		Kind:    sess.Kind,
		Elapsed: clock.Elapsed(sess.StartInstant, now, t.PausedTotal(now)),
		Paused:  t.Paused(),
	}
	if p, ok := sess.Payload.(models.RunPayload); ok {
		st.Planned = p.Planned()
		st.Remaining = clock.Remaining(sess.StartInstant, now, st.Planned, t.PausedTotal(now))
		st.Completed = st.Planned > 0 && st.Remaining == 0
	}
	return st
}

func timerOf(p models.Progress) models.Timer {
	switch v := p.(type) {
	case models.FreeProgress:
		return v.Timer
	case models.RunProgress:
		return v.Timer
	}
	return models.Timer{}
}

func withTimer(p models.Progress, t models.Timer) models.Progress {
	switch p.(type) {
	case models.FreeProgress:
		return models.FreeProgress{Timer: t}
	case models.RunProgress:
		return models.RunProgress{Timer: t}
	}
	return nil
}

// Timed drives the pausable timer of a free workout or a timed run.
type Timed struct {
	base
	kind models.Kind
}

// NewFree returns a controller for free workouts.
func NewFree(st *store.Store, opts Options) *Timed {
	return &Timed{base: newBase(st, opts), kind: models.KindFree}
}

// NewRun returns a controller for timed runs.
func NewRun(st *store.Store, opts Options) *Timed {
	return &Timed{base: newBase(st, opts), kind: models.KindRun}
}

// Start begins the session, replacing any active one.
func (t *Timed) Start(ctx context.Context, payload models.Payload) (TimerStatus, error) {
	if payload.Kind() != t.kind {
		return TimerStatus{}, ErrWrongKind
	}
	sess, err := t.store.Start(ctx, payload)
	if err != nil {
		return TimerStatus{}, err
	}
	return DeriveTimer(sess, sess.StartInstant), nil
}

// Status re-derives the timer. A run whose remaining time has reached zero
// completes and its summary is returned.
func (t *Timed) Status(ctx context.Context) (TimerStatus, *models.Summary, error) {
	cur, err := t.active(t.kind)
	if err != nil {
		return TimerStatus{}, nil, err
	}
	now, err := t.now(ctx)
	if err != nil {
		return TimerStatus{}, nil, err
	}
	st := DeriveTimer(cur, now)
	if st.Completed {
		sum := t.summarize(ctx, cur, now)
		return st, &sum, nil
	}
	return st, nil, nil
}

// Pause stops the timer. Pausing a paused timer is a no-op.
func (t *Timed) Pause(ctx context.Context) (TimerStatus, error) {
	return t.mutate(ctx, models.Timer.Pause)
}

// Resume restarts a paused timer.
func (t *Timed) Resume(ctx context.Context) (TimerStatus, error) {
	return t.mutate(ctx, models.Timer.Resume)
}

func (t *Timed) mutate(ctx context.Context, op func(models.Timer, time.Time) models.Timer) (TimerStatus, error) {
	if _, err := t.active(t.kind); err != nil {
		return TimerStatus{}, err
	}
	var at time.Time
	updated, err := t.store.UpdateProgress(ctx, func(cur *models.Session, now time.Time) (models.Progress, error) {
		if cur.Kind != t.kind {
			return nil, ErrWrongKind
		}
		at = now
		before := timerOf(cur.Progress)
		after := op(before, now)
		if after.Paused() == before.Paused() {
			return nil, nil
		}
		return withTimer(cur.Progress, after), nil
	})
	if err != nil {
		return TimerStatus{}, err
	}
	return DeriveTimer(updated, at), nil
}

// Finish ends the session on user request and returns its summary.
func (t *Timed) Finish(ctx context.Context) (models.Summary, error) {
	cur, err := t.active(t.kind)
	if err != nil {
		return models.Summary{}, err
	}
	now, err := t.now(ctx)
	if err != nil {
		return models.Summary{}, err
	}
	return t.summarize(ctx, cur, now), nil
}

func (t *Timed) summarize(ctx context.Context, sess *models.Session, now time.Time) models.Summary {
	st := DeriveTimer(sess, now)
	sum := models.Summary{
		SessionID: sess.ID.String(),
		Kind:      sess.Kind,
		StartedAt: sess.StartInstant,
		EndedAt:   now,
	}
	switch sess.Kind {
	case models.KindRun:
		elapsed := min(st.Elapsed, st.Planned)
		minutes := elapsed.Minutes()
		sum.DurationMinutes = clock.RoundMinutes(elapsed)
		sum.PlannedMinutes = clock.RoundMinutes(st.Planned)
		sum.DistanceKm = math.Round(minutes*KmPerMinute*100) / 100
		sum.Calories = int(math.Round(minutes * KcalPerMinute))
	default:
		sum.DurationMinutes = clock.FloorMinutes(st.Elapsed)
	}
	return t.finish(ctx, sum)
}
