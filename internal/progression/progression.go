// Package progression drives the sub-state of an active session: the
// exercise/set/rest machine of strength workouts, free and timed run timers,
// and the meditation audio controller. Controllers never hold a session;
// every mutation goes through the store.
package progression

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/meltforce/tempo/internal/clock"
	"github.com/meltforce/tempo/internal/models"
	"github.com/meltforce/tempo/internal/store"
)

var (
	// ErrResting is returned when a set is logged during an open rest window.
	ErrResting = errors.New("rest in progress")
	// ErrCompleted is returned when the workout has no exercise left.
	ErrCompleted = errors.New("workout already completed")
	// ErrWrongKind is returned when the active session belongs to another
	// controller.
	ErrWrongKind = errors.New("active session has a different kind")
)

// CompletionFunc receives the summary of a session that completed or was
// finished by the user. The caller owns history logging.
type CompletionFunc func(models.Summary)

// HeartRateSource reports the average heart rate over a window.
type HeartRateSource interface {
	AverageHeartRate(ctx context.Context, start, end time.Time) (int, error)
}

// Options is shared by every controller.
type Options struct {
	OnComplete CompletionFunc
	// HeartRate is optional; without it a placeholder average is reported.
	HeartRate HeartRateSource
	Logger    *slog.Logger
}

type base struct {
	store      *store.Store
	onComplete CompletionFunc
	hr         HeartRateSource
	log        *slog.Logger
}

func newBase(st *store.Store, opts Options) base {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return base{store: st, onComplete: opts.OnComplete, hr: opts.HeartRate, log: log}
}

// now reads the store clock. Without a clock the session cannot be
// tracked, so it is aborted.
func (b base) now(ctx context.Context) (time.Time, error) {
	now, err := clock.Read(b.store.Clock())
	if err != nil {
		b.log.Error("aborting session", "error", err)
		b.store.Clear(ctx)
	}
	return now, err
}

// active returns the active session if it has kind k, after picking up
// writes made by other processes.
func (b base) active(k models.Kind) (*models.Session, error) {
	b.store.Refresh()
	cur := b.store.Current()
	if cur == nil {
		return nil, store.ErrNoActiveSession
	}
	if cur.Kind != k {
		return nil, ErrWrongKind
	}
	return cur, nil
}

// finish emits the summary and destroys the session.
func (b base) finish(ctx context.Context, sum models.Summary) models.Summary {
	b.log.Info("session completed", "id", sum.SessionID, "kind", sum.Kind, "minutes", sum.DurationMinutes)
	b.store.Clear(ctx)
	if b.onComplete != nil {
		b.onComplete(sum)
	}
	return sum
}

func (b base) heartRate(ctx context.Context, start, end time.Time) *int {
	if b.hr != nil {
		avg, err := b.hr.AverageHeartRate(ctx, start, end)
		if err == nil && avg > 0 {
			return &avg
		}
		if err != nil {
			b.log.Warn("reading heart rate", "error", err)
		}
	}
	avg := PlaceholderHeartRate()
	return &avg
}

// PlaceholderHeartRate synthesizes an average in [120,160) bpm for sessions
// without a sensor.
func PlaceholderHeartRate() int {
	return 120 + rand.IntN(40)
}
