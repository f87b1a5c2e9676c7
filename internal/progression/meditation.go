package progression

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/meltforce/tempo/internal/audio"
	"github.com/meltforce/tempo/internal/clock"
	"github.com/meltforce/tempo/internal/models"
	"github.com/meltforce/tempo/internal/store"
)

// DefaultPositionSave is how often a playing meditation persists its
// position.
const DefaultPositionSave = 5 * time.Second

// MeditationOptions configures a Meditation controller.
type MeditationOptions struct {
	Options
	// PollInterval is passed to the audio engine.
	PollInterval time.Duration
	// PositionSave defaults to DefaultPositionSave.
	PositionSave time.Duration
}

// MeditationStatus is the derived view of a meditation.
type MeditationStatus struct {
	Theme     string  `json:"theme"`
	Position  float64 `json:"position_seconds"`
	Total     float64 `json:"total_seconds"`
	Remaining float64 `json:"remaining_seconds"`
	Paused    bool    `json:"paused"`
	Playing   bool    `json:"playing"`
	Volume    float64 `json:"volume"`
}

// DeriveMeditation computes the status of a meditation from its persisted
// position.
func DeriveMeditation(sess *models.Session) MeditationStatus {
	plan := sess.Payload.(models.MeditationPayload)
	prog := sess.Progress.(models.MeditationProgress)
	total := plan.Schedule.Total()
	return MeditationStatus{
		Theme:     plan.Theme,
		Position:  prog.PositionSeconds,
		Total:     total,
		Remaining: max(total-prog.PositionSeconds, 0),
		Paused:    prog.Paused,
		Volume:    prog.Volume,
	}
}

// Meditation binds the audio engine to the active meditation session. It
// persists the position on pause and periodically while playing, and logs
// the actual duration when the schedule ends.
type Meditation struct {
	base
	engine *audio.Engine
	every  time.Duration

	mu       sync.Mutex
	lastSave time.Time

	unregister func()
}

// NewMeditation returns a controller playing through graphs built by
// factory. The engine is torn down whenever the store clears the session.
func NewMeditation(st *store.Store, factory audio.Factory, opts MeditationOptions) *Meditation {
	every := opts.PositionSave
	if every <= 0 {
		every = DefaultPositionSave
	}
	m := &Meditation{base: newBase(st, opts.Options), every: every}
	m.engine = audio.NewEngine(factory, audio.Options{
		PollInterval: opts.PollInterval,
		OnPosition:   m.onPosition,
		OnFinished:   m.onFinished,
		Logger:       m.log,
	})
	m.unregister = st.OnTeardown(m.engine.Stop)
	return m
}

// Engine exposes the underlying audio engine.
func (m *Meditation) Engine() *audio.Engine { return m.engine }

// Start begins a meditation on theme, replacing any active session. The
// schedule follows script when given, the theme band otherwise. The audio
// graph is built first, so a missing output leaves the active session alone.
func (m *Meditation) Start(ctx context.Context, theme string, minutes int, script []models.ScriptSegment) (MeditationStatus, error) {
	schedule := audio.BuildSchedule(script)
	if len(schedule) == 0 {
		if minutes <= 0 {
			return MeditationStatus{}, fmt.Errorf("meditation %q needs a duration or a script", theme)
		}
		schedule = audio.ThemeSchedule(theme, minutes)
	}
	if minutes <= 0 {
		minutes = clock.RoundMinutes(time.Duration(schedule.Total() * float64(time.Second)))
	}
	if err := m.engine.Prepare(); err != nil {
		return MeditationStatus{}, fmt.Errorf("cannot start session: %w", err)
	}

	sess, err := m.store.Start(ctx, models.MeditationPayload{
		Theme:           theme,
		DurationMinutes: minutes,
		Script:          script,
		Schedule:        schedule,
	})
	if err != nil {
		return MeditationStatus{}, err
	}
	m.log.Info("meditation started", "id", sess.ID, "theme", theme, "minutes", minutes)

	if err := m.Play(ctx); err != nil {
		m.store.Clear(ctx)
		return MeditationStatus{}, fmt.Errorf("cannot start session: %w", err)
	}
	return m.Status(ctx)
}

// Play starts or resumes audio. After a process restart playback continues
// from the persisted position.
func (m *Meditation) Play(ctx context.Context) error {
	cur, err := m.active(models.KindMeditation)
	if err != nil {
		return err
	}
	plan := cur.Payload.(models.MeditationPayload)
	prog := cur.Progress.(models.MeditationProgress)

	m.engine.SetVolume(prog.Volume)
	if m.engine.Scheduled() {
		err = m.engine.Start(ctx, plan.Schedule, plan.Schedule.Total())
	} else {
		err = m.engine.StartFrom(ctx, plan.Schedule, plan.Schedule.Total(), prog.PositionSeconds)
	}
	if err != nil {
		return err
	}
	return m.save(ctx, m.engine.Elapsed(), false)
}

// Pause suspends audio and persists the frozen position. Without
// programmed audio the persisted position is kept.
func (m *Meditation) Pause(ctx context.Context) error {
	cur, err := m.active(models.KindMeditation)
	if err != nil {
		return err
	}
	if !m.engine.Scheduled() {
		return m.save(ctx, cur.Progress.(models.MeditationProgress).PositionSeconds, true)
	}
	if err := m.engine.Pause(ctx); err != nil {
		return err
	}
	return m.save(ctx, m.engine.Elapsed(), true)
}

// SetVolume applies and persists level, clamped to [0,1].
func (m *Meditation) SetVolume(ctx context.Context, level float64) error {
	if _, err := m.active(models.KindMeditation); err != nil {
		return err
	}
	m.engine.SetVolume(level)
	vol := m.engine.Volume()
	_, err := m.store.UpdateProgress(ctx, func(cur *models.Session, _ time.Time) (models.Progress, error) {
		prog, ok := cur.Progress.(models.MeditationProgress)
		if !ok {
			return nil, ErrWrongKind
		}
		prog.Volume = vol
		return prog, nil
	})
	return err
}

// Status reports the live engine position when audio is programmed and the
// persisted one otherwise.
func (m *Meditation) Status(ctx context.Context) (MeditationStatus, error) {
	cur, err := m.active(models.KindMeditation)
	if err != nil {
		return MeditationStatus{}, err
	}
	st := DeriveMeditation(cur)
	if m.engine.Scheduled() {
		st.Position = min(m.engine.Elapsed(), st.Total)
		st.Remaining = max(st.Total-st.Position, 0)
		st.Playing = m.engine.Playing()
		st.Paused = !st.Playing
		st.Volume = m.engine.Volume()
	}
	return st, nil
}

// Finish ends the meditation early and logs the time actually played.
func (m *Meditation) Finish(ctx context.Context) (models.Summary, error) {
	st, err := m.Status(ctx)
	if err != nil {
		return models.Summary{}, err
	}
	return m.complete(ctx, st.Position)
}

// Close detaches the controller from the store and releases audio.
func (m *Meditation) Close() {
	m.unregister()
	m.engine.Close()
}

func (m *Meditation) save(ctx context.Context, pos float64, paused bool) error {
	_, err := m.store.UpdateProgress(ctx, func(cur *models.Session, now time.Time) (models.Progress, error) {
		prog, ok := cur.Progress.(models.MeditationProgress)
		if !ok {
			return nil, ErrWrongKind
		}
		prog.PositionSeconds = pos
		prog.Paused = paused
		m.mu.Lock()
		m.lastSave = now
		m.mu.Unlock()
		return prog, nil
	})
	return err
}

// onPosition runs on the engine polling loop.
func (m *Meditation) onPosition(pos float64) {
	now, err := clock.Read(m.store.Clock())
	if err != nil {
		return
	}
	m.mu.Lock()
	due := now.Sub(m.lastSave) >= m.every
	m.mu.Unlock()
	if !due {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.save(ctx, pos, false); err != nil {
		m.log.Debug("saving meditation position", "error", err)
	}
}

// onFinished runs once the schedule has played to its end.
func (m *Meditation) onFinished(actual float64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := m.complete(ctx, actual); err != nil {
		m.log.Warn("finalizing meditation", "error", err)
	}
}

func (m *Meditation) complete(ctx context.Context, actual float64) (models.Summary, error) {
	cur, err := m.active(models.KindMeditation)
	if err != nil {
		return models.Summary{}, err
	}
	now, err := m.now(ctx)
	if err != nil {
		return models.Summary{}, err
	}
	plan := cur.Payload.(models.MeditationPayload)
	return m.finish(ctx, models.Summary{
		SessionID:       cur.ID.String(),
		Kind:            models.KindMeditation,
		StartedAt:       cur.StartInstant,
		EndedAt:         now,
		DurationMinutes: clock.RoundMinutes(time.Duration(actual * float64(time.Second))),
		PlannedMinutes:  plan.DurationMinutes,
		Theme:           plan.Theme,
	}), nil
}
