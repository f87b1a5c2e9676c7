package progression

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/meltforce/tempo/internal/clock"
	"github.com/meltforce/tempo/internal/models"
	"github.com/meltforce/tempo/internal/store"
)

// DefaultRest is used for exercises without a rest duration.
const DefaultRest = 60 * time.Second

// ErrSetNotFound is returned by UndoSet for an unknown set.
var ErrSetNotFound = errors.New("completed set not found")

// State is the position of a strength workout in its machine.
type State int

const (
	Exercising State = iota
	Resting
	Completed
)

func (s State) String() string {
	switch s {
	case Resting:
		return "resting"
	case Completed:
		return "completed"
	}
	return "exercising"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// StrengthStatus is derived from the stored progress and the current instant.
type StrengthStatus struct {
	State         State           `json:"state"`
	ExerciseIndex int             `json:"exercise_index"`
	SetIndex      int             `json:"set_index"`
	Exercise      models.Exercise `json:"exercise"`
	RepsTarget    string          `json:"reps_target"`
	RestRemaining time.Duration   `json:"rest_remaining"`
	Elapsed       time.Duration   `json:"elapsed"`
	SetsLogged    int             `json:"sets_logged"`
}

// DeriveStrength computes the status of a strength session at now. A rest
// window that has already ended reports Exercising with zero remaining.
func DeriveStrength(sess *models.Session, now time.Time) StrengthStatus {
	plan := sess.Payload.(models.StrengthPayload)
	prog := sess.Progress.(models.StrengthProgress)

	st := StrengthStatus{
		ExerciseIndex: prog.CurrentExerciseIndex,
		SetIndex:      prog.CurrentSetIndex,
		Elapsed:       clock.Elapsed(sess.StartInstant, now, 0),
	}
	for _, ex := range prog.CompletedExercises {
		st.SetsLogged += len(ex.CompletedSets)
	}
	if prog.CurrentExerciseIndex >= len(plan.Exercises) {
		st.State = Completed
		return st
	}
	st.Exercise = plan.Exercises[prog.CurrentExerciseIndex]
	st.RepsTarget = RepsForSet(st.Exercise, prog.CurrentSetIndex)
	if prog.Rest != nil {
		if r := clock.Until(prog.Rest.EndInstant, now); r > 0 {
			st.State = Resting
			st.RestRemaining = r
		}
	}
	return st
}

// restFor returns the rest duration configured for ex.
func restFor(ex models.Exercise) time.Duration {
	if ex.RestSeconds > 0 {
		return time.Duration(ex.RestSeconds) * time.Second
	}
	return DefaultRest
}

// withSkeleton makes sure there is a completed-exercise entry for every
// planned exercise.
func withSkeleton(plan models.StrengthPayload, prog models.StrengthProgress) models.StrengthProgress {
	if len(prog.CompletedExercises) >= len(plan.Exercises) {
		return prog
	}
	skel := models.InitialProgress(plan).(models.StrengthProgress)
	copy(skel.CompletedExercises, prog.CompletedExercises)
	prog.CompletedExercises = skel.CompletedExercises
	return prog
}

// completeSet logs a set and advances the machine. It reports whether the
// workout is now complete.
func completeSet(plan models.StrengthPayload, prog models.StrengthProgress, weight float64, now time.Time) (models.StrengthProgress, bool, error) {
	if prog.Rest != nil {
		if now.Before(prog.Rest.EndInstant) {
			return prog, false, ErrResting
		}
		prog.Rest = nil
	}
	i := prog.CurrentExerciseIndex
	if i >= len(plan.Exercises) {
		return prog, false, ErrCompleted
	}
	prog = withSkeleton(plan, prog)
	ex := plan.Exercises[i]

	raw := RepsForSet(ex, prog.CurrentSetIndex)
	done := &prog.CompletedExercises[i]
	done.CompletedSets = append(done.CompletedSets, models.CompletedSet{
		ID:      uuid.New(),
		Reps:    ParseReps(raw),
		Weight:  weight,
		RawReps: raw,
	})

	if prog.CurrentSetIndex < ex.Sets-1 {
		prog.CurrentSetIndex++
		prog.Rest = &models.RestWindow{EndInstant: now.Add(restFor(ex))}
		return prog, false, nil
	}
	return nextExercise(plan, prog)
}

// nextExercise moves to the first set of the following exercise, or
// completes the workout after the last one.
func nextExercise(plan models.StrengthPayload, prog models.StrengthProgress) (models.StrengthProgress, bool, error) {
	if prog.CurrentExerciseIndex >= len(plan.Exercises) {
		return prog, false, ErrCompleted
	}
	prog.Rest = nil
	prog.CurrentSetIndex = 0
	prog.CurrentExerciseIndex++
	return prog, prog.CurrentExerciseIndex >= len(plan.Exercises), nil
}

// previousExercise moves back one exercise. It is a no-op at the first.
func previousExercise(prog models.StrengthProgress) (models.StrengthProgress, bool) {
	if prog.CurrentExerciseIndex <= 0 {
		return prog, false
	}
	prog.CurrentExerciseIndex--
	prog.CurrentSetIndex = 0
	prog.Rest = nil
	return prog, true
}

// undoSet removes the set with the given identity. Undoing a set of the
// current exercise moves back to that set and drops the rest window.
func undoSet(plan models.StrengthPayload, prog models.StrengthProgress, id uuid.UUID) (models.StrengthProgress, error) {
	for i := range prog.CompletedExercises {
		sets := prog.CompletedExercises[i].CompletedSets
		j := slices.IndexFunc(sets, func(s models.CompletedSet) bool { return s.ID == id })
		if j < 0 {
			continue
		}
		prog.CompletedExercises[i].CompletedSets = slices.Delete(sets, j, j+1)
		if i == prog.CurrentExerciseIndex && i < len(plan.Exercises) {
			prog.CurrentSetIndex = min(len(prog.CompletedExercises[i].CompletedSets), plan.Exercises[i].Sets-1)
			prog.Rest = nil
		}
		return prog, nil
	}
	return prog, ErrSetNotFound
}

// Strength drives the exercise/set/rest machine of the active strength
// workout.
type Strength struct {
	base
}

// NewStrength returns a Strength controller over st.
func NewStrength(st *store.Store, opts Options) *Strength {
	return &Strength{base: newBase(st, opts)}
}

// Start begins a strength workout, replacing any active session.
func (s *Strength) Start(ctx context.Context, plan models.StrengthPayload) (StrengthStatus, error) {
	sess, err := s.store.Start(ctx, plan)
	if err != nil {
		return StrengthStatus{}, err
	}
	return DeriveStrength(sess, sess.StartInstant), nil
}

// Status re-derives the workout state from the stored instants. An expired
// rest window is resolved into Exercising and persisted.
func (s *Strength) Status(ctx context.Context) (StrengthStatus, error) {
	cur, err := s.active(models.KindStrength)
	if err != nil {
		return StrengthStatus{}, err
	}
	now, err := s.now(ctx)
	if err != nil {
		return StrengthStatus{}, err
	}
	if rest := cur.Progress.(models.StrengthProgress).Rest; rest == nil || now.Before(rest.EndInstant) {
		return DeriveStrength(cur, now), nil
	}

	updated, err := s.store.UpdateProgress(ctx, func(cur *models.Session, now time.Time) (models.Progress, error) {
		prog := cur.Progress.(models.StrengthProgress)
		if prog.Rest == nil || now.Before(prog.Rest.EndInstant) {
			return nil, nil
		}
		prog.Rest = nil
		return prog, nil
	})
	if err != nil {
		return StrengthStatus{}, err
	}
	s.log.Debug("rest window ended", "exercise", updated.Progress.(models.StrengthProgress).CurrentExerciseIndex)
	return DeriveStrength(updated, now), nil
}

// CompleteSet logs the current set at weight. After the last set of the
// last exercise the workout completes and its summary is returned.
func (s *Strength) CompleteSet(ctx context.Context, weight float64) (StrengthStatus, *models.Summary, error) {
	return s.step(ctx, func(plan models.StrengthPayload, prog models.StrengthProgress, now time.Time) (models.StrengthProgress, bool, error) {
		return completeSet(plan, prog, weight, now)
	})
}

// NextExercise skips to the next exercise; past the last one the workout
// completes.
func (s *Strength) NextExercise(ctx context.Context) (StrengthStatus, *models.Summary, error) {
	return s.step(ctx, func(plan models.StrengthPayload, prog models.StrengthProgress, _ time.Time) (models.StrengthProgress, bool, error) {
		return nextExercise(plan, withSkeleton(plan, prog))
	})
}

// PreviousExercise goes back one exercise. It is a no-op at the first.
func (s *Strength) PreviousExercise(ctx context.Context) (StrengthStatus, error) {
	cur, err := s.active(models.KindStrength)
	if err != nil {
		return StrengthStatus{}, err
	}
	if cur.Progress.(models.StrengthProgress).CurrentExerciseIndex == 0 {
		return s.Status(ctx)
	}
	st, _, err := s.step(ctx, func(_ models.StrengthPayload, prog models.StrengthProgress, _ time.Time) (models.StrengthProgress, bool, error) {
		prev, _ := previousExercise(prog)
		return prev, false, nil
	})
	return st, err
}

// SkipRest ends the rest window immediately.
func (s *Strength) SkipRest(ctx context.Context) (StrengthStatus, error) {
	st, _, err := s.step(ctx, func(_ models.StrengthPayload, prog models.StrengthProgress, _ time.Time) (models.StrengthProgress, bool, error) {
		prog.Rest = nil
		return prog, false, nil
	})
	return st, err
}

// UndoSet removes a logged set by identity.
func (s *Strength) UndoSet(ctx context.Context, id uuid.UUID) (StrengthStatus, error) {
	st, _, err := s.step(ctx, func(plan models.StrengthPayload, prog models.StrengthProgress, _ time.Time) (models.StrengthProgress, bool, error) {
		p, err := undoSet(plan, prog, id)
		return p, false, err
	})
	return st, err
}

// UndoLastSet removes the most recently logged set of the current or any
// earlier exercise.
func (s *Strength) UndoLastSet(ctx context.Context) (StrengthStatus, error) {
	cur, err := s.active(models.KindStrength)
	if err != nil {
		return StrengthStatus{}, err
	}
	prog := cur.Progress.(models.StrengthProgress)
	for i := min(prog.CurrentExerciseIndex, len(prog.CompletedExercises)-1); i >= 0; i-- {
		if sets := prog.CompletedExercises[i].CompletedSets; len(sets) > 0 {
			return s.UndoSet(ctx, sets[len(sets)-1].ID)
		}
	}
	return StrengthStatus{}, ErrSetNotFound
}

// Finish ends the workout early and logs the sets completed so far.
func (s *Strength) Finish(ctx context.Context) (models.Summary, error) {
	_, sum, err := s.step(ctx, func(_ models.StrengthPayload, prog models.StrengthProgress, _ time.Time) (models.StrengthProgress, bool, error) {
		prog.Rest = nil
		return prog, true, nil
	})
	if err != nil {
		return models.Summary{}, err
	}
	return *sum, nil
}

type strengthStep func(plan models.StrengthPayload, prog models.StrengthProgress, now time.Time) (models.StrengthProgress, bool, error)

// step applies fn through the store and finalizes the workout when fn
// reports completion.
func (s *Strength) step(ctx context.Context, fn strengthStep) (StrengthStatus, *models.Summary, error) {
	if _, err := s.active(models.KindStrength); err != nil {
		return StrengthStatus{}, nil, err
	}
	var (
		completed bool
		at        time.Time
	)
	updated, err := s.store.UpdateProgress(ctx, func(cur *models.Session, now time.Time) (models.Progress, error) {
		if cur.Kind != models.KindStrength {
			return nil, ErrWrongKind
		}
		next, done, err := fn(cur.Payload.(models.StrengthPayload), cur.Progress.(models.StrengthProgress), now)
		if err != nil {
			return nil, err
		}
		completed, at = done, now
		return next, nil
	})
	if err != nil {
		return StrengthStatus{}, nil, err
	}
	st := DeriveStrength(updated, at)
	if !completed {
		return st, nil, nil
	}

	prog := updated.Progress.(models.StrengthProgress)
	sum := s.finish(ctx, models.Summary{
		SessionID:          updated.ID.String(),
		Kind:               models.KindStrength,
		StartedAt:          updated.StartInstant,
		EndedAt:            at,
		DurationMinutes:    clock.RoundMinutes(clock.Elapsed(updated.StartInstant, at, 0)),
		CompletedExercises: prog.CompletedExercises,
		AvgHeartRate:       s.heartRate(ctx, updated.StartInstant, at),
	})
	return st, &sum, nil
}

// Describe renders a one-line view of st.
func (st StrengthStatus) Describe() string {
	switch st.State {
	case Completed:
		return fmt.Sprintf("completed, %d sets logged", st.SetsLogged)
	case Resting:
		return fmt.Sprintf("resting %ds before %s set %d", clock.WholeSeconds(st.RestRemaining), st.Exercise.Name, st.SetIndex+1)
	}
	return fmt.Sprintf("%s set %d/%d, reps %s", st.Exercise.Name, st.SetIndex+1, st.Exercise.Sets, st.RepsTarget)
}
