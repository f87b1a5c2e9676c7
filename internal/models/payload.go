package models

import (
	"time"

	"github.com/google/uuid"
)

// Exercise is one entry of a strength workout plan.
// Reps is free text: "10", "12-10-8", "max".
type Exercise struct {
	Name        string `json:"name"`
	Notes       string `json:"notes,omitempty"`
	Sets        int    `json:"sets"`
	Reps        string `json:"reps"`
	RestSeconds int    `json:"rest_seconds,omitempty"`
}

// StrengthPayload defines a planned strength workout.
type StrengthPayload struct {
	Name      string     `json:"name"`
	Exercises []Exercise `json:"exercises"`
}

func (StrengthPayload) Kind() Kind { return KindStrength }

// FreePayload defines an open-ended workout with a free-running timer.
type FreePayload struct {
	Name string `json:"name,omitempty"`
}

func (FreePayload) Kind() Kind { return KindFree }

// RunPayload defines a timed run.
type RunPayload struct {
	DurationMinutes int `json:"duration_minutes"`
}

func (RunPayload) Kind() Kind { return KindRun }

// Planned returns the planned run duration.
func (p RunPayload) Planned() time.Duration {
	return time.Duration(p.DurationMinutes) * time.Minute
}

// ScriptSegment is one step of a generated meditation script.
type ScriptSegment struct {
	Text            string  `json:"text"`
	Band            string  `json:"band,omitempty"`
	DurationSeconds float64 `json:"duration"`
}

// AudioSegment is one entry of a binaural schedule.
type AudioSegment struct {
	FrequencyOffsetHz float64 `json:"frequency_offset_hz"`
	DurationSeconds   float64 `json:"duration_seconds"`
}

// AudioSchedule is built once when a meditation starts and never mutated.
type AudioSchedule []AudioSegment

// Total returns the summed duration of all segments.
func (s AudioSchedule) Total() float64 {
	var total float64
	for _, seg := range s {
		total += seg.DurationSeconds
	}
	return total
}

// MeditationPayload defines a guided meditation with binaural audio.
type MeditationPayload struct {
	Theme           string          `json:"theme"`
	DurationMinutes int             `json:"duration_minutes"`
	Script          []ScriptSegment `json:"script,omitempty"`
	Schedule        AudioSchedule   `json:"schedule"`
}

func (MeditationPayload) Kind() Kind { return KindMeditation }

// Planned returns the planned meditation duration.
func (p MeditationPayload) Planned() time.Duration {
	return time.Duration(p.DurationMinutes) * time.Minute
}

// CompletedSet is an immutable record of one finished set.
type CompletedSet struct {
	ID      uuid.UUID `json:"id"`
	Reps    int       `json:"reps"`
	Weight  float64   `json:"weight"`
	RawReps string    `json:"raw_reps"`
}

// CompletedExercise collects the sets logged for one exercise.
type CompletedExercise struct {
	ExerciseName  string         `json:"exercise_name"`
	Notes         string         `json:"notes,omitempty"`
	Sets          int            `json:"sets"`
	Reps          string         `json:"reps"`
	CompletedSets []CompletedSet `json:"completed_sets"`
}

// RestWindow is a rest countdown stored as its absolute end.
type RestWindow struct {
	EndInstant time.Time `json:"end_instant"`
}

// StrengthProgress is the progression sub-state of a strength workout.
type StrengthProgress struct {
	CurrentExerciseIndex int                 `json:"current_exercise_index"`
	CurrentSetIndex      int                 `json:"current_set_index"`
	CompletedExercises   []CompletedExercise `json:"completed_exercises"`
	Rest                 *RestWindow         `json:"rest,omitempty"`
}

func (StrengthProgress) Kind() Kind { return KindStrength }

func (p StrengthProgress) Clone() Progress {
	c := p
	if p.Rest != nil {
		r := *p.Rest
		c.Rest = &r
	}
	if p.CompletedExercises != nil {
		c.CompletedExercises = make([]CompletedExercise, len(p.CompletedExercises))
		for i, ex := range p.CompletedExercises {
			ex.CompletedSets = append([]CompletedSet{}, ex.CompletedSets...)
			c.CompletedExercises[i] = ex
		}
	}
	return c
}

// Timer tracks pauses of a free-running timer. The session start instant is
// never moved; paused time accumulates instead.
type Timer struct {
	PausedAt          *time.Time    `json:"paused_at,omitempty"`
	AccumulatedPaused time.Duration `json:"accumulated_paused"`
}

// Paused reports whether the timer is currently paused.
func (t Timer) Paused() bool {
	return t.PausedAt != nil
}

// PausedTotal returns all paused time up to now, including an open pause.
func (t Timer) PausedTotal(now time.Time) time.Duration {
	total := t.AccumulatedPaused
	if t.PausedAt != nil && now.After(*t.PausedAt) {
		total += now.Sub(*t.PausedAt)
	}
	return total
}

// Pause opens a pause at now. Pausing twice is a no-op.
func (t Timer) Pause(now time.Time) Timer {
	if t.PausedAt != nil {
		return t
	}
	t.PausedAt = &now
	return t
}

// Resume closes an open pause at now.
func (t Timer) Resume(now time.Time) Timer {
	if t.PausedAt == nil {
		return t
	}
	t.AccumulatedPaused = t.PausedTotal(now)
	t.PausedAt = nil
	return t
}

func (t Timer) clone() Timer {
	if t.PausedAt != nil {
		p := *t.PausedAt
		t.PausedAt = &p
	}
	return t
}

// FreeProgress is the sub-state of a free workout.
type FreeProgress struct {
	Timer
}

func (FreeProgress) Kind() Kind        { return KindFree }
func (p FreeProgress) Clone() Progress { return FreeProgress{Timer: p.Timer.clone()} }

// RunProgress is the sub-state of a timed run.
type RunProgress struct {
	Timer
}

func (RunProgress) Kind() Kind        { return KindRun }
func (p RunProgress) Clone() Progress { return RunProgress{Timer: p.Timer.clone()} }

// MeditationProgress is the last position reported by the audio engine.
type MeditationProgress struct {
	PositionSeconds float64 `json:"position_seconds"`
	Paused          bool    `json:"paused"`
	Volume          float64 `json:"volume"`
}

func (MeditationProgress) Kind() Kind        { return KindMeditation }
func (p MeditationProgress) Clone() Progress { return p }
