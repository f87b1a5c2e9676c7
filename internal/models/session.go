package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the activity a Session tracks.
type Kind string

const (
	KindStrength   Kind = "strength_workout"
	KindFree       Kind = "free_workout"
	KindRun        Kind = "run"
	KindMeditation Kind = "meditation"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindStrength, KindFree, KindRun, KindMeditation:
		return true
	}
	return false
}

// ErrUnknownKind is returned when decoding a session with an unrecognised kind.
var ErrUnknownKind = errors.New("unknown session kind")

// Payload is the immutable, kind-specific definition fixed at session start.
type Payload interface {
	Kind() Kind
}

// Progress is the mutable, kind-specific sub-state of a session.
type Progress interface {
	Kind() Kind
	Clone() Progress
}

// Session is the single currently happening activity of a user.
// StartInstant is written once at creation and never moved.
type Session struct {
	ID           uuid.UUID
	Kind         Kind
	IsActive     bool
	Payload      Payload
	StartInstant time.Time
	Progress     Progress
	LastUpdated  time.Time
}

// NewSession creates an active session for payload starting at now, with
// the initial progress for its kind.
func NewSession(payload Payload, now time.Time) (*Session, error) {
	if payload == nil {
		return nil, errors.New("session payload is required")
	}
	s := &Session{
		ID:           uuid.New(),
		Kind:         payload.Kind(),
		IsActive:     true,
		Payload:      payload,
		StartInstant: now,
		Progress:     InitialProgress(payload),
		LastUpdated:  now,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// InitialProgress returns the zero progress for a payload.
func InitialProgress(p Payload) Progress {
	switch v := p.(type) {
	case StrengthPayload:
		completed := make([]CompletedExercise, len(v.Exercises))
		for i, ex := range v.Exercises {
			completed[i] = CompletedExercise{
				ExerciseName:  ex.Name,
				Notes:         ex.Notes,
				Sets:          ex.Sets,
				Reps:          ex.Reps,
				CompletedSets: []CompletedSet{},
			}
		}
		return StrengthProgress{CompletedExercises: completed}
	case FreePayload:
		return FreeProgress{}
	case RunPayload:
		return RunProgress{}
	case MeditationPayload:
		return MeditationProgress{Paused: true, Volume: 1}
	}
	return nil
}

// Validate checks that payload and progress agree with the session kind.
func (s *Session) Validate() error {
	if !s.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, s.Kind)
	}
	if s.Payload == nil || s.Payload.Kind() != s.Kind {
		return fmt.Errorf("payload does not match session kind %s", s.Kind)
	}
	if s.Progress == nil || s.Progress.Kind() != s.Kind {
		return fmt.Errorf("progress does not match session kind %s", s.Kind)
	}
	if s.StartInstant.IsZero() {
		return errors.New("session start instant is required")
	}
	if p, ok := s.Payload.(StrengthPayload); ok {
		if len(p.Exercises) == 0 {
			return errors.New("strength session needs at least one exercise")
		}
		for i, ex := range p.Exercises {
			if ex.Sets <= 0 {
				return fmt.Errorf("exercise %d (%s): sets must be positive", i, ex.Name)
			}
		}
	}
	return nil
}

// Clone returns a copy of s whose progress can be mutated independently.
// Payloads are immutable and shared.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Progress != nil {
		c.Progress = s.Progress.Clone()
	}
	return &c
}

// Age returns how long ago the session was last updated.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.LastUpdated)
}

type sessionJSON struct {
	ID           uuid.UUID       `json:"id"`
	Kind         Kind            `json:"kind"`
	IsActive     bool            `json:"is_active"`
	Payload      json.RawMessage `json:"payload"`
	StartInstant time.Time       `json:"start_instant"`
	Progress     json.RawMessage `json:"progress"`
	LastUpdated  time.Time       `json:"last_updated"`
}

// MarshalJSON encodes the session with its kind discriminant.
func (s Session) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(s.Payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	progress, err := json.Marshal(s.Progress)
	if err != nil {
		return nil, fmt.Errorf("encoding progress: %w", err)
	}
	return json.Marshal(sessionJSON{
		ID:           s.ID,
		Kind:         s.Kind,
		IsActive:     s.IsActive,
		Payload:      payload,
		StartInstant: s.StartInstant,
		Progress:     progress,
		LastUpdated:  s.LastUpdated,
	})
}

// UnmarshalJSON decodes payload and progress into the types for the kind.
func (s *Session) UnmarshalJSON(data []byte) error {
	var raw sessionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var (
		payload  Payload
		progress Progress
		err      error
	)
	switch raw.Kind {
	case KindStrength:
		payload, progress, err = decodePair[StrengthPayload, StrengthProgress](raw)
	case KindFree:
		payload, progress, err = decodePair[FreePayload, FreeProgress](raw)
	case KindRun:
		payload, progress, err = decodePair[RunPayload, RunProgress](raw)
	case KindMeditation:
		payload, progress, err = decodePair[MeditationPayload, MeditationProgress](raw)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, raw.Kind)
	}
	if err != nil {
		return fmt.Errorf("decoding %s session: %w", raw.Kind, err)
	}

	*s = Session{
		ID:           raw.ID,
		Kind:         raw.Kind,
		IsActive:     raw.IsActive,
		Payload:      payload,
		StartInstant: raw.StartInstant,
		Progress:     progress,
		LastUpdated:  raw.LastUpdated,
	}
	return nil
}

func decodePair[P Payload, G Progress](raw sessionJSON) (Payload, Progress, error) {
	var p P
	if err := json.Unmarshal(raw.Payload, &p); err != nil {
		return nil, nil, fmt.Errorf("payload: %w", err)
	}
	var g G
	if len(raw.Progress) > 0 && string(raw.Progress) != "null" {
		if err := json.Unmarshal(raw.Progress, &g); err != nil {
			return nil, nil, fmt.Errorf("progress: %w", err)
		}
		return p, g, nil
	}
	return p, InitialProgress(p), nil
}
