package progression

import (
	"time"

	"github.com/meltforce/tempo/internal/clock"
	"github.com/meltforce/tempo/internal/models"
	"github.com/meltforce/tempo/internal/store"
)

// ActiveStatus is a read-only view of a persisted session with every timer
// derived from its instants. It is what remote readers (the server, MCP
// tools) show, since they never drive the session themselves.
type ActiveStatus struct {
	SessionID    string              `json:"session_id"`
	Kind         models.Kind         `json:"kind"`
	StartInstant time.Time           `json:"start_instant"`
	Age          int                 `json:"age_seconds"`
	Stale        bool                `json:"stale"`
	Strength     *StrengthStatus     `json:"strength,omitempty"`
	Timer        *TimerStatus        `json:"timer,omitempty"`
	Meditation   *MeditationStatus   `json:"meditation,omitempty"`
	Notification models.Notification `json:"notification"`
}

// DeriveStatus computes the ActiveStatus of sess at now. A session at least
// staleAfter old is flagged stale; zero means store.DefaultStaleAfter.
func DeriveStatus(sess *models.Session, now time.Time, staleAfter time.Duration) ActiveStatus {
	if staleAfter <= 0 {
		staleAfter = store.DefaultStaleAfter
	}
	age := sess.Age(now)
	st := ActiveStatus{
		SessionID:    sess.ID.String(),
		Kind:         sess.Kind,
		StartInstant: sess.StartInstant,
		Age:          clock.WholeSeconds(age),
		Stale:        age >= staleAfter,
		Notification: store.BackgroundNotification(sess, now),
	}
	switch sess.Kind {
	case models.KindStrength:
		v := DeriveStrength(sess, now)
		st.Strength = &v
	case models.KindFree, models.KindRun:
		v := DeriveTimer(sess, now)
		st.Timer = &v
	case models.KindMeditation:
		v := DeriveMeditation(sess)
		st.Meditation = &v
	}
	return st
}
