package progression

import (
	"testing"
	"time"

	"github.com/meltforce/tempo/internal/models"
)

// TestDeriveStatus verifies each kind gets its own derived view and the
// staleness flag follows the threshold.
func TestDeriveStatus(t *testing.T) {
	strength, _ := models.NewSession(models.StrengthPayload{Exercises: []models.Exercise{{Name: "Press", Sets: 3, Reps: "8"}}}, t0)
	run, _ := models.NewSession(models.RunPayload{DurationMinutes: 30}, t0)
	med, _ := models.NewSession(models.MeditationPayload{
		Theme: "Focus", DurationMinutes: 5,
		Schedule: models.AudioSchedule{{FrequencyOffsetHz: 14, DurationSeconds: 300}},
	}, t0)

	tests := []struct {
		name      string
		sess      *models.Session
		after     time.Duration
		stale     time.Duration
		wantStale bool
		check     func(t *testing.T, st ActiveStatus)
	}{
		{
			name: "strength", sess: strength, after: 2 * time.Minute,
			check: func(t *testing.T, st ActiveStatus) {
				if st.Strength == nil || st.Strength.State != Exercising || st.Timer != nil {
					t.Errorf("status = %+v", st)
				}
			},
		},
		{
			name: "run", sess: run, after: 10 * time.Minute,
			check: func(t *testing.T, st ActiveStatus) {
				if st.Timer == nil || st.Timer.Remaining != 20*time.Minute {
					t.Errorf("timer = %+v", st.Timer)
				}
				if st.Notification.Body != "Time remaining: 20 minutes" {
					t.Errorf("notification = %+v", st.Notification)
				}
			},
		},
		{
			name: "meditation", sess: med, after: time.Minute,
			check: func(t *testing.T, st ActiveStatus) {
				if st.Meditation == nil || st.Meditation.Total != 300 || st.Meditation.Theme != "Focus" {
					t.Errorf("meditation = %+v", st.Meditation)
				}
			},
		},
		{name: "default threshold", sess: run, after: time.Hour, wantStale: true},
		{name: "custom threshold", sess: run, after: 20 * time.Minute, stale: 15 * time.Minute, wantStale: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := DeriveStatus(tt.sess, t0.Add(tt.after), tt.stale)
			if st.Stale != tt.wantStale {
				t.Errorf("stale = %v, want %v", st.Stale, tt.wantStale)
			}
			if st.Kind != tt.sess.Kind || st.Age != int(tt.after.Seconds()) {
				t.Errorf("kind/age = %s/%d", st.Kind, st.Age)
			}
			if tt.check != nil {
				tt.check(t, st)
			}
		})
	}
}
