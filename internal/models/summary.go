package models

import "time"

// Summary is emitted when a session completes or is stopped.
type Summary struct {
	SessionID          string              `json:"session_id"`
	Kind               Kind                `json:"kind"`
	StartedAt          time.Time           `json:"started_at"`
	EndedAt            time.Time           `json:"ended_at"`
	DurationMinutes    int                 `json:"duration_minutes"`
	PlannedMinutes     int                 `json:"planned_minutes,omitempty"`
	CompletedExercises []CompletedExercise `json:"completed_exercises,omitempty"`
	DistanceKm         float64             `json:"distance_km,omitempty"`
	Calories           int                 `json:"calories,omitempty"`
	AvgHeartRate       *int                `json:"avg_heart_rate,omitempty"`
	Theme              string              `json:"theme,omitempty"`
}

// Notification is the content shown when an activity is backgrounded.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}
