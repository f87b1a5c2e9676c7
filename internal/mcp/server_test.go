package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/meltforce/tempo/internal/models"
	"github.com/meltforce/tempo/internal/storage"
)

// TestUserIDFromContextDefault verifies the default user ID (1) when no value
// is set in the context.
func TestUserIDFromContextDefault(t *testing.T) {
	ctx := context.Background()
	if id := UserIDFromContext(ctx); id != 1 {
		t.Errorf("UserIDFromContext(empty) = %d, want 1", id)
	}
}

// TestUserIDFromContextSet verifies the user ID is extracted from context
// after being set by WithUserID.
func TestUserIDFromContextSet(t *testing.T) {
	ctx := WithUserID(context.Background(), 42)
	if id := UserIDFromContext(ctx); id != 42 {
		t.Errorf("UserIDFromContext = %d, want 42", id)
	}
}

// TestDefaultTimeRange verifies time range defaults (last 7 days) and parsing.
func TestDefaultTimeRange(t *testing.T) {
	// Both empty → defaults to last 7 days
	start, end, err := defaultTimeRange("", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	diff := end.Sub(start)
	if diff.Hours() < 167 || diff.Hours() > 169 { // ~168 hours = 7 days
		t.Errorf("default range = %.0f hours, want ~168", diff.Hours())
	}

	// Explicit dates
	start, end, err = defaultTimeRange("2024-01-01", "2024-01-31")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start.Year() != 2024 || start.Month() != 1 || start.Day() != 1 {
		t.Errorf("start = %v, want 2024-01-01", start)
	}
	if end.Year() != 2024 || end.Month() != 1 || end.Day() != 31 {
		t.Errorf("end = %v, want 2024-01-31", end)
	}

	// RFC3339
	start, _, err = defaultTimeRange("2024-06-15T10:30:00Z", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start.Hour() != 10 || start.Minute() != 30 {
		t.Errorf("start = %v, want 10:30", start)
	}

	// Invalid
	_, _, err = defaultTimeRange("not-a-date", "")
	if err == nil {
		t.Error("expected error for invalid date")
	}
}

// TestSummarizeHistory verifies per-kind totals, including run estimates
// and strength sets read from the embedded summary.
func TestSummarizeHistory(t *testing.T) {
	dist1, dist2 := 4.5, 1.25
	kcal1, kcal2 := 300, 90
	planned := 30

	strength, err := storage.NewSessionLog(1, models.Summary{
		SessionID: uuid.NewString(), Kind: models.KindStrength, DurationMinutes: 50,
		CompletedExercises: []models.CompletedExercise{
			{ExerciseName: "Squat", CompletedSets: []models.CompletedSet{{Reps: 5}, {Reps: 5}}},
			{ExerciseName: "Row", CompletedSets: []models.CompletedSet{{Reps: 10}}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	logs := []storage.SessionLog{
		{Kind: models.KindRun, DurationMinutes: 30, PlannedMinutes: &planned, DistanceKm: &dist1, Calories: &kcal1},
		{Kind: models.KindRun, DurationMinutes: 9, DistanceKm: &dist2, Calories: &kcal2},
		strength,
	}

	got := summarizeHistory(logs)
	if len(got) != 2 {
		t.Fatalf("kinds = %d, want 2", len(got))
	}
	run, str := got[0], got[1]
	if run.Kind != models.KindRun || run.Sessions != 2 || run.Minutes != 39 || run.PlannedMinutes != 30 ||
		run.DistanceKm != 5.75 || run.Calories != 390 {
		t.Errorf("run totals = %+v", run)
	}
	if str.Kind != models.KindStrength || str.Sets != 3 || str.Minutes != 50 {
		t.Errorf("strength totals = %+v", str)
	}
}

// TestInRange verifies the history window is inclusive at both ends.
func TestInRange(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 7)
	logs := []storage.SessionLog{
		{ID: 1, EndedAt: start},
		{ID: 2, EndedAt: start.Add(-time.Second)},
		{ID: 3, EndedAt: end},
		{ID: 4, EndedAt: end.Add(time.Second)},
	}
	got := inRange(logs, start, end)
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 3 {
		t.Errorf("inRange = %+v", got)
	}
}
