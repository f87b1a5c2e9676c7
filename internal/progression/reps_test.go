package progression

import (
	"testing"

	"github.com/meltforce/tempo/internal/models"
)

// TestRepsForSet verifies per-set sequences are indexed by set and other
// specs are returned whole.
func TestRepsForSet(t *testing.T) {
	tests := []struct {
		reps string
		sets int
		set  int
		want string
	}{
		{"12-10-8", 3, 0, "12"},
		{"12-10-8", 3, 2, "8"},
		{"12-10-8", 3, 5, "8"},
		{"12 10 8", 3, 1, "10"},
		{"8-12", 3, 1, "8-12"},
		{"10", 3, 2, "10"},
		{"max", 2, 1, "max"},
		{"", 3, 0, ""},
	}
	for _, tt := range tests {
		got := RepsForSet(models.Exercise{Sets: tt.sets, Reps: tt.reps}, tt.set)
		if got != tt.want {
			t.Errorf("RepsForSet(%q, sets=%d, set=%d) = %q, want %q", tt.reps, tt.sets, tt.set, got, tt.want)
		}
	}
}

// TestParseReps verifies failure labels, ranges and labels without numbers.
func TestParseReps(t *testing.T) {
	tests := []struct {
		label string
		want  int
	}{
		{"10", 10},
		{"8-12", 12},
		{"Max", FailureReps},
		{"to failure", FailureReps},
		{"AMRAP", FailureReps},
		{"a cedimento", FailureReps},
		{"30s hold", 30},
		{"", 0},
		{"some", 0},
	}
	for _, tt := range tests {
		if got := ParseReps(tt.label); got != tt.want {
			t.Errorf("ParseReps(%q) = %d, want %d", tt.label, got, tt.want)
		}
	}
}
