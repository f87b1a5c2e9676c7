package progression

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/meltforce/tempo/internal/models"
)

// FailureReps is logged for sets done to failure.
const FailureReps = 12

var (
	repsSep    = regexp.MustCompile(`[\s-]+`)
	repsNumber = regexp.MustCompile(`\d+`)
)

// failureWords mark a set done to failure, in the languages plans are
// written in.
var failureWords = []string{"max", "failure", "amrap", "cedimento"}

// RepsForSet returns the rep label for set setIndex of ex. A per-set
// sequence such as "12-10-8" is indexed by set when it has an entry for
// every set; the last entry covers any set past its end.
func RepsForSet(ex models.Exercise, setIndex int) string {
	label := strings.TrimSpace(ex.Reps)
	if label == "" {
		return ""
	}
	var parts []string
	for _, p := range repsSep.Split(label, -1) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) > 1 && len(parts) >= ex.Sets {
		if setIndex >= 0 && setIndex < len(parts) {
			return parts[setIndex]
		}
		return parts[len(parts)-1]
	}
	return label
}

// ParseReps converts a rep label into a count: FailureReps for sets to
// failure, the largest number in the label otherwise, 0 without numbers.
func ParseReps(label string) int {
	lower := strings.ToLower(label)
	for _, w := range failureWords {
		if strings.Contains(lower, w) {
			return FailureReps
		}
	}
	best := 0
	for _, m := range repsNumber.FindAllString(label, -1) {
		n, err := strconv.Atoi(m)
		if err == nil && n > best {
			best = n
		}
	}
	return best
}
