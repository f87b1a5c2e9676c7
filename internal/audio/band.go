package audio

import (
	"strings"

	"github.com/meltforce/tempo/internal/models"
)

// BaseFrequencyHz is the carrier both oscillators are centred on.
const BaseFrequencyHz = 147.0

// Band is a therapeutic beat band.
type Band string

const (
	BandSlow  Band = "slow"  // theta, deep relaxation
	BandCalm  Band = "calm"  // alpha
	BandFocus Band = "focus" // beta
)

// BeatHz returns the frequency delta between the two oscillators.
func (b Band) BeatHz() float64 {
	switch b {
	case BandSlow:
		return 6
	case BandCalm:
		return 10
	default:
		return 15
	}
}

// ParseBand maps a band name or a script line to a band. Anything that does
// not mention the slow or calm band plays in the focus band.
func ParseBand(s string) Band {
	l := strings.ToLower(s)
	switch {
	case strings.Contains(l, "theta"), strings.Contains(l, "slow"), strings.Contains(l, "deep"):
		return BandSlow
	case strings.Contains(l, "alpha"), strings.Contains(l, "alfa"), strings.Contains(l, "calm"):
		return BandCalm
	}
	return BandFocus
}

// ThemeBand returns the default band for a meditation theme.
func ThemeBand(theme string) Band {
	l := strings.ToLower(theme)
	switch {
	case strings.Contains(l, "medit"), strings.Contains(l, "sleep"):
		return BandSlow
	case strings.Contains(l, "relax"), strings.Contains(l, "rilass"):
		return BandCalm
	}
	return ParseBand(theme)
}

// Frequencies returns the left and right oscillator frequencies for a beat.
func Frequencies(offsetHz float64) (left, right float64) {
	return BaseFrequencyHz - offsetHz/2, BaseFrequencyHz + offsetHz/2
}

// BuildSchedule converts a meditation script into a binaural schedule.
// A segment's explicit band wins over its text.
func BuildSchedule(script []models.ScriptSegment) models.AudioSchedule {
	out := make(models.AudioSchedule, 0, len(script))
	for _, seg := range script {
		if seg.DurationSeconds <= 0 {
			continue
		}
		src := seg.Band
		if src == "" {
			src = seg.Text
		}
		out = append(out, models.AudioSegment{
			FrequencyOffsetHz: ParseBand(src).BeatHz(),
			DurationSeconds:   seg.DurationSeconds,
		})
	}
	return out
}

// ThemeSchedule builds a single-band schedule covering the whole session.
func ThemeSchedule(theme string, minutes int) models.AudioSchedule {
	return models.AudioSchedule{{
		FrequencyOffsetHz: ThemeBand(theme).BeatHz(),
		DurationSeconds:   float64(minutes * 60),
	}}
}
