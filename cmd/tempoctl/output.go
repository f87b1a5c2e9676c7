package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/meltforce/tempo/internal/clock"
	"github.com/meltforce/tempo/internal/models"
	"github.com/meltforce/tempo/internal/progression"
)

func (a *app) printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(a.errOut, "error:", err)
		return
	}
	fmt.Fprintln(a.out, string(data))
}

// clockText formats d as m:ss, or h:mm:ss past an hour.
func clockText(d time.Duration) string {
	s := clock.WholeSeconds(d)
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, s/60%60, s%60)
	}
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

func secondsText(sec float64) string {
	return clockText(time.Duration(sec * float64(time.Second)))
}

func (a *app) printSummary(sum models.Summary) {
	if a.jsonOut {
		a.printJSON(map[string]any{"summary": sum})
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Finished %s: %d min", kindLabel(sum.Kind), sum.DurationMinutes)
	switch sum.Kind {
	case models.KindRun:
		fmt.Fprintf(&b, " of %d, %.2f km, %d kcal", sum.PlannedMinutes, sum.DistanceKm, sum.Calories)
	case models.KindMeditation:
		fmt.Fprintf(&b, " of %d (%s)", sum.PlannedMinutes, sum.Theme)
	case models.KindStrength:
		sets := 0
		for _, ex := range sum.CompletedExercises {
			sets += len(ex.CompletedSets)
		}
		fmt.Fprintf(&b, ", %d sets", sets)
	}
	if sum.AvgHeartRate != nil {
		fmt.Fprintf(&b, ", avg %d bpm", *sum.AvgHeartRate)
	}
	fmt.Fprintln(a.out, b.String())
}

func kindLabel(k models.Kind) string {
	switch k {
	case models.KindStrength:
		return "strength workout"
	case models.KindFree:
		return "workout"
	case models.KindRun:
		return "run"
	case models.KindMeditation:
		return "meditation"
	}
	return string(k)
}

func (a *app) printStrength(st progression.StrengthStatus) {
	if a.jsonOut {
		a.printJSON(st)
		return
	}
	fmt.Fprintf(a.out, "[%s] %s\n", clockText(st.Elapsed), st.Describe())
}

func (a *app) printTimer(st progression.TimerStatus) {
	if a.jsonOut {
		a.printJSON(st)
		return
	}
	line := fmt.Sprintf("%s elapsed", clockText(st.Elapsed))
	if st.Planned > 0 {
		line += fmt.Sprintf(", %s remaining of %s", clockText(st.Remaining), clockText(st.Planned))
	}
	if st.Paused {
		line += " (paused)"
	}
	fmt.Fprintf(a.out, "%s: %s\n", kindLabel(st.Kind), line)
}

func (a *app) printMeditation(st progression.MeditationStatus) {
	if a.jsonOut {
		a.printJSON(st)
		return
	}
	state := "paused"
	if st.Playing {
		state = "playing"
	}
	fmt.Fprintf(a.out, "%s: %s / %s, %s remaining (%s, volume %.0f%%)\n",
		st.Theme, secondsText(st.Position), secondsText(st.Total), secondsText(st.Remaining), state, st.Volume*100)
}
