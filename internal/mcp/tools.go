package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/meltforce/tempo/internal/clock"
	"github.com/meltforce/tempo/internal/models"
	"github.com/meltforce/tempo/internal/progression"
	"github.com/meltforce/tempo/internal/storage"
)

// historyLimit bounds how many history rows a tool scans.
const historyLimit = 500

// defaultTimeRange returns start/end defaulting to the last 7 days.
func defaultTimeRange(startStr, endStr string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if endStr != "" {
		end, err = parseFlexTime(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		end = time.Now()
	}

	if startStr != "" {
		start, err = parseFlexTime(startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		start = end.AddDate(0, 0, -7)
	}

	return start, end, nil
}

func parseFlexTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse("2006-01-02", s)
	if err == nil {
		return t, nil
	}
	return time.Time{}, err
}

var kindEnum = mcp.Enum(
	string(models.KindStrength), string(models.KindFree),
	string(models.KindRun), string(models.KindMeditation),
)

// --- Tool definitions ---

var toolGetActiveSession = mcp.NewTool("get_active_session",
	mcp.WithDescription("Return the session in progress, if any: kind, start instant, and timers derived now (elapsed, remaining, rest countdown, meditation position). Flags sessions old enough to be discarded on resume."),
)

var toolListSessionHistory = mcp.NewTool("list_session_history",
	mcp.WithDescription("List finished sessions with their duration, planned duration, run estimates, heart rate and logged sets."),
	mcp.WithString("kind", mcp.Description("Filter by session kind"), kindEnum),
	mcp.WithString("start", mcp.Description("Start date (ISO 8601 or YYYY-MM-DD). Defaults to 7 days ago.")),
	mcp.WithString("end", mcp.Description("End date (ISO 8601 or YYYY-MM-DD). Defaults to now.")),
	mcp.WithNumber("limit", mcp.Description("Maximum sessions to return. Defaults to 50.")),
)

var toolGetHistorySummary = mcp.NewTool("get_history_summary",
	mcp.WithDescription("Totals per session kind over a period: session count, minutes, planned minutes, run distance and calories, strength sets."),
	mcp.WithString("start", mcp.Description("Start date. Defaults to 7 days ago.")),
	mcp.WithString("end", mcp.Description("End date. Defaults to now.")),
)

// --- Tool handlers ---

func (h *handlers) getActiveSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := h.ds.GetActiveSession(ctx, UserIDFromContext(ctx))
	if errors.Is(err, storage.ErrNotFound) {
		return mcp.NewToolResultText("No active session."), nil
	}
	if err != nil {
		h.log.Error("mcp get_active_session", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	now, err := clock.Read(h.clock)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(progression.DeriveStatus(sess, now, h.staleAfter))
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) listSessionHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := defaultTimeRange(req.GetString("start", ""), req.GetString("end", ""))
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}
	kind := models.Kind(req.GetString("kind", ""))
	if kind != "" && !kind.Valid() {
		return mcp.NewToolResultError("unknown kind " + string(kind)), nil
	}
	limit := req.GetInt("limit", 50)

	logs, err := h.ds.QuerySessionLogs(ctx, UserIDFromContext(ctx), kind, historyLimit)
	if err != nil {
		h.log.Error("mcp list_session_history", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	logs = inRange(logs, start, end)
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}

	result, err := mcp.NewToolResultJSON(map[string]any{"sessions": logs})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getHistorySummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := defaultTimeRange(req.GetString("start", ""), req.GetString("end", ""))
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	logs, err := h.ds.QuerySessionLogs(ctx, UserIDFromContext(ctx), "", historyLimit)
	if err != nil {
		h.log.Error("mcp get_history_summary", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(map[string]any{
		"start":   start.Format(time.RFC3339),
		"end":     end.Format(time.RFC3339),
		"by_kind": summarizeHistory(inRange(logs, start, end)),
	})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

// inRange keeps the sessions that ended within [start, end].
func inRange(logs []storage.SessionLog, start, end time.Time) []storage.SessionLog {
	out := make([]storage.SessionLog, 0, len(logs))
	for _, l := range logs {
		if l.EndedAt.Before(start) || l.EndedAt.After(end) {
			continue
		}
		out = append(out, l)
	}
	return out
}

// KindTotals aggregates finished sessions of one kind.
type KindTotals struct {
	Kind           models.Kind `json:"kind"`
	Sessions       int         `json:"sessions"`
	Minutes        int         `json:"minutes"`
	PlannedMinutes int         `json:"planned_minutes,omitempty"`
	DistanceKm     float64     `json:"distance_km,omitempty"`
	Calories       int         `json:"calories,omitempty"`
	Sets           int         `json:"sets,omitempty"`
}

func summarizeHistory(logs []storage.SessionLog) []KindTotals {
	byKind := map[models.Kind]*KindTotals{}
	for _, l := range logs {
		t, ok := byKind[l.Kind]
		if !ok {
			t = &KindTotals{Kind: l.Kind}
			byKind[l.Kind] = t
		}
		t.Sessions++
		t.Minutes += l.DurationMinutes
		if l.PlannedMinutes != nil {
			t.PlannedMinutes += *l.PlannedMinutes
		}
		if l.DistanceKm != nil {
			t.DistanceKm = math.Round((t.DistanceKm+*l.DistanceKm)*100) / 100
		}
		if l.Calories != nil {
			t.Calories += *l.Calories
		}
		t.Sets += countSets(l)
	}

	out := make([]KindTotals, 0, len(byKind))
	for _, t := range byKind {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

func countSets(l storage.SessionLog) int {
	if l.Kind != models.KindStrength || len(l.Summary) == 0 {
		return 0
	}
	var sum models.Summary
	if err := json.Unmarshal(l.Summary, &sum); err != nil {
		return 0
	}
	n := 0
	for _, ex := range sum.CompletedExercises {
		n += len(ex.CompletedSets)
	}
	return n
}
