package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/meltforce/tempo/internal/models"
)

// HistoryStats holds aggregate statistics about a user's finished sessions.
type HistoryStats struct {
	TotalSessions int64      `json:"total_sessions"`
	TotalMinutes  int64      `json:"total_minutes"`
	EarliestEnded *time.Time `json:"earliest_ended"`
	LatestEnded   *time.Time `json:"latest_ended"`
	ByKind        []KindStat `json:"by_kind"`
}

// KindStat holds summary stats for a single session kind.
type KindStat struct {
	Kind          models.Kind `json:"kind"`
	Count         int64       `json:"count"`
	TotalMinutes  int64       `json:"total_minutes"`
	TotalDistance *float64    `json:"total_distance_km,omitempty"`
	TotalCalories *int64      `json:"total_calories,omitempty"`
}

// GetHistoryStats returns aggregate statistics for a user's session history.
func (db *DB) GetHistoryStats(ctx context.Context, userID int) (*HistoryStats, error) {
	stats := &HistoryStats{ByKind: []KindStat{}}

	err := db.Pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(duration_minutes), 0), MIN(ended_at), MAX(ended_at)
		 FROM session_logs WHERE user_id = $1`, userID,
	).Scan(&stats.TotalSessions, &stats.TotalMinutes, &stats.EarliestEnded, &stats.LatestEnded)
	if err != nil {
		return nil, fmt.Errorf("counting session logs: %w", err)
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT kind, COUNT(*), COALESCE(SUM(duration_minutes), 0), SUM(distance_km), SUM(calories)
		 FROM session_logs
		 WHERE user_id = $1
		 GROUP BY kind
		 ORDER BY COUNT(*) DESC, kind`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying sessions by kind: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s KindStat
		if err := rows.Scan(&s.Kind, &s.Count, &s.TotalMinutes, &s.TotalDistance, &s.TotalCalories); err != nil {
			return nil, fmt.Errorf("scanning kind stat: %w", err)
		}
		stats.ByKind = append(stats.ByKind, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}
