package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meltforce/tempo/internal/models"
)

// SessionLog is one finished session in a user's history.
type SessionLog struct {
	ID              int64           `json:"id"`
	UserID          int             `json:"user_id"`
	CreatedAt       time.Time       `json:"created_at"`
	SessionID       uuid.UUID       `json:"session_id"`
	Kind            models.Kind     `json:"kind"`
	StartedAt       time.Time       `json:"started_at"`
	EndedAt         time.Time       `json:"ended_at"`
	DurationMinutes int             `json:"duration_minutes"`
	PlannedMinutes  *int            `json:"planned_minutes"`
	DistanceKm      *float64        `json:"distance_km"`
	Calories        *int            `json:"calories"`
	AvgHeartRate    *int            `json:"avg_heart_rate"`
	Theme           *string         `json:"theme"`
	Summary         json.RawMessage `json:"summary"`
}

// NewSessionLog flattens a completion summary into a history row.
func NewSessionLog(userID int, sum models.Summary) (SessionLog, error) {
	id, err := uuid.Parse(sum.SessionID)
	if err != nil {
		return SessionLog{}, fmt.Errorf("invalid session id %q: %w", sum.SessionID, err)
	}
	if !sum.Kind.Valid() {
		return SessionLog{}, fmt.Errorf("invalid session kind %q", sum.Kind)
	}
	raw, err := json.Marshal(sum)
	if err != nil {
		return SessionLog{}, fmt.Errorf("encoding summary: %w", err)
	}

	l := SessionLog{
		UserID:          userID,
		SessionID:       id,
		Kind:            sum.Kind,
		StartedAt:       sum.StartedAt,
		EndedAt:         sum.EndedAt,
		DurationMinutes: sum.DurationMinutes,
		AvgHeartRate:    sum.AvgHeartRate,
		Summary:         raw,
	}
	if sum.PlannedMinutes > 0 {
		l.PlannedMinutes = &sum.PlannedMinutes
	}
	if sum.Kind == models.KindRun {
		l.DistanceKm = &sum.DistanceKm
		l.Calories = &sum.Calories
	}
	if sum.Theme != "" {
		l.Theme = &sum.Theme
	}
	return l, nil
}

// InsertSessionLog records a finished session and returns its ID. Logging
// the same session twice keeps the first entry.
func (db *DB) InsertSessionLog(ctx context.Context, log SessionLog) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx,
		`INSERT INTO session_logs (user_id, session_id, kind, started_at, ended_at, duration_minutes,
		 planned_minutes, distance_km, calories, avg_heart_rate, theme, summary)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		 ON CONFLICT (user_id, session_id) DO UPDATE SET user_id = EXCLUDED.user_id
		 RETURNING id`,
		log.UserID, log.SessionID, string(log.Kind), log.StartedAt, log.EndedAt, log.DurationMinutes,
		log.PlannedMinutes, log.DistanceKm, log.Calories, log.AvgHeartRate, log.Theme, log.Summary,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting session log: %w", err)
	}
	return id, nil
}

// QuerySessionLogs returns a user's most recent finished sessions, newest
// first, optionally filtered by kind.
func (db *DB) QuerySessionLogs(ctx context.Context, userID int, kind models.Kind, limit int) ([]SessionLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT id, user_id, created_at, session_id, kind, started_at, ended_at, duration_minutes,
		 planned_minutes, distance_km, calories, avg_heart_rate, theme, summary
		 FROM session_logs
		 WHERE user_id = $1 AND ($2 = '' OR kind = $2)
		 ORDER BY ended_at DESC
		 LIMIT $3`,
		userID, string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("querying session logs: %w", err)
	}
	defer rows.Close()

	var result []SessionLog
	for rows.Next() {
		var l SessionLog
		var k string
		if err := rows.Scan(&l.ID, &l.UserID, &l.CreatedAt, &l.SessionID, &k, &l.StartedAt, &l.EndedAt,
			&l.DurationMinutes, &l.PlannedMinutes, &l.DistanceKm, &l.Calories, &l.AvgHeartRate,
			&l.Theme, &l.Summary); err != nil {
			return nil, fmt.Errorf("scanning session log: %w", err)
		}
		l.Kind = models.Kind(k)
		result = append(result, l)
	}
	return result, rows.Err()
}
