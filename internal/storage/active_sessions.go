package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/meltforce/tempo/internal/models"
)

// ErrNotFound is returned when a user has no active session.
var ErrNotFound = errors.New("not found")

// GetActiveSession returns the active session mirrored for a user, or
// ErrNotFound.
func (db *DB) GetActiveSession(ctx context.Context, userID int) (*models.Session, error) {
	var data []byte
	err := db.Pool.QueryRow(ctx,
		`SELECT data FROM active_sessions WHERE user_id = $1`, userID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying active session: %w", err)
	}

	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decoding active session: %w", err)
	}
	return &sess, nil
}

// UpsertActiveSession stores sess as the user's active session. A write
// whose last_updated is older than the stored row is ignored; the returned
// bool reports whether the row was written.
func (db *DB) UpsertActiveSession(ctx context.Context, userID int, sess *models.Session) (bool, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return false, fmt.Errorf("encoding active session: %w", err)
	}

	tag, err := db.Pool.Exec(ctx, `
		INSERT INTO active_sessions (user_id, session_id, kind, start_instant, last_updated, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE
			SET session_id = EXCLUDED.session_id,
			    kind = EXCLUDED.kind,
			    start_instant = EXCLUDED.start_instant,
			    last_updated = EXCLUDED.last_updated,
			    data = EXCLUDED.data,
			    updated_at = NOW()
			WHERE active_sessions.last_updated <= EXCLUDED.last_updated
	`, userID, sess.ID, string(sess.Kind), sess.StartInstant, sess.LastUpdated, data)
	if err != nil {
		return false, fmt.Errorf("upserting active session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteActiveSession removes the user's active session. Deleting nothing
// is not an error.
func (db *DB) DeleteActiveSession(ctx context.Context, userID int) error {
	if _, err := db.Pool.Exec(ctx, `DELETE FROM active_sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("deleting active session: %w", err)
	}
	return nil
}
