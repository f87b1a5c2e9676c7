package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/meltforce/tempo/internal/models"
	"github.com/meltforce/tempo/internal/storage"
)

func (s *Server) handlePostHistory(w http.ResponseWriter, r *http.Request) {
	var sum models.Summary
	if err := json.NewDecoder(r.Body).Decode(&sum); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	uid := userIDFromContext(r)
	entry, err := storage.NewSessionLog(uid, sum)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	id, err := s.db.InsertSessionLog(r.Context(), entry)
	if err != nil {
		s.log.Error("failed to log session", "user_id", uid, "kind", sum.Kind, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.log.Info("session logged", "user_id", uid, "kind", sum.Kind, "minutes", sum.DurationMinutes)
	s.clearFinished(uid, entry.SessionID.String())

	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// clearFinished drops the mirrored active session if it is the one just
// logged, so a device that missed the delete cannot resume it.
func (s *Server) clearFinished(uid int, sessionID string) {
	ctx, cancel := contextWithTimeout()
	defer cancel()

	sess, err := s.db.GetActiveSession(ctx, uid)
	if err != nil || sess.ID.String() != sessionID {
		return
	}
	if err := s.db.DeleteActiveSession(ctx, uid); err != nil {
		s.log.Error("failed to clear finished session", "user_id", uid, "error", err)
	}
}

func (s *Server) handleQueryHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	kind := models.Kind(r.URL.Query().Get("kind"))
	if kind != "" && !kind.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown kind " + string(kind)})
		return
	}

	logs, err := s.db.QuerySessionLogs(r.Context(), userIDFromContext(r), kind, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if logs == nil {
		logs = []storage.SessionLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handleHistoryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetHistoryStats(r.Context(), userIDFromContext(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// contextWithTimeout returns a background context with a 5-second timeout for follow-up writes.
func contextWithTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second) //nolint:mnd
}
