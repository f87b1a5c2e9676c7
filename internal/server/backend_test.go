package server

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/meltforce/tempo/internal/clock"
	"github.com/meltforce/tempo/internal/models"
	"github.com/meltforce/tempo/internal/storage"
)

// memBackend keeps the server state in maps with the same last-write-wins
// rule as the SQL upsert.
type memBackend struct {
	mu      sync.Mutex
	active  map[int]*models.Session
	logs    []storage.SessionLog
	users   map[string]int
	nextUID int
}

func newMemBackend() *memBackend {
	return &memBackend{active: map[int]*models.Session{}, users: map[string]int{}, nextUID: 41}
}

func (b *memBackend) GetOrCreateUser(_ context.Context, login, _ string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id, ok := b.users[login]; ok {
		return id, nil
	}
	b.nextUID++
	b.users[login] = b.nextUID
	return b.nextUID, nil
}

func (b *memBackend) GetActiveSession(_ context.Context, uid int) (*models.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.active[uid]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s.Clone(), nil
}

func (b *memBackend) UpsertActiveSession(_ context.Context, uid int, s *models.Session) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.active[uid]; ok && cur.LastUpdated.After(s.LastUpdated) {
		return false, nil
	}
	b.active[uid] = s.Clone()
	return true, nil
}

func (b *memBackend) DeleteActiveSession(_ context.Context, uid int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.active, uid)
	return nil
}

func (b *memBackend) InsertSessionLog(_ context.Context, l storage.SessionLog) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	l.ID = int64(len(b.logs) + 1)
	b.logs = append(b.logs, l)
	return l.ID, nil
}

func (b *memBackend) QuerySessionLogs(_ context.Context, uid int, kind models.Kind, limit int) ([]storage.SessionLog, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []storage.SessionLog
	for i := len(b.logs) - 1; i >= 0 && len(out) < limit; i-- {
		l := b.logs[i]
		if l.UserID == uid && (kind == "" || l.Kind == kind) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (b *memBackend) GetHistoryStats(_ context.Context, uid int) (*storage.HistoryStats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	stats := &storage.HistoryStats{ByKind: []storage.KindStat{}}
	idx := map[models.Kind]int{}
	for _, l := range b.logs {
		if l.UserID != uid {
			continue
		}
		stats.TotalSessions++
		stats.TotalMinutes += int64(l.DurationMinutes)
		i, ok := idx[l.Kind]
		if !ok {
			i = len(stats.ByKind)
			idx[l.Kind] = i
			stats.ByKind = append(stats.ByKind, storage.KindStat{Kind: l.Kind})
		}
		stats.ByKind[i].Count++
		stats.ByKind[i].TotalMinutes += int64(l.DurationMinutes)
	}
	return stats, nil
}

func (b *memBackend) CountActiveSessions(context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.active), nil
}

func newTestServer(b *memBackend, clk clock.Clock) *Server {
	return New(b, Options{
		APIKey:  "test-key",
		Version: "test",
		Clock:   clk,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}
