package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tailscale.com/client/tailscale/apitype"
	"tailscale.com/tailcfg"

	"github.com/meltforce/tempo/internal/clock"
	"github.com/meltforce/tempo/internal/models"
	"github.com/meltforce/tempo/internal/progression"
	"github.com/meltforce/tempo/internal/storage"
)

var t0 = time.Date(2025, 9, 1, 17, 0, 0, 0, time.UTC)

func do(t *testing.T, h http.Handler, method, path, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// TestActiveSessionLifecycle verifies a session can be mirrored, read back
// with derived timers and deleted.
func TestActiveSessionLifecycle(t *testing.T) {
	b := newMemBackend()
	fake := clock.NewFake(t0)
	s := newTestServer(b, fake)

	sess, err := models.NewSession(models.RunPayload{DurationMinutes: 30}, t0)
	if err != nil {
		t.Fatal(err)
	}
	rec := do(t, s, http.MethodPut, "/api/v1/sessions/active", "test-key", sess)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d: %s", rec.Code, rec.Body)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/sessions/active", "test-key", nil)
	var got models.Session
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.ID != sess.ID || got.Kind != models.KindRun {
		t.Errorf("GET = %+v", got)
	}

	fake.Advance(10*time.Minute + 30*time.Second)
	rec = do(t, s, http.MethodGet, "/api/v1/sessions/active/status", "test-key", nil)
	var st progression.ActiveStatus
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Timer == nil || st.Timer.Remaining != 19*time.Minute+30*time.Second {
		t.Errorf("timer = %+v", st.Timer)
	}
	if st.Notification.Body != "Time remaining: 20 minutes" || st.Stale {
		t.Errorf("status = %+v", st)
	}

	if rec := do(t, s, http.MethodDelete, "/api/v1/sessions/active", "test-key", nil); rec.Code != http.StatusNoContent {
		t.Errorf("DELETE status = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/v1/sessions/active", "test-key", nil); rec.Code != http.StatusNotFound {
		t.Errorf("GET after delete = %d, want 404", rec.Code)
	}
}

// TestPutIgnoresOlderWrite verifies a late write carrying an older
// last_updated does not replace a newer mirror.
func TestPutIgnoresOlderWrite(t *testing.T) {
	b := newMemBackend()
	s := newTestServer(b, clock.NewFake(t0))

	older, _ := models.NewSession(models.FreePayload{Name: "old"}, t0)
	newer := older.Clone()
	newer.LastUpdated = t0.Add(time.Minute)

	do(t, s, http.MethodPut, "/api/v1/sessions/active", "test-key", newer)
	rec := do(t, s, http.MethodPut, "/api/v1/sessions/active", "test-key", older)
	var resp map[string]bool
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["applied"] {
		t.Error("older write applied")
	}
	if cur := b.active[1]; !cur.LastUpdated.Equal(newer.LastUpdated) {
		t.Errorf("mirror last_updated = %v", cur.LastUpdated)
	}
}

// TestPutRejectsInvalid verifies undecodable sessions are refused.
func TestPutRejectsInvalid(t *testing.T) {
	s := newTestServer(newMemBackend(), clock.NewFake(t0))
	rec := do(t, s, http.MethodPut, "/api/v1/sessions/active", "test-key", map[string]any{"kind": "yoga"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// TestSessionsRequireAPIKey verifies session endpoints reject missing and
// wrong keys.
func TestSessionsRequireAPIKey(t *testing.T) {
	s := newTestServer(newMemBackend(), clock.NewFake(t0))
	tests := []struct {
		key  string
		want int
	}{
		{"", http.StatusUnauthorized},
		{"wrong", http.StatusForbidden},
		{"test-key", http.StatusNotFound},
	}
	for _, tt := range tests {
		if rec := do(t, s, http.MethodGet, "/api/v1/sessions/active", tt.key, nil); rec.Code != tt.want {
			t.Errorf("key %q: status = %d, want %d", tt.key, rec.Code, tt.want)
		}
	}
}

// TestStatusReportsStale verifies a mirror older than the staleness
// threshold is flagged.
func TestStatusReportsStale(t *testing.T) {
	b := newMemBackend()
	fake := clock.NewFake(t0)
	s := newTestServer(b, fake)

	sess, _ := models.NewSession(models.FreePayload{}, t0)
	b.active[1] = sess
	fake.Advance(time.Hour)

	rec := do(t, s, http.MethodGet, "/api/v1/sessions/active/status", "test-key", nil)
	var st progression.ActiveStatus
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if !st.Stale || st.Age != 3600 {
		t.Errorf("status = %+v, want stale at 3600s", st)
	}
}

// TestHistoryLogsAndClears verifies logging a finished session stores it in
// the history and drops the matching active mirror.
func TestHistoryLogsAndClears(t *testing.T) {
	b := newMemBackend()
	s := newTestServer(b, clock.NewFake(t0))

	sess, _ := models.NewSession(models.RunPayload{DurationMinutes: 20}, t0)
	b.active[1] = sess

	sum := models.Summary{
		SessionID: sess.ID.String(), Kind: models.KindRun, StartedAt: t0, EndedAt: t0.Add(20 * time.Minute),
		DurationMinutes: 20, PlannedMinutes: 20, DistanceKm: 3, Calories: 200,
	}
	if rec := do(t, s, http.MethodPost, "/api/v1/sessions/history", "test-key", sum); rec.Code != http.StatusCreated {
		t.Fatalf("POST status = %d: %s", rec.Code, rec.Body)
	}
	if _, ok := b.active[1]; ok {
		t.Error("finished session still mirrored")
	}

	rec := do(t, s, http.MethodGet, "/api/v1/sessions/history?kind=run", "test-key", nil)
	var logs []storage.SessionLog
	if err := json.NewDecoder(rec.Body).Decode(&logs); err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 || logs[0].DurationMinutes != 20 || logs[0].SessionID != sess.ID {
		t.Errorf("history = %+v", logs)
	}

	if rec := do(t, s, http.MethodGet, "/api/v1/sessions/history?kind=yoga", "test-key", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown kind status = %d", rec.Code)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/sessions/history/stats", "test-key", nil)
	var stats storage.HistoryStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalSessions != 1 || stats.TotalMinutes != 20 || len(stats.ByKind) != 1 || stats.ByKind[0].Kind != models.KindRun {
		t.Errorf("stats = %+v", stats)
	}
}

// TestHealth verifies the health endpoint reports the mirrored session count.
func TestHealth(t *testing.T) {
	b := newMemBackend()
	sess, _ := models.NewSession(models.FreePayload{}, t0)
	b.active[3] = sess
	rec := do(t, newTestServer(b, clock.NewFake(t0)), http.MethodGet, "/api/v1/health", "", nil)
	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "ok" || resp["active_sessions"] != float64(1) {
		t.Errorf("health = %v", resp)
	}
}

type fakeWhoIs map[string]*apitype.WhoIsResponse

func (f fakeWhoIs) WhoIs(_ context.Context, addr string) (*apitype.WhoIsResponse, error) {
	if who, ok := f[addr]; ok {
		return who, nil
	}
	return nil, context.DeadlineExceeded
}

// TestTailscaleIdentity verifies tailnet callers are mapped to their own
// user rows and unknown peers are refused.
func TestTailscaleIdentity(t *testing.T) {
	b := newMemBackend()
	s := newTestServer(b, clock.NewFake(t0))
	s.SetTailscale(fakeWhoIs{
		"100.64.0.7:4242": {UserProfile: &tailcfg.UserProfile{LoginName: "alice@example.com", DisplayName: "Alice"}},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.RemoteAddr = "100.64.0.7:4242"
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	var info UserInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info.Login != "alice@example.com" || b.users["alice@example.com"] != 42 {
		t.Errorf("info = %+v, users = %v", info, b.users)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.RemoteAddr = "100.64.0.9:1"
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown peer status = %d, want 401", rec.Code)
	}
}
