package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/meltforce/tempo/internal/models"
	"github.com/meltforce/tempo/internal/storage"
)

// newTestServer creates an httptest server that routes requests to handler functions
// keyed by path. Verifies the HTTP client sends correct paths and query params.
func newTestServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-API-Key"); got != "key" {
			t.Errorf("X-API-Key = %q, want key", got)
		}
		h, ok := handlers[r.URL.Path]
		if !ok {
			t.Errorf("unexpected request path: %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
}

func writeTestJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatal(err)
	}
}

// TestGetActiveSession verifies the client decodes the tagged session.
func TestGetActiveSession(t *testing.T) {
	now := time.Date(2026, 1, 1, 7, 0, 0, 0, time.UTC)
	sess, err := models.NewSession(models.RunPayload{DurationMinutes: 25}, now)
	if err != nil {
		t.Fatal(err)
	}
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/sessions/active": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, sess)
		},
	})
	defer ts.Close()

	got, err := NewHTTPClient(ts.URL, "key").GetActiveSession(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != sess.ID || got.Payload.(models.RunPayload).DurationMinutes != 25 {
		t.Errorf("session = %+v", got)
	}
}

// TestGetActiveSessionNotFound verifies a 404 maps to storage.ErrNotFound.
func TestGetActiveSessionNotFound(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/sessions/active": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"no active session"}`, http.StatusNotFound)
		},
	})
	defer ts.Close()

	_, err := NewHTTPClient(ts.URL, "key").GetActiveSession(context.Background(), 1)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// TestQuerySessionLogs verifies the kind and limit filters are sent as
// query params.
func TestQuerySessionLogs(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/sessions/history": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("kind"); got != "meditation" {
				t.Errorf("kind=%q, want meditation", got)
			}
			if got := r.URL.Query().Get("limit"); got != "10" {
				t.Errorf("limit=%q, want 10", got)
			}
			theme := "Focus"
			writeTestJSON(t, w, []storage.SessionLog{{ID: 1, SessionID: uuid.New(), Kind: models.KindMeditation, DurationMinutes: 8, Theme: &theme}})
		},
	})
	defer ts.Close()

	logs, err := NewHTTPClient(ts.URL, "key").QuerySessionLogs(context.Background(), 1, models.KindMeditation, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 || *logs[0].Theme != "Focus" {
		t.Errorf("logs = %+v", logs)
	}
}

// TestHTTPClientError verifies server errors surface with the status code.
func TestHTTPClientError(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/sessions/history": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
	})
	defer ts.Close()

	if _, err := NewHTTPClient(ts.URL, "key").QuerySessionLogs(context.Background(), 1, "", 0); err == nil {
		t.Error("expected error on 500")
	}
}
