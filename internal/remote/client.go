// Package remote talks to the tempo server: it mirrors the active session
// for the store and records finished sessions in the server's history.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/meltforce/tempo/internal/models"
	"github.com/meltforce/tempo/internal/store"
)

const activePath = "/api/v1/sessions/active"

// Client sends session state to the tempo server over HTTP.
type Client struct {
	serverURL  string
	apiKey     string
	httpClient *http.Client
	backoff    time.Duration
}

var _ store.RemoteStore = (*Client)(nil)

// NewClient creates a client for the server at serverURL, authenticating
// with apiKey.
func NewClient(serverURL, apiKey string) *Client {
	return &Client{
		serverURL: strings.TrimRight(serverURL, "/"),
		apiKey:    apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		backoff: time.Second,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func statusError(method, path string, resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("%s %s failed (status %d): %s", method, path, resp.StatusCode, bytes.TrimSpace(body))
}

// Fetch returns the session mirrored on the server, or nil when there is none.
func (c *Client) Fetch(ctx context.Context) (*models.Session, error) {
	resp, err := c.do(ctx, http.MethodGet, activePath, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, statusError(http.MethodGet, activePath, resp)
	}

	var sess models.Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return nil, fmt.Errorf("decoding active session: %w", err)
	}
	return &sess, nil
}

// Upsert replaces the mirrored session. The server keeps whichever copy has
// the later last_updated, so a late write never clobbers a newer one.
func (c *Client) Upsert(ctx context.Context, sess *models.Session) error {
	resp, err := c.do(ctx, http.MethodPut, activePath, sess)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(http.MethodPut, activePath, resp)
	}
	return nil
}

// Delete removes the mirrored session.
func (c *Client) Delete(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodDelete, activePath, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return statusError(http.MethodDelete, activePath, resp)
	}
	return nil
}

// PostHistory records a finished session on the server.
// Retries up to 3 times with exponential backoff on failure.
func (c *Client) PostHistory(ctx context.Context, sum models.Summary) error {
	const path = "/api/v1/sessions/history"

	var lastErr error
	for attempt := range 3 {
		if attempt > 0 {
			select {
			case <-time.After(c.backoff << uint(attempt-1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		resp, err := c.do(ctx, http.MethodPost, path, sum)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return nil
		}
		lastErr = statusError(http.MethodPost, path, resp)
		resp.Body.Close()
		// Client errors will not succeed on retry.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			break
		}
	}

	return fmt.Errorf("recording session history: %w", lastErr)
}
