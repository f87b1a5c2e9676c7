package mcp

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/meltforce/tempo/internal/clock"
	"github.com/meltforce/tempo/internal/progression"
	"github.com/meltforce/tempo/internal/storage"
)

func (h *handlers) activeSession(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	var v any = map[string]any{"active": false}

	sess, err := h.ds.GetActiveSession(ctx, UserIDFromContext(ctx))
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		now, err := clock.Read(h.clock)
		if err != nil {
			return nil, err
		}
		v = progression.DeriveStatus(sess, now, h.staleAfter)
	}

	return jsonContents(req.Params.URI, v)
}

func (h *handlers) recentSessions(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	end := h.clock.Now()
	start := end.AddDate(0, 0, -14)

	logs, err := h.ds.QuerySessionLogs(ctx, UserIDFromContext(ctx), "", historyLimit)
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, inRange(logs, start, end))
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
