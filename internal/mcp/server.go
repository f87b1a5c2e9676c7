// Package mcp exposes the active session and the session history as Model
// Context Protocol tools and resources.
package mcp

import (
	"context"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/meltforce/tempo/internal/clock"
)

type contextKey int

const userIDKey contextKey = iota

// UserIDFromContext extracts the user ID injected by the transport layer.
func UserIDFromContext(ctx context.Context) int {
	if id, ok := ctx.Value(userIDKey).(int); ok {
		return id
	}
	return 1
}

// WithUserID returns a context with the given user ID.
func WithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// Options configures the MCP server.
type Options struct {
	Version    string
	Clock      clock.Clock
	StaleAfter time.Duration
	Logger     *slog.Logger
}

// New creates an MCP server with all tools and resources registered.
func New(ds DataSource, opts Options) *server.MCPServer {
	s := server.NewMCPServer("Tempo", opts.Version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("Tempo session server. Inspect the user's active workout, run or meditation and their history of finished sessions. All data is scoped to the authenticated user."),
	)

	h := &handlers{ds: ds, clock: opts.Clock, staleAfter: opts.StaleAfter, log: opts.Logger}
	if h.clock == nil {
		h.clock = clock.System{}
	}
	if h.log == nil {
		h.log = slog.Default()
	}

	// Tools
	s.AddTools(
		server.ServerTool{Tool: toolGetActiveSession, Handler: h.getActiveSession},
		server.ServerTool{Tool: toolListSessionHistory, Handler: h.listSessionHistory},
		server.ServerTool{Tool: toolGetHistorySummary, Handler: h.getHistorySummary},
	)

	// Resources
	s.AddResources(
		server.ServerResource{Resource: resActiveSession, Handler: h.activeSession},
		server.ServerResource{Resource: resRecentSessions, Handler: h.recentSessions},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds         DataSource
	clock      clock.Clock
	staleAfter time.Duration
	log        *slog.Logger
}

// --- Resource definitions ---

var resActiveSession = mcp.NewResource(
	"tempo://active_session",
	"Active Session",
	mcp.WithResourceDescription("The session in progress with elapsed, remaining and rest timers derived at read time"),
	mcp.WithMIMEType("application/json"),
)

var resRecentSessions = mcp.NewResource(
	"tempo://recent_sessions",
	"Recent Sessions",
	mcp.WithResourceDescription("Sessions finished in the last 14 days"),
	mcp.WithMIMEType("application/json"),
)
