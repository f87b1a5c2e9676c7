// Package server is the tempo HTTP API: it mirrors each user's active
// session, reports derived timers, keeps the finished-session history and
// serves the MCP endpoint.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/meltforce/tempo/internal/clock"
	"github.com/meltforce/tempo/internal/mcp"
	"github.com/meltforce/tempo/internal/models"
	"github.com/meltforce/tempo/internal/storage"
)

// Backend is the persistence the handlers need. *storage.DB implements it.
type Backend interface {
	UserResolver
	GetActiveSession(ctx context.Context, userID int) (*models.Session, error)
	UpsertActiveSession(ctx context.Context, userID int, sess *models.Session) (bool, error)
	DeleteActiveSession(ctx context.Context, userID int) error
	InsertSessionLog(ctx context.Context, log storage.SessionLog) (int64, error)
	QuerySessionLogs(ctx context.Context, userID int, kind models.Kind, limit int) ([]storage.SessionLog, error)
	GetHistoryStats(ctx context.Context, userID int) (*storage.HistoryStats, error)
	CountActiveSessions(ctx context.Context) (int, error)
}

var _ Backend = (*storage.DB)(nil)

// Options configures a Server.
type Options struct {
	APIKey  string
	Version string
	Clock   clock.Clock
	// StaleAfter is the age at which status reports flag a mirror as stale.
	StaleAfter time.Duration
	Logger     *slog.Logger
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	db     Backend
	log    *slog.Logger
	apiKey string
	clock  clock.Clock
	whois  WhoIser

	staleAfter time.Duration
	mcp        http.Handler
	router     chi.Router
}

// New creates a new Server with all routes configured.
func New(db Backend, opts Options) *Server {
	clk := opts.Clock
	if clk == nil {
		clk = clock.System{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		db:     db,
		log:    log,
		apiKey: opts.APIKey,
		clock:  clk,
		router: chi.NewRouter(),

		staleAfter: opts.StaleAfter,
	}

	mcpSrv := mcp.New(db, mcp.Options{Version: opts.Version, Clock: clk, StaleAfter: opts.StaleAfter, Logger: log})
	s.mcp = mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return mcp.WithUserID(ctx, userIDFromContext(r))
		}),
	)

	s.routes()
	return s
}

// SetTailscale switches identity from the dev user to tailnet WhoIs lookups.
func (s *Server) SetTailscale(whois WhoIser) {
	s.whois = whois
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)
	s.router.Use(s.identify)

	s.router.Get("/api/v1/health", s.handleHealth)
	s.router.Get("/api/v1/me", s.handleMe)

	// Session endpoints (API key required)
	s.router.Route("/api/v1/sessions", func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))
		r.Get("/active", s.handleGetActive)
		r.Put("/active", s.handlePutActive)
		r.Delete("/active", s.handleDeleteActive)
		r.Get("/active/status", s.handleActiveStatus)
		r.Post("/history", s.handlePostHistory)
		r.Get("/history", s.handleQueryHistory)
		r.Get("/history/stats", s.handleHistoryStats)
	})

	s.router.Handle("/mcp", s.mcp)
}

// identify applies tailnet identity once SetTailscale has been called and
// the dev identity otherwise.
func (s *Server) identify(next http.Handler) http.Handler {
	dev := DevIdentity(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.whois == nil {
			dev.ServeHTTP(w, r)
			return
		}
		TailscaleIdentity(s.whois, s.db, s.log)(next).ServeHTTP(w, r)
	})
}
