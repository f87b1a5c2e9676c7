package mcp

import (
	"context"

	"github.com/meltforce/tempo/internal/models"
	"github.com/meltforce/tempo/internal/storage"
)

// DataSource abstracts the data layer for MCP tools. Both *storage.DB (local)
// and HTTPClient (remote via REST API) satisfy this interface.
type DataSource interface {
	GetActiveSession(ctx context.Context, userID int) (*models.Session, error)
	QuerySessionLogs(ctx context.Context, userID int, kind models.Kind, limit int) ([]storage.SessionLog, error)
}

// Compile-time check: *storage.DB satisfies DataSource.
var _ DataSource = (*storage.DB)(nil)
