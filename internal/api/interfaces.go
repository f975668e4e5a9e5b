// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/dispatch-board/backend/internal/classify"
	"github.com/dispatch-board/backend/internal/models"
	"github.com/dispatch-board/backend/internal/positions"
	"github.com/labstack/echo/v4"
)

// PositionsHandler serves the live aircraft snapshot
type PositionsHandler interface {
	HandleGetPositions(c echo.Context) error
}

// RecordsHandler relays dispatch calls from the record store
type RecordsHandler interface {
	HandleGetDispatchRecords(c echo.Context) error
}

// ClassifyHandler turns call summaries into chief complaints
type ClassifyHandler interface {
	HandleClassifySummary(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// StreamHandler pushes position snapshots over a websocket
type StreamHandler interface {
	HandleStream(c echo.Context) error
	Run(ctx context.Context)
}

// PositionSource defines the position cache the handlers read from.
// This allows mocking in tests
type PositionSource interface {
	GetPositions(ctx context.Context) (*models.Snapshot, error)
	Status() positions.Status
}

// CallLister lists the most recent dispatch calls
type CallLister interface {
	ListCalls(ctx context.Context) ([]models.DispatchCall, error)
}

// Classifier produces a chief complaint for a summary and never fails
type Classifier interface {
	Classify(ctx context.Context, summary string) classify.Result
}
