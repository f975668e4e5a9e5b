// handlers_positions.go - Live aircraft position handlers
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// MIMEApplicationMsgpack is the content type of msgpack encoded snapshots
const MIMEApplicationMsgpack = "application/msgpack"

// Snapshot metadata headers
const (
	HeaderSnapshotID    = "X-Snapshot-Id"
	HeaderCapturedAt    = "X-Snapshot-Captured-At"
	HeaderSnapshotStale = "X-Snapshot-Stale"
)

// PositionsHandlerImpl implements the PositionsHandler interface
type PositionsHandlerImpl struct {
	source PositionSource
}

// NewPositionsHandler creates a new positions handler
func NewPositionsHandler(source PositionSource) PositionsHandler {
	return &PositionsHandlerImpl{source: source}
}

// HandleGetPositions returns the current snapshot as a JSON array, or as
// msgpack when asked for with ?format=msgpack or the Accept header.
func (h *PositionsHandlerImpl) HandleGetPositions(c echo.Context) error {
	snap, err := h.source.GetPositions(c.Request().Context())
	if err != nil {
		return positionsError(err)
	}

	header := c.Response().Header()
	header.Set(HeaderSnapshotID, snap.ID())
	header.Set(HeaderCapturedAt, snap.CapturedAt().UTC().Format(time.RFC3339))
	if snap.Stale() {
		header.Set(HeaderSnapshotStale, "true")
	}
	header.Set(echo.HeaderCacheControl, "no-store")

	if wantsMsgpack(c) {
		data, err := msgpack.Marshal(snap.Positions())
		if err != nil {
			return NewInternalError("failed to encode msgpack", err)
		}
		return c.Blob(http.StatusOK, MIMEApplicationMsgpack, data)
	}
	return c.JSON(http.StatusOK, snap)
}

func wantsMsgpack(c echo.Context) bool {
	if strings.EqualFold(c.QueryParam("format"), "msgpack") {
		return true
	}
	return strings.Contains(c.Request().Header.Get(echo.HeaderAccept), MIMEApplicationMsgpack)
}
