// handlers_records.go - Dispatch record proxy handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// RecordsHandlerImpl implements the RecordsHandler interface
type RecordsHandlerImpl struct {
	calls CallLister
}

// NewRecordsHandler creates a new records handler
func NewRecordsHandler(calls CallLister) RecordsHandler {
	return &RecordsHandlerImpl{calls: calls}
}

// HandleGetDispatchRecords relays the newest dispatch calls
func (h *RecordsHandlerImpl) HandleGetDispatchRecords(c echo.Context) error {
	calls, err := h.calls.ListCalls(c.Request().Context())
	if err != nil {
		log.WithField("component", "records").WithError(err).Error("fetching dispatch calls")
		return recordsError(err)
	}
	return c.JSON(http.StatusOK, calls)
}
