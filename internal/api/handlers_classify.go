// handlers_classify.go - Chief complaint classification handlers
package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// ClassifyHandlerImpl implements the ClassifyHandler interface
type ClassifyHandlerImpl struct {
	classifier Classifier
}

// NewClassifyHandler creates a new classify handler
func NewClassifyHandler(classifier Classifier) ClassifyHandler {
	return &ClassifyHandlerImpl{classifier: classifier}
}

// HandleClassifySummary always answers 200 once the body is valid; the
// classifier degrades to its local fallback on its own.
func (h *ClassifyHandlerImpl) HandleClassifySummary(c echo.Context) error {
	var req struct {
		Summary string `json:"summary"`
	}
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if strings.TrimSpace(req.Summary) == "" {
		return NewValidationError("summary")
	}

	return c.JSON(http.StatusOK, h.classifier.Classify(c.Request().Context(), req.Summary))
}
