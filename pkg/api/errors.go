package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fourkites/rca-engine/pkg/investigation"
)

// apiError is a JSON error body, matching the shape of a successful
// response's sibling: { "error": "..." }.
type apiError struct {
	Error string `json:"error"`
}

// mapInvestigationError maps investigation-layer errors to an HTTP status
// and writes the JSON error body, aborting the gin context.
func mapInvestigationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, investigation.ErrUnknownInvestigation):
		c.AbortWithStatusJSON(http.StatusNotFound, apiError{Error: "investigation not found"})
	case errors.Is(err, investigation.ErrInvalidPhase):
		c.AbortWithStatusJSON(http.StatusConflict, apiError{Error: "investigation is not waiting for human input"})
	default:
		slog.Error("unexpected investigation error", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, apiError{Error: "internal server error"})
	}
}

// badRequest aborts the request with a 400 and the given message.
func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, apiError{Error: msg})
}
