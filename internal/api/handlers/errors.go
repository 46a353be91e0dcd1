package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/fieldtrack/services/ledger/internal/service"
)

// ErrorResponse defines the structure of an error response
type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// writeError maps domain errors onto HTTP responses
func writeError(c *gin.Context, err error) {
	var (
		validationErr *service.ValidationError
		capacityErr   *service.CapacityExceededError
		stateErr      *service.InvalidStateTransitionError
		notFoundErr   *service.NotFoundError
		writeErr      *service.DependencyWriteFailureError
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: validationErr.Error(), Code: "VALIDATION_ERROR"})
	case errors.As(err, &capacityErr):
		c.JSON(http.StatusConflict, gin.H{
			"message":           capacityErr.Error(),
			"code":              "CAPACITY_EXCEEDED",
			"block_activity_id": capacityErr.BlockActivityID,
			"requested":         capacityErr.Requested,
			"available":         capacityErr.Available,
		})
	case errors.As(err, &stateErr):
		c.JSON(http.StatusConflict, ErrorResponse{Message: stateErr.Error(), Code: "INVALID_STATE_TRANSITION"})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: notFoundErr.Error(), Code: "NOT_FOUND"})
	case errors.As(err, &writeErr):
		log.Error().Err(err).Msg("Dependency write failure")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: writeErr.Error(), Code: "DEPENDENCY_WRITE_FAILURE"})
	default:
		log.Error().Err(err).Msg("Unhandled error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "Internal server error", Code: "INTERNAL_ERROR"})
	}
}
