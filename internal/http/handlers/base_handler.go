// README: Shared handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eden-magar/towing-saas-sub002/internal/maps"
	"github.com/eden-magar/towing-saas-sub002/internal/modules/cash"
	"github.com/eden-magar/towing-saas-sub002/internal/modules/pricing"
	"github.com/eden-magar/towing-saas-sub002/internal/modules/tow"
)

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeTowError maps domain errors onto status codes. Stale transitions are
// retryable conflicts (409); an inactive tow is gone for good (410); failed
// completion preconditions carry a machine-readable reason (422).
func writeTowError(c *gin.Context, err error) {
	var pre *tow.PreconditionError
	switch {
	case errors.As(err, &pre):
		writeJSON(c, http.StatusUnprocessableEntity, errorResponse{
			Error:  pre.Message,
			Reason: pre.Reason,
		})
	case errors.Is(err, tow.ErrBadRequest), errors.Is(err, cash.ErrInvalidAmount):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, tow.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, tow.ErrStaleTransition):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, tow.ErrTowNotActive):
		writeError(c, http.StatusGone, err.Error())
	case errors.Is(err, maps.ErrUpstreamUnavailable):
		writeError(c, http.StatusBadGateway, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func writeCashError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, cash.ErrInvalidAmount):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, cash.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, cash.ErrNothingToTransfer), errors.Is(err, cash.ErrAlreadyResolved):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func writePricingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pricing.ErrNoRates):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, pricing.ErrUnknownClass), errors.Is(err, pricing.ErrNoVehicles):
		writeError(c, http.StatusBadRequest, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
