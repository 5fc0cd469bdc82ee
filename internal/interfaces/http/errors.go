package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-flow/internal/domain/entity"
)

const excelContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// statusFor maps domain error kinds to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrTransition), errors.Is(err, entity.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, entity.ErrStaleCallback):
		return http.StatusAccepted
	case errors.Is(err, entity.ErrExtraction):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the error envelope. Stale callbacks are acknowledged so the
// sender does not retry them.
func (h *Handlers) fail(c *gin.Context, op string, err error) {
	status := statusFor(err)

	switch status {
	case http.StatusAccepted:
		h.logger.Info("Ignoring stale extraction callback", "operation", op, "error", err)
		c.JSON(status, Response{Success: true, Data: gin.H{"ignored": true, "reason": err.Error()}})
		return
	case http.StatusInternalServerError:
		h.logger.Error("Request failed", "operation", op, "error", err)
		c.JSON(status, Response{Success: false, Error: "internal server error"})
		return
	}

	h.logger.Info("Request rejected", "operation", op, "status", status, "error", err)
	c.JSON(status, Response{Success: false, Error: err.Error()})
}
