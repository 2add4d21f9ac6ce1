package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hotel-stays-backend/internal/apperror"
)

// writeError maps the core error kinds onto HTTP responses.
func (h *Handler) writeError(c *gin.Context, err error) {
	var (
		verr *apperror.ValidationError
		cerr *apperror.ConflictError
		terr *apperror.InvalidTransitionError
	)
	switch {
	case errors.As(err, &verr):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.As(err, &cerr):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error":                      cerr.Error(),
			"conflicting_reservation_id": cerr.ConflictingReservationID,
		})
	case errors.As(err, &terr):
		status := http.StatusConflict
		if terr.Unauthorized {
			status = http.StatusForbidden
		}
		c.AbortWithStatusJSON(status, gin.H{"error": terr.Error(), "status": terr.From})
	case errors.Is(err, apperror.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case apperror.IsTransient(err):
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		h.log.Error("unhandled error", zap.String("path", c.FullPath()), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}
