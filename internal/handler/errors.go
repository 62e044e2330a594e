package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/tourismhub-booking/internal/domain"
	"github.com/prohmpiriya/tourismhub-booking/pkg/logger"
	"github.com/prohmpiriya/tourismhub-booking/pkg/middleware"
	"github.com/prohmpiriya/tourismhub-booking/pkg/response"
	"go.uber.org/zap"
)

// actorFromContext builds the caller identity set by the auth middleware
func actorFromContext(c *gin.Context) (domain.Actor, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return domain.Actor{}, false
	}
	return domain.Actor{UserID: userID, Role: domain.Role(middleware.GetUserRole(c))}, true
}

// writeError maps domain errors to HTTP responses
func writeError(c *gin.Context, err error) {
	switch {
	case domain.IsValidationError(err):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), "")
	case errors.Is(err, domain.ErrActivityNotFound):
		response.Error(c, http.StatusNotFound, "ACTIVITY_NOT_FOUND", err.Error(), "")
	case errors.Is(err, domain.ErrBookingNotFound):
		response.Error(c, http.StatusNotFound, "BOOKING_NOT_FOUND", err.Error(), "")
	case errors.Is(err, domain.ErrInsufficientSlots):
		response.Conflict(c, "INSUFFICIENT_SLOTS", err.Error())
	case errors.Is(err, domain.ErrNotCancelable):
		response.Conflict(c, "NOT_CANCELABLE", err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		logger.Get().ErrorContext(c.Request.Context(), "invalid state transition",
			zap.String("path", c.FullPath()),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err),
		)
		response.Conflict(c, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		response.Forbidden(c, err.Error())
	case errors.Is(err, domain.ErrSignatureInvalid):
		response.Error(c, http.StatusBadRequest, "SIGNATURE_INVALID", domain.ErrSignatureInvalid.Error(), "")
	case errors.Is(err, domain.ErrMalformedPayload):
		response.Error(c, http.StatusBadRequest, "MALFORMED_PAYLOAD", err.Error(), "")
	default:
		logger.Get().ErrorContext(c.Request.Context(), "request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err),
		)
		response.InternalError(c, err)
	}
}
