package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/tourismhub-booking/internal/dto"
	"github.com/prohmpiriya/tourismhub-booking/internal/service"
	"github.com/prohmpiriya/tourismhub-booking/pkg/response"
	"github.com/prohmpiriya/tourismhub-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// BookingHandler handles booking HTTP requests
type BookingHandler struct {
	bookingService service.BookingService
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookingService service.BookingService) *BookingHandler {
	return &BookingHandler{bookingService: bookingService}
}

// CreateBooking handles POST /bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.create")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	actor, ok := actorFromContext(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "authentication required")
		return
	}

	var req dto.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	span.SetAttributes(
		attribute.String("activity_id", req.ActivityID),
		attribute.Int("number_of_people", req.NumberOfPeople),
	)

	booking, err := h.bookingService.CreateBooking(ctx, actor, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		writeError(c, err)
		return
	}

	span.SetAttributes(attribute.String("booking_id", booking.ID))
	span.SetStatus(codes.Ok, "")
	response.Created(c, dto.FromBooking(booking))
}

// GetBooking handles GET /bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.get")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	actor, ok := actorFromContext(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	booking, err := h.bookingService.GetBooking(ctx, actor, c.Param("id"))
	if err != nil {
		span.RecordError(err)
		writeError(c, err)
		return
	}
	response.Success(c, dto.FromBooking(booking))
}

// CancelBooking handles PUT /bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.cancel")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	actor, ok := actorFromContext(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "authentication required")
		return
	}

	bookingID := c.Param("id")
	span.SetAttributes(attribute.String("booking_id", bookingID))

	booking, err := h.bookingService.CancelBooking(ctx, actor, bookingID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		writeError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.FromBooking(booking))
}

// DeleteBooking handles DELETE /bookings/:id
func (h *BookingHandler) DeleteBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.delete")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	actor, ok := actorFromContext(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "authentication required")
		return
	}

	bookingID := c.Param("id")
	span.SetAttributes(attribute.String("booking_id", bookingID))

	if err := h.bookingService.DeleteBooking(ctx, actor, bookingID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		writeError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.DeleteBookingResponse{BookingID: bookingID, Deleted: true})
}
