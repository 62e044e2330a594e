package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/tourismhub-booking/internal/domain"
	"github.com/prohmpiriya/tourismhub-booking/internal/dto"
	"github.com/prohmpiriya/tourismhub-booking/internal/metrics"
	"github.com/prohmpiriya/tourismhub-booking/internal/service"
	"github.com/prohmpiriya/tourismhub-booking/pkg/logger"
	"github.com/prohmpiriya/tourismhub-booking/pkg/response"
	"github.com/prohmpiriya/tourismhub-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// maxWebhookBody caps the payload read from the provider
const maxWebhookBody = 64 << 10

// WebhookHandler receives payment provider notifications
type WebhookHandler struct {
	reconciler service.PaymentReconciler
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(reconciler service.PaymentReconciler) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler}
}

// HandleStripeWebhook handles POST /payments/webhook.
// Signature and payload failures return 400; internal failures return 5xx
// so the provider redelivers.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.webhook.stripe")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)
	log := logger.Get()

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		log.WarnContext(ctx, "failed to read webhook body", zap.Error(err))
		response.BadRequest(c, "failed to read request body")
		return
	}
	if len(payload) > maxWebhookBody {
		response.Error(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "webhook payload too large", "")
		return
	}

	event, err := h.reconciler.VerifyAndParse(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, domain.ErrSignatureInvalid) {
			metrics.RecordSignatureRejection(ctx)
		}
		log.WarnContext(ctx, "rejected payment webhook",
			zap.String("client_ip", c.ClientIP()),
			zap.Error(err),
		)
		writeError(c, err)
		return
	}
	span.SetAttributes(
		attribute.String("event_id", event.EventID),
		attribute.String("event_type", event.ProviderType),
	)

	outcome, err := h.reconciler.Handle(ctx, event)
	if err != nil {
		span.RecordError(err)
		writeError(c, err)
		return
	}

	response.Success(c, dto.WebhookResponse{
		Received: true,
		EventID:  event.EventID,
		Outcome:  string(outcome),
	})
}
