package paymenthttp

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v76"
	"github.com/vpio/server/internal/module/webhook"
	"github.com/vpio/server/internal/utils/logger"
	"go.uber.org/zap"
)

// maxWebhookBodyBytes bounds the signed payload read from the processor.
const maxWebhookBodyBytes = 65536

// EventVerifier checks processor webhook signatures.
type EventVerifier interface {
	WebhookConfigured() bool
	ConstructEvent(payload []byte, signature string) (stripe.Event, error)
}

// EventProcessor applies a verified event.
type EventProcessor interface {
	Process(ctx context.Context, event *stripe.Event) error
}

// RetryQueue accepts events whose processing failed.
type RetryQueue interface {
	AddFailedWebhook(ctx context.Context, event webhook.Event, cause error) (*webhook.FailedWebhook, error)
}

// WebhookHandler handles processor webhook HTTP requests.
type WebhookHandler struct {
	verifier  EventVerifier
	processor EventProcessor
	queue     RetryQueue
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(verifier EventVerifier, processor EventProcessor, queue RetryQueue) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, processor: processor, queue: queue}
}

// RegisterRoutes registers webhook routes.
func (h *WebhookHandler) RegisterRoutes(r *gin.RouterGroup) {
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/stripe", h.HandleStripeWebhook)
	}
}

// HandleStripeWebhook handles POST /webhooks/stripe. A verified event whose
// processing fails is queued for redelivery and answered with 500.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	if !h.verifier.WebhookConfigured() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook secret not configured"})
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid payload", err)
		return
	}

	event, err := h.verifier.ConstructEvent(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid signature", err)
		return
	}

	ctx := c.Request.Context()
	log := logger.FromContext(ctx).With(
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
	)
	log.Info("webhook received")

	procErr := h.processor.Process(ctx, &event)
	if procErr == nil {
		c.JSON(http.StatusOK, gin.H{"received": true, "type": event.Type})
		return
	}

	log.Error("webhook processing failed", zap.Error(procErr))
	if _, err := h.queue.AddFailedWebhook(ctx, webhook.Event{
		ID:      event.ID,
		Type:    string(event.Type),
		Payload: payload,
	}, procErr); err != nil {
		log.Error("webhook not queued for retry", zap.Error(errors.Join(procErr, err)))
	}

	respondError(c, http.StatusInternalServerError, "Webhook processing failed", procErr)
}
