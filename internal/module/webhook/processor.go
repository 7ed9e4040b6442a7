package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/vpio/server/internal/module/payment"
	"go.uber.org/zap"
)

// Stripe event types with dedicated handling.
const (
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventPaymentIntentFailed    = "payment_intent.payment_failed"
)

// PaymentRecorder is the part of the payment service the processor writes to.
type PaymentRecorder interface {
	UpdateStatus(ctx context.Context, id string, status payment.Status) (*payment.Record, error)
	SavePayment(ctx context.Context, in *payment.Record) (string, error)
}

// Processor applies processor events to stored payments. It is used both for
// first receipt and for redelivery from the retry queue.
type Processor struct {
	payments PaymentRecorder
	logger   *zap.Logger
}

// NewProcessor creates a new event processor.
func NewProcessor(payments PaymentRecorder, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		payments: payments,
		logger:   logger.Named("webhook-processor"),
	}
}

// Deliver decodes a stored event payload and processes it.
func (p *Processor) Deliver(ctx context.Context, payload json.RawMessage) error {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return p.Process(ctx, &event)
}

// Process handles one event. Unknown event types are acknowledged.
func (p *Processor) Process(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case EventPaymentIntentSucceeded:
		return p.applyPaymentIntent(ctx, event, payment.StatusSucceeded)
	case EventPaymentIntentFailed:
		return p.applyPaymentIntent(ctx, event, payment.StatusFailed)
	default:
		p.logger.Debug("unhandled webhook event type", zap.String("type", string(event.Type)))
		return nil
	}
}

func (p *Processor) applyPaymentIntent(ctx context.Context, event *stripe.Event, status payment.Status) error {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return fmt.Errorf("%w: event %s has no data", ErrInvalidPayload, event.ID)
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return fmt.Errorf("%w: unmarshal payment intent: %v", ErrInvalidPayload, err)
	}

	p.logger.Info("processing payment intent",
		zap.String("event_id", event.ID),
		zap.String("payment_intent_id", pi.ID),
		zap.String("status", string(status)),
	)

	_, err := p.payments.UpdateStatus(ctx, pi.ID, status)
	if err == nil {
		return nil
	}
	if !errors.Is(err, payment.ErrPaymentNotFound) {
		return fmt.Errorf("%w: update payment %s: %v", ErrDeliveryFailed, pi.ID, err)
	}

	// First sight of this intent; record it from the event.
	if _, err := p.payments.SavePayment(ctx, recordFromIntent(&pi, status)); err != nil {
		return fmt.Errorf("%w: save payment %s: %v", ErrDeliveryFailed, pi.ID, err)
	}
	return nil
}

func recordFromIntent(pi *stripe.PaymentIntent, status payment.Status) *payment.Record {
	processor := pi.Metadata["processor"]
	if processor == "" {
		processor = "stripe"
	}
	metadata := make(map[string]any, len(pi.Metadata))
	for k, v := range pi.Metadata {
		metadata[k] = v
	}
	return &payment.Record{
		ID:              pi.ID,
		PaymentIntentID: pi.ID,
		Amount:          decimal.New(pi.Amount, -2),
		Currency:        string(pi.Currency),
		Status:          status,
		Processor:       processor,
		CreatedAt:       pi.Created * 1000,
		Metadata:        metadata,
	}
}

var _ Deliverer = (*Processor)(nil)
