package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	apperrors "github.com/vpio/server/internal/utils/errors"
	"github.com/vpio/server/internal/utils/metrics"
)

// ErrWebhookSecretMissing is returned when webhook verification is requested
// without a configured signing secret.
var ErrWebhookSecretMissing = errors.New("webhook secret not configured")

// Config holds Stripe gateway configuration.
type Config struct {
	SecretKey        string
	WebhookSecret    string
	FailureThreshold uint32
	CircuitTimeout   time.Duration
	// BackendURL overrides the API base URL.
	BackendURL string
}

// Gateway wraps the Stripe API behind a circuit breaker.
type Gateway struct {
	api           *client.API
	webhookSecret string
	breaker       *gobreaker.CircuitBreaker[any]
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

// NewGateway creates a Stripe gateway.
func NewGateway(cfg Config, m *metrics.Metrics, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.CircuitTimeout <= 0 {
		cfg.CircuitTimeout = 60 * time.Second
	}

	var backends *stripe.Backends
	if cfg.BackendURL != "" {
		backendCfg := &stripe.BackendConfig{
			URL:               stripe.String(cfg.BackendURL),
			MaxNetworkRetries: stripe.Int64(0),
			LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
		}
		backends = &stripe.Backends{
			API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
			Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
			Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
		}
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, backends)

	threshold := cfg.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "stripe",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     cfg.CircuitTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// Card declines and validation errors are not outages.
			var stripeErr *stripe.Error
			if errors.As(err, &stripeErr) {
				return stripeErr.HTTPStatusCode < 500
			}
			return err == nil
		},
	})

	return &Gateway{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		breaker:       breaker,
		metrics:       m,
		logger:        logger.Named("stripe"),
	}
}

// CreatePaymentIntent creates an intent for amount in minor units.
func (g *Gateway) CreatePaymentIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := execute(g, "create_payment_intent", func() (*stripe.PaymentIntent, error) {
		return g.api.PaymentIntents.New(params)
	})
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return pi, nil
}

// GetPaymentIntent retrieves an intent by id.
func (g *Gateway) GetPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := execute(g, "get_payment_intent", func() (*stripe.PaymentIntent, error) {
		return g.api.PaymentIntents.Get(id, params)
	})
	if err != nil {
		return nil, fmt.Errorf("get payment intent: %w", err)
	}
	return pi, nil
}

// Ping checks API connectivity by retrieving the account.
func (g *Gateway) Ping(ctx context.Context) error {
	_, err := execute(g, "ping", func() (*stripe.Account, error) {
		return g.api.Accounts.Get()
	})
	return err
}

// WebhookConfigured reports whether a signing secret is set.
func (g *Gateway) WebhookConfigured() bool {
	return g.webhookSecret != ""
}

// ConstructEvent verifies the signature header and decodes the event.
func (g *Gateway) ConstructEvent(payload []byte, signature string) (stripe.Event, error) {
	if g.webhookSecret == "" {
		return stripe.Event{}, ErrWebhookSecretMissing
	}
	return webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

// BreakerState returns the circuit breaker state name.
func (g *Gateway) BreakerState() string {
	return g.breaker.State().String()
}

func execute[T any](g *Gateway, op string, fn func() (T, error)) (T, error) {
	res, err := g.breaker.Execute(func() (any, error) {
		return fn()
	})
	g.metrics.RecordProcessorRequest(op, err)

	var zero T
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			g.logger.Warn("stripe circuit open", zap.String("operation", op))
		}
		return zero, classify(op, err)
	}
	return res.(T), nil
}

// classify maps a Stripe call failure onto the application error taxonomy:
// a missing resource is NotFound, other 4xx replies are BadRequest, and an
// open circuit, a 5xx or a transport failure is BackendUnavailable.
func classify(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.HTTPStatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %w", apperrors.ErrNotFound, err)
		case stripeErr.HTTPStatusCode >= 400 && stripeErr.HTTPStatusCode < 500:
			return fmt.Errorf("%w: %w", apperrors.ErrBadRequest, err)
		}
	}
	return apperrors.BackendUnavailable(op, err)
}
