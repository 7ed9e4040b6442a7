package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"

	adminhttp "github.com/vpio/server/internal/adapter/inbound/http/admin"
	paymenthttp "github.com/vpio/server/internal/adapter/inbound/http/payment"
	systemhttp "github.com/vpio/server/internal/adapter/inbound/http/system"
	"github.com/vpio/server/internal/infra/kvstore"
	"github.com/vpio/server/internal/module/apikey"
	"github.com/vpio/server/internal/module/payment"
	"github.com/vpio/server/internal/module/webhook"
	apperrors "github.com/vpio/server/internal/utils/errors"
	"github.com/vpio/server/internal/utils/metrics"
	"github.com/vpio/server/internal/utils/middleware"
)

// fakeGateway stands in for the Stripe gateway.
type fakeGateway struct {
	created int
}

func (g *fakeGateway) Ping(context.Context) error { return nil }

func (g *fakeGateway) CreatePaymentIntent(_ context.Context, amount int64, currency string, _ map[string]string) (*stripe.PaymentIntent, error) {
	g.created++
	return &stripe.PaymentIntent{
		ID:           "pi_router",
		Amount:       amount,
		Currency:     stripe.Currency(currency),
		ClientSecret: "secret",
		Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
	}, nil
}

func (g *fakeGateway) GetPaymentIntent(context.Context, string) (*stripe.PaymentIntent, error) {
	return nil, fmt.Errorf("%w: %w", apperrors.ErrNotFound, &stripe.Error{HTTPStatusCode: http.StatusNotFound, Msg: "No such payment_intent"})
}

func (g *fakeGateway) WebhookConfigured() bool { return false }

func (g *fakeGateway) ConstructEvent([]byte, string) (stripe.Event, error) {
	return stripe.Event{}, nil
}

func setupRouter(t *testing.T) (*gin.Engine, *fakeGateway) {
	t.Helper()
	ctx := context.Background()
	store := kvstore.New(ctx, nil)
	payments := payment.NewService(store, nil)
	keys := apikey.NewService(store, []string{"test-key"}, nil)
	require.True(t, keys.Seed(ctx))

	gw := &fakeGateway{}
	processor := webhook.NewProcessor(payments, nil)
	queue := webhook.NewQueue(webhook.NewVolatileQueueStore(), processor, nil)

	reg := prometheus.NewRegistry()
	h := &Handlers{
		Health:  systemhttp.NewHealthHandler(gw, payments, nil),
		Stats:   systemhttp.NewStatsHandler(queue, payments),
		Payment: paymenthttp.NewPaymentHandler(payments, gw),
		Webhook: paymenthttp.NewWebhookHandler(gw, processor, queue),
		Keys:    adminhttp.NewKeyHandler(keys),
	}
	router := NewRouter(h, RouterDeps{
		Metrics:        metrics.NewWithRegistry("test", reg),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Keys:           keys,
		ResponseCache:  store,
	})
	return router, gw
}

func request(router *gin.Engine, method, path, apiKey, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set(middleware.APIKeyHeader, apiKey)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRouter_Authentication(t *testing.T) {
	router, _ := setupRouter(t)

	protected := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/payments"},
		{http.MethodGet, "/api/payments/search"},
		{http.MethodGet, "/api/payments/pi_1"},
		{http.MethodPost, "/api/payments/create"},
		{http.MethodGet, "/api/stats"},
		{http.MethodGet, "/api/admin/keys"},
		{http.MethodPost, "/api/admin/keys"},
		{http.MethodDelete, "/api/admin/keys/test-key"},
	}

	for _, rt := range protected {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, request(router, rt.method, rt.path, "", "{}").Code)
			assert.Equal(t, http.StatusForbidden, request(router, rt.method, rt.path, "wrong", "{}").Code)
		})
	}

	t.Run("valid key", func(t *testing.T) {
		w := request(router, http.MethodGet, "/api/payments", "test-key", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("webhooks use signatures instead", func(t *testing.T) {
		w := request(router, http.MethodPost, "/api/webhooks/stripe", "", "{}")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "Webhook secret not configured")
	})
}

func TestRouter_PublicRoutes(t *testing.T) {
	router, _ := setupRouter(t)

	t.Run("health", func(t *testing.T) {
		w := request(router, http.MethodGet, "/health", "", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
	})

	t.Run("metrics", func(t *testing.T) {
		request(router, http.MethodGet, "/health", "", "")
		w := request(router, http.MethodGet, "/metrics", "", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "test_http_requests_total")
	})

	t.Run("compresses when asked", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	})

	t.Run("unknown route", func(t *testing.T) {
		w := request(router, http.MethodGet, "/nope", "", "")
		assert.Equal(t, http.StatusNotFound, w.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "Not found", body["error"])
	})
}

func TestRouter_IdempotentCreate(t *testing.T) {
	router, gw := setupRouter(t)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/payments/create", bytes.NewBufferString(`{"amount":10}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.APIKeyHeader, "test-key")
		req.Header.Set(middleware.IdempotencyKeyHeader, "order-1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	first := send()
	second := send()

	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, gw.created)
}
