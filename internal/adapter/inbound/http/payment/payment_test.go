package paymenthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/vpio/server/internal/infra/kvstore"
	"github.com/vpio/server/internal/module/payment"
	apperrors "github.com/vpio/server/internal/utils/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreatePaymentIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*stripe.PaymentIntent, error) {
	args := m.Called(ctx, amount, currency, metadata)
	if pi := args.Get(0); pi != nil {
		return pi.(*stripe.PaymentIntent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGateway) GetPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	args := m.Called(ctx, id)
	if pi := args.Get(0); pi != nil {
		return pi.(*stripe.PaymentIntent), args.Error(1)
	}
	return nil, args.Error(1)
}

func setupPaymentRouter(t *testing.T) (*gin.Engine, *payment.Service, *MockGateway) {
	t.Helper()
	store := kvstore.New(context.Background(), nil)
	svc := payment.NewService(store, nil)
	gw := &MockGateway{}

	router := gin.New()
	NewPaymentHandler(svc, gw).RegisterRoutes(router.Group("/api"))
	return router, svc, gw
}

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestCreatePayment(t *testing.T) {
	t.Run("creates intent with fee and stores it", func(t *testing.T) {
		router, svc, gw := setupPaymentRouter(t)

		gw.On("CreatePaymentIntent", mock.Anything, int64(1005), "usd", mock.MatchedBy(func(md map[string]string) bool {
			return md["originalAmount"] == "10" && md["fee"] == "0.5%" && md["processor"] == "auto" && md["order"] == "42"
		})).Return(&stripe.PaymentIntent{
			ID:           "pi_123",
			Amount:       1005,
			ClientSecret: "pi_123_secret",
			Currency:     stripe.CurrencyUSD,
			Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
			Created:      1700000000,
			Metadata:     map[string]string{"order": "42", "processor": "auto"},
		}, nil)

		w := doJSON(router, http.MethodPost, "/api/payments/create", map[string]any{
			"amount":   10,
			"metadata": map[string]string{"order": "42"},
		})

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		body := decodeBody(t, w)
		assert.Equal(t, "pi_123", body["id"])
		assert.Equal(t, "pi_123_secret", body["clientSecret"])
		assert.Equal(t, 10.05, body["amount"])
		assert.Equal(t, 10.0, body["originalAmount"])
		assert.Equal(t, 0.05, body["fee"])
		assert.Equal(t, "auto", body["processor"])
		assert.Equal(t, true, body["cached"])
		gw.AssertExpectations(t)

		rec, err := svc.GetPayment(context.Background(), "pi_123")
		require.NoError(t, err)
		assert.True(t, rec.Amount.Equal(decimal.RequireFromString("10.05")))
		require.NotNil(t, rec.OriginalAmount)
		assert.True(t, rec.OriginalAmount.Equal(decimal.NewFromInt(10)))
		assert.Equal(t, payment.Status("requires_payment_method"), rec.Status)
		assert.Equal(t, int64(1700000000000), rec.CreatedAt)

		intent, err := svc.GetCachedPaymentIntent(context.Background(), "pi_123")
		require.NoError(t, err)
		assert.Equal(t, "pi_123_secret", intent.ClientSecret)
		assert.Equal(t, int64(1005), intent.Amount)
	})

	t.Run("rounds minor units", func(t *testing.T) {
		router, _, gw := setupPaymentRouter(t)
		// 19.99 * 1.005 = 20.08995 -> 2009 cents
		gw.On("CreatePaymentIntent", mock.Anything, int64(2009), "eur", mock.Anything).
			Return(&stripe.PaymentIntent{ID: "pi_r", Amount: 2009, Currency: "eur"}, nil)

		w := doJSON(router, http.MethodPost, "/api/payments/create", map[string]any{
			"amount": 19.99, "currency": "eur", "processor": "stripe",
		})

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		body := decodeBody(t, w)
		assert.Equal(t, 0.1, body["fee"])
		assert.Equal(t, "stripe", body["processor"])
		gw.AssertExpectations(t)
	})

	t.Run("rejects missing or non-positive amounts", func(t *testing.T) {
		router, _, gw := setupPaymentRouter(t)

		for _, body := range []any{
			map[string]any{},
			map[string]any{"amount": 0},
			map[string]any{"amount": -5},
			map[string]any{"amount": "abc"},
		} {
			w := doJSON(router, http.MethodPost, "/api/payments/create", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "Valid amount is required", decodeBody(t, w)["error"])
		}
		gw.AssertNotCalled(t, "CreatePaymentIntent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("processor failure", func(t *testing.T) {
		router, _, gw := setupPaymentRouter(t)
		gw.On("CreatePaymentIntent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, errors.New("card_declined"))

		w := doJSON(router, http.MethodPost, "/api/payments/create", map[string]any{"amount": 5})

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "Payment creation failed", body["error"])
		assert.Equal(t, "card_declined", body["message"])
	})
}

func TestListPayments(t *testing.T) {
	router, svc, _ := setupPaymentRouter(t)
	ctx := context.Background()
	for _, id := range []string{"pi_1", "pi_2", "pi_3"} {
		_, err := svc.SavePayment(ctx, &payment.Record{ID: id, Amount: decimal.NewFromInt(1)})
		require.NoError(t, err)
	}

	t.Run("explicit limit", func(t *testing.T) {
		w := doJSON(router, http.MethodGet, "/api/payments?limit=2", nil)
		require.Equal(t, http.StatusOK, w.Code)

		body := decodeBody(t, w)
		assert.Len(t, body["payments"], 2)
		assert.Equal(t, 3.0, body["total"])
		assert.Equal(t, 2.0, body["limit"])
		assert.Equal(t, "redis_cache", body["source"])
	})

	t.Run("invalid limit uses default", func(t *testing.T) {
		w := doJSON(router, http.MethodGet, "/api/payments?limit=abc", nil)
		require.Equal(t, http.StatusOK, w.Code)

		body := decodeBody(t, w)
		assert.Len(t, body["payments"], 3)
		assert.Equal(t, 20.0, body["limit"])
	})
}

func TestSearchPayments(t *testing.T) {
	router, svc, _ := setupPaymentRouter(t)
	ctx := context.Background()
	seed := []struct {
		id     string
		amount string
		status payment.Status
	}{
		{"pi_a", "5", payment.StatusSucceeded},
		{"pi_b", "15", payment.StatusSucceeded},
		{"pi_c", "25", payment.StatusFailed},
	}
	for _, s := range seed {
		_, err := svc.SavePayment(ctx, &payment.Record{ID: s.id, Amount: decimal.RequireFromString(s.amount), Status: s.status})
		require.NoError(t, err)
	}

	tests := []struct {
		name  string
		query string
		count int
	}{
		{"no filters", "", 3},
		{"by status", "?status=succeeded", 2},
		{"min amount inclusive", "?amount_min=15", 2},
		{"amount range", "?amount_min=10&amount_max=20", 1},
		{"status and amount", "?status=failed&amount_max=10", 0},
		{"limit", "?limit=1", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(router, http.MethodGet, "/api/payments/search"+tt.query, nil)
			require.Equal(t, http.StatusOK, w.Code)

			body := decodeBody(t, w)
			assert.Equal(t, float64(tt.count), body["count"])
			assert.Len(t, body["payments"], tt.count)
			assert.NotNil(t, body["criteria"])
		})
	}

	t.Run("invalid bound", func(t *testing.T) {
		w := doJSON(router, http.MethodGet, "/api/payments/search?amount_min=ten", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetPayment(t *testing.T) {
	t.Run("served from the store", func(t *testing.T) {
		router, svc, gw := setupPaymentRouter(t)
		_, err := svc.SavePayment(context.Background(), &payment.Record{
			ID: "pi_1", Amount: decimal.NewFromInt(12), Status: payment.StatusSucceeded, CreatedAt: 1700000000000,
		})
		require.NoError(t, err)

		w := doJSON(router, http.MethodGet, "/api/payments/pi_1", nil)
		require.Equal(t, http.StatusOK, w.Code)

		body := decodeBody(t, w)
		assert.Equal(t, "cache", body["source"])
		assert.Equal(t, "succeeded", body["status"])
		assert.Equal(t, 12.0, body["amount"])
		assert.Equal(t, "2023-11-14T22:13:20Z", body["created"])
		gw.AssertNotCalled(t, "GetPaymentIntent", mock.Anything, mock.Anything)
	})

	t.Run("fetched from processor and saved", func(t *testing.T) {
		router, svc, gw := setupPaymentRouter(t)
		gw.On("GetPaymentIntent", mock.Anything, "pi_remote").Return(&stripe.PaymentIntent{
			ID:       "pi_remote",
			Amount:   2500,
			Currency: stripe.CurrencyUSD,
			Status:   stripe.PaymentIntentStatusSucceeded,
			Created:  1700000000,
			Metadata: map[string]string{"processor": "auto"},
		}, nil).Once()

		w := doJSON(router, http.MethodGet, "/api/payments/pi_remote", nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "stripe", body["source"])
		assert.Equal(t, 25.0, body["amount"])

		rec, err := svc.GetPayment(context.Background(), "pi_remote")
		require.NoError(t, err)
		assert.Equal(t, "auto", rec.Processor)
		assert.Equal(t, payment.StatusSucceeded, rec.Status)

		// Second read is served from the store.
		w = doJSON(router, http.MethodGet, "/api/payments/pi_remote", nil)
		assert.Equal(t, "cache", decodeBody(t, w)["source"])
		gw.AssertExpectations(t)
	})

	t.Run("unknown everywhere", func(t *testing.T) {
		router, _, gw := setupPaymentRouter(t)
		gw.On("GetPaymentIntent", mock.Anything, "pi_missing").
			Return(nil, fmt.Errorf("%w: No such payment_intent", apperrors.ErrNotFound))

		w := doJSON(router, http.MethodGet, "/api/payments/pi_missing", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "Payment not found", decodeBody(t, w)["error"])
	})

	t.Run("processor unavailable", func(t *testing.T) {
		router, _, gw := setupPaymentRouter(t)
		gw.On("GetPaymentIntent", mock.Anything, "pi_1").
			Return(nil, apperrors.BackendUnavailable("get_payment_intent", errors.New("circuit breaker is open")))

		w := doJSON(router, http.MethodGet, "/api/payments/pi_1", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "Payment processor unavailable", decodeBody(t, w)["error"])
	})

	t.Run("unexpected gateway failure", func(t *testing.T) {
		router, _, gw := setupPaymentRouter(t)
		gw.On("GetPaymentIntent", mock.Anything, "pi_1").Return(nil, errors.New("boom"))

		w := doJSON(router, http.MethodGet, "/api/payments/pi_1", nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "Failed to retrieve payment", decodeBody(t, w)["error"])
	})
}
