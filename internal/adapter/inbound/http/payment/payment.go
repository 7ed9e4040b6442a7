package paymenthttp

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/vpio/server/internal/module/payment"
	apperrors "github.com/vpio/server/internal/utils/errors"
	"github.com/vpio/server/internal/utils/logger"
	"go.uber.org/zap"
)

const (
	defaultCurrency  = "usd"
	defaultProcessor = "auto"
	feeLabel         = "0.5%"

	defaultListLimit   = 20
	defaultSearchLimit = 50
)

// feeMultiplier adds the 0.5% platform fee to the charged amount.
var feeMultiplier = decimal.RequireFromString("1.005")

// PaymentStore is the part of the payment service the handler uses.
type PaymentStore interface {
	SavePayment(ctx context.Context, in *payment.Record) (string, error)
	GetPayment(ctx context.Context, id string) (*payment.Record, error)
	GetRecentPayments(ctx context.Context, limit int) (*payment.RecentResult, error)
	CachePaymentIntent(ctx context.Context, id string, intent *payment.IntentCacheEntry) error
	SearchPayments(ctx context.Context, c *payment.SearchCriteria) ([]*payment.Record, error)
}

// IntentGateway creates and reads processor payment intents.
type IntentGateway interface {
	CreatePaymentIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*stripe.PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
}

// PaymentHandler handles payment HTTP requests.
type PaymentHandler struct {
	payments PaymentStore
	gateway  IntentGateway
}

// NewPaymentHandler creates a new payment handler.
func NewPaymentHandler(payments PaymentStore, gateway IntentGateway) *PaymentHandler {
	return &PaymentHandler{payments: payments, gateway: gateway}
}

// RegisterRoutes registers payment routes. Extra handlers, such as
// idempotency, run before payment creation only.
func (h *PaymentHandler) RegisterRoutes(r *gin.RouterGroup, createMiddleware ...gin.HandlerFunc) {
	payments := r.Group("/payments")
	{
		payments.POST("/create", append(createMiddleware, h.CreatePayment)...)
		payments.GET("", h.ListPayments)
		payments.GET("/search", h.SearchPayments)
		payments.GET("/:id", h.GetPayment)
	}
}

type createPaymentRequest struct {
	Amount    decimal.Decimal   `json:"amount"`
	Currency  string            `json:"currency"`
	Metadata  map[string]string `json:"metadata"`
	Processor string            `json:"processor"`
}

type createPaymentResponse struct {
	ID             string          `json:"id"`
	ClientSecret   string          `json:"clientSecret"`
	Amount         decimal.Decimal `json:"amount"`
	OriginalAmount decimal.Decimal `json:"originalAmount"`
	Fee            decimal.Decimal `json:"fee"`
	Processor      string          `json:"processor"`
	Cached         bool            `json:"cached"`
}

// CreatePayment handles POST /payments/create. The amount is in major units;
// the intent is created for the amount plus fee, in minor units.
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Valid amount is required", err)
		return
	}
	if !req.Amount.IsPositive() {
		c.JSON(http.StatusBadRequest, apperrors.ErrorResponse{
			Error:   "Valid amount is required",
			Message: "Amount must be greater than 0",
		})
		return
	}
	if req.Currency == "" {
		req.Currency = defaultCurrency
	}
	if req.Processor == "" {
		req.Processor = defaultProcessor
	}

	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	cents := req.Amount.Mul(feeMultiplier).Shift(2).Round(0).IntPart()

	metadata := make(map[string]string, len(req.Metadata)+3)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata["originalAmount"] = req.Amount.String()
	metadata["fee"] = feeLabel
	metadata["processor"] = req.Processor

	pi, err := h.gateway.CreatePaymentIntent(ctx, cents, req.Currency, metadata)
	if err != nil {
		log.Error("payment intent creation failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Payment creation failed", err)
		return
	}

	charged := decimal.New(pi.Amount, -2)
	fee := decimal.New(cents, -2).Sub(req.Amount)
	original := req.Amount

	rec := &payment.Record{
		ID:              pi.ID,
		PaymentIntentID: pi.ID,
		Amount:          charged,
		OriginalAmount:  &original,
		Fee:             &fee,
		Currency:        req.Currency,
		Status:          payment.Status(pi.Status),
		Processor:       req.Processor,
		CreatedAt:       pi.Created * 1000,
		Metadata:        toAnyMap(pi.Metadata),
	}
	if _, err := h.payments.SavePayment(ctx, rec); err != nil {
		log.Warn("payment record not saved", zap.String("payment_id", pi.ID), zap.Error(err))
	}

	cached := true
	if err := h.payments.CachePaymentIntent(ctx, pi.ID, &payment.IntentCacheEntry{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Status:       string(pi.Status),
		Created:      pi.Created,
	}); err != nil {
		cached = false
		log.Warn("payment intent not cached", zap.String("payment_id", pi.ID), zap.Error(err))
	}

	c.JSON(http.StatusOK, createPaymentResponse{
		ID:             pi.ID,
		ClientSecret:   pi.ClientSecret,
		Amount:         charged,
		OriginalAmount: original,
		Fee:            fee,
		Processor:      req.Processor,
		Cached:         cached,
	})
}

// ListPayments handles GET /payments.
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	limit := queryInt(c, "limit", defaultListLimit)

	result, err := h.payments.GetRecentPayments(c.Request.Context(), limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to retrieve payments", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payments": result.Payments,
		"total":    result.Total,
		"limit":    limit,
		"source":   "redis_cache",
	})
}

// SearchPayments handles GET /payments/search.
func (h *PaymentHandler) SearchPayments(c *gin.Context) {
	criteria := &payment.SearchCriteria{
		Status:    payment.Status(c.Query("status")),
		Processor: c.Query("processor"),
		Limit:     queryInt(c, "limit", defaultSearchLimit),
	}

	var err error
	if criteria.AmountMin, err = queryDecimal(c, "amount_min"); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid amount_min", err)
		return
	}
	if criteria.AmountMax, err = queryDecimal(c, "amount_max"); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid amount_max", err)
		return
	}

	payments, err := h.payments.SearchPayments(c.Request.Context(), criteria)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Search failed", err)
		return
	}
	if payments == nil {
		payments = []*payment.Record{}
	}

	c.JSON(http.StatusOK, gin.H{
		"payments": payments,
		"criteria": criteria,
		"count":    len(payments),
	})
}

type paymentView struct {
	ID        string          `json:"id"`
	Status    payment.Status  `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Created   time.Time       `json:"created"`
	Processor string          `json:"processor,omitempty"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
	Source    string          `json:"source"`
}

// GetPayment handles GET /payments/:id. The store is consulted first; on a
// miss the intent is fetched from the processor and saved for next time.
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if rec, err := h.payments.GetPayment(ctx, id); err == nil {
		created := time.Now().UTC()
		if rec.CreatedAt != 0 {
			created = rec.CreatedTime()
		}
		c.JSON(http.StatusOK, paymentView{
			ID:        rec.ID,
			Status:    rec.Status,
			Amount:    rec.Amount,
			Currency:  rec.Currency,
			Created:   created,
			Processor: rec.Processor,
			Metadata:  rec.Metadata,
			Source:    "cache",
		})
		return
	}

	pi, err := h.gateway.GetPaymentIntent(ctx, id)
	if err != nil {
		switch status := apperrors.GetStatusCode(err); status {
		case http.StatusNotFound, http.StatusBadRequest:
			respondError(c, http.StatusNotFound, "Payment not found", err)
		case http.StatusServiceUnavailable:
			respondError(c, status, "Payment processor unavailable", err)
		default:
			respondError(c, status, "Failed to retrieve payment", err)
		}
		return
	}

	processor := pi.Metadata["processor"]
	if processor == "" {
		processor = "stripe"
	}
	view := paymentView{
		ID:       pi.ID,
		Status:   payment.Status(pi.Status),
		Amount:   decimal.New(pi.Amount, -2),
		Currency: string(pi.Currency),
		Created:  time.Unix(pi.Created, 0).UTC(),
		Metadata: toAnyMap(pi.Metadata),
		Source:   "stripe",
	}

	if _, err := h.payments.SavePayment(ctx, &payment.Record{
		ID:              pi.ID,
		PaymentIntentID: pi.ID,
		Amount:          view.Amount,
		Currency:        view.Currency,
		Status:          view.Status,
		Processor:       processor,
		CreatedAt:       pi.Created * 1000,
		Metadata:        view.Metadata,
	}); err != nil {
		logger.FromContext(ctx).Warn("payment record not saved", zap.String("payment_id", pi.ID), zap.Error(err))
	}

	c.JSON(http.StatusOK, view)
}

// queryInt parses a positive integer query parameter, falling back to def.
func queryInt(c *gin.Context, name string, def int) int {
	n, err := strconv.Atoi(c.Query(name))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func queryDecimal(c *gin.Context, name string) (*decimal.Decimal, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func toAnyMap(in map[string]string) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
