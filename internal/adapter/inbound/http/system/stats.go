package systemhttp

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vpio/server/internal/module/payment"
	"github.com/vpio/server/internal/module/webhook"
	apperrors "github.com/vpio/server/internal/utils/errors"
	"github.com/vpio/server/internal/utils/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RetryStatsReader summarizes the webhook retry queue.
type RetryStatsReader interface {
	GetRetryStats(ctx context.Context) (*webhook.RetryStats, error)
}

// PaymentStatsReader aggregates stored payments.
type PaymentStatsReader interface {
	GetPaymentStats(ctx context.Context) (*payment.Stats, error)
	GetStoreStatus(ctx context.Context) *payment.StoreStatus
}

// StatsHandler serves the operational summary.
type StatsHandler struct {
	retries  RetryStatsReader
	payments PaymentStatsReader
}

// NewStatsHandler creates a stats handler.
func NewStatsHandler(retries RetryStatsReader, payments PaymentStatsReader) *StatsHandler {
	return &StatsHandler{retries: retries, payments: payments}
}

// RegisterRoutes registers the stats route.
func (h *StatsHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/stats", h.Stats)
}

type statsResponse struct {
	WebhookRetries *webhook.RetryStats  `json:"webhookRetries"`
	Payments       *payment.Stats       `json:"payments"`
	Storage        *payment.StoreStatus `json:"storage"`
}

// Stats handles GET /stats. The three reads run concurrently. Payment stats
// that fail to compute are reported as null; a failing retry queue read
// fails the request.
func (h *StatsHandler) Stats(c *gin.Context) {
	var resp statsResponse
	g, ctx := errgroup.WithContext(c.Request.Context())

	g.Go(func() error {
		stats, err := h.retries.GetRetryStats(ctx)
		if err != nil {
			return err
		}
		resp.WebhookRetries = stats
		return nil
	})
	g.Go(func() error {
		stats, err := h.payments.GetPaymentStats(ctx)
		if err != nil {
			logger.FromContext(ctx).Warn("payment stats unavailable", zap.Error(err))
			return nil
		}
		resp.Payments = stats
		return nil
	})
	g.Go(func() error {
		resp.Storage = h.payments.GetStoreStatus(ctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		c.JSON(http.StatusInternalServerError, apperrors.ErrorResponse{
			Error:   "Stats retrieval failed",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, resp)
}
