package systemhttp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/juju/clock"
	"github.com/vpio/server/internal/module/payment"
)

const pingTimeout = 5 * time.Second

// Pinger checks connectivity to the payment processor.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreReporter reports the payment store's serving mode.
type StoreReporter interface {
	GetStoreStatus(ctx context.Context) *payment.StoreStatus
}

// HealthHandler serves the liveness report.
type HealthHandler struct {
	processor Pinger
	store     StoreReporter
	clock     clock.Clock
	startedAt time.Time
}

// NewHealthHandler creates a health handler. Uptime is measured from now.
func NewHealthHandler(processor Pinger, store StoreReporter, clk clock.Clock) *HealthHandler {
	if clk == nil {
		clk = clock.WallClock
	}
	return &HealthHandler{
		processor: processor,
		store:     store,
		clock:     clk,
		startedAt: clk.Now(),
	}
}

// RegisterRoutes registers the health route.
func (h *HealthHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health", h.Health)
}

type serviceStatus struct {
	Status  string               `json:"status"`
	Message string               `json:"message"`
	Details *payment.StoreStatus `json:"details,omitempty"`
}

type healthResponse struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Uptime    string                   `json:"uptime,omitempty"`
	Services  map[string]serviceStatus `json:"services"`
}

// Health handles GET /health. A failed processor ping reports "degraded"
// with 500; store fallback alone is still healthy.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	now := h.clock.Now()
	pingErr := h.processor.Ping(ctx)
	storeStatus := h.store.GetStoreStatus(c.Request.Context())

	kv := serviceStatus{Status: "fallback", Message: "Using memory fallback"}
	if storeStatus.RemoteConnected {
		kv = serviceStatus{Status: "connected", Message: "Redis connected"}
	}

	if pingErr != nil {
		c.JSON(http.StatusInternalServerError, healthResponse{
			Status:    "degraded",
			Timestamp: now.UTC(),
			Services: map[string]serviceStatus{
				"stripe": {Status: "failed", Message: pingErr.Error()},
				"redis":  kv,
			},
		})
		return
	}

	kv.Details = storeStatus
	c.JSON(http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: now.UTC(),
		Uptime:    formatUptime(now.Sub(h.startedAt)),
		Services: map[string]serviceStatus{
			"stripe": {Status: "connected", Message: "Stripe API connection successful"},
			"redis":  kv,
		},
	})
}

func formatUptime(d time.Duration) string {
	secs := int64(d / time.Second)
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}
