package app

import (
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	adminhttp "github.com/vpio/server/internal/adapter/inbound/http/admin"
	paymenthttp "github.com/vpio/server/internal/adapter/inbound/http/payment"
	systemhttp "github.com/vpio/server/internal/adapter/inbound/http/system"
	"github.com/vpio/server/internal/infra/config"
	"github.com/vpio/server/internal/infra/kvstore"
	"github.com/vpio/server/internal/module/apikey"
	apperrors "github.com/vpio/server/internal/utils/errors"
	"github.com/vpio/server/internal/utils/metrics"
	"github.com/vpio/server/internal/utils/middleware"
)

// Handlers groups the HTTP handlers mounted by the router.
type Handlers struct {
	Health  *systemhttp.HealthHandler
	Stats   *systemhttp.StatsHandler
	Payment *paymenthttp.PaymentHandler
	Webhook *paymenthttp.WebhookHandler
	Keys    *adminhttp.KeyHandler
}

// RouterDeps holds what the router needs besides the handlers.
type RouterDeps struct {
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	Keys           middleware.KeyValidator
	ResponseCache  middleware.ResponseCache
	Debug          bool
}

// ProvideRouter builds the production router.
func ProvideRouter(cfg *config.Config, log *zap.Logger, m *metrics.Metrics, h *Handlers, keys *apikey.Service, store *kvstore.Store) *gin.Engine {
	return NewRouter(h, RouterDeps{
		Logger:         log,
		Metrics:        m,
		MetricsHandler: promhttp.Handler(),
		Keys:           keys,
		ResponseCache:  store,
		Debug:          cfg.Log.Level == "debug",
	})
}

// NewRouter creates the gin engine and registers every route. Webhooks are
// authenticated by signature; the rest of /api requires an API key.
func NewRouter(h *Handlers, deps RouterDeps) *gin.Engine {
	if deps.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID(deps.Logger))
	r.Use(middleware.Logging(deps.Logger))
	r.Use(middleware.Metrics(deps.Metrics))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	h.Health.RegisterRoutes(r)
	if deps.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	api := r.Group("/api")
	h.Webhook.RegisterRoutes(api)

	protected := api.Group("", middleware.APIKey(deps.Keys))
	h.Payment.RegisterRoutes(protected, middleware.Idempotency(deps.ResponseCache, middleware.DefaultIdempotencyConfig()))
	h.Stats.RegisterRoutes(protected)
	h.Keys.RegisterRoutes(protected)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, apperrors.ErrorResponse{
			Error:   "Not found",
			Message: "The requested endpoint was not found",
		})
	})

	return r
}
