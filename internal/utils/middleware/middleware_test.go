package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vpio/server/internal/utils/logger"
	"github.com/vpio/server/internal/utils/metrics"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestID(t *testing.T) {
	t.Run("generates new request ID when not provided", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID(nil))
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusOK, GetRequestID(c))
		})

		req := httptest.NewRequest("GET", "/test", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		headerID := w.Header().Get(RequestIDHeader)
		assert.NotEmpty(t, headerID)
		assert.Equal(t, headerID, w.Body.String())
	})

	t.Run("uses existing request ID from header", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID(nil))
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusOK, GetRequestID(c))
		})

		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set(RequestIDHeader, "existing-request-id-123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "existing-request-id-123", w.Header().Get(RequestIDHeader))
		assert.Equal(t, "existing-request-id-123", w.Body.String())
	})
}

func TestRequestID_ReplacesUnsafeIDs(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"too long", strings.Repeat("a", maxRequestIDLength+1)},
		{"contains space", "abc def"},
		{"contains newline", "abc\ninjected"},
		{"non ascii", "idé"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			router := gin.New()
			router.Use(RequestID(zap.New(core)))
			router.GET("/test", func(c *gin.Context) {
				logger.FromContext(c.Request.Context()).Info("handled")
				c.Status(http.StatusNoContent)
			})

			req := httptest.NewRequest("GET", "/test", nil)
			req.Header.Set(RequestIDHeader, tt.id)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			got := w.Header().Get(RequestIDHeader)
			assert.NotEqual(t, tt.id, got)
			assert.Len(t, got, 36)

			entries := logs.FilterMessage("handled").All()
			require.Len(t, entries, 1)
			assert.Equal(t, got, entries[0].ContextMap()["request_id"])
		})
	}
}

func TestGetRequestID(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Empty(t, GetRequestID(c))

	c.Set(RequestIDKey, "test-id")
	assert.Equal(t, "test-id", GetRequestID(c))
}

func TestLogging(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  zapcore.Level
	}{
		{"success logged at info", http.StatusOK, zapcore.InfoLevel},
		{"4xx logged at warn", http.StatusNotFound, zapcore.WarnLevel},
		{"5xx logged at error", http.StatusInternalServerError, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)

			router := gin.New()
			log := zap.New(core)
			router.Use(RequestID(log))
			router.Use(Logging(log))
			router.GET("/test", func(c *gin.Context) {
				c.String(tt.status, "body")
			})

			req := httptest.NewRequest("GET", "/test?foo=bar", nil)
			req.Header.Set("User-Agent", "TestAgent/1.0")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			entries := logs.FilterMessage("HTTP Request").All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.level, entries[0].Level)

			fields := entries[0].ContextMap()
			assert.EqualValues(t, tt.status, fields["status"])
			assert.Equal(t, "/test", fields["path"])
			assert.Equal(t, "foo=bar", fields["query"])
			assert.Equal(t, "TestAgent/1.0", fields["user_agent"])
			assert.Equal(t, w.Header().Get(RequestIDHeader), fields["request_id"])
		})
	}

	t.Run("handlers get a request scoped logger", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)

		router := gin.New()
		router.Use(RequestID(zap.New(core)))
		router.GET("/test", func(c *gin.Context) {
			logger.FromContext(c.Request.Context()).Info("inside handler")
			c.Status(http.StatusNoContent)
		})

		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set(RequestIDHeader, "req-42")
		router.ServeHTTP(httptest.NewRecorder(), req)

		entries := logs.FilterMessage("inside handler").All()
		require.Len(t, entries, 1)
		assert.Equal(t, "req-42", entries[0].ContextMap()["request_id"])
	})
}

func TestRecovery(t *testing.T) {
	t.Run("recovers from panic", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)

		router := gin.New()
		router.Use(Recovery(zap.New(core)))
		router.GET("/panic", func(c *gin.Context) {
			panic("test panic")
		})

		w := httptest.NewRecorder()
		require.NotPanics(t, func() {
			router.ServeHTTP(w, httptest.NewRequest("GET", "/panic", nil))
		})

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "Internal server error")

		entries := logs.FilterMessage("Panic recovered").All()
		require.Len(t, entries, 1)
		assert.Equal(t, "test panic", entries[0].ContextMap()["error"])
	})

	t.Run("nil logger", func(t *testing.T) {
		router := gin.New()
		router.Use(Recovery(nil))
		router.GET("/panic", func(c *gin.Context) {
			panic("test panic")
		})

		w := httptest.NewRecorder()
		require.NotPanics(t, func() {
			router.ServeHTTP(w, httptest.NewRequest("GET", "/panic", nil))
		})
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestCORS(t *testing.T) {
	router := gin.New()
	router.Use(CORS(DefaultCORSConfig()))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodOptions, "/test", nil)
	req.Header.Set("Origin", "http://checkout.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "x-api-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, strings.ToLower(w.Header().Get("Access-Control-Allow-Headers")), "x-api-key")
}

func TestDefaultCORSConfig(t *testing.T) {
	cfg := DefaultCORSConfig()

	assert.Equal(t, []string{"*"}, cfg.AllowOrigins)
	assert.Contains(t, cfg.AllowMethods, "GET")
	assert.Contains(t, cfg.AllowMethods, "POST")
	assert.Contains(t, cfg.AllowMethods, "DELETE")
	assert.Contains(t, cfg.AllowHeaders, APIKeyHeader)
	assert.Contains(t, cfg.AllowHeaders, IdempotencyKeyHeader)
	assert.False(t, cfg.AllowCredentials)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry("test", reg)

	router := gin.New()
	router.Use(Metrics(m))
	router.GET("/api/payments/:id", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/payments/pi_1", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/payments/pi_2", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/nope", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/payments/:id", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "4xx")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HTTPRequestsInFlight))

	t.Run("nil metrics passes through", func(t *testing.T) {
		router := gin.New()
		router.Use(Metrics(nil))
		router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

type staticKeys map[string]bool

func (k staticKeys) IsValid(_ context.Context, key string) bool { return k[key] }

func TestAPIKey(t *testing.T) {
	router := gin.New()
	router.Use(APIKey(staticKeys{"vpio-demo-key": true}))
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(APIKeyContextKey))
	})

	tests := []struct {
		name    string
		key     string
		status  int
		errText string
	}{
		{"missing key", "", http.StatusUnauthorized, "API key required"},
		{"unknown key", "nope", http.StatusForbidden, "Invalid API key"},
		{"valid key", "vpio-demo-key", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			if tt.key != "" {
				req.Header.Set("x-api-key", tt.key)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.errText == "" {
				assert.Equal(t, tt.key, w.Body.String())
				return
			}
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.errText, body["error"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

// mapCache is a ResponseCache that round-trips values through JSON.
type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapCache() *mapCache { return &mapCache{data: map[string][]byte{}} }

func (m *mapCache) Get(_ context.Context, key string, dest any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

func (m *mapCache) Set(_ context.Context, key string, value any, _ time.Duration) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = raw
	return true
}

func TestIdempotency(t *testing.T) {
	newRouter := func(cache ResponseCache, calls *int, status int) *gin.Engine {
		router := gin.New()
		router.Use(Idempotency(cache, DefaultIdempotencyConfig()))
		router.POST("/create", func(c *gin.Context) {
			*calls++
			c.JSON(status, gin.H{"call": *calls})
		})
		return router
	}
	post := func(router *gin.Engine, key, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/create", strings.NewReader(body))
		if key != "" {
			req.Header.Set(IdempotencyKeyHeader, key)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("replays the first response", func(t *testing.T) {
		calls := 0
		router := newRouter(newMapCache(), &calls, http.StatusOK)

		first := post(router, "k1", `{"amount":10}`)
		second := post(router, "k1", `{"amount":10}`)

		assert.Equal(t, 1, calls)
		assert.Equal(t, http.StatusOK, second.Code)
		assert.JSONEq(t, first.Body.String(), second.Body.String())
		assert.Equal(t, "true", second.Header().Get(IdempotentReplayHeader))
		assert.Empty(t, first.Header().Get(IdempotentReplayHeader))
	})

	t.Run("different body conflicts", func(t *testing.T) {
		calls := 0
		router := newRouter(newMapCache(), &calls, http.StatusOK)

		post(router, "k1", `{"amount":10}`)
		w := post(router, "k1", `{"amount":20}`)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, 1, calls)
	})

	t.Run("no header passes through", func(t *testing.T) {
		calls := 0
		router := newRouter(newMapCache(), &calls, http.StatusOK)

		post(router, "", `{}`)
		post(router, "", `{}`)
		assert.Equal(t, 2, calls)
	})

	t.Run("server errors are not cached", func(t *testing.T) {
		calls := 0
		router := newRouter(newMapCache(), &calls, http.StatusInternalServerError)

		post(router, "k1", `{}`)
		post(router, "k1", `{}`)
		assert.Equal(t, 2, calls)
	})

	t.Run("cache is scoped to the api key", func(t *testing.T) {
		calls := 0
		router := gin.New()
		router.Use(APIKey(staticKeys{"client-a": true, "client-b": true}))
		router.Use(Idempotency(newMapCache(), DefaultIdempotencyConfig()))
		router.POST("/create", func(c *gin.Context) {
			calls++
			c.JSON(http.StatusOK, gin.H{"owner": c.GetString(APIKeyContextKey)})
		})
		send := func(apiKey string) *httptest.ResponseRecorder {
			req := httptest.NewRequest("POST", "/create", strings.NewReader(`{"amount":10}`))
			req.Header.Set(APIKeyHeader, apiKey)
			req.Header.Set(IdempotencyKeyHeader, "shared")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			return w
		}

		first := send("client-a")
		other := send("client-b")
		again := send("client-a")

		assert.Equal(t, 2, calls)
		assert.JSONEq(t, `{"owner":"client-b"}`, other.Body.String())
		assert.Empty(t, other.Header().Get(IdempotentReplayHeader))
		assert.JSONEq(t, first.Body.String(), again.Body.String())
		assert.Equal(t, "true", again.Header().Get(IdempotentReplayHeader))
	})

	t.Run("nil cache passes through", func(t *testing.T) {
		calls := 0
		router := newRouter(nil, &calls, http.StatusOK)

		post(router, "k1", `{}`)
		post(router, "k1", `{}`)
		assert.Equal(t, 2, calls)
	})
}
