package observability

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/blog-service/internal/config"
	"github.com/spec-kit/blog-service/pkg/util/errorutil"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/posts", "GET", 200, 15*time.Millisecond)
	m.RecordRequest("/posts", "GET", 200, 5*time.Millisecond)
	m.RecordError("/auth/login", "POST", "UNAUTHORIZED")
	m.RecordAuthEvent("account_registered")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("/posts", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("/auth/login", "POST", "UNAUTHORIZED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.authEvents.WithLabelValues("account_registered")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `auth_events_total{type="account_registered"} 1`)
	assert.Contains(t, string(body), "http_request_duration_seconds_bucket")
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, time.Millisecond)
	m.RecordError("/", "GET", "X")
	m.RecordAuthEvent("x")
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := NewMetrics()

	app := fiber.New()
	app.Use(RequestLogger(zap.New(core), m))
	app.Get("/posts/:id", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Get("/fail", func(c *fiber.Ctx) error {
		return errorutil.NewForbidden("no")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/posts/42", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	_, err = app.Test(httptest.NewRequest("GET", "/fail", nil))
	require.NoError(t, err)

	require.Equal(t, 2, logs.Len())
	first := logs.All()[0].ContextMap()
	assert.Equal(t, "/posts/:id", first["route"])
	assert.Equal(t, "/posts/42", first["path"])
	assert.EqualValues(t, fiber.StatusNoContent, first["status"])
	assert.EqualValues(t, fiber.StatusForbidden, logs.All()[1].ContextMap()["status"])

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/posts/:id", "GET", "204")))
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger(config.LoggerConfig{Level: "nonsense"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.InfoLevel))
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))

	debug, err := NewLogger(config.LoggerConfig{Level: "DEBUG"})
	require.NoError(t, err)
	assert.True(t, debug.Core().Enabled(zap.DebugLevel))
}
