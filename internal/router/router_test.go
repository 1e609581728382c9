package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/triage-api/internal/config"
	"github.com/jwalitptl/triage-api/internal/handler/health"
	"github.com/jwalitptl/triage-api/internal/middleware"
	"github.com/jwalitptl/triage-api/internal/realtime"
	"github.com/jwalitptl/triage-api/pkg/logger"
	"github.com/jwalitptl/triage-api/pkg/metrics"
)

type echoHandler struct{}

func (echoHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/whoami", func(c *gin.Context) { c.String(http.StatusOK, middleware.StaffID(c)) })
}

func newTestRouter(t *testing.T) (*Router, *metrics.Metrics, *realtime.Gateway) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg, "triage", "test")
	gw := realtime.NewGateway(config.RealtimeConfig{}, nil, logger.Nop(), m)
	t.Cleanup(gw.Close)

	r := NewRouter(
		middleware.NewAuthMiddleware(nil),
		echoHandler{},
		nil,
		nil,
		health.NewHandler(nil, reg),
		gw,
		m,
		RouterConfig{Logger: zerolog.Nop()},
	)
	r.Setup()
	return r, m, gw
}

func TestRouter_APIAndMetrics(t *testing.T) {
	r, m, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/whoami", nil)
	req.Header.Set(middleware.HeaderStaffID, "doc-1")
	w := httptest.NewRecorder()
	r.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "doc-1", w.Body.String())
	assert.Equal(t, "1.0", w.Header().Get("X-API-Version"))
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/api/v1/whoami", "200")))

	w = httptest.NewRecorder()
	r.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "triage_test_http_requests_total")
}

func TestRouter_WebSocketBindsStaff(t *testing.T) {
	r, _, gw := newTestRouter(t)
	srv := httptest.NewServer(r.Engine())
	defer srv.Close()

	header := http.Header{}
	header.Set(middleware.HeaderStaffID, "doc-1")
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", header)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return gw.Hub().ClientCount() == 1 }, time.Second, 10*time.Millisecond)
}
