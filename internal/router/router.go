package router

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/triage-api/internal/config"
	"github.com/jwalitptl/triage-api/internal/middleware"
	"github.com/jwalitptl/triage-api/internal/realtime"
	"github.com/jwalitptl/triage-api/pkg/metrics"
)

const maxBodyBytes = 1 << 20

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// PublicHandler also serves routes that skip authentication.
type PublicHandler interface {
	Handler
	RegisterPublicRoutes(*gin.RouterGroup)
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	patientH Handler
	auditH   Handler
	authH    PublicHandler
	healthH  Handler
	gateway  *realtime.Gateway
	metrics  *metrics.Metrics
}

type RouterConfig struct {
	RateLimit      config.RateLimitConfig
	AllowedOrigins []string
	Logger         zerolog.Logger
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	patientH Handler,
	auditH Handler,
	authH PublicHandler,
	healthH Handler,
	gateway *realtime.Gateway,
	m *metrics.Metrics,
	cfg RouterConfig,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	middleware.UseJSONFieldNames()

	engine := gin.New()

	r := &Router{
		engine:   engine,
		auth:     auth,
		patientH: patientH,
		auditH:   auditH,
		authH:    authH,
		healthH:  healthH,
		gateway:  gateway,
		metrics:  m,
	}

	engine.Use(
		middleware.RequestID(cfg.Logger),
		middleware.Logger(),
		middleware.Recovery(),
		r.metricsMiddleware(),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.CORS(middleware.DefaultCORSConfig(cfg.AllowedOrigins)),
		middleware.NewRateLimiter(cfg.RateLimit).RateLimit(),
		middleware.ErrorHandler(),
	)

	return r
}

func (r *Router) Setup() {
	r.healthH.RegisterRoutes(r.engine.Group(""))

	public := r.engine.Group("/api/v1")
	public.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})
	public.Use(middleware.SizeLimit(maxBodyBytes))

	api := public.Group("", r.auth.Authenticate())
	r.patientH.RegisterRoutes(api)
	if r.auditH != nil {
		r.auditH.RegisterRoutes(api)
	}
	if r.authH != nil {
		r.authH.RegisterPublicRoutes(public)
		r.authH.RegisterRoutes(api)
	}

	if r.gateway != nil {
		r.engine.GET("/ws", r.auth.Authenticate(), r.serveWS)
	}
}

func (r *Router) serveWS(c *gin.Context) {
	staffID := middleware.StaffID(c)
	if staffID == "" {
		staffID = c.Query("staffId")
	}
	if err := r.gateway.ServeWS(c.Writer, c.Request, staffID); err != nil {
		// the upgrader has already replied
		zerolog.Ctx(c.Request.Context()).Debug().Err(err).Msg("websocket upgrade failed")
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		r.metrics.HTTPRequests.WithLabelValues(c.Request.Method, path, status).Inc()
		r.metrics.HTTPDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
