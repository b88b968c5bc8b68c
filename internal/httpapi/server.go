// Package httpapi serves the memory service over a JSON HTTP API, and
// optionally mounts the MCP SSE transport and Prometheus metrics on the same
// listener.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mark3labs/mcp-go/server"
	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/rcliao/memory-server/internal/mcptools"
	"github.com/rcliao/memory-server/internal/metrics"
	"github.com/rcliao/memory-server/internal/service"
)

// Query limits.
const (
	DefaultListLimit   = 50
	MaxListLimit       = 1000
	DefaultSearchLimit = 10
	MaxSearchLimit     = 100
)

// BodyLimit caps request bodies.
const BodyLimit = "10M"

var availableRoutes = []string{
	"GET /api/health",
	"GET /api/info",
	"POST /api/memory/save",
	"GET /api/memory/all",
	"GET /api/memory/search",
	"GET /api/memory/:id",
	"PUT /api/memory/:id",
	"DELETE /api/memory/:id",
}

// Options configures a Server.
type Options struct {
	Service       *service.Service
	DefaultUserID string
	// APIToken guards /api/memory. Empty makes every protected request fail
	// with SERVER_CONFIG_ERROR.
	APIToken string

	RateLimitMax    int
	RateLimitWindow time.Duration
	CORSOrigins     []string

	// Production hides internal error details.
	Production bool
	Transport  string

	// SSE, when set, is mounted at /sse and /message.
	SSE     *server.SSEServer
	Metrics *metrics.Exporter
	Logger  *log.Logger
	Now     func() time.Time
}

// Server is the HTTP front end.
type Server struct {
	echo          *echo.Echo
	svc           *service.Service
	defaultUserID string
	apiToken      string
	production    bool
	transport     string
	sse           bool
	metrics       *metrics.Exporter
	logger        *log.Logger
	now           func() time.Time
}

// New builds the server and registers every route.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	userID := opts.DefaultUserID
	if userID == "" {
		userID = "user"
	}
	transport := opts.Transport
	if transport == "" {
		transport = "sse"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:          e,
		svc:           opts.Service,
		defaultUserID: userID,
		apiToken:      opts.APIToken,
		production:    opts.Production,
		transport:     transport,
		sse:           opts.SSE != nil,
		metrics:       opts.Metrics,
		logger:        logger,
		now:           now,
	}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return "req_" + ulid.Make().String() },
	}))
	e.Use(s.requestLogger())
	e.Use(middleware.Recover())
	e.Use(s.observe)
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "SAMEORIGIN",
		ContentSecurityPolicy: "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self'; img-src 'self' data: https:",
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOriginFunc:  originMatcher(opts.CORSOrigins, logger),
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization, "X-Requested-With", "X-Workspace-Path"},
		AllowCredentials: true,
	}))
	e.Use(middleware.BodyLimit(BodyLimit))

	e.GET("/", s.handleRoot)
	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics.Handler()))
	}
	if opts.SSE != nil {
		e.GET(mcptools.SSEEndpoint, echo.WrapHandler(opts.SSE.SSEHandler()))
		e.POST(mcptools.MessageEndpoint, echo.WrapHandler(opts.SSE.MessageHandler()))
	}

	api := e.Group("/api", s.rateLimiter(opts.RateLimitMax, opts.RateLimitWindow))
	api.GET("/health", s.handleHealth)
	api.GET("/info", s.handleInfo)

	mem := api.Group("/memory", s.authenticate)
	mem.POST("/save", s.handleSave)
	mem.GET("/all", s.handleGetAll)
	mem.GET("/search", s.handleSearch)
	mem.GET("/:id", s.handleGet)
	mem.PUT("/:id", s.handleUpdate)
	mem.DELETE("/:id", s.handleDelete)

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown. It returns http.ErrServerClosed
// after a graceful shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("HTTP server started", "addr", addr, "mcp_sse", s.sse)
	return s.echo.Start(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) rateLimiter(limit int, window time.Duration) echo.MiddlewareFunc {
	if limit <= 0 {
		limit = 100
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(float64(limit) / window.Seconds()),
			Burst:     limit,
			ExpiresIn: window,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			s.metrics.RateLimited()
			s.logger.Warn("rate limit exceeded", "ip", identifier, "path", c.Request().URL.Path)
			return newAPIError(http.StatusTooManyRequests, CodeRateLimited,
				"Too many requests. Limit: "+strconv.Itoa(limit)+" requests per "+window.String(),
				map[string]any{
					"limit":      limit,
					"windowMs":   window.Milliseconds(),
					"retryAfter": int(window.Seconds()),
				},
			)
		},
	})
}
