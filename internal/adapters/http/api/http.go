// Package api serves the read-only HTTP API over the latest pipeline run.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/intentrank/internal/adapters/http/swagger"
	"github.com/okian/intentrank/internal/domain/explain"
	"github.com/okian/intentrank/internal/domain/model"
	"github.com/okian/intentrank/internal/domain/types"
	"github.com/okian/intentrank/pkg/logger"
	"github.com/okian/intentrank/pkg/metrics"
)

const defaultMaxLimit = 1000

// HTTP server timeouts.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// Store is the read side the handlers need.
type Store interface {
	TopN(ctx context.Context, n int) ([]types.Entry, error)
	User(ctx context.Context, userID string) (types.UserDetail, error)
	Summary(ctx context.Context) (types.Summary, error)
	Global(ctx context.Context) (explain.Global, error)
	Diagnostics(ctx context.Context) (model.Diagnostics, error)
	Count(ctx context.Context) int
}

// StatsProvider reports service statistics.
type StatsProvider interface {
	GetStats() map[string]any
}

// Server wires HTTP routes for the API.
type Server struct {
	echo     *echo.Echo
	store    Store
	stats    StatsProvider
	maxLimit int
	logger   logger.Logger
}

// NewServer creates the API server and registers its routes.
func NewServer(store Store, opts ...Option) *Server {
	s := &Server{
		store:    store,
		maxLimit: defaultMaxLimit,
		logger:   logger.Current().Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError
	e.Server.ReadTimeout = readTimeout
	e.Server.WriteTimeout = writeTimeout
	e.Server.IdleTimeout = idleTimeout
	e.Server.ReadHeaderTimeout = readHeaderTimeout

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(RequestLogger(s.logger))
	e.Use(MetricsMiddleware())

	s.echo = e
	s.register()
	return s
}

func (s *Server) register() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})))
	swagger.Register(s.echo)

	v1 := s.echo.Group("/api/v1")
	v1.GET("/summary", s.handleSummary)
	v1.GET("/leaderboard", s.handleLeaderboard)
	v1.GET("/users/:id", s.handleUser)
	v1.GET("/distribution", s.handleDistribution)
	v1.GET("/explain", s.handleExplain)
	v1.GET("/stats", s.handleStats)
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info(context.Background(), "starting http server", logger.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
