// Package bootstrap assembles the server process from its configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"lhtl/internal/config"
	"lhtl/internal/logging"
	serverHTTP "lhtl/internal/server/http"
)

// Server is a configured, not yet listening, HTTP server.
type Server struct {
	Container *Container

	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          logging.Logger
}

// Build configures logging, wires the container and the router.
func Build(cfg config.Config) (*Server, error) {
	config.Normalize(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logging.Configure(logging.LogConfig{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := logging.NewComponentLogger("Main")
	LogServerConfiguration(logger, cfg)

	container, err := BuildContainer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build container: %w", err)
	}

	router := serverHTTP.NewRouter(
		serverHTTP.RouterDeps{
			Pipeline:   container.Pipeline,
			Gallery:    container.Gallery,
			Analysis:   container.Analysis,
			AudioStore: container.AudioStore,
			Health:     container.Health,
			Metrics:    container.Metrics,
			Gatherer:   container.Registry,
		},
		serverHTTP.RouterConfig{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			MaxBodyBytes:   cfg.Server.MaxBodyBytes,
			StaticDir:      cfg.Server.StaticDir,
			TrustedProxies: cfg.Server.TrustedProxies,
			RateLimit: serverHTTP.RateLimitConfig{
				RequestsPerMinute: cfg.AI.RateLimitPerMinute,
				Burst:             cfg.AI.RateLimitBurst,
			},
		},
	)

	return &Server{
		Container: container,
		httpServer: &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
			IdleTimeout:       120 * time.Second,
		},
		shutdownTimeout: cfg.Server.ShutdownTimeout,
		logger:          logger,
	}, nil
}

// Handler returns the HTTP handler, for in-process use.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then drains
// in-flight requests for up to the shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Server listening on %s", ln.Addr())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	s.logger.Info("Server stopped")
	return nil
}

// RunServer builds the server and blocks until SIGINT or SIGTERM.
func RunServer(cfg config.Config) error {
	server, err := Build(cfg)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.Run(ctx)
}
