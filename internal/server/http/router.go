// Package http exposes the gallery, ingestion and analysis services over a
// gin router.
package http

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lhtl/internal/analysis"
	"lhtl/internal/gallery"
	"lhtl/internal/ingest"
	"lhtl/internal/logging"
	"lhtl/internal/metrics"
	"lhtl/internal/server/app"
	"lhtl/internal/store"
)

// RouterDeps holds the services the router dispatches to.
type RouterDeps struct {
	Pipeline *ingest.Pipeline
	Gallery  *gallery.Gallery
	// Analysis is nil when the AI collaborator is not configured.
	Analysis *analysis.Service
	// AudioStore is nil when speech files are not cached.
	AudioStore *store.AssetStore
	Health     *app.HealthChecker
	Metrics    *metrics.Collector
	Gatherer   prometheus.Gatherer
	Logger     logging.Logger
}

// RouterConfig holds HTTP-level settings.
type RouterConfig struct {
	AllowedOrigins []string
	MaxBodyBytes   int64
	RateLimit      RateLimitConfig
	StaticDir      string
	// TrustedProxies may set the client IP via forwarding headers. Empty
	// trusts none, so rate limits key on the peer address.
	TrustedProxies []string
}

// NewRouter wires every route and middleware.
func NewRouter(deps RouterDeps, cfg RouterConfig) *gin.Engine {
	logger := deps.Logger
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("HTTP")
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logger.Warn("Ignoring trusted proxies %v: %v", cfg.TrustedProxies, err)
		_ = engine.SetTrustedProxies(nil)
	}
	engine.Use(recoveryMiddleware(logger))
	engine.Use(requestIDMiddleware())
	engine.Use(loggingMiddleware(logger, deps.Metrics))
	if corsHandler := corsMiddleware(cfg.AllowedOrigins); corsHandler != nil {
		engine.Use(corsHandler)
	}
	engine.Use(bodyLimitMiddleware(cfg.MaxBodyBytes))

	resp := &responder{logger: logger}
	works := &worksHandler{
		responder:    resp,
		pipeline:     deps.Pipeline,
		gallery:      deps.Gallery,
		maxBodyBytes: cfg.MaxBodyBytes,
	}
	analyze := &analyzeHandler{
		responder: resp,
		gallery:   deps.Gallery,
		service:   deps.Analysis,
	}
	assets := &assetHandler{
		responder:  resp,
		gallery:    deps.Gallery,
		audioStore: deps.AudioStore,
	}
	health := &healthHandler{checker: deps.Health, started: time.Now()}

	limited := rateLimitMiddleware(cfg.RateLimit)

	engine.POST("/works", works.create)
	engine.GET("/works", works.list)
	engine.GET("/works/:id", works.get)
	engine.POST("/works/:id/analyze", limited, analyze.analyzeStored)
	engine.POST("/analyze", limited, analyze.analyze)
	engine.GET("/assets/:filename", assets.image)
	engine.GET("/audio/:filename", assets.audio)
	engine.GET("/health", health.handle)

	// Paths used by the bundled browser client.
	engine.POST("/upload", works.upload)
	engine.GET("/uploads/:filename", assets.image)
	engine.GET("/audio_cache/:filename", assets.audio)
	engine.POST("/analyze/:id", limited, analyze.analyzeStored)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	registerStatic(engine, cfg.StaticDir, logger)

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "not found"})
	})
	engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})
	return engine
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		return nil
	}
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{requestIDHeader}
	corsConfig.MaxAge = 12 * time.Hour
	for _, origin := range origins {
		if origin == "*" {
			corsConfig.AllowAllOrigins = true
			break
		}
	}
	if !corsConfig.AllowAllOrigins {
		corsConfig.AllowOrigins = origins
	}
	return cors.New(corsConfig)
}

// registerStatic serves the browser client when its directory exists.
func registerStatic(engine *gin.Engine, dir string, logger logging.Logger) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		logger.Info("Static directory %q not found, browser client disabled", dir)
		return
	}
	engine.Static("/static", dir)
	index := filepath.Join(dir, "index.html")
	if _, err := os.Stat(index); err == nil {
		engine.StaticFile("/", index)
	}
}
