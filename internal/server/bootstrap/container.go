package bootstrap

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"lhtl/internal/analysis"
	"lhtl/internal/config"
	apperrors "lhtl/internal/errors"
	"lhtl/internal/gallery"
	"lhtl/internal/ingest"
	"lhtl/internal/logging"
	"lhtl/internal/metrics"
	"lhtl/internal/server/app"
	"lhtl/internal/store"
)

// Container holds the long-lived services of one server process.
type Container struct {
	Store      *store.Store
	AudioStore *store.AssetStore
	Pipeline   *ingest.Pipeline
	Gallery    *gallery.Gallery
	// Analysis is nil when the AI collaborator is not configured.
	Analysis *analysis.Service
	Health   *app.HealthChecker
	Metrics  *metrics.Collector
	Registry *prometheus.Registry
}

// BuildContainer wires storage, ingestion, gallery and analysis from cfg.
func BuildContainer(cfg config.Config, logger logging.Logger) (*Container, error) {
	logger = logging.OrNop(logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector, err := metrics.NewCollector("", registry)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	contentStore, err := store.New(store.Config{
		DataFile: cfg.Storage.DataFile,
		AssetDir: cfg.Storage.UploadDir,
	}, store.WithObserver(collector))
	if err != nil {
		return nil, fmt.Errorf("content store: %w", err)
	}

	var audioStore *store.AssetStore
	if cfg.Storage.AudioDir != "" {
		audioStore, err = store.NewAssetStore(cfg.Storage.AudioDir, logging.NewComponentLogger("AudioStore"))
		if err != nil {
			return nil, fmt.Errorf("audio store: %w", err)
		}
	}

	breaker := apperrors.NewCircuitBreaker("chat", apperrors.DefaultCircuitBreakerConfig())
	service, err := buildAnalysis(cfg.AI, audioStore, collector, breaker)
	if err != nil {
		return nil, err
	}
	if service == nil {
		logger.Warn("AI analysis disabled (provider=%s)", cfg.AI.Provider)
	}

	health := app.NewHealthChecker(
		app.StorageProbe{DataFile: contentStore.DataFile(), AssetDir: contentStore.Assets().Root()},
		app.AnalysisProbe{Provider: cfg.AI.Provider, Configured: service != nil, Breaker: breaker},
	)

	return &Container{
		Store:      contentStore,
		AudioStore: audioStore,
		Pipeline:   ingest.NewPipeline(contentStore, ingest.WithObserver(collector)),
		Gallery:    gallery.New(contentStore, nil),
		Analysis:   service,
		Health:     health,
		Metrics:    collector,
		Registry:   registry,
	}, nil
}

// buildAnalysis returns nil without error when the provider is "none" or
// the OpenAI key is missing.
func buildAnalysis(cfg config.AIConfig, audio *store.AssetStore, collector *metrics.Collector, breaker *apperrors.CircuitBreaker) (*analysis.Service, error) {
	var (
		chat   analysis.ChatClient
		speech analysis.SpeechClient
	)
	switch cfg.Provider {
	case config.ProviderMock:
		mock := analysis.MockProvider{}
		chat, speech = mock, mock
	case config.ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, nil
		}
		client, err := analysis.NewOpenAIClient(analysis.OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("openai client: %w", err)
		}
		chat, speech = client, client
	default:
		return nil, nil
	}

	opts := []analysis.Option{
		analysis.WithObserver(collector),
		analysis.WithCircuitBreaker(breaker),
	}
	if cfg.SpeechEnabled {
		opts = append(opts, analysis.WithSpeech(speech))
	}
	if audio != nil {
		opts = append(opts, analysis.WithAudioSink(audio))
	}
	service, err := analysis.NewService(chat, analysis.Config{
		VisionModel: cfg.VisionModel,
		MaxTokens:   cfg.MaxTokens,
		SpeechModel: cfg.SpeechModel,
		Voice:       cfg.Voice,
		CacheSize:   cfg.CacheSize,
		CacheTTL:    cfg.CacheTTL,
		Budget:      cfg.Budget,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("analysis service: %w", err)
	}
	return service, nil
}
