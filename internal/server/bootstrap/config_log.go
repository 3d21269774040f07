package bootstrap

import (
	"strings"

	"lhtl/internal/config"
	"lhtl/internal/logging"
)

// LogServerConfiguration prints a redacted snapshot of the effective
// configuration.
func LogServerConfiguration(logger logging.Logger, cfg config.Config) {
	logger = logging.OrNop(logger)

	logger.Info("=== Server Configuration ===")
	if source := cfg.Source(); source != "" {
		logger.Info("Config file: %s", source)
	} else {
		logger.Info("Config file: (none, defaults and environment only)")
	}
	logger.Info("Listen: %s", cfg.Server.Addr)
	logger.Info("Max Body: %d bytes", cfg.Server.MaxBodyBytes)
	logger.Info("Allowed Origins: %s", strings.Join(cfg.Server.AllowedOrigins, ", "))
	logger.Info("Data File: %s", cfg.Storage.DataFile)
	logger.Info("Upload Dir: %s", cfg.Storage.UploadDir)
	if cfg.Storage.AudioDir != "" {
		logger.Info("Audio Dir: %s", cfg.Storage.AudioDir)
	} else {
		logger.Info("Audio Dir: (disabled)")
	}

	logger.Info("AI Provider: %s", cfg.AI.Provider)
	if cfg.AI.Provider == config.ProviderOpenAI {
		if strings.TrimSpace(cfg.AI.APIKey) != "" {
			logger.Info("API Key: %s", config.MaskSecret(cfg.AI.APIKey))
		} else {
			logger.Warn("API Key: (not set; analysis disabled)")
		}
		if cfg.AI.BaseURL != "" {
			logger.Info("Base URL: %s", cfg.AI.BaseURL)
		}
	}
	logger.Info("Vision Model: %s (max_tokens=%d)", cfg.AI.VisionModel, cfg.AI.MaxTokens)
	if cfg.AI.SpeechEnabled {
		logger.Info("Speech: %s voice=%s", cfg.AI.SpeechModel, cfg.AI.Voice)
	} else {
		logger.Info("Speech: disabled")
	}
	logger.Info("Analyze Rate Limit: %d rpm (burst=%d)", cfg.AI.RateLimitPerMinute, cfg.AI.RateLimitBurst)
	logger.Info("Log: level=%s format=%s", cfg.Log.Level, cfg.Log.Format)
	logger.Info("============================")
}
