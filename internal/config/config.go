// Package config loads runtime settings from defaults, an optional YAML file,
// LHTL_* environment variables and command line flags, in increasing order of
// precedence.
package config

import (
	"strings"
	"time"
)

// AI provider identifiers.
const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
	ProviderNone   = "none"
)

// Config is the effective runtime configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	AI      AIConfig      `mapstructure:"ai" yaml:"ai"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`

	source string
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	StaticDir       string        `mapstructure:"static_dir" yaml:"static_dir"`
	// TrustedProxies may set the client IP through X-Forwarded-For. Empty
	// means the socket peer address is always used.
	TrustedProxies []string `mapstructure:"trusted_proxies" yaml:"trusted_proxies"`
}

// StorageConfig locates persisted data.
type StorageConfig struct {
	DataFile  string `mapstructure:"data_file" yaml:"data_file"`
	UploadDir string `mapstructure:"upload_dir" yaml:"upload_dir"`
	AudioDir  string `mapstructure:"audio_dir" yaml:"audio_dir"`
}

// AIConfig configures the analysis collaborator.
type AIConfig struct {
	Provider      string        `mapstructure:"provider" yaml:"provider"`
	APIKey        string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL       string        `mapstructure:"base_url" yaml:"base_url"`
	VisionModel   string        `mapstructure:"vision_model" yaml:"vision_model"`
	MaxTokens     int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	SpeechEnabled bool          `mapstructure:"speech_enabled" yaml:"speech_enabled"`
	SpeechModel   string        `mapstructure:"speech_model" yaml:"speech_model"`
	Voice         string        `mapstructure:"voice" yaml:"voice"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// Budget caps one whole analysis, chat retries and speech included. It
	// must stay below server.write_timeout.
	Budget             time.Duration `mapstructure:"budget" yaml:"budget"`
	CacheSize          int           `mapstructure:"cache_size" yaml:"cache_size"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	RateLimitBurst     int           `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst"`
}

// LogConfig selects log verbosity and encoding.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Source returns the config file that was read, or "" when none was.
func (c Config) Source() string {
	return c.source
}

// AIEnabled reports whether an analysis service can be built.
func (c Config) AIEnabled() bool {
	switch c.AI.Provider {
	case ProviderMock:
		return true
	case ProviderOpenAI:
		return strings.TrimSpace(c.AI.APIKey) != ""
	default:
		return false
	}
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":5000",
			MaxBodyBytes:    16 << 20,
			AllowedOrigins:  []string{"*"},
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			StaticDir:       "static",
		},
		Storage: StorageConfig{
			DataFile:  "works_data.json",
			UploadDir: "uploads",
			AudioDir:  "audio_cache",
		},
		AI: AIConfig{
			Provider:           ProviderOpenAI,
			VisionModel:        "gpt-4.1",
			MaxTokens:          1000,
			SpeechEnabled:      true,
			SpeechModel:        "tts-1",
			Voice:              "alloy",
			Timeout:            90 * time.Second,
			Budget:             110 * time.Second,
			CacheSize:          128,
			CacheTTL:           30 * time.Minute,
			RateLimitPerMinute: 10,
			RateLimitBurst:     3,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
