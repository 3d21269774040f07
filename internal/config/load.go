package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. LHTL_SERVER_ADDR.
const EnvPrefix = "LHTL"

// flagKeys maps command line flag names to config keys.
var flagKeys = map[string]string{
	"addr":        "server.addr",
	"static-dir":  "server.static_dir",
	"data-file":   "storage.data_file",
	"upload-dir":  "storage.upload_dir",
	"audio-dir":   "storage.audio_dir",
	"ai-provider": "ai.provider",
	"log-level":   "log.level",
	"log-format":  "log.format",
}

type loadOptions struct {
	configFile string
	flags      *pflag.FlagSet
	searchDirs []string
}

// Option customises Load.
type Option func(*loadOptions)

// WithConfigFile reads path instead of searching for lhtl.yaml. A missing
// explicit file is an error.
func WithConfigFile(path string) Option {
	return func(o *loadOptions) {
		o.configFile = strings.TrimSpace(path)
	}
}

// WithFlags binds the known flags of fs as the highest precedence source.
func WithFlags(fs *pflag.FlagSet) Option {
	return func(o *loadOptions) {
		o.flags = fs
	}
}

// WithSearchDirs replaces the directories searched for lhtl.yaml.
func WithSearchDirs(dirs ...string) Option {
	return func(o *loadOptions) {
		o.searchDirs = dirs
	}
}

// Load resolves the effective configuration.
func Load(opts ...Option) (Config, error) {
	options := loadOptions{searchDirs: []string{".", "$HOME/.lhtl"}}
	for _, opt := range opts {
		opt(&options)
	}

	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("ai.api_key", EnvPrefix+"_AI_API_KEY", "OPENAI_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}
	if err := v.BindEnv("ai.base_url", EnvPrefix+"_AI_BASE_URL", "OPENAI_BASE_URL"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	if options.configFile != "" {
		v.SetConfigFile(options.configFile)
	} else {
		v.SetConfigName("lhtl")
		v.SetConfigType("yaml")
		for _, dir := range options.searchDirs {
			v.AddConfigPath(dir)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if options.configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if options.flags != nil {
		for name, key := range flagKeys {
			if flag := options.flags.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.source = v.ConfigFileUsed()

	Normalize(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.max_body_bytes", d.Server.MaxBodyBytes)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.trusted_proxies", d.Server.TrustedProxies)
	v.SetDefault("server.static_dir", d.Server.StaticDir)

	v.SetDefault("storage.data_file", d.Storage.DataFile)
	v.SetDefault("storage.upload_dir", d.Storage.UploadDir)
	v.SetDefault("storage.audio_dir", d.Storage.AudioDir)

	v.SetDefault("ai.provider", d.AI.Provider)
	v.SetDefault("ai.api_key", d.AI.APIKey)
	v.SetDefault("ai.base_url", d.AI.BaseURL)
	v.SetDefault("ai.vision_model", d.AI.VisionModel)
	v.SetDefault("ai.max_tokens", d.AI.MaxTokens)
	v.SetDefault("ai.speech_enabled", d.AI.SpeechEnabled)
	v.SetDefault("ai.speech_model", d.AI.SpeechModel)
	v.SetDefault("ai.voice", d.AI.Voice)
	v.SetDefault("ai.timeout", d.AI.Timeout)
	v.SetDefault("ai.budget", d.AI.Budget)
	v.SetDefault("ai.cache_size", d.AI.CacheSize)
	v.SetDefault("ai.cache_ttl", d.AI.CacheTTL)
	v.SetDefault("ai.rate_limit_per_minute", d.AI.RateLimitPerMinute)
	v.SetDefault("ai.rate_limit_burst", d.AI.RateLimitBurst)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Normalize trims values, lowercases enumerations and restores defaults for
// blank or non-positive settings.
func Normalize(cfg *Config) {
	d := Default()

	cfg.Server.Addr = orDefault(cfg.Server.Addr, d.Server.Addr)
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = d.Server.MaxBodyBytes
	}
	origins := make([]string, 0, len(cfg.Server.AllowedOrigins))
	for _, origin := range cfg.Server.AllowedOrigins {
		for _, part := range strings.Split(origin, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	cfg.Server.AllowedOrigins = origins
	proxies := make([]string, 0, len(cfg.Server.TrustedProxies))
	for _, proxy := range cfg.Server.TrustedProxies {
		for _, part := range strings.Split(proxy, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				proxies = append(proxies, trimmed)
			}
		}
	}
	cfg.Server.TrustedProxies = proxies
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}
	cfg.Server.StaticDir = expandHome(strings.TrimSpace(cfg.Server.StaticDir))

	cfg.Storage.DataFile = expandHome(orDefault(cfg.Storage.DataFile, d.Storage.DataFile))
	cfg.Storage.UploadDir = expandHome(orDefault(cfg.Storage.UploadDir, d.Storage.UploadDir))
	cfg.Storage.AudioDir = expandHome(strings.TrimSpace(cfg.Storage.AudioDir))

	cfg.AI.Provider = strings.ToLower(orDefault(cfg.AI.Provider, d.AI.Provider))
	cfg.AI.APIKey = strings.TrimSpace(cfg.AI.APIKey)
	cfg.AI.BaseURL = strings.TrimSpace(cfg.AI.BaseURL)
	cfg.AI.VisionModel = orDefault(cfg.AI.VisionModel, d.AI.VisionModel)
	if cfg.AI.MaxTokens <= 0 {
		cfg.AI.MaxTokens = d.AI.MaxTokens
	}
	cfg.AI.SpeechModel = orDefault(cfg.AI.SpeechModel, d.AI.SpeechModel)
	cfg.AI.Voice = strings.ToLower(orDefault(cfg.AI.Voice, d.AI.Voice))
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = d.AI.Timeout
	}
	if cfg.AI.Budget <= 0 {
		cfg.AI.Budget = d.AI.Budget
	}
	if cfg.AI.CacheTTL <= 0 {
		cfg.AI.CacheTTL = d.AI.CacheTTL
	}

	cfg.Log.Level = strings.ToLower(orDefault(cfg.Log.Level, d.Log.Level))
	cfg.Log.Format = strings.ToLower(orDefault(cfg.Log.Format, d.Log.Format))
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	var problems []string
	switch c.AI.Provider {
	case ProviderOpenAI, ProviderMock, ProviderNone:
	default:
		problems = append(problems, fmt.Sprintf("ai.provider %q is not one of openai, mock, none", c.AI.Provider))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q is not one of text, json", c.Log.Format))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	if c.AI.RateLimitPerMinute < 0 {
		problems = append(problems, "ai.rate_limit_per_minute must not be negative")
	}
	if c.AI.RateLimitBurst < 0 {
		problems = append(problems, "ai.rate_limit_burst must not be negative")
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		problems = append(problems, "server timeouts must not be negative")
	}
	if c.Server.WriteTimeout > 0 && c.AI.Budget >= c.Server.WriteTimeout {
		problems = append(problems, fmt.Sprintf("ai.budget %s must be shorter than server.write_timeout %s", c.AI.Budget, c.Server.WriteTimeout))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func orDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return path
	}
	return home + path[1:]
}
