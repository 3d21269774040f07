package config

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// MaskSecret keeps the last four characters of a secret.
func MaskSecret(secret string) string {
	secret = strings.TrimSpace(secret)
	switch {
	case secret == "":
		return ""
	case len(secret) <= 8:
		return "****"
	default:
		return "****" + secret[len(secret)-4:]
	}
}

// Redacted returns a copy of c that is safe to print.
func (c Config) Redacted() Config {
	out := c
	out.AI.APIKey = MaskSecret(c.AI.APIKey)
	out.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	out.Server.TrustedProxies = append([]string(nil), c.Server.TrustedProxies...)
	return out
}

// YAML renders the redacted configuration.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}
