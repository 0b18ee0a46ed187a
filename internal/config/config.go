// Package config loads runtime configuration for the captive portal
// responder from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ClientIDSource selects how a request is mapped to a stable per-client
// identity. See Config.ClientIDSource.
type ClientIDSource struct {
	Kind   string // "remote_addr", "header", or "host"
	Header string // request header name, only set when Kind == "header"
}

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	BindAddress    string
	LocalURL       string
	ClientIDSource ClientIDSource

	MaxAssumedSessionTime time.Duration // MAX_ASSUMED_CP_SESSION_TIME_SECS
	MaxTimeWithoutShowing time.Duration // MAX_TIME_WITHOUT_SHOWING_CP_SECS
	RegistrySweepInterval time.Duration

	WebAdminPassword string // WEB_ADMIN env var; empty disables the /web mount
	MetricsEnabled   bool
	LogLevel         string
}

// Load reads configuration from environment variables, applying the
// defaults documented in SPEC_FULL.md §6.
func Load() *Config {
	return &Config{
		BindAddress:    getEnv("BIND_ADDRESS", ":2080"),
		LocalURL:       getEnv("LOCAL_URL", "http://go"),
		ClientIDSource: parseClientIDSource(getEnv("CLIENT_ID_SOURCE", "remote_addr")),

		MaxAssumedSessionTime: parseSecs(getEnv("MAX_ASSUMED_CP_SESSION_TIME_SECS", ""), 300*time.Second),
		MaxTimeWithoutShowing: parseSecs(getEnv("MAX_TIME_WITHOUT_SHOWING_CP_SECS", ""), 86400*time.Second),
		RegistrySweepInterval: parseDuration(getEnv("REGISTRY_SWEEP_INTERVAL", ""), time.Hour),

		WebAdminPassword: getEnvRaw("WEB_ADMIN"),
		MetricsEnabled:   getEnv("METRICS_ENABLED", "true") != "false",
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}
}

// parseClientIDSource parses the CLIENT_ID_SOURCE env var. Recognized forms:
// "remote_addr", "host", or "header:<Name>". Anything else falls back to
// remote_addr, the safer default.
func parseClientIDSource(s string) ClientIDSource {
	if s == "host" {
		return ClientIDSource{Kind: "host"}
	}
	if name, ok := strings.CutPrefix(s, "header:"); ok && name != "" {
		return ClientIDSource{Kind: "header", Header: name}
	}
	return ClientIDSource{Kind: "remote_addr"}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvRaw(key string) string {
	return getEnv(key, "")
}

func parseSecs(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return time.Duration(n) * time.Second
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
