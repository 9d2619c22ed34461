package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Scraper   ScraperConfig
	HTTP      HTTPConfig
	Sources   SourcesConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"

	// MaxConcurrentJobs bounds asynchronous searches running at once.
	MaxConcurrentJobs int // default: 4
}

// BrowserConfig controls the headless browser session.
type BrowserConfig struct {
	// Enabled gates browser scraping altogether. When false, or when no
	// browser binary can be found, sources downgrade to API/HTTP attempts.
	Enabled bool // default: true

	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// DefaultProxy is passed to the browser process.
	DefaultProxy string

	// IdleTimeout closes the session after this long without a lease.
	IdleTimeout time.Duration // default: 5m

	// LaunchTimeout bounds one launch-and-connect cycle.
	LaunchTimeout time.Duration // default: 30s
}

// ScraperConfig controls per-source acquisition behavior.
type ScraperConfig struct {
	// SourceTimeout bounds a whole source pipeline. Abandoned work stops here
	// even if the caller stopped waiting earlier.
	SourceTimeout time.Duration // default: 90s

	// NavigationTimeout is the max time for one browser navigation.
	NavigationTimeout time.Duration // default: 30s

	// RetryAttempts and RetryBaseDelay drive API/HTTP retries.
	RetryAttempts  int           // default: 3
	RetryBaseDelay time.Duration // default: 1s

	// CaptchaRotations caps session rotations on a challenged page.
	CaptchaRotations int // default: 3

	// CaptchaBaseDelay doubles before each rotation.
	CaptchaBaseDelay time.Duration // default: 2s

	// DefaultLimit applies when a search does not set one.
	DefaultLimit int // default: 20

	// BlockedResourceTypes lists resource types to block in stealth pages.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string
}

// HTTPConfig controls the raw HTTP attempt.
type HTTPConfig struct {
	Timeout time.Duration // default: 20s

	// HostRPS and HostBurst are per-host politeness limits.
	HostRPS   float64 // default: 1
	HostBurst int     // default: 2

	Proxy string
}

// SourcesConfig carries credentials for open-data APIs.
type SourcesConfig struct {
	// OpenCorporatesToken enables the OpenCorporates REST API. Without it
	// the source starts at the HTTP attempt.
	OpenCorporatesToken string

	// SocrataAppToken raises Socrata throttling limits.
	SocrataAppToken string

	// Disabled lists source ids removed from the registry.
	Disabled []string
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 2

	// Burst is the maximum burst size per API key.
	Burst int // default: 5
}

// CacheConfig controls the search response cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached responses.
	MaxEntries int // default: 500
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("REGSCOUT_HOST", "0.0.0.0"),
			Port: envIntOr("REGSCOUT_PORT", 8080),
			Mode: envOr("REGSCOUT_MODE", "release"),

			MaxConcurrentJobs: envIntOr("REGSCOUT_MAX_JOBS", 4),
		},
		Browser: BrowserConfig{
			Enabled:       envBoolOr("REGSCOUT_BROWSER_ENABLED", true),
			Headless:      envBoolOr("REGSCOUT_HEADLESS", true),
			NoSandbox:     envBoolOr("REGSCOUT_NO_SANDBOX", false),
			BrowserBin:    os.Getenv("REGSCOUT_BROWSER_BIN"),
			DefaultProxy:  os.Getenv("REGSCOUT_BROWSER_PROXY"),
			IdleTimeout:   envDurationOr("REGSCOUT_BROWSER_IDLE_TIMEOUT", 5*time.Minute),
			LaunchTimeout: envDurationOr("REGSCOUT_BROWSER_LAUNCH_TIMEOUT", 30*time.Second),
		},
		Scraper: ScraperConfig{
			SourceTimeout:     envDurationOr("REGSCOUT_SOURCE_TIMEOUT", 90*time.Second),
			NavigationTimeout: envDurationOr("REGSCOUT_NAV_TIMEOUT", 30*time.Second),
			RetryAttempts:     envIntOr("REGSCOUT_RETRY_ATTEMPTS", 3),
			RetryBaseDelay:    envDurationOr("REGSCOUT_RETRY_BASE_DELAY", time.Second),
			CaptchaRotations:  envIntOr("REGSCOUT_CAPTCHA_ROTATIONS", 3),
			CaptchaBaseDelay:  envDurationOr("REGSCOUT_CAPTCHA_BASE_DELAY", 2*time.Second),
			DefaultLimit:      envIntOr("REGSCOUT_DEFAULT_LIMIT", 20),
			BlockedResourceTypes: envSliceOr("REGSCOUT_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
		},
		HTTP: HTTPConfig{
			Timeout:   envDurationOr("REGSCOUT_HTTP_TIMEOUT", 20*time.Second),
			HostRPS:   envFloatOr("REGSCOUT_HOST_RPS", 1.0),
			HostBurst: envIntOr("REGSCOUT_HOST_BURST", 2),
			Proxy:     os.Getenv("REGSCOUT_HTTP_PROXY"),
		},
		Sources: SourcesConfig{
			OpenCorporatesToken: os.Getenv("REGSCOUT_OPENCORPORATES_TOKEN"),
			SocrataAppToken:     os.Getenv("REGSCOUT_SOCRATA_APP_TOKEN"),
			Disabled:            envSliceOr("REGSCOUT_DISABLED_SOURCES", nil),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("REGSCOUT_AUTH_ENABLED", true),
			APIKeys: envSliceOr("REGSCOUT_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("REGSCOUT_RATE_RPS", 2.0),
			Burst:             envIntOr("REGSCOUT_RATE_BURST", 5),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("REGSCOUT_CACHE_MAX_ENTRIES", 500),
		},
		Log: LogConfig{
			Level:  envOr("REGSCOUT_LOG_LEVEL", "info"),
			Format: envOr("REGSCOUT_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
