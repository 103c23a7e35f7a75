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
	Acquire   AcquireConfig
	AI        AIConfig
	PageSpeed PageSpeedConfig
	Tiers     TierConfig
	Breaker   BreakerConfig
	Scoring   ScoringConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Webhook   WebhookConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"

	// Development permits scoring loopback/private-range URLs.
	Development bool // default: false
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxPages is the page pool capacity (max concurrent tabs).
	MaxPages int // default: 5

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// DefaultProxy is the default proxy URL for all requests.
	DefaultProxy string
}

// AcquireConfig controls content acquisition.
type AcquireConfig struct {
	// Timeout bounds the entire acquisition phase (fetch + render +
	// screenshot + vitals), independent of the tier budgets.
	Timeout time.Duration // default: 45s

	// ScreenshotDir is where full-page screenshots are written.
	// Empty disables screenshot capture.
	ScreenshotDir string // default: "/tmp/sitegauge"

	// ViewportWidth/ViewportHeight set the render viewport.
	ViewportWidth  int // default: 1366
	ViewportHeight int // default: 900
}

// AIConfig controls the AI judge used by the tier-2 criteria.
// When APIKey is empty, AI criteria are skipped (not failed).
type AIConfig struct {
	// APIKey authenticates against the OpenAI-compatible endpoint.
	APIKey string

	// Model is the judge model. default: "gpt-4o-mini"
	Model string

	// BaseURL is the API root. default: "https://api.openai.com/v1"
	BaseURL string

	// MaxContentTokens caps the page content sent per judgment.
	MaxContentTokens int // default: 6000
}

// Configured reports whether AI criteria can run at all.
func (c AIConfig) Configured() bool { return c.APIKey != "" }

// PageSpeedConfig controls the Google PageSpeed Insights client.
type PageSpeedConfig struct {
	// APIKey is the Google API key. Empty is allowed (shared quota).
	APIKey string

	// Endpoint overrides the PSI API root (used in tests).
	// default: "https://www.googleapis.com/pagespeedonline/v5/runPagespeed"
	Endpoint string

	// Strategy is "mobile" or "desktop". default: "mobile"
	Strategy string
}

// TierConfig holds the per-tier time budgets and the per-criterion floor.
type TierConfig struct {
	// FastHTMLTimeout is tier 1's budget. default: 20s
	FastHTMLTimeout time.Duration

	// AITimeout is tier 2's budget. default: 30s
	AITimeout time.Duration

	// ExternalTimeout is tier 3's budget. default: 60s
	ExternalTimeout time.Duration

	// CriterionFloor is the minimum per-criterion timeout regardless of
	// how many criteria share a tier budget. default: 5s
	CriterionFloor time.Duration
}

// BreakerConfig controls the per-criterion circuit breakers.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens a circuit.
	FailureThreshold int // default: 3

	// FailureWindow bounds how far apart consecutive failures may be and
	// still count as one streak.
	FailureWindow time.Duration // default: 60s

	// Cooldown is how long an open circuit waits before probing (half-open).
	Cooldown time.Duration // default: 30s

	// HalfOpenSuccesses is the success count that closes a half-open circuit.
	HalfOpenSuccesses int // default: 2

	// RetryBackoff is the base backoff between retry attempts; the delay
	// grows linearly per attempt and is capped at RetryBackoffCap.
	RetryBackoff    time.Duration // default: 500ms
	RetryBackoffCap time.Duration // default: 3s
}

// ScoringConfig holds the aggregation weights and fallback baselines.
// Weights must sum to 1.0; Load normalizes them if they do not.
type ScoringConfig struct {
	// Weights maps criterion name → aggregation weight.
	Weights map[string]float64

	// Fallbacks maps criterion name → conservative baseline score used
	// when the circuit is open or the real evaluation failed. Baselines
	// are below-average but never zero, so a fallback stays visibly
	// distinct from a hard failure.
	Fallbacks map[string]float64

	// MissingPenalty is the multiplicative reduction applied per criterion
	// that produced no result at all. default: 0.05 (5% per criterion)
	MissingPenalty float64
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 2

	// Burst is the maximum burst size per API key.
	Burst int // default: 5
}

// CacheConfig controls the score result cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached results.
	MaxEntries int // default: 500
}

// WebhookConfig controls outbound progress webhooks.
type WebhookConfig struct {
	// Secret signs outbound payloads (X-Sitegauge-Signature).
	// Empty disables signing.
	Secret string
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
			Host:        envOr("SITEGAUGE_HOST", "0.0.0.0"),
			Port:        envIntOr("SITEGAUGE_PORT", 8080),
			Mode:        envOr("SITEGAUGE_MODE", "release"),
			Development: envBoolOr("SITEGAUGE_DEV", false),
		},
		Browser: BrowserConfig{
			Headless:     envBoolOr("SITEGAUGE_HEADLESS", true),
			MaxPages:     envIntOr("SITEGAUGE_MAX_PAGES", 5),
			NoSandbox:    envBoolOr("SITEGAUGE_NO_SANDBOX", false),
			BrowserBin:   os.Getenv("SITEGAUGE_BROWSER_BIN"),
			DefaultProxy: os.Getenv("SITEGAUGE_PROXY"),
		},
		Acquire: AcquireConfig{
			Timeout:        envDurationOr("SITEGAUGE_ACQUIRE_TIMEOUT", 45*time.Second),
			ScreenshotDir:  envOr("SITEGAUGE_SCREENSHOT_DIR", "/tmp/sitegauge"),
			ViewportWidth:  envIntOr("SITEGAUGE_VIEWPORT_WIDTH", 1366),
			ViewportHeight: envIntOr("SITEGAUGE_VIEWPORT_HEIGHT", 900),
		},
		AI: AIConfig{
			APIKey:           os.Getenv("SITEGAUGE_AI_API_KEY"),
			Model:            envOr("SITEGAUGE_AI_MODEL", "gpt-4o-mini"),
			BaseURL:          envOr("SITEGAUGE_AI_BASE_URL", "https://api.openai.com/v1"),
			MaxContentTokens: envIntOr("SITEGAUGE_AI_MAX_CONTENT_TOKENS", 6000),
		},
		PageSpeed: PageSpeedConfig{
			APIKey:   os.Getenv("SITEGAUGE_PAGESPEED_API_KEY"),
			Endpoint: envOr("SITEGAUGE_PAGESPEED_ENDPOINT", "https://www.googleapis.com/pagespeedonline/v5/runPagespeed"),
			Strategy: envOr("SITEGAUGE_PAGESPEED_STRATEGY", "mobile"),
		},
		Tiers: TierConfig{
			FastHTMLTimeout: envDurationOr("SITEGAUGE_TIER1_TIMEOUT", 20*time.Second),
			AITimeout:       envDurationOr("SITEGAUGE_TIER2_TIMEOUT", 30*time.Second),
			ExternalTimeout: envDurationOr("SITEGAUGE_TIER3_TIMEOUT", 60*time.Second),
			CriterionFloor:  envDurationOr("SITEGAUGE_CRITERION_FLOOR", 5*time.Second),
		},
		Breaker: BreakerConfig{
			FailureThreshold:  envIntOr("SITEGAUGE_BREAKER_FAILURES", 3),
			FailureWindow:     envDurationOr("SITEGAUGE_BREAKER_WINDOW", 60*time.Second),
			Cooldown:          envDurationOr("SITEGAUGE_BREAKER_COOLDOWN", 30*time.Second),
			HalfOpenSuccesses: envIntOr("SITEGAUGE_BREAKER_HALF_OPEN_SUCCESSES", 2),
			RetryBackoff:      envDurationOr("SITEGAUGE_RETRY_BACKOFF", 500*time.Millisecond),
			RetryBackoffCap:   envDurationOr("SITEGAUGE_RETRY_BACKOFF_CAP", 3*time.Second),
		},
		Scoring: loadScoring(),
		Auth: AuthConfig{
			Enabled: envBoolOr("SITEGAUGE_AUTH_ENABLED", true),
			APIKeys: envSliceOr("SITEGAUGE_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("SITEGAUGE_RATE_RPS", 2.0),
			Burst:             envIntOr("SITEGAUGE_RATE_BURST", 5),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("SITEGAUGE_CACHE_MAX_ENTRIES", 500),
		},
		Webhook: WebhookConfig{
			Secret: os.Getenv("SITEGAUGE_WEBHOOK_SECRET"),
		},
		Log: LogConfig{
			Level:  envOr("SITEGAUGE_LOG_LEVEL", "info"),
			Format: envOr("SITEGAUGE_LOG_FORMAT", "json"),
		},
	}
}

// loadScoring builds the weight and fallback tables. Both are product
// tuning knobs, not derived values — keep overrides in env, not code.
//
// Weight overrides use SITEGAUGE_WEIGHT_<CRITERION>, fallback baselines
// SITEGAUGE_FALLBACK_<CRITERION> (criterion name upper-cased).
func loadScoring() ScoringConfig {
	weights := map[string]float64{
		"seo_foundations":   0.15,
		"accessibility":     0.10,
		"trust_signals":     0.10,
		"call_to_action":    0.15,
		"messaging_clarity": 0.15,
		"content_quality":   0.10,
		"visual_hierarchy":  0.10,
		"page_speed":        0.15,
	}
	fallbacks := map[string]float64{
		"seo_foundations":   4.0,
		"accessibility":     4.0,
		"trust_signals":     4.0,
		"call_to_action":    4.0,
		"messaging_clarity": 3.5,
		"content_quality":   3.5,
		"visual_hierarchy":  3.5,
		"page_speed":        3.0,
	}
	for name := range weights {
		key := strings.ToUpper(name)
		weights[name] = envFloatOr("SITEGAUGE_WEIGHT_"+key, weights[name])
		fallbacks[name] = envFloatOr("SITEGAUGE_FALLBACK_"+key, fallbacks[name])
	}

	// Normalize so overridden weights still sum to 1.0.
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if sum > 0 && (sum < 0.999 || sum > 1.001) {
		for name := range weights {
			weights[name] /= sum
		}
	}

	return ScoringConfig{
		Weights:        weights,
		Fallbacks:      fallbacks,
		MissingPenalty: envFloatOr("SITEGAUGE_MISSING_PENALTY", 0.05),
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
