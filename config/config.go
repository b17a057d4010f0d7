package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/use-agent/gallerydiscover/models"
)

// Config holds all process configuration, read once at startup.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig

	Collector  CollectorConfig
	Scorer     ScorerConfig
	Pattern    PatternConfig
	Pagination PaginationConfig
	Retry      RetryConfig
	Router     RouterConfig

	Browser BrowserConfig
	Fetch   FetchConfig
}

// ServerConfig controls the optional HTTP control surface.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8088
	Mode string // "debug", "release", "test"; default: "release"
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// AuthConfig controls API key authentication on the optional HTTP surface.
type AuthConfig struct {
	Enabled bool
	APIKeys []string
}

// RateLimitConfig controls per-identity rate limiting on the optional HTTP
// surface. The default Fetcher does not read it and applies no pacing.
type RateLimitConfig struct {
	RequestsPerSecond float64 // default: 5
	Burst             int     // default: 10
}

// CacheConfig bounds the scorer's result cache (§5: LRU, default 256).
type CacheConfig struct {
	MaxEntries int // default: 256
}

// CollectorConfig tunes ImageCollector.
type CollectorConfig struct {
	// MaxStyleProbe bounds method 8 (computed-style background probing).
	MaxStyleProbe int // default: 200

	// ImageExtensions are the suffix/segment matches for looks_like_image.
	ImageExtensions []string // default: jpg,jpeg,png,gif,webp,svg,bmp,tiff,avif

	// StripQuery controls whether UrlCanonicalizer drops the query string.
	StripQuery bool // default: false
}

// ScorerConfig tunes ConfidenceScorer.
type ScorerConfig struct {
	WeightURLPattern        float64 // default: 0.20
	WeightSelectorStability float64 // default: 0.25
	WeightLayoutConsistency float64 // default: 0.20
	WeightImageDimensions   float64 // default: 0.15
	WeightLazyLoadReadiness float64 // default: 0.10
	WeightElementCount      float64 // default: 0.10

	MaxAnalysisTime time.Duration // default: 100ms

	ThresholdHigh   float64 // default: 0.75
	ThresholdMedium float64 // default: 0.50
	ThresholdLow    float64 // default: 0.25
}

// PatternConfig tunes PatternRecognizer.
type PatternConfig struct {
	MinPatternItems     int     // default: 3
	LayoutTolerancePx   float64 // default: 10
	ListAxisTolerancePx float64 // default: 20
	CompositeThreshold  float64 // default: 0.3
	MinContainerAreaPx2 float64 // default: 10000
	MaxContainerAreaPx2 float64 // default: 2000000
}

// PaginationConfig tunes PaginationDetector and PaginationEngine.
type PaginationConfig struct {
	DelayMinMs             int           // default: 2000
	DelayMaxMs             int           // default: 5000
	WaitTimeout            time.Duration // default: 5s
	MaxPages               uint32        // default: 0 (unbounded unless caller sets one)
	LearnedPatternTTL      time.Duration // default: 7 days; not read, learned patterns never expire
	PreferNumericOverGlyph bool          // open-question policy, default true
	SimhashLoopGuard       bool          // default: false — opt-in near-duplicate guard
	SimhashThreshold       int           // default: 3 (Hamming distance)
}

// RetryConfig tunes RetryManager.
type RetryConfig struct {
	MaxQueueSize         int // default: 1000
	MaxConcurrentRetries int // default: 10
	Policies             map[models.ErrorCategory]models.RetryPolicy
	Breaker              models.CircuitBreakerConfig
}

// RouterConfig tunes the Orchestrator/Router.
type RouterConfig struct {
	MessageTimeout time.Duration // default: 30s
}

// BrowserConfig controls the optional Rod-backed Navigator/DomAdapter.
type BrowserConfig struct {
	Headless   bool
	MaxPages   int
	NoSandbox  bool
	BrowserBin string
}

// FetchConfig controls the default HTTP Fetcher.
type FetchConfig struct {
	DefaultTimeout time.Duration
	Proxy          string

	// StaticFirst, when true, tries a plain HTTP fetch before paying for a
	// full browser navigation. Sites whose gallery markup is present in the
	// initial response (no client-side rendering) are scanned without ever
	// starting Chrome; sites that need it fall back transparently.
	StaticFirst bool
}

// Load reads configuration from environment variables with sane defaults,
// following the GALLERY_* prefix.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("GALLERY_HOST", "0.0.0.0"),
			Port: envIntOr("GALLERY_PORT", 8088),
			Mode: envOr("GALLERY_MODE", "release"),
		},
		Log: LogConfig{
			Level:  envOr("GALLERY_LOG_LEVEL", "info"),
			Format: envOr("GALLERY_LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("GALLERY_AUTH_ENABLED", false),
			APIKeys: envSliceOr("GALLERY_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("GALLERY_RATE_RPS", 5.0),
			Burst:             envIntOr("GALLERY_RATE_BURST", 10),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("GALLERY_SCORE_CACHE_ENTRIES", 256),
		},
		Collector: CollectorConfig{
			MaxStyleProbe:   envIntOr("GALLERY_MAX_STYLE_PROBE", 200),
			ImageExtensions: envSliceOr("GALLERY_IMAGE_EXTENSIONS", []string{"jpg", "jpeg", "png", "gif", "webp", "svg", "bmp", "tiff", "avif"}),
			StripQuery:      envBoolOr("GALLERY_STRIP_QUERY", false),
		},
		Scorer: ScorerConfig{
			WeightURLPattern:        envFloatOr("GALLERY_WEIGHT_URL_PATTERN", 0.20),
			WeightSelectorStability: envFloatOr("GALLERY_WEIGHT_SELECTOR_STABILITY", 0.25),
			WeightLayoutConsistency: envFloatOr("GALLERY_WEIGHT_LAYOUT_CONSISTENCY", 0.20),
			WeightImageDimensions:   envFloatOr("GALLERY_WEIGHT_IMAGE_DIMENSIONS", 0.15),
			WeightLazyLoadReadiness: envFloatOr("GALLERY_WEIGHT_LAZY_LOAD_READINESS", 0.10),
			WeightElementCount:      envFloatOr("GALLERY_WEIGHT_ELEMENT_COUNT", 0.10),
			MaxAnalysisTime:         envDurationOr("GALLERY_MAX_ANALYSIS_TIME", 100*time.Millisecond),
			ThresholdHigh:           envFloatOr("GALLERY_THRESHOLD_HIGH", 0.75),
			ThresholdMedium:         envFloatOr("GALLERY_THRESHOLD_MEDIUM", 0.50),
			ThresholdLow:            envFloatOr("GALLERY_THRESHOLD_LOW", 0.25),
		},
		Pattern: PatternConfig{
			MinPatternItems:     envIntOr("GALLERY_MIN_PATTERN_ITEMS", 3),
			LayoutTolerancePx:   envFloatOr("GALLERY_LAYOUT_TOLERANCE_PX", 10),
			ListAxisTolerancePx: envFloatOr("GALLERY_LIST_AXIS_TOLERANCE_PX", 20),
			CompositeThreshold:  envFloatOr("GALLERY_COMPOSITE_THRESHOLD", 0.3),
			MinContainerAreaPx2: envFloatOr("GALLERY_MIN_CONTAINER_AREA", 10000),
			MaxContainerAreaPx2: envFloatOr("GALLERY_MAX_CONTAINER_AREA", 2000000),
		},
		Pagination: PaginationConfig{
			DelayMinMs:             envIntOr("GALLERY_PAGE_DELAY_MIN_MS", 2000),
			DelayMaxMs:             envIntOr("GALLERY_PAGE_DELAY_MAX_MS", 5000),
			WaitTimeout:            envDurationOr("GALLERY_WAIT_TIMEOUT", 5*time.Second),
			MaxPages:               uint32(envIntOr("GALLERY_MAX_PAGES", 0)),
			LearnedPatternTTL:      envDurationOr("GALLERY_LEARNED_PATTERN_TTL", 7*24*time.Hour),
			PreferNumericOverGlyph: envBoolOr("GALLERY_PREFER_NUMERIC_NEXT", true),
			SimhashLoopGuard:       envBoolOr("GALLERY_SIMHASH_LOOP_GUARD", false),
			SimhashThreshold:       envIntOr("GALLERY_SIMHASH_THRESHOLD", 3),
		},
		Retry: RetryConfig{
			MaxQueueSize:         envIntOr("GALLERY_RETRY_MAX_QUEUE", 1000),
			MaxConcurrentRetries: envIntOr("GALLERY_RETRY_MAX_CONCURRENT", 10),
			Policies:             models.DefaultPolicies,
			Breaker:              models.DefaultBreakerConfig,
		},
		Router: RouterConfig{
			MessageTimeout: envDurationOr("GALLERY_MESSAGE_TIMEOUT", 30*time.Second),
		},
		Browser: BrowserConfig{
			Headless:   envBoolOr("GALLERY_HEADLESS", true),
			MaxPages:   envIntOr("GALLERY_BROWSER_MAX_PAGES", 5),
			NoSandbox:  envBoolOr("GALLERY_NO_SANDBOX", false),
			BrowserBin: os.Getenv("GALLERY_BROWSER_BIN"),
		},
		Fetch: FetchConfig{
			DefaultTimeout: envDurationOr("GALLERY_FETCH_TIMEOUT", 15*time.Second),
			Proxy:          os.Getenv("GALLERY_PROXY"),
			StaticFirst:    envBoolOr("GALLERY_FETCH_STATIC_FIRST", true),
		},
	}
}

// --- helper functions (same idiom as the teacher's config loader) ---

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
