// Package config loads and validates engine configuration and owns
// logger construction. Values come from an optional YAML file, the
// OPTIONALPHA_* environment, and built-in defaults, in that order of
// precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all engine configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Store      StoreConfig      `mapstructure:"store"`
	Cache      CacheConfig      `mapstructure:"cache"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	MarketData MarketDataConfig `mapstructure:"market_data"`
	Options    OptionsConfig    `mapstructure:"options"`
	Universe   UniverseConfig   `mapstructure:"universe"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Catalyst   CatalystConfig   `mapstructure:"catalyst"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Debate     DebateConfig     `mapstructure:"debate"`
	Scan       ScanConfig       `mapstructure:"scan"`
	Health     HealthConfig     `mapstructure:"health"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "console" or "json"
}

// StoreConfig contains SQLite settings.
type StoreConfig struct {
	Path          string `mapstructure:"path"`
	BusyTimeoutMS int    `mapstructure:"busy_timeout_ms"`
}

// CacheConfig contains two-tier cache settings. Backend selects the
// persistent KV: "sqlite" (default), "redis", or "memory".
type CacheConfig struct {
	Backend             string `mapstructure:"backend"`
	RedisURL            string `mapstructure:"redis_url"`
	LazyCleanupInterval int    `mapstructure:"lazy_cleanup_interval"`
}

// RateLimitConfig governs the vendor request limiter.
type RateLimitConfig struct {
	MaxConcurrent     int       `mapstructure:"max_concurrent"`
	RequestsPerSecond float64   `mapstructure:"requests_per_second"`
	MaxRetries        int       `mapstructure:"max_retries"`
	BackoffSeconds    []float64 `mapstructure:"backoff_seconds"`
}

// BackoffSchedule converts the configured backoff seconds to durations.
func (c RateLimitConfig) BackoffSchedule() []time.Duration {
	out := make([]time.Duration, len(c.BackoffSeconds))
	for i, s := range c.BackoffSeconds {
		out[i] = time.Duration(s * float64(time.Second))
	}
	return out
}

// MarketDataConfig contains market-data service settings.
type MarketDataConfig struct {
	Period           string `mapstructure:"period"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	TransportRetries int    `mapstructure:"transport_retries"`
	MinBars          int    `mapstructure:"min_bars"`
}

// OptionsConfig contains chain filtering and contract selection settings.
type OptionsConfig struct {
	DTETarget       int     `mapstructure:"dte_target"`
	DTEMin          int     `mapstructure:"dte_min"`
	DTEMax          int     `mapstructure:"dte_max"`
	MinOpenInterest int64   `mapstructure:"min_open_interest"`
	MinVolume       int64   `mapstructure:"min_volume"`
	MaxSpreadRatio  float64 `mapstructure:"max_spread_ratio"`
	DeltaTarget     float64 `mapstructure:"delta_target"`
	DeltaMin        float64 `mapstructure:"delta_min"`
	DeltaMax        float64 `mapstructure:"delta_max"`
	RiskFreeRate    float64 `mapstructure:"risk_free_rate"`
}

// UniverseConfig contains optionable-universe ingestion settings.
type UniverseConfig struct {
	CSVURL          string `mapstructure:"csv_url"`
	SP500URL        string `mapstructure:"sp500_url"`
	MinTickers      int    `mapstructure:"min_tickers"`
	DeactivateAfter int    `mapstructure:"deactivate_after"`
	SP500CacheDays  int    `mapstructure:"sp500_cache_days"`
}

// ScoringConfig carries indicator weights for the composite score.
type ScoringConfig struct {
	Weights  map[string]float64 `mapstructure:"weights"`
	MinScore float64            `mapstructure:"min_score"`
}

// CatalystConfig carries the earnings-proximity penalty coefficients.
// Buckets mirror event-proximity tiers: the closer the catalyst, the
// larger the haircut on the composite score.
type CatalystConfig struct {
	ImminentDays    int     `mapstructure:"imminent_days"`
	NearDays        int     `mapstructure:"near_days"`
	MediumDays      int     `mapstructure:"medium_days"`
	ImminentPenalty float64 `mapstructure:"imminent_penalty"`
	NearPenalty     float64 `mapstructure:"near_penalty"`
	MediumPenalty   float64 `mapstructure:"medium_penalty"`
}

// BreakerConfig contains circuit breaker thresholds for LLM calls.
type BreakerConfig struct {
	MinRequests        uint32  `mapstructure:"min_requests"`
	FailureRatio       float64 `mapstructure:"failure_ratio"`
	OpenTimeoutSeconds int     `mapstructure:"open_timeout_seconds"`
	HalfOpenMaxReqs    uint32  `mapstructure:"half_open_max_reqs"`
}

// LLMConfig contains local LLM endpoint settings.
type LLMConfig struct {
	Host           string        `mapstructure:"host"`
	Model          string        `mapstructure:"model"`
	Temperature    float64       `mapstructure:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	TimeoutSeconds int           `mapstructure:"timeout_seconds"`
	MaxRetries     int           `mapstructure:"max_retries"`
	NumCtx         int           `mapstructure:"num_ctx"`
	Breaker        BreakerConfig `mapstructure:"breaker"`
}

// DebateConfig contains debate orchestrator settings.
type DebateConfig struct {
	Disclaimer     string `mapstructure:"disclaimer"`
	PersistResults bool   `mapstructure:"persist_results"`
}

// ScanConfig contains scan pipeline settings.
type ScanConfig struct {
	DefaultPreset string `mapstructure:"default_preset"`
	TopN          int    `mapstructure:"top_n"`
	EventBuffer   int    `mapstructure:"event_buffer"`
	ProfileDir    string `mapstructure:"profile_dir"`
}

// HealthConfig contains health oracle settings.
type HealthConfig struct {
	LLMTimeoutSeconds    int    `mapstructure:"llm_timeout_seconds"`
	VendorTimeoutSeconds int    `mapstructure:"vendor_timeout_seconds"`
	StoreTimeoutSeconds  int    `mapstructure:"store_timeout_seconds"`
	CanarySymbol         string `mapstructure:"canary_symbol"`
}

// MetricsConfig contains the ops listener settings.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// DefaultDisclaimer is stamped verbatim onto every thesis.
const DefaultDisclaimer = "This is AI-generated analysis for research purposes only and is not financial advice. Options trading involves substantial risk of loss."

// DefaultLLMHost is the local model server used when nothing overrides it.
const DefaultLLMHost = "http://localhost:11434"

// Load reads configuration from the given file (or the default search
// path), applies environment overrides, and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("optionalpha")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("OPTIONALPHA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file; defaults plus environment are enough.
	}

	// LLM_HOST (no prefix) is the upstream tool's convention and wins
	// over the config file.
	if host := os.Getenv("LLM_HOST"); host != "" {
		v.Set("llm.host", host)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "optionalpha")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "console")

	v.SetDefault("store.path", "optionalpha.db")
	v.SetDefault("store.busy_timeout_ms", 5000)

	v.SetDefault("cache.backend", "sqlite")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.lazy_cleanup_interval", 100)

	v.SetDefault("rate_limit.max_concurrent", 5)
	v.SetDefault("rate_limit.requests_per_second", 10.0)
	v.SetDefault("rate_limit.max_retries", 3)
	v.SetDefault("rate_limit.backoff_seconds", []float64{1, 2, 4, 8, 16})

	v.SetDefault("market_data.period", "1y")
	v.SetDefault("market_data.timeout_seconds", 30)
	v.SetDefault("market_data.transport_retries", 3)
	v.SetDefault("market_data.min_bars", 100)

	v.SetDefault("options.dte_target", 45)
	v.SetDefault("options.dte_min", 30)
	v.SetDefault("options.dte_max", 60)
	v.SetDefault("options.min_open_interest", 100)
	v.SetDefault("options.min_volume", 1)
	v.SetDefault("options.max_spread_ratio", 0.30)
	v.SetDefault("options.delta_target", 0.35)
	v.SetDefault("options.delta_min", 0.30)
	v.SetDefault("options.delta_max", 0.40)
	v.SetDefault("options.risk_free_rate", 0.05)

	v.SetDefault("universe.csv_url", "https://www.cboe.com/us/options/symboldir/equity_index_options/?download=csv")
	v.SetDefault("universe.sp500_url", "https://en.wikipedia.org/wiki/List_of_S%26P_500_companies")
	v.SetDefault("universe.min_tickers", 100)
	v.SetDefault("universe.deactivate_after", 3)
	v.SetDefault("universe.sp500_cache_days", 7)

	v.SetDefault("scoring.min_score", 0.0)
	v.SetDefault("scoring.weights", map[string]float64{
		"rsi_14":          0.20,
		"macd_histogram":  0.15,
		"sma_alignment":   0.20,
		"adx_14":          0.10,
		"bb_width":        0.05,
		"williams_r":      0.10,
		"stoch_rsi":       0.05,
		"obv_trend":       0.05,
		"relative_volume": 0.05,
		"week52_position": 0.05,
	})

	v.SetDefault("catalyst.imminent_days", 7)
	v.SetDefault("catalyst.near_days", 21)
	v.SetDefault("catalyst.medium_days", 45)
	v.SetDefault("catalyst.imminent_penalty", 0.30)
	v.SetDefault("catalyst.near_penalty", 0.15)
	v.SetDefault("catalyst.medium_penalty", 0.05)

	v.SetDefault("llm.host", DefaultLLMHost)
	v.SetDefault("llm.model", "qwen2.5:14b")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 2000)
	v.SetDefault("llm.timeout_seconds", 120)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.num_ctx", 8192)
	v.SetDefault("llm.breaker.min_requests", 3)
	v.SetDefault("llm.breaker.failure_ratio", 0.6)
	v.SetDefault("llm.breaker.open_timeout_seconds", 60)
	v.SetDefault("llm.breaker.half_open_max_reqs", 2)

	v.SetDefault("debate.disclaimer", DefaultDisclaimer)
	v.SetDefault("debate.persist_results", true)

	v.SetDefault("scan.default_preset", "full")
	v.SetDefault("scan.top_n", 10)
	v.SetDefault("scan.event_buffer", 64)
	v.SetDefault("scan.profile_dir", "")

	v.SetDefault("health.llm_timeout_seconds", 5)
	v.SetDefault("health.vendor_timeout_seconds", 10)
	v.SetDefault("health.store_timeout_seconds", 5)
	v.SetDefault("health.canary_symbol", "SPY")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.RateLimit.MaxConcurrent < 1 {
		return fmt.Errorf("rate_limit.max_concurrent must be >= 1, got %d", c.RateLimit.MaxConcurrent)
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate_limit.requests_per_second must be > 0, got %f", c.RateLimit.RequestsPerSecond)
	}
	if c.RateLimit.MaxRetries < 0 {
		return fmt.Errorf("rate_limit.max_retries must be >= 0, got %d", c.RateLimit.MaxRetries)
	}
	if c.MarketData.MinBars < 1 {
		return fmt.Errorf("market_data.min_bars must be >= 1, got %d", c.MarketData.MinBars)
	}
	if c.Options.DTEMin <= 0 || c.Options.DTEMax <= c.Options.DTEMin {
		return fmt.Errorf("options DTE window [%d, %d] is invalid", c.Options.DTEMin, c.Options.DTEMax)
	}
	if c.Options.DeltaMin <= 0 || c.Options.DeltaMax >= 1 || c.Options.DeltaMax <= c.Options.DeltaMin {
		return fmt.Errorf("options delta band [%f, %f] is invalid", c.Options.DeltaMin, c.Options.DeltaMax)
	}
	if c.Options.MaxSpreadRatio <= 0 {
		return fmt.Errorf("options.max_spread_ratio must be > 0, got %f", c.Options.MaxSpreadRatio)
	}
	if c.Universe.MinTickers < 1 {
		return fmt.Errorf("universe.min_tickers must be >= 1, got %d", c.Universe.MinTickers)
	}
	if c.Universe.DeactivateAfter < 1 {
		return fmt.Errorf("universe.deactivate_after must be >= 1, got %d", c.Universe.DeactivateAfter)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model must not be empty")
	}
	if c.LLM.Host == "" {
		return fmt.Errorf("llm.host must not be empty")
	}
	if c.Debate.Disclaimer == "" {
		return fmt.Errorf("debate.disclaimer must not be empty")
	}
	if c.Scan.TopN < 1 {
		return fmt.Errorf("scan.top_n must be >= 1, got %d", c.Scan.TopN)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path must not be empty")
	}
	switch c.Cache.Backend {
	case "sqlite", "memory":
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("cache.backend is redis but cache.redis_url is empty")
		}
	default:
		return fmt.Errorf("cache.backend %q is not one of sqlite, redis, memory", c.Cache.Backend)
	}
	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port %d is out of range", c.Metrics.Port)
	}
	return nil
}
