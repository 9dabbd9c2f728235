// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Lanes      LanesConfig      `mapstructure:"lanes"`
	Filter     FilterConfig     `mapstructure:"filter"`
	Quality    QualityConfig    `mapstructure:"quality"`
	Dedup      DedupConfig      `mapstructure:"dedup"`
	Robots     RobotsConfig     `mapstructure:"robots"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Corpus     CorpusConfig     `mapstructure:"corpus"`
	DB         DBConfig         `mapstructure:"db"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Sources    SourcesConfig    `mapstructure:"sources"`
}

// CrawlerConfig governs the scheduler and domain worker loops.
type CrawlerConfig struct {
	MaxConcurrent   int     `mapstructure:"max_concurrent"`
	TickSeconds     int     `mapstructure:"tick_seconds"`
	MaxNoWorkCycles int     `mapstructure:"max_no_work_cycles"`
	MaxFailures     int     `mapstructure:"max_failures"`
	BufferLimit     int     `mapstructure:"buffer_limit"`
	BaseDelayMinMs  int     `mapstructure:"base_delay_min_ms"`
	BaseDelayMaxMs  int     `mapstructure:"base_delay_max_ms"`
	LatencyFactor   float64 `mapstructure:"latency_factor"`
	UserAgent       string  `mapstructure:"user_agent"`
	TimeoutSeconds  int     `mapstructure:"timeout_seconds"`
	SitemapSeeding  bool    `mapstructure:"sitemap_seeding"`
}

// LanesConfig overrides the frontier lane keyword lists. Empty lists keep
// the compiled-in defaults.
type LanesConfig struct {
	High   []string `mapstructure:"high"`
	Medium []string `mapstructure:"medium"`
}

// FilterConfig overrides the compiled-in URL keyword policy.
type FilterConfig struct {
	BadExtensions    []string `mapstructure:"bad_extensions"`
	NegativeKeywords []string `mapstructure:"negative_keywords"`
	PositiveKeywords []string `mapstructure:"positive_keywords"`
	GenericKeywords  []string `mapstructure:"generic_keywords"`
}

// QualityConfig tunes the acceptance gates.
type QualityConfig struct {
	DefaultThreshold float64 `mapstructure:"default_threshold"`
	MinChars         int     `mapstructure:"min_chars"`
	MinWords         int     `mapstructure:"min_words"`
	Language         string  `mapstructure:"language"`
}

// DedupConfig tunes the duplicate store.
type DedupConfig struct {
	Path            string `mapstructure:"path"`
	TitleThreshold  int    `mapstructure:"title_threshold"`
	HammingDistance int    `mapstructure:"hamming_distance"`
}

// RobotsConfig tunes robots.txt handling.
type RobotsConfig struct {
	CachePath      string `mapstructure:"cache_path"`
	TTLHours       int    `mapstructure:"ttl_hours"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	SitemapQuota   int    `mapstructure:"sitemap_quota"`
	SitemapDepth   int    `mapstructure:"sitemap_depth"`
}

// CheckpointConfig controls crash-resume persistence.
type CheckpointConfig struct {
	Path            string `mapstructure:"path"`
	IntervalSeconds int    `mapstructure:"interval_seconds"`
}

// CorpusConfig sets the accepted-page output path.
type CorpusConfig struct {
	Path string `mapstructure:"path"`
}

// DBConfig controls the optional page metadata store. An empty DSN keeps
// metadata in memory.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// PubSubConfig holds the optional accepted-page notification topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// ServerConfig controls the monitoring HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SourcesConfig points at the crawl sources file and its entry defaults.
type SourcesConfig struct {
	Path             string  `mapstructure:"path"`
	DefaultMaxPages  int     `mapstructure:"default_max_pages"`
	DefaultPriority  int     `mapstructure:"default_priority"`
	DefaultThreshold float64 `mapstructure:"default_threshold"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.max_concurrent", 100)
	v.SetDefault("crawler.tick_seconds", 1)
	v.SetDefault("crawler.max_no_work_cycles", 3)
	v.SetDefault("crawler.max_failures", 100)
	v.SetDefault("crawler.buffer_limit", 50)
	v.SetDefault("crawler.base_delay_min_ms", 500)
	v.SetDefault("crawler.base_delay_max_ms", 1000)
	v.SetDefault("crawler.latency_factor", 0.5)
	v.SetDefault("crawler.user_agent", "harvestkit/1.0")
	v.SetDefault("crawler.timeout_seconds", 15)
	v.SetDefault("crawler.sitemap_seeding", false)
	v.SetDefault("quality.default_threshold", 45)
	v.SetDefault("quality.min_chars", 150)
	v.SetDefault("quality.min_words", 50)
	v.SetDefault("dedup.path", "data/dedup.json")
	v.SetDefault("dedup.title_threshold", 5)
	v.SetDefault("dedup.hamming_distance", 3)
	v.SetDefault("robots.cache_path", "data/robots_cache.json")
	v.SetDefault("robots.ttl_hours", 24)
	v.SetDefault("robots.timeout_seconds", 10)
	v.SetDefault("robots.sitemap_quota", 50)
	v.SetDefault("robots.sitemap_depth", 3)
	v.SetDefault("checkpoint.path", "data/checkpoint.json")
	v.SetDefault("checkpoint.interval_seconds", 60)
	v.SetDefault("corpus.path", "data/corpus.jsonl")
	v.SetDefault("db.table", "pages")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("sources.path", "sources.yaml")
	v.SetDefault("sources.default_max_pages", 5000)
	v.SetDefault("sources.default_priority", 1)
	v.SetDefault("sources.default_threshold", 45)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.MaxConcurrent <= 0 {
		return fmt.Errorf("crawler.max_concurrent must be > 0")
	}
	if c.Crawler.TickSeconds <= 0 {
		return fmt.Errorf("crawler.tick_seconds must be > 0")
	}
	if c.Crawler.BaseDelayMaxMs < c.Crawler.BaseDelayMinMs {
		return fmt.Errorf("crawler.base_delay_max_ms must be >= base_delay_min_ms")
	}
	if c.Quality.DefaultThreshold < 0 || c.Quality.DefaultThreshold > 100 {
		return fmt.Errorf("quality.default_threshold must be in [0, 100]")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the server is enabled")
	}
	if c.Sources.Path == "" {
		return fmt.Errorf("sources.path is required")
	}
	return nil
}

// Tick converts the scheduler cycle into a duration.
func (c CrawlerConfig) Tick() time.Duration {
	return time.Duration(c.TickSeconds) * time.Second
}

// Timeout converts the fetch timeout into a duration.
func (c CrawlerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BaseDelayMin is the lower pacing delay bound.
func (c CrawlerConfig) BaseDelayMin() time.Duration {
	return time.Duration(c.BaseDelayMinMs) * time.Millisecond
}

// BaseDelayMax is the upper pacing delay bound.
func (c CrawlerConfig) BaseDelayMax() time.Duration {
	return time.Duration(c.BaseDelayMaxMs) * time.Millisecond
}

// TTL converts the robots cache lifetime into a duration.
func (c RobotsConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// Timeout converts the robots fetch timeout into a duration.
func (c RobotsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Interval converts the checkpoint cadence into a duration.
func (c CheckpointConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}
