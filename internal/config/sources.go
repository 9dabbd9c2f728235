package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/harvestkit/harvestkit/internal/crawler"
)

// SourceEntry is one seed in the sources file. Only the URL is required;
// the remaining knobs fall back to the configured defaults.
type SourceEntry struct {
	URL              string   `yaml:"url"`
	MaxPages         *int     `yaml:"max_pages"`
	Priority         *int     `yaml:"priority"`
	QualityThreshold *float64 `yaml:"quality_threshold"`
}

// LoadSources reads the category-keyed sources file and resolves each
// entry into a crawler.CrawlSource. Malformed entries are logged and
// skipped; a file yielding zero usable sources is an error.
func LoadSources(cfg SourcesConfig, logger *zap.Logger) ([]crawler.CrawlSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	data, err := os.ReadFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	var categories map[string][]SourceEntry
	if err := yaml.Unmarshal(data, &categories); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}

	var sources []crawler.CrawlSource
	for category, entries := range categories {
		for _, entry := range entries {
			src, err := resolveEntry(entry, cfg)
			if err != nil {
				logger.Warn("skipping malformed source entry",
					zap.String("category", category),
					zap.String("url", entry.URL),
					zap.Error(err))
				continue
			}
			logger.Debug("source loaded",
				zap.String("category", category),
				zap.String("domain", src.Domain),
				zap.Int("max_pages", src.MaxPages))
			sources = append(sources, src)
		}
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("sources file %s contains no usable entries", cfg.Path)
	}
	return sources, nil
}

func resolveEntry(entry SourceEntry, cfg SourcesConfig) (crawler.CrawlSource, error) {
	raw := strings.TrimSpace(entry.URL)
	if raw == "" {
		return crawler.CrawlSource{}, fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return crawler.CrawlSource{}, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return crawler.CrawlSource{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return crawler.CrawlSource{}, fmt.Errorf("url has no host")
	}

	src := crawler.CrawlSource{
		Domain:           strings.ToLower(u.Host),
		URL:              strings.TrimRight(raw, "/"),
		SeedPrefix:       seedPrefix(u),
		MaxPages:         cfg.DefaultMaxPages,
		Priority:         cfg.DefaultPriority,
		QualityThreshold: cfg.DefaultThreshold,
	}
	if entry.MaxPages != nil {
		if *entry.MaxPages <= 0 {
			return crawler.CrawlSource{}, fmt.Errorf("max_pages must be > 0")
		}
		src.MaxPages = *entry.MaxPages
	}
	if entry.Priority != nil {
		if *entry.Priority <= 0 {
			return crawler.CrawlSource{}, fmt.Errorf("priority must be > 0")
		}
		src.Priority = *entry.Priority
	}
	if entry.QualityThreshold != nil {
		if *entry.QualityThreshold < 0 || *entry.QualityThreshold > 100 {
			return crawler.CrawlSource{}, fmt.Errorf("quality_threshold must be in [0, 100]")
		}
		src.QualityThreshold = *entry.QualityThreshold
	}
	return src, nil
}

// seedPrefix confines link discovery to the seed's section of the site:
// scheme, host, and the seed path without its trailing slash.
func seedPrefix(u *url.URL) string {
	prefix := strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + u.Path
	return strings.TrimRight(prefix, "/")
}
