package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Crawler.MaxConcurrent)
	assert.Equal(t, time.Second, cfg.Crawler.Tick())
	assert.Equal(t, 500*time.Millisecond, cfg.Crawler.BaseDelayMin())
	assert.Equal(t, time.Second, cfg.Crawler.BaseDelayMax())
	assert.InDelta(t, 0.5, cfg.Crawler.LatencyFactor, 1e-9)
	assert.InDelta(t, 45.0, cfg.Quality.DefaultThreshold, 1e-9)
	assert.Equal(t, 150, cfg.Quality.MinChars)
	assert.Equal(t, 50, cfg.Quality.MinWords)
	assert.Equal(t, 24*time.Hour, cfg.Robots.TTL())
	assert.Equal(t, 50, cfg.Robots.SitemapQuota)
	assert.Equal(t, 60*time.Second, cfg.Checkpoint.Interval())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5000, cfg.Sources.DefaultMaxPages)
	assert.Equal(t, "pages", cfg.DB.Table)
}

func TestLoadWithFileOverrides(t *testing.T) {
	path := writeFile(t, "config.yaml", `
crawler:
  max_concurrent: 8
  tick_seconds: 2
  user_agent: custom-bot/2.0
  sitemap_seeding: true
lanes:
  high: [quickstart, walkthrough]
quality:
  default_threshold: 60
dedup:
  path: /tmp/dd.json
checkpoint:
  interval_seconds: 30
db:
  dsn: postgres://crawler@localhost/crawl
  table: crawl_pages
pubsub:
  project_id: my-project
  topic_id: accepted-pages
server:
  port: 9090
logging:
  development: false
sources:
  path: seeds.yaml
  default_max_pages: 250
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Crawler.MaxConcurrent)
	assert.Equal(t, 2*time.Second, cfg.Crawler.Tick())
	assert.Equal(t, "custom-bot/2.0", cfg.Crawler.UserAgent)
	assert.True(t, cfg.Crawler.SitemapSeeding)
	assert.Equal(t, []string{"quickstart", "walkthrough"}, cfg.Lanes.High)
	assert.Empty(t, cfg.Lanes.Medium)
	assert.InDelta(t, 60.0, cfg.Quality.DefaultThreshold, 1e-9)
	assert.Equal(t, "/tmp/dd.json", cfg.Dedup.Path)
	assert.Equal(t, 30*time.Second, cfg.Checkpoint.Interval())
	assert.Equal(t, "postgres://crawler@localhost/crawl", cfg.DB.DSN)
	assert.Equal(t, "crawl_pages", cfg.DB.Table)
	assert.Equal(t, "my-project", cfg.PubSub.ProjectID)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.False(t, cfg.Logging.Development)
	assert.Equal(t, "seeds.yaml", cfg.Sources.Path)
	assert.Equal(t, 250, cfg.Sources.DefaultMaxPages)
}

func TestValidateErrors(t *testing.T) {
	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad concurrency", func(c *Config) { c.Crawler.MaxConcurrent = 0 }, "max_concurrent"},
		{"bad tick", func(c *Config) { c.Crawler.TickSeconds = 0 }, "tick_seconds"},
		{"inverted delays", func(c *Config) { c.Crawler.BaseDelayMaxMs = 100; c.Crawler.BaseDelayMinMs = 200 }, "base_delay_max_ms"},
		{"threshold range", func(c *Config) { c.Quality.DefaultThreshold = 101 }, "default_threshold"},
		{"server port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"missing sources", func(c *Config) { c.Sources.Path = "" }, "sources.path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadSources(t *testing.T) {
	path := writeFile(t, "seeds.yaml", `
python:
  - url: https://docs.python.org/3/tutorial/
    max_pages: 300
    priority: 1
  - url: https://numpy.org/doc/stable/
    quality_threshold: 55
broken:
  - url: ""
  - url: "ftp://mirror.example/files"
  - max_pages: 10
`)

	sources, err := LoadSources(SourcesConfig{
		Path:             path,
		DefaultMaxPages:  5000,
		DefaultPriority:  1,
		DefaultThreshold: 45,
	}, nil)
	require.NoError(t, err)
	require.Len(t, sources, 2, "malformed entries are skipped")

	byDomain := map[string]int{}
	for i, src := range sources {
		byDomain[src.Domain] = i
	}

	py := sources[byDomain["docs.python.org"]]
	assert.Equal(t, "https://docs.python.org/3/tutorial", py.URL)
	assert.Equal(t, "https://docs.python.org/3/tutorial", py.SeedPrefix)
	assert.Equal(t, 300, py.MaxPages)
	assert.Equal(t, 1, py.Priority)
	assert.InDelta(t, 45.0, py.QualityThreshold, 1e-9)

	np := sources[byDomain["numpy.org"]]
	assert.Equal(t, 5000, np.MaxPages)
	assert.InDelta(t, 55.0, np.QualityThreshold, 1e-9)
}

func TestLoadSourcesRejectsInvalidValues(t *testing.T) {
	path := writeFile(t, "seeds.yaml", `
docs:
  - url: https://example.com/docs/
    max_pages: 0
`)
	_, err := LoadSources(SourcesConfig{Path: path, DefaultMaxPages: 10, DefaultPriority: 1}, nil)
	assert.Error(t, err, "a file with only bad entries yields an error")
}

func TestLoadSourcesMissingFile(t *testing.T) {
	_, err := LoadSources(SourcesConfig{Path: filepath.Join(t.TempDir(), "nope.yaml")}, nil)
	assert.Error(t, err)
}
