// Package robots implements the politeness subsystem: cached robots.txt
// policies per domain and sitemap seed discovery.
package robots

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// Options tune the politeness subsystem.
type Options struct {
	CachePath    string
	TTL          time.Duration // cache entry lifetime, default 24h
	Timeout      time.Duration // robots/sitemap HTTP timeout, default 10s
	UserAgent    string
	SitemapQuota int // max URLs harvested per domain, default 50
	SitemapDepth int // max nested sitemap-index depth, default 3
}

// CacheEntry is the persisted form of one domain's politeness state. Rule
// sets are not persisted; a fresh allow_all=false entry refetches them.
type CacheEntry struct {
	AllowAll  bool     `json:"allow_all"`
	Sitemaps  []string `json:"sitemaps,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// Politeness loads, caches, and answers robots.txt questions per domain.
type Politeness struct {
	mu      sync.Mutex
	opts    Options
	client  *http.Client
	logger  *zap.Logger
	cache   map[string]*CacheEntry
	parsers map[string]*robotstxt.RobotsData // nil value means allow-all

	// scheme is https in production; tests point it at plain-HTTP servers.
	scheme string
}

// New builds a Politeness handler, loading any fresh cache entries from
// disk. Stale entries are discarded on load.
func New(opts Options, logger *zap.Logger) *Politeness {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.SitemapQuota <= 0 {
		opts.SitemapQuota = 50
	}
	if opts.SitemapDepth <= 0 {
		opts.SitemapDepth = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Politeness{
		opts:    opts,
		client:  &http.Client{Timeout: opts.Timeout},
		logger:  logger,
		cache:   make(map[string]*CacheEntry),
		parsers: make(map[string]*robotstxt.RobotsData),
		scheme:  "https",
	}
	p.loadCache()
	return p
}

// Load fetches and caches the robots policy for domain. It is idempotent
// within a run; failures degrade to an allow-all policy, never an error.
func (p *Politeness) Load(ctx context.Context, domain string) {
	p.mu.Lock()
	if _, ok := p.parsers[domain]; ok {
		p.mu.Unlock()
		return
	}
	entry := p.cache[domain]
	fresh := entry != nil && p.freshLocked(entry)
	p.mu.Unlock()

	// A fresh allow-all entry short-circuits the fetch. allow_all=false
	// still refetches: only the flag is persisted, not the rule set.
	if fresh && entry.AllowAll {
		p.mu.Lock()
		p.parsers[domain] = nil
		p.mu.Unlock()
		p.logger.Debug("robots policy from cache", zap.String("domain", domain))
		return
	}

	data, allowAll := p.fetchRobots(ctx, domain)

	p.mu.Lock()
	p.parsers[domain] = data
	cached := p.cache[domain]
	if cached == nil {
		cached = &CacheEntry{}
		p.cache[domain] = cached
	}
	cached.AllowAll = allowAll
	cached.Timestamp = time.Now().Unix()
	p.mu.Unlock()
	p.saveCache()
}

func (p *Politeness) fetchRobots(ctx context.Context, domain string) (*robotstxt.RobotsData, bool) {
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", p.scheme, domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		p.logger.Warn("robots request build failed, allowing all", zap.String("domain", domain), zap.Error(err))
		return nil, true
	}
	if p.opts.UserAgent != "" {
		req.Header.Set("User-Agent", p.opts.UserAgent)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("robots fetch failed, allowing all", zap.String("domain", domain), zap.Error(err))
		return nil, true
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.logger.Debug("no valid robots.txt, allowing all",
			zap.String("domain", domain), zap.Int("status", resp.StatusCode))
		return nil, true
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		p.logger.Warn("robots read failed, allowing all", zap.String("domain", domain), zap.Error(err))
		return nil, true
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		p.logger.Warn("robots parse failed, allowing all", zap.String("domain", domain), zap.Error(err))
		return nil, true
	}
	p.logger.Debug("robots policy parsed", zap.String("domain", domain))
	return data, false
}

// CanFetch consults the cached policy for the URL's path+query under the
// wildcard user-agent. Unknown domains are allowed: politeness never
// blocks harder than the site asked for.
func (p *Politeness) CanFetch(domain, rawURL string) bool {
	p.mu.Lock()
	data, loaded := p.parsers[domain]
	p.mu.Unlock()
	if !loaded {
		p.logger.Warn("no robots policy loaded, allowing fetch", zap.String("domain", domain))
		return true
	}
	if data == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return data.TestAgent(path, "*")
}

func (p *Politeness) freshLocked(entry *CacheEntry) bool {
	return time.Since(time.Unix(entry.Timestamp, 0)) < p.opts.TTL
}

func (p *Politeness) loadCache() {
	if p.opts.CachePath == "" {
		return
	}
	data, err := os.ReadFile(p.opts.CachePath)
	if err != nil {
		if !os.IsNotExist(err) {
			p.logger.Warn("robots cache unreadable", zap.Error(err))
		}
		return
	}
	var raw map[string]*CacheEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		p.logger.Warn("robots cache corrupt, ignoring", zap.Error(err))
		return
	}
	for domain, entry := range raw {
		if p.freshLocked(entry) {
			p.cache[domain] = entry
		}
	}
}

func (p *Politeness) saveCache() {
	if p.opts.CachePath == "" {
		return
	}
	p.mu.Lock()
	data, err := json.MarshalIndent(p.cache, "", "  ")
	p.mu.Unlock()
	if err != nil {
		p.logger.Warn("robots cache marshal failed", zap.Error(err))
		return
	}
	if err := os.MkdirAll(filepath.Dir(p.opts.CachePath), 0o750); err != nil {
		p.logger.Warn("robots cache dir create failed", zap.Error(err))
		return
	}
	tmp := p.opts.CachePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		p.logger.Warn("robots cache write failed", zap.Error(err))
		return
	}
	if err := os.Rename(tmp, p.opts.CachePath); err != nil {
		p.logger.Warn("robots cache rename failed", zap.Error(err))
	}
}
