package robots

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Sitemap roots per domain and nested indexes per sitemap are both capped
// at 3, matching the recursion depth bound.
const maxSitemapRoots = 3

type sitemapDoc struct {
	URLs     []sitemapLoc `xml:"url"`
	Sitemaps []sitemapLoc `xml:"sitemap"`
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

type sitemapWork struct {
	url   string
	depth int
}

// SitemapSeeds returns page URLs harvested from the domain's sitemaps.
// Roots come from the robots policy's Sitemap directives, defaulting to
// /sitemap.xml. Nested sitemap indexes are expanded with an explicit
// worklist bounded by depth and a global URL quota; any fetch or parse
// failure yields an empty contribution and is logged, never propagated.
// Results are cached under the robots TTL.
func (p *Politeness) SitemapSeeds(ctx context.Context, domain string) []string {
	p.mu.Lock()
	data, loaded := p.parsers[domain]
	entry := p.cache[domain]
	if entry != nil && entry.Sitemaps != nil && p.freshLocked(entry) {
		cached := append([]string(nil), entry.Sitemaps...)
		p.mu.Unlock()
		p.logger.Debug("sitemap seeds from cache", zap.String("domain", domain))
		return cached
	}
	p.mu.Unlock()

	if !loaded {
		p.logger.Error("robots policy must be loaded before sitemap discovery", zap.String("domain", domain))
		return nil
	}

	var roots []string
	if data != nil {
		roots = data.Sitemaps
	}
	if len(roots) == 0 {
		roots = []string{fmt.Sprintf("%s://%s/sitemap.xml", p.scheme, domain)}
	}
	if len(roots) > maxSitemapRoots {
		roots = roots[:maxSitemapRoots]
	}

	seeds := p.expandSitemaps(ctx, roots)

	p.mu.Lock()
	cached := p.cache[domain]
	if cached == nil {
		cached = &CacheEntry{}
		p.cache[domain] = cached
	}
	cached.Sitemaps = seeds
	cached.Timestamp = time.Now().Unix()
	p.mu.Unlock()
	p.saveCache()
	return seeds
}

func (p *Politeness) expandSitemaps(ctx context.Context, roots []string) []string {
	work := make([]sitemapWork, 0, len(roots))
	for _, root := range roots {
		work = append(work, sitemapWork{url: root, depth: 0})
	}

	seen := make(map[string]struct{})
	seeds := make([]string, 0, p.opts.SitemapQuota)

	for len(work) > 0 && len(seeds) < p.opts.SitemapQuota {
		item := work[0]
		work = work[1:]

		doc, err := p.fetchSitemap(ctx, item.url)
		if err != nil {
			p.logger.Warn("sitemap fetch failed", zap.String("sitemap", item.url), zap.Error(err))
			continue
		}
		for _, loc := range doc.URLs {
			if loc.Loc == "" {
				continue
			}
			if _, ok := seen[loc.Loc]; ok {
				continue
			}
			seen[loc.Loc] = struct{}{}
			seeds = append(seeds, loc.Loc)
			if len(seeds) >= p.opts.SitemapQuota {
				return seeds
			}
		}
		if item.depth+1 >= p.opts.SitemapDepth {
			continue
		}
		nested := doc.Sitemaps
		if len(nested) > maxSitemapRoots {
			nested = nested[:maxSitemapRoots]
		}
		for _, sub := range nested {
			if sub.Loc != "" {
				work = append(work, sitemapWork{url: sub.Loc, depth: item.depth + 1})
			}
		}
	}
	return seeds
}

func (p *Politeness) fetchSitemap(ctx context.Context, rawURL string) (*sitemapDoc, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new sitemap request: %w", err)
	}
	if p.opts.UserAgent != "" {
		req.Header.Set("User-Agent", p.opts.UserAgent)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sitemap status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read sitemap: %w", err)
	}
	var doc sitemapDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse sitemap: %w", err)
	}
	return &doc, nil
}
