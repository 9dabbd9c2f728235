// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/harvestkit/harvestkit/internal/crawler"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	MaxBody   int
}

// Fetcher fetches one page per call and extracts the title, visible
// text, and outgoing links. Robots enforcement lives in the politeness
// layer, so the collector's own robots handling is disabled.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = 10 << 20
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.MaxBodySize = cfg.MaxBody
	c.WithTransport(newHTTPTransport())
	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Fetch executes a single HTTP GET. The base collector is cloned per
// call so concurrent fetches never share callback state.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (crawler.FetchResult, error) {
	var (
		result   crawler.FetchResult
		fetchErr error
	)
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	collector.OnResponse(func(r *colly.Response) {
		result.URL = r.Request.URL.String()
		result.StatusCode = r.StatusCode
		result.ETag = r.Headers.Get("ETag")
		result.LastModified = r.Headers.Get("Last-Modified")
	})

	collector.OnHTML("html", func(e *colly.HTMLElement) {
		result.Title = strings.TrimSpace(e.DOM.Find("title").First().Text())
		body := e.DOM.Find("body")
		body.Find("script, style, noscript").Remove()
		result.Text = strings.TrimSpace(body.Text())
	})

	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if link != "" {
			result.Links = append(result.Links, link)
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.StatusCode = r.StatusCode
		}
		fetchErr = err
	})

	if err := f.runCollector(ctx, collector, rawURL); err != nil {
		return crawler.FetchResult{}, err
	}
	if fetchErr != nil {
		return crawler.FetchResult{}, fmt.Errorf("fetch %s: status %d: %w", rawURL, result.StatusCode, fetchErr)
	}
	return result, nil
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, rawURL string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit %s: %w", rawURL, err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
