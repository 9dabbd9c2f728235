// Package state holds the shared mutable crawl state: the global visited
// set, per-domain frontiers, counters, latency averages, and run
// statistics.
package state

import (
	"sync"
	"time"

	"github.com/harvestkit/harvestkit/internal/frontier"
)

// DomainStats tracks the per-domain rolling fetch latency alongside the
// seed prefix used for link scoping.
type DomainStats struct {
	SeedPrefix   string  `json:"seed_prefix"`
	AvgLatency   float64 `json:"avg_latency"`
	RequestCount int     `json:"request_count"`
	TotalLatency float64 `json:"total_latency"`
}

// CrawlState is owned by the orchestrator and shared by reference with
// every domain worker. A single mutex guards the maps; all critical
// sections are O(1) map/queue operations, so workers never hold the lock
// across a fetch or a sleep. Run statistics live in a separate
// atomic-counter struct.
type CrawlState struct {
	mu           sync.Mutex
	classifier   *frontier.Classifier
	visited      map[string]struct{}
	frontiers    map[string]*frontier.Frontier
	domainCounts map[string]int
	domainStats  map[string]*DomainStats

	Stats *Statistics
}

// New returns an empty CrawlState using classifier for frontier lanes.
func New(classifier *frontier.Classifier) *CrawlState {
	return &CrawlState{
		classifier:   classifier,
		visited:      make(map[string]struct{}),
		frontiers:    make(map[string]*frontier.Frontier),
		domainCounts: make(map[string]int),
		domainStats:  make(map[string]*DomainStats),
		Stats:        &Statistics{},
	}
}

// AddSeed registers a domain (first call wins for the seed prefix) and
// queues url on its frontier.
func (s *CrawlState) AddSeed(domain, url, seedPrefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.frontiers[domain]; !ok {
		s.frontiers[domain] = frontier.New(s.classifier)
	}
	if _, ok := s.domainStats[domain]; !ok {
		s.domainStats[domain] = &DomainStats{
			SeedPrefix: seedPrefix,
			AvgLatency: 1.0,
		}
	}
	s.frontiers[domain].Add(url)
}

// MarkVisited adds url to the global visited set. The set is monotonic: it
// never shrinks for the lifetime of the state.
func (s *CrawlState) MarkVisited(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visited[url] = struct{}{}
}

// IsVisited reports whether url was ever marked visited.
func (s *CrawlState) IsVisited(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.visited[url]
	return ok
}

// VisitedCount returns the size of the global visited set.
func (s *CrawlState) VisitedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visited)
}

// Enqueue adds url to the domain's frontier; false when the domain is
// unknown or the URL is already queued.
func (s *CrawlState) Enqueue(domain, url string) bool {
	s.mu.Lock()
	f, ok := s.frontiers[domain]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return f.Add(url)
}

// PopURL removes the next URL from the domain's frontier.
func (s *CrawlState) PopURL(domain string) (string, error) {
	s.mu.Lock()
	f, ok := s.frontiers[domain]
	s.mu.Unlock()
	if !ok {
		return "", frontier.ErrEmptyFrontier
	}
	return f.Pop()
}

// QueueSize returns the pending URL count for domain.
func (s *CrawlState) QueueSize(domain string) int {
	s.mu.Lock()
	f, ok := s.frontiers[domain]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	return f.Len()
}

// HasPendingURLs reports whether the domain's frontier holds work.
func (s *CrawlState) HasPendingURLs(domain string) bool {
	return s.QueueSize(domain) > 0
}

// KnowsDomain reports whether the domain was ever seeded.
func (s *CrawlState) KnowsDomain(domain string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.domainStats[domain]
	return ok
}

// IncrementDomainCount bumps the accepted-page counter for domain.
func (s *CrawlState) IncrementDomainCount(domain string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.domainCounts[domain]++
}

// DomainCount returns accepted pages for domain this state has seen.
func (s *CrawlState) DomainCount(domain string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.domainCounts[domain]
}

// DomainCounts returns a copy of all per-domain accepted counters.
func (s *CrawlState) DomainCounts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.domainCounts))
	for d, c := range s.domainCounts {
		out[d] = c
	}
	return out
}

// UpdateLatency folds one fetch duration into the domain's rolling average.
func (s *CrawlState) UpdateLatency(domain string, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats, ok := s.domainStats[domain]
	if !ok {
		return
	}
	stats.RequestCount++
	stats.TotalLatency += latency.Seconds()
	stats.AvgLatency = stats.TotalLatency / float64(stats.RequestCount)
}

// AvgLatency returns the rolling average fetch latency for domain in
// seconds, defaulting to 1.0 before the first sample.
func (s *CrawlState) AvgLatency(domain string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stats, ok := s.domainStats[domain]; ok {
		return stats.AvgLatency
	}
	return 1.0
}

// SeedPrefix returns the scheme+host prefix registered for domain.
func (s *CrawlState) SeedPrefix(domain string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stats, ok := s.domainStats[domain]; ok {
		return stats.SeedPrefix
	}
	return ""
}

// Domains lists every seeded domain.
func (s *CrawlState) Domains() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.frontiers))
	for d := range s.frontiers {
		out = append(out, d)
	}
	return out
}
