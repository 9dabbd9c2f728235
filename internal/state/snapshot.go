package state

import "github.com/harvestkit/harvestkit/internal/frontier"

// Snapshot is the serializable form of a CrawlState. Frontier lanes are
// flattened in priority order and reclassified on restore.
type Snapshot struct {
	Visited      []string                `json:"visited"`
	Frontiers    map[string][]string     `json:"frontiers"`
	DomainCounts map[string]int          `json:"domain_counts"`
	DomainStats  map[string]*DomainStats `json:"domain_stats"`
	Statistics   StatisticsSnapshot      `json:"statistics"`
}

// Snapshot produces a point-in-time copy of the whole crawl state.
func (s *CrawlState) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Visited:      make([]string, 0, len(s.visited)),
		Frontiers:    make(map[string][]string, len(s.frontiers)),
		DomainCounts: make(map[string]int, len(s.domainCounts)),
		DomainStats:  make(map[string]*DomainStats, len(s.domainStats)),
		Statistics:   s.Stats.Snapshot(),
	}
	for url := range s.visited {
		snap.Visited = append(snap.Visited, url)
	}
	for domain, f := range s.frontiers {
		snap.Frontiers[domain] = f.URLs()
	}
	for domain, count := range s.domainCounts {
		snap.DomainCounts[domain] = count
	}
	for domain, stats := range s.domainStats {
		copied := *stats
		snap.DomainStats[domain] = &copied
	}
	return snap
}

// Restore replaces the state's contents with the snapshot. URLs already
// visited are dropped from the restored frontiers so resumed runs never
// refetch them.
func (s *CrawlState) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.visited = make(map[string]struct{}, len(snap.Visited))
	for _, url := range snap.Visited {
		s.visited[url] = struct{}{}
	}

	s.frontiers = make(map[string]*frontier.Frontier, len(snap.Frontiers))
	for domain, urls := range snap.Frontiers {
		f := frontier.New(s.classifier)
		for _, url := range urls {
			if _, seen := s.visited[url]; seen {
				continue
			}
			f.Add(url)
		}
		s.frontiers[domain] = f
	}

	s.domainCounts = make(map[string]int, len(snap.DomainCounts))
	for domain, count := range snap.DomainCounts {
		s.domainCounts[domain] = count
	}

	s.domainStats = make(map[string]*DomainStats, len(snap.DomainStats))
	for domain, stats := range snap.DomainStats {
		copied := *stats
		if copied.AvgLatency <= 0 {
			copied.AvgLatency = 1.0
		}
		s.domainStats[domain] = &copied
	}

	s.Stats.Restore(snap.Statistics)
}
