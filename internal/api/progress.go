package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/harvestkit/harvestkit/internal/state"
)

// progressDTO is the GET /api/v1/progress response body.
type progressDTO struct {
	RunID         string                   `json:"run_id"`
	UptimeSeconds float64                  `json:"uptime_seconds"`
	Visited       int                      `json:"visited"`
	Statistics    state.StatisticsSnapshot `json:"statistics"`
	Domains       []domainDTO              `json:"domains"`
}

type domainDTO struct {
	Domain     string  `json:"domain"`
	Crawled    int     `json:"crawled"`
	Budget     int     `json:"budget"`
	Queued     int     `json:"queued"`
	AvgLatency float64 `json:"avg_latency_seconds"`
}

// GET /api/v1/progress returns the live run snapshot.
func (s *Server) getProgress(w http.ResponseWriter, _ *http.Request) {
	if s.state == nil {
		s.writeError(w, http.StatusServiceUnavailable, "crawl state unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, progressDTO{
		RunID:         s.runID,
		UptimeSeconds: time.Since(s.startTime).Seconds(),
		Visited:       s.state.VisitedCount(),
		Statistics:    s.state.Stats.Snapshot(),
		Domains:       s.domainDTOs(),
	})
}

// GET /api/v1/domains returns per-domain progress sorted by name.
func (s *Server) listDomains(w http.ResponseWriter, _ *http.Request) {
	if s.state == nil {
		s.writeError(w, http.StatusServiceUnavailable, "crawl state unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"domains": s.domainDTOs()})
}

// GET /api/v1/domains/{domain} returns one domain's progress.
func (s *Server) getDomain(w http.ResponseWriter, r *http.Request) {
	if s.state == nil {
		s.writeError(w, http.StatusServiceUnavailable, "crawl state unavailable")
		return
	}
	domain := chi.URLParam(r, "domain")
	if !s.state.KnowsDomain(domain) {
		s.writeError(w, http.StatusNotFound, "domain not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"domain": s.domainDTO(domain)})
}

func (s *Server) domainDTOs() []domainDTO {
	domains := s.state.Domains()
	sort.Strings(domains)
	out := make([]domainDTO, 0, len(domains))
	for _, domain := range domains {
		out = append(out, s.domainDTO(domain))
	}
	return out
}

func (s *Server) domainDTO(domain string) domainDTO {
	return domainDTO{
		Domain:     domain,
		Crawled:    s.state.DomainCount(domain),
		Budget:     s.sources[domain].MaxPages,
		Queued:     s.state.QueueSize(domain),
		AvgLatency: s.state.AvgLatency(domain),
	}
}
