package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/harvestkit/harvestkit/internal/progress"
)

// PrometheusSink exports crawl progress via Prometheus collectors.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted prometheus.Counter
	runRuntime    prometheus.Histogram

	domainsActive prometheus.Gauge
	domainPages   *prometheus.CounterVec

	pagesFetched  *prometheus.CounterVec
	pagesAccepted *prometheus.CounterVec
	pagesRejected *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	pageQuality   prometheus.Histogram

	tracker *domainTracker
}

// NewPrometheusSink registers the collectors against reg, defaulting to
// the global registerer.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawl_runs_started_total",
			Help: "Total crawl runs started.",
		}),
		runsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawl_runs_completed_total",
			Help: "Total crawl runs completed.",
		}),
		runRuntime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crawl_run_runtime_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{60, 300, 600, 1800, 3600, 7200, 14400},
		}),
		domainsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crawl_domains_active",
			Help: "Domains currently being crawled.",
		}),
		domainPages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawl_domain_pages_total",
			Help: "Accepted pages reported at domain completion.",
		}, []string{"domain"}),
		pagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawl_pages_fetched_total",
			Help: "Fetch completions partitioned by domain and status class.",
		}, []string{"domain", "status_class"}),
		pagesAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawl_pages_accepted_total",
			Help: "Pages accepted into the corpus per domain.",
		}, []string{"domain"}),
		pagesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawl_pages_rejected_total",
			Help: "Pages rejected partitioned by domain and reason.",
		}, []string{"domain", "reason"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawl_fetch_duration_seconds",
			Help:    "Fetch duration partitioned by domain.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"domain"}),
		pageQuality: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crawl_page_quality_score",
			Help:    "Quality score distribution for scored pages.",
			Buckets: []float64{10, 20, 30, 45, 60, 75, 90, 100},
		}),
		tracker: newDomainTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runRuntime,
		s.domainsActive,
		s.domainPages,
		s.pagesFetched,
		s.pagesAccepted,
		s.pagesRejected,
		s.fetchDuration,
		s.pageQuality,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch. Safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	domain := evt.Domain
	if domain == "" {
		domain = "unknown"
	}
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
	case progress.StageRunDone:
		s.runsCompleted.Inc()
		if evt.Dur > 0 {
			s.runRuntime.Observe(evt.Dur.Seconds())
		}
	case progress.StageDomainStart:
		if s.tracker.start(domain) {
			s.domainsActive.Inc()
		}
	case progress.StageDomainDone:
		if s.tracker.complete(domain) {
			s.domainsActive.Dec()
		}
		if evt.Pages > 0 {
			s.domainPages.WithLabelValues(domain).Add(float64(evt.Pages))
		}
	case progress.StagePageFetch:
		statusClass := string(evt.StatusClass)
		if statusClass == "" {
			statusClass = string(progress.StatusOther)
		}
		s.pagesFetched.WithLabelValues(domain, statusClass).Inc()
		if evt.Dur > 0 {
			s.fetchDuration.WithLabelValues(domain).Observe(evt.Dur.Seconds())
		}
	case progress.StagePageAccept:
		s.pagesAccepted.WithLabelValues(domain).Inc()
		s.pageQuality.Observe(evt.Quality)
	case progress.StagePageReject:
		reason := evt.Reason
		if reason == "" {
			reason = "unknown"
		}
		s.pagesRejected.WithLabelValues(domain, reason).Inc()
		if evt.Quality > 0 {
			s.pageQuality.Observe(evt.Quality)
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type domainTracker struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newDomainTracker() *domainTracker {
	return &domainTracker{active: make(map[string]struct{})}
}

func (t *domainTracker) start(domain string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[domain]; ok {
		return false
	}
	t.active[domain] = struct{}{}
	return true
}

func (t *domainTracker) complete(domain string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[domain]; !ok {
		return false
	}
	delete(t.active, domain)
	return true
}
