// Package engine implements the crawl orchestrator: source merging,
// seeding, the global scheduler, domain workers, and shutdown.
package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harvestkit/harvestkit/internal/checkpoint"
	"github.com/harvestkit/harvestkit/internal/crawler"
	"github.com/harvestkit/harvestkit/internal/progress"
	"github.com/harvestkit/harvestkit/internal/state"
	"github.com/harvestkit/harvestkit/internal/urlfilter"
)

// Config tunes the orchestrator.
type Config struct {
	MaxConcurrent   int           // concurrency budget for domain workers
	Tick            time.Duration // scheduler cycle
	MaxNoWorkCycles int           // idle cycles before declaring completion
	SitemapSeeding  bool          // harvest sitemap URLs into frontiers at startup
	Worker          WorkerConfig
	FilterPolicy    urlfilter.Config
}

func (c *Config) applyDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 100
	}
	if c.Tick <= 0 {
		c.Tick = time.Second
	}
	if c.MaxNoWorkCycles <= 0 {
		c.MaxNoWorkCycles = 3
	}
	c.Worker.applyDefaults()
}

// Params wires the orchestrator's collaborators.
type Params struct {
	Sources      []crawler.CrawlSource
	State        *state.CrawlState
	Fetcher      crawler.Fetcher
	Robots       crawler.RobotsPolicy
	NewEvaluator func(src crawler.CrawlSource) crawler.Evaluator
	Corpus       crawler.CorpusSink
	Meta         crawler.MetadataStore
	Publisher    crawler.Publisher
	Emitter      progress.Emitter
	Checkpoint   *checkpoint.Manager
	Logger       *zap.Logger
	Config       Config
}

// Orchestrator owns the shared crawl state and a bounded pool of
// worker slots, allocated across competing domains every tick.
type Orchestrator struct {
	sources map[string]crawler.CrawlSource
	state   *state.CrawlState
	cfg     Config
	runID   uuid.UUID
	filter  *urlfilter.Filter

	fetcher      crawler.Fetcher
	robots       crawler.RobotsPolicy
	newEvaluator func(src crawler.CrawlSource) crawler.Evaluator
	corpus       crawler.CorpusSink
	meta         crawler.MetadataStore
	publisher    crawler.Publisher
	emitter      progress.Emitter
	ckpt         *checkpoint.Manager
	logger       *zap.Logger

	mu       sync.Mutex
	active   map[string]struct{}
	finished map[string]struct{}

	startTime time.Time
}

// New merges duplicate-domain sources, seeds the state, and returns a
// ready Orchestrator. A restored state keeps its frontiers; seed URLs
// already visited are filtered at pop time.
func New(p Params) (*Orchestrator, error) {
	if len(p.Sources) == 0 {
		return nil, fmt.Errorf("at least one crawl source is required")
	}
	if p.Fetcher == nil || p.Robots == nil || p.NewEvaluator == nil || p.Corpus == nil {
		return nil, fmt.Errorf("fetcher, robots, evaluator, and corpus are required")
	}
	if p.State == nil {
		return nil, fmt.Errorf("crawl state is required")
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	p.Config.applyDefaults()

	merged := make(map[string]crawler.CrawlSource)
	seeds := make(map[string][]string)
	for _, src := range p.Sources {
		if existing, ok := merged[src.Domain]; ok {
			existing.MaxPages += src.MaxPages
			if src.Priority < existing.Priority {
				existing.Priority = src.Priority
			}
			if src.QualityThreshold < existing.QualityThreshold {
				existing.QualityThreshold = src.QualityThreshold
			}
			merged[src.Domain] = existing
		} else {
			merged[src.Domain] = src
		}
		seeds[src.Domain] = append(seeds[src.Domain], src.URL)
	}
	for domain, urls := range seeds {
		src := merged[domain]
		for _, u := range urls {
			p.State.AddSeed(domain, u, src.SeedPrefix)
		}
	}

	return &Orchestrator{
		sources:      merged,
		state:        p.State,
		cfg:          p.Config,
		runID:        uuid.New(),
		filter:       urlfilter.NewFilter(p.Config.FilterPolicy),
		fetcher:      p.Fetcher,
		robots:       p.Robots,
		newEvaluator: p.NewEvaluator,
		corpus:       p.Corpus,
		meta:         p.Meta,
		publisher:    p.Publisher,
		emitter:      p.Emitter,
		ckpt:         p.Checkpoint,
		logger:       p.Logger,
		active:       make(map[string]struct{}),
		finished:     make(map[string]struct{}),
	}, nil
}

// RunID identifies this crawl run.
func (o *Orchestrator) RunID() uuid.UUID {
	return o.runID
}

// TotalCapacity is the sum of all merged domain budgets.
func (o *Orchestrator) TotalCapacity() int {
	total := 0
	for _, src := range o.sources {
		total += src.MaxPages
	}
	return total
}

// Run drives the crawl to completion or cancellation, then drains
// workers, saves a final checkpoint, and logs the summary.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startTime = time.Now()
	o.logger.Info("crawl starting",
		zap.String("run_id", o.runID.String()),
		zap.Int("domains", len(o.sources)),
		zap.Int("capacity", o.TotalCapacity()),
		zap.Int("max_concurrent", o.cfg.MaxConcurrent))
	o.emit(progress.Event{Stage: progress.StageRunStart})

	o.loadRobots(ctx)
	if o.cfg.SitemapSeeding {
		o.seedFromSitemaps(ctx)
	}
	for domain, src := range o.sources {
		o.logger.Info("domain ready",
			zap.String("domain", domain),
			zap.Int("crawled", o.state.DomainCount(domain)),
			zap.Int("budget", src.MaxPages),
			zap.Int("queued", o.state.QueueSize(domain)))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var background sync.WaitGroup
	if o.ckpt != nil {
		background.Add(1)
		go func() {
			defer background.Done()
			o.ckpt.Run(runCtx, o.state)
		}()
	}

	var workers sync.WaitGroup
	o.schedule(runCtx, &workers)

	cancel()
	workers.Wait()
	background.Wait()

	if o.ckpt != nil {
		if err := o.ckpt.Save(o.state); err != nil {
			o.logger.Error("final checkpoint failed", zap.Error(err))
		}
	}

	elapsed := time.Since(o.startTime)
	o.emit(progress.Event{Stage: progress.StageRunDone, Dur: elapsed})
	o.logSummary(elapsed)
	return ctx.Err()
}

// schedule runs the tick loop until the context is cancelled or all
// work is complete for a sustained run of idle cycles.
func (o *Orchestrator) schedule(ctx context.Context, workers *sync.WaitGroup) {
	ticker := time.NewTicker(o.cfg.Tick)
	defer ticker.Stop()
	noWorkCycles := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		free := o.cfg.MaxConcurrent - o.activeCount()
		if free <= 0 {
			continue
		}
		candidates := o.domainsToStart()
		if len(candidates) > 0 {
			noWorkCycles = 0
			if len(candidates) > free {
				candidates = candidates[:free]
			}
			for _, domain := range candidates {
				o.startWorker(ctx, domain, workers)
			}
			continue
		}
		if o.activeCount() == 0 {
			noWorkCycles++
			o.logger.Debug("no work available",
				zap.Int("cycle", noWorkCycles),
				zap.Int("max", o.cfg.MaxNoWorkCycles))
			if noWorkCycles >= o.cfg.MaxNoWorkCycles && o.allWorkComplete() {
				o.logger.Info("all domains completed")
				return
			}
		}
	}
}

// domainsToStart ranks eligible domains by priority ascending, then
// queue size descending, then name for determinism. Domains found over
// budget or out of work are marked finished here, exactly once.
func (o *Orchestrator) domainsToStart() []string {
	type candidate struct {
		priority  int
		queueSize int
		domain    string
	}
	var candidates []candidate

	o.mu.Lock()
	defer o.mu.Unlock()
	for domain, src := range o.sources {
		if _, done := o.finished[domain]; done {
			continue
		}
		if _, running := o.active[domain]; running {
			continue
		}
		count := o.state.DomainCount(domain)
		if count >= src.MaxPages {
			o.finished[domain] = struct{}{}
			o.logger.Info("domain reached budget",
				zap.String("domain", domain),
				zap.Int("crawled", count),
				zap.Int("budget", src.MaxPages))
			o.emitDomainDone(domain, count)
			continue
		}
		if !o.state.HasPendingURLs(domain) {
			o.finished[domain] = struct{}{}
			o.logger.Info("domain exhausted",
				zap.String("domain", domain),
				zap.Int("crawled", count))
			o.emitDomainDone(domain, count)
			continue
		}
		candidates = append(candidates, candidate{
			priority:  src.Priority,
			queueSize: o.state.QueueSize(domain),
			domain:    domain,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority < candidates[j].priority
		}
		if candidates[i].queueSize != candidates[j].queueSize {
			return candidates[i].queueSize > candidates[j].queueSize
		}
		return candidates[i].domain < candidates[j].domain
	})

	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.domain
	}
	return out
}

// startWorker promotes a domain to active and spawns its worker. A
// worker panic marks the domain failed; it never crashes the engine.
func (o *Orchestrator) startWorker(ctx context.Context, domain string, workers *sync.WaitGroup) {
	o.mu.Lock()
	o.active[domain] = struct{}{}
	activeNow := len(o.active)
	o.mu.Unlock()

	src := o.sources[domain]
	w := &domainWorker{
		source:     src,
		cfg:        o.cfg.Worker,
		state:      o.state,
		fetcher:    o.fetcher,
		evaluator:  o.newEvaluator(src),
		robots:     o.robots,
		corpus:     o.corpus,
		meta:       o.meta,
		publisher:  o.publisher,
		emitter:    o.emitter,
		logger:     o.logger,
		runID:      o.runID,
		normalizer: urlfilter.NewNormalizer(domain),
		filter:     o.filter,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	o.logger.Info("worker scheduled",
		zap.String("domain", domain),
		zap.Int("active", activeNow),
		zap.Int("max_concurrent", o.cfg.MaxConcurrent))
	o.emit(progress.Event{Stage: progress.StageDomainStart, Domain: domain})

	workers.Add(1)
	go func() {
		defer workers.Done()
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("worker panicked",
					zap.String("domain", domain),
					zap.Any("panic", r))
				o.finishDomain(domain, crawler.DomainResult{
					Domain:    domain,
					PageLimit: src.MaxPages,
					Failed:    true,
				})
			}
			o.mu.Lock()
			delete(o.active, domain)
			o.mu.Unlock()
		}()
		result := w.run(ctx)
		o.finishDomain(domain, result)
	}()
}

// finishDomain records a terminal worker outcome. A worker stopped by
// cancellation is not terminal; the domain stays pending for resume.
func (o *Orchestrator) finishDomain(domain string, result crawler.DomainResult) {
	if !result.Complete && !result.Exhausted && !result.Failed {
		o.logger.Info("worker stopped before completion", zap.String("domain", domain))
		return
	}
	o.mu.Lock()
	_, already := o.finished[domain]
	o.finished[domain] = struct{}{}
	o.mu.Unlock()
	if already {
		return
	}

	count := o.state.DomainCount(domain)
	switch {
	case result.Complete:
		o.logger.Info("domain completed",
			zap.String("domain", domain),
			zap.Int("crawled", count),
			zap.Int("budget", result.PageLimit))
	case result.Exhausted:
		o.logger.Info("domain exhausted",
			zap.String("domain", domain),
			zap.Int("crawled", count),
			zap.Int("budget", result.PageLimit))
	case result.Failed:
		o.logger.Warn("domain failed",
			zap.String("domain", domain),
			zap.Int("crawled", count))
	}
	o.emitDomainDone(domain, count)
}

// allWorkComplete holds when no worker is active and every domain is
// either finished or has nothing queued.
func (o *Orchestrator) allWorkComplete() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.active) > 0 {
		return false
	}
	for domain := range o.sources {
		if _, done := o.finished[domain]; done {
			continue
		}
		if o.state.HasPendingURLs(domain) {
			return false
		}
	}
	return true
}

func (o *Orchestrator) activeCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

// loadRobots fetches the robots policy for every domain up front.
func (o *Orchestrator) loadRobots(ctx context.Context) {
	o.logger.Info("loading robots policies", zap.Int("domains", len(o.sources)))
	var wg sync.WaitGroup
	for domain := range o.sources {
		wg.Add(1)
		go func(domain string) {
			defer wg.Done()
			o.robots.Load(ctx, domain)
		}(domain)
	}
	wg.Wait()
}

// seedFromSitemaps harvests sitemap URLs into the frontiers, subject to
// the same normalization and filter policy as discovered links.
func (o *Orchestrator) seedFromSitemaps(ctx context.Context) {
	for domain, src := range o.sources {
		normalizer := urlfilter.NewNormalizer(domain)
		added := 0
		for _, raw := range o.robots.SitemapSeeds(ctx, domain) {
			normalized := normalizer.Normalize(raw)
			if normalized == "" || !o.filter.ShouldCrawl(normalized) {
				continue
			}
			if o.state.IsVisited(normalized) {
				continue
			}
			if src.SeedPrefix != "" && !strings.HasPrefix(normalized, src.SeedPrefix) {
				continue
			}
			if o.state.Enqueue(domain, normalized) {
				added++
			}
		}
		if added > 0 {
			o.logger.Info("sitemap seeds queued",
				zap.String("domain", domain),
				zap.Int("urls", added))
		}
	}
}

func (o *Orchestrator) emitDomainDone(domain string, pages int) {
	o.emit(progress.Event{
		Stage:  progress.StageDomainDone,
		Domain: domain,
		Pages:  int64(pages),
	})
}

func (o *Orchestrator) emit(evt progress.Event) {
	if o.emitter == nil {
		return
	}
	evt.RunID = progress.UUIDToBytes(o.runID)
	evt.TS = time.Now().UTC()
	o.emitter.Emit(evt)
}

func (o *Orchestrator) logSummary(elapsed time.Duration) {
	stats := o.state.Stats
	o.mu.Lock()
	finished := len(o.finished)
	o.mu.Unlock()

	o.logger.Info("crawl summary",
		zap.Duration("elapsed", elapsed),
		zap.Int64("accepted", stats.Accepted.Load()),
		zap.Int64("rejected_quality", stats.RejectedQuality.Load()),
		zap.Int64("rejected_duplicate", stats.RejectedDuplicate.Load()),
		zap.Int64("rejected_language", stats.RejectedLanguage.Load()),
		zap.Int64("rejected_empty", stats.RejectedEmpty.Load()),
		zap.Int64("rejected_short", stats.RejectedShort.Load()),
		zap.Int64("failed", stats.Failed.Load()),
		zap.Int64("fetch_attempts", stats.FetchAttempts.Load()),
		zap.Int("domains_finished", finished),
		zap.Int("domains_total", len(o.sources)))

	domains := make([]string, 0, len(o.sources))
	for domain := range o.sources {
		domains = append(domains, domain)
	}
	sort.Strings(domains)
	for _, domain := range domains {
		o.mu.Lock()
		_, done := o.finished[domain]
		o.mu.Unlock()
		status := "pending"
		if done {
			status = "done"
		}
		o.logger.Info("domain summary",
			zap.String("domain", domain),
			zap.String("status", status),
			zap.Int("crawled", o.state.DomainCount(domain)),
			zap.Int("budget", o.sources[domain].MaxPages))
	}
}
