package engine

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harvestkit/harvestkit/internal/crawler"
	"github.com/harvestkit/harvestkit/internal/progress"
	"github.com/harvestkit/harvestkit/internal/state"
	"github.com/harvestkit/harvestkit/internal/urlfilter"
)

// WorkerConfig tunes the per-domain crawl loop.
type WorkerConfig struct {
	BaseDelayMin  time.Duration // lower bound of the random pacing delay
	BaseDelayMax  time.Duration // upper bound of the random pacing delay
	LatencyFactor float64       // penalty per second of rolling average latency
	MaxFailures   int           // consecutive fetch failures before the domain fails
	BufferLimit   int           // accepted pages buffered before a corpus flush
}

func (c *WorkerConfig) applyDefaults() {
	if c.BaseDelayMin <= 0 {
		c.BaseDelayMin = 500 * time.Millisecond
	}
	if c.BaseDelayMax < c.BaseDelayMin {
		c.BaseDelayMax = time.Second
	}
	if c.LatencyFactor <= 0 {
		c.LatencyFactor = 0.5
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 100
	}
	if c.BufferLimit <= 0 {
		c.BufferLimit = 50
	}
}

// domainWorker crawls exactly one domain, strictly sequentially. The
// orchestrator guarantees at most one worker per domain, so domain-local
// fields need no locking.
type domainWorker struct {
	source    crawler.CrawlSource
	cfg       WorkerConfig
	state     *state.CrawlState
	fetcher   crawler.Fetcher
	evaluator crawler.Evaluator
	robots    crawler.RobotsPolicy
	corpus    crawler.CorpusSink
	meta      crawler.MetadataStore
	publisher crawler.Publisher
	emitter   progress.Emitter
	logger    *zap.Logger
	runID     uuid.UUID

	normalizer *urlfilter.Normalizer
	filter     *urlfilter.Filter
	rng        *rand.Rand

	failures int
	buffer   []crawler.PageRecord
}

// run executes the domain loop until the budget is reached, the frontier
// empties, the failure cap trips, or ctx is cancelled. The buffer is
// always flushed before returning.
func (w *domainWorker) run(ctx context.Context) crawler.DomainResult {
	domain := w.source.Domain
	w.logger.Info("domain worker started",
		zap.String("domain", domain),
		zap.Int("budget", w.source.MaxPages))

	result := crawler.DomainResult{Domain: domain, PageLimit: w.source.MaxPages}

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		default:
		}
		if w.state.DomainCount(domain) >= w.source.MaxPages {
			break
		}

		url, err := w.state.PopURL(domain)
		if err != nil {
			result.Exhausted = true
			break
		}
		if w.state.IsVisited(url) {
			continue
		}
		if !w.robots.CanFetch(domain, url) {
			w.state.MarkVisited(url)
			continue
		}
		w.state.MarkVisited(url)

		if w.processURL(ctx, url) {
			w.failures = 0
			result.PagesCrawled++
			w.state.IncrementDomainCount(domain)
		} else {
			w.failures++
			if w.failures >= w.cfg.MaxFailures {
				w.logger.Warn("domain exceeded consecutive failure cap",
					zap.String("domain", domain), zap.Int("failures", w.failures))
				result.Failed = true
				break
			}
		}

		if !w.applyDelay(ctx) {
			break
		}
	}

	w.flush(ctx)

	if w.state.DomainCount(domain) >= w.source.MaxPages {
		result.Complete = true
		result.Exhausted = false
	}
	return result
}

// processURL fetches and evaluates one page. Only an accepted page
// counts as success; every other outcome feeds the failure cap or a
// rejection counter.
func (w *domainWorker) processURL(ctx context.Context, url string) bool {
	domain := w.source.Domain
	start := time.Now()
	w.state.Stats.FetchAttempts.Add(1)

	fetched, err := w.fetcher.Fetch(ctx, url)
	latency := time.Since(start)
	w.state.UpdateLatency(domain, latency)

	if err != nil {
		w.state.Stats.Failed.Add(1)
		w.emit(progress.Event{
			Stage:       progress.StagePageFetch,
			Domain:      domain,
			URL:         url,
			StatusClass: progress.StatusOther,
			Dur:         latency,
			Note:        err.Error(),
		})
		w.logger.Debug("fetch failed", zap.String("url", url), zap.Error(err))
		return false
	}

	w.emit(progress.Event{
		Stage:       progress.StagePageFetch,
		Domain:      domain,
		URL:         url,
		StatusClass: progress.ClassifyStatus(fetched.StatusCode),
		Dur:         latency,
	})

	// Links feed the frontier whether or not the page is accepted.
	w.enqueueLinks(fetched.Links)

	eval := w.evaluator.Evaluate(ctx, url, fetched.Title, fetched.Text)
	if !eval.Accepted {
		w.countRejection(eval.Reason)
		w.emit(progress.Event{
			Stage:   progress.StagePageReject,
			Domain:  domain,
			URL:     url,
			Reason:  eval.Reason.String(),
			Quality: eval.QualityScore,
		})
		w.logger.Debug("page rejected",
			zap.String("url", url),
			zap.String("reason", eval.Reason.String()),
			zap.Float64("quality", eval.QualityScore))
		return false
	}

	w.state.Stats.Accepted.Add(1)
	w.bufferPage(ctx, url, fetched, eval)
	w.emit(progress.Event{
		Stage:   progress.StagePageAccept,
		Domain:  domain,
		URL:     url,
		Quality: eval.QualityScore,
	})
	w.logger.Info("page accepted",
		zap.String("domain", domain),
		zap.String("url", url),
		zap.Float64("quality", eval.QualityScore),
		zap.Int("count", w.state.DomainCount(domain)+1),
		zap.Int("budget", w.source.MaxPages))
	return true
}

func (w *domainWorker) countRejection(reason crawler.RejectionReason) {
	switch reason {
	case crawler.ReasonEmpty:
		w.state.Stats.RejectedEmpty.Add(1)
	case crawler.ReasonTooShort:
		w.state.Stats.RejectedShort.Add(1)
	case crawler.ReasonLanguage:
		w.state.Stats.RejectedLanguage.Add(1)
	case crawler.ReasonDuplicate:
		w.state.Stats.RejectedDuplicate.Add(1)
	case crawler.ReasonLowQuality:
		w.state.Stats.RejectedQuality.Add(1)
	case crawler.ReasonNone:
	}
}

func (w *domainWorker) enqueueLinks(links []string) {
	for _, link := range links {
		normalized := w.normalizer.Normalize(link)
		if normalized == "" {
			continue
		}
		if w.source.SeedPrefix != "" && !strings.HasPrefix(normalized, w.source.SeedPrefix) {
			continue
		}
		if w.state.IsVisited(normalized) {
			continue
		}
		if !w.filter.ShouldCrawl(normalized) {
			continue
		}
		w.state.Enqueue(w.source.Domain, normalized)
	}
}

func (w *domainWorker) bufferPage(ctx context.Context, url string, fetched crawler.FetchResult, eval crawler.Evaluation) {
	record := crawler.PageRecord{
		URL:              url,
		Title:            fetched.Title,
		Text:             fetched.Text,
		Domain:           w.source.Domain,
		QualityScore:     eval.QualityScore,
		ContentType:      eval.ContentType,
		IsDuplicate:      eval.IsDuplicate,
		BoilerplateRatio: eval.BoilerplateRatio,
		WordCount:        eval.WordCount,
		HasCode:          eval.HasCode,
		RunID:            w.runID.String(),
		CrawledAt:        time.Now().UTC(),
	}
	w.buffer = append(w.buffer, record)

	if w.meta != nil {
		meta := crawler.PageMeta{
			URL:          url,
			Domain:       w.source.Domain,
			Status:       "accepted",
			Quality:      eval.QualityScore,
			WordCount:    eval.WordCount,
			ETag:         fetched.ETag,
			LastModified: fetched.LastModified,
			UpdatedAt:    time.Now().UTC(),
		}
		if err := w.meta.Upsert(ctx, meta); err != nil {
			w.logger.Warn("metadata upsert failed", zap.String("url", url), zap.Error(err))
		}
	}
	if w.publisher != nil {
		if _, err := w.publisher.Publish(ctx, record); err != nil {
			w.logger.Warn("record publish failed", zap.String("url", url), zap.Error(err))
		}
	}

	if len(w.buffer) >= w.cfg.BufferLimit {
		w.flush(ctx)
	}
}

// flush appends buffered records to the corpus. Persistence errors are
// logged and the buffer is kept for the next attempt.
func (w *domainWorker) flush(ctx context.Context) {
	if len(w.buffer) == 0 {
		return
	}
	if err := w.corpus.Append(ctx, w.buffer); err != nil {
		w.logger.Error("corpus flush failed",
			zap.String("domain", w.source.Domain),
			zap.Int("records", len(w.buffer)),
			zap.Error(err))
		return
	}
	w.logger.Debug("corpus flushed",
		zap.String("domain", w.source.Domain),
		zap.Int("records", len(w.buffer)))
	w.buffer = w.buffer[:0]
}

// applyDelay sleeps the adaptive politeness delay. Returns false when
// ctx was cancelled during the sleep.
func (w *domainWorker) applyDelay(ctx context.Context) bool {
	spread := w.cfg.BaseDelayMax - w.cfg.BaseDelayMin
	delay := w.cfg.BaseDelayMin
	if spread > 0 {
		delay += time.Duration(w.rng.Int63n(int64(spread)))
	}
	avg := w.state.AvgLatency(w.source.Domain)
	delay += time.Duration(avg * w.cfg.LatencyFactor * float64(time.Second))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (w *domainWorker) emit(evt progress.Event) {
	if w.emitter == nil {
		return
	}
	evt.RunID = progress.UUIDToBytes(w.runID)
	evt.TS = time.Now().UTC()
	w.emitter.Emit(evt)
}
