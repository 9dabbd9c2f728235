package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harvestkit/harvestkit/internal/checkpoint"
	"github.com/harvestkit/harvestkit/internal/crawler"
	"github.com/harvestkit/harvestkit/internal/frontier"
	"github.com/harvestkit/harvestkit/internal/metastore"
	"github.com/harvestkit/harvestkit/internal/progress"
	pubmem "github.com/harvestkit/harvestkit/internal/publisher/memory"
	"github.com/harvestkit/harvestkit/internal/state"
)

// fakeFetcher serves canned results and tracks per-URL call counts plus
// the maximum number of in-flight fetches.
type fakeFetcher struct {
	mu          sync.Mutex
	pages       map[string]crawler.FetchResult
	errs        map[string]error
	calls       map[string]int
	delay       time.Duration
	inFlight    int
	maxInFlight int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages: make(map[string]crawler.FetchResult),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) (crawler.FetchResult, error) {
	f.mu.Lock()
	f.calls[rawURL]++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return crawler.FetchResult{}, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if err, ok := f.errs[rawURL]; ok {
		return crawler.FetchResult{}, err
	}
	if res, ok := f.pages[rawURL]; ok {
		return res, nil
	}
	return crawler.FetchResult{
		URL:        rawURL,
		StatusCode: 200,
		Title:      "Title " + rawURL,
		Text:       "text for " + rawURL,
	}, nil
}

func (f *fakeFetcher) count(rawURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[rawURL]
}

func (f *fakeFetcher) maxConcurrent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

// acceptEvaluator accepts everything with a fixed score.
type acceptEvaluator struct{}

func (acceptEvaluator) Evaluate(context.Context, string, string, string) crawler.Evaluation {
	return crawler.Evaluation{Accepted: true, QualityScore: 50, ContentType: "general", WordCount: 3}
}

// rejectEvaluator rejects everything with a fixed reason.
type rejectEvaluator struct{ reason crawler.RejectionReason }

func (e rejectEvaluator) Evaluate(context.Context, string, string, string) crawler.Evaluation {
	return crawler.Evaluation{Reason: e.reason, QualityScore: 5}
}

type panicEvaluator struct{}

func (panicEvaluator) Evaluate(context.Context, string, string, string) crawler.Evaluation {
	panic("evaluator blew up")
}

// stubRobots allows everything except an explicit block list.
type stubRobots struct {
	mu       sync.Mutex
	blocked  map[string]struct{}
	sitemaps map[string][]string
	loaded   map[string]int
}

func newStubRobots() *stubRobots {
	return &stubRobots{
		blocked:  make(map[string]struct{}),
		sitemaps: make(map[string][]string),
		loaded:   make(map[string]int),
	}
}

func (r *stubRobots) Load(_ context.Context, domain string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded[domain]++
}

func (r *stubRobots) CanFetch(_, rawURL string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, blocked := r.blocked[rawURL]
	return !blocked
}

func (r *stubRobots) SitemapSeeds(_ context.Context, domain string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sitemaps[domain]
}

// memCorpus collects appended records.
type memCorpus struct {
	mu      sync.Mutex
	records []crawler.PageRecord
}

func (c *memCorpus) Append(_ context.Context, records []crawler.PageRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, records...)
	return nil
}

func (c *memCorpus) Close(context.Context) error { return nil }

func (c *memCorpus) all() []crawler.PageRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]crawler.PageRecord(nil), c.records...)
}

// captureEmitter records every emitted event.
type captureEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *captureEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *captureEmitter) byStage(stage progress.Stage) []progress.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []progress.Event
	for _, evt := range e.events {
		if evt.Stage == stage {
			out = append(out, evt)
		}
	}
	return out
}

func fastConfig() Config {
	return Config{
		MaxConcurrent:   100,
		Tick:            5 * time.Millisecond,
		MaxNoWorkCycles: 3,
		Worker: WorkerConfig{
			BaseDelayMin:  time.Millisecond,
			BaseDelayMax:  2 * time.Millisecond,
			LatencyFactor: 0.0001,
			MaxFailures:   100,
			BufferLimit:   2,
		},
	}
}

func testParams(sources []crawler.CrawlSource, fetcher crawler.Fetcher, eval crawler.Evaluator, robots crawler.RobotsPolicy, corpus crawler.CorpusSink) Params {
	return Params{
		Sources:      sources,
		State:        state.New(frontier.DefaultClassifier()),
		Fetcher:      fetcher,
		Robots:       robots,
		NewEvaluator: func(crawler.CrawlSource) crawler.Evaluator { return eval },
		Corpus:       corpus,
		Meta:         metastore.NewMemoryStore(),
		Logger:       zap.NewNop(),
		Config:       fastConfig(),
	}
}

func runEngine(t *testing.T, o *Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	require.NoError(t, o.Run(ctx))
}

func source(domain string, maxPages int) crawler.CrawlSource {
	return crawler.CrawlSource{
		Domain:           domain,
		URL:              "https://" + domain,
		SeedPrefix:       "https://" + domain,
		MaxPages:         maxPages,
		Priority:         1,
		QualityThreshold: 45,
	}
}

// The budget scenario: a 3-page budget against a seed exposing five
// acceptable links. Exactly three pages land in the corpus and the
// leftovers survive in the checkpoint for a future run.
func TestBudgetHonoredAndLeftoverFrontierCheckpointed(t *testing.T) {
	fetcher := newFakeFetcher()
	seed := "https://example.com"
	var links []string
	for i := 1; i <= 5; i++ {
		links = append(links, fmt.Sprintf("https://example.com/docs/p%d", i))
	}
	fetcher.pages[seed] = crawler.FetchResult{
		URL: seed, StatusCode: 200, Title: "Home", Text: "home", Links: links,
	}

	corpus := &memCorpus{}
	params := testParams([]crawler.CrawlSource{source("example.com", 3)},
		fetcher, acceptEvaluator{}, newStubRobots(), corpus)
	ckptPath := filepath.Join(t.TempDir(), "checkpoint.json")
	params.Checkpoint = checkpoint.NewManager(ckptPath, time.Hour, nil)
	published := pubmem.New()
	params.Publisher = published

	o, err := New(params)
	require.NoError(t, err)
	runEngine(t, o)

	records := corpus.all()
	require.Len(t, records, 3)
	require.Len(t, published.Records(), 3)
	assert.Equal(t, o.RunID().String(), records[0].RunID)
	assert.Equal(t, 3, params.State.DomainCount("example.com"))
	assert.Equal(t, int64(3), params.State.Stats.Accepted.Load())
	assert.Equal(t, 3, params.State.QueueSize("example.com"), "unfetched links stay queued")

	doc, err := checkpoint.NewManager(ckptPath, 0, nil).Load()
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Len(t, doc.Frontiers["example.com"], 3)
	assert.Equal(t, map[string]int{"example.com": 3}, doc.DomainCounts)
}

func TestNoURLFetchedTwice(t *testing.T) {
	fetcher := newFakeFetcher()
	seed := "https://example.com"
	// Every page links back to the seed and to both children.
	links := []string{seed, "https://example.com/docs/a", "https://example.com/docs/b"}
	fetcher.pages[seed] = crawler.FetchResult{URL: seed, StatusCode: 200, Title: "t", Text: "x", Links: links}
	fetcher.pages[links[1]] = crawler.FetchResult{URL: links[1], StatusCode: 200, Title: "t", Text: "x", Links: links}
	fetcher.pages[links[2]] = crawler.FetchResult{URL: links[2], StatusCode: 200, Title: "t", Text: "x", Links: links}

	params := testParams([]crawler.CrawlSource{source("example.com", 50)},
		fetcher, acceptEvaluator{}, newStubRobots(), &memCorpus{})
	o, err := New(params)
	require.NoError(t, err)
	runEngine(t, o)

	fetcher.mu.Lock()
	defer fetcher.mu.Unlock()
	for url, count := range fetcher.calls {
		assert.Equal(t, 1, count, "url fetched more than once: %s", url)
	}
}

func TestConcurrencyCeiling(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.delay = 20 * time.Millisecond

	var sources []crawler.CrawlSource
	for i := 0; i < 5; i++ {
		sources = append(sources, source(fmt.Sprintf("d%d.example", i), 2))
	}
	params := testParams(sources, fetcher, acceptEvaluator{}, newStubRobots(), &memCorpus{})
	params.Config.MaxConcurrent = 2

	o, err := New(params)
	require.NoError(t, err)
	runEngine(t, o)

	assert.LessOrEqual(t, fetcher.maxConcurrent(), 2)
	assert.Equal(t, int64(5), params.State.Stats.FetchAttempts.Load())
}

func TestExhaustedDomainReportedOnce(t *testing.T) {
	fetcher := newFakeFetcher()
	emitter := &captureEmitter{}
	params := testParams([]crawler.CrawlSource{source("example.com", 10)},
		fetcher, rejectEvaluator{reason: crawler.ReasonLowQuality}, newStubRobots(), &memCorpus{})
	params.Emitter = emitter

	o, err := New(params)
	require.NoError(t, err)
	runEngine(t, o)

	assert.Equal(t, int64(1), params.State.Stats.RejectedQuality.Load())
	assert.Zero(t, params.State.Stats.Accepted.Load())
	done := emitter.byStage(progress.StageDomainDone)
	require.Len(t, done, 1, "exhaustion must be reported exactly once")
	assert.Equal(t, "example.com", done[0].Domain)
}

func TestConsecutiveFailureCap(t *testing.T) {
	fetcher := newFakeFetcher()
	sources := []crawler.CrawlSource{
		source("example.com", 10),
		{Domain: "example.com", URL: "https://example.com/a", SeedPrefix: "https://example.com", MaxPages: 10, Priority: 1, QualityThreshold: 45},
		{Domain: "example.com", URL: "https://example.com/b", SeedPrefix: "https://example.com", MaxPages: 10, Priority: 1, QualityThreshold: 45},
	}
	for _, u := range []string{"https://example.com", "https://example.com/a", "https://example.com/b"} {
		fetcher.errs[u] = errors.New("connection refused")
	}

	params := testParams(sources, fetcher, acceptEvaluator{}, newStubRobots(), &memCorpus{})
	params.Config.Worker.MaxFailures = 3
	emitter := &captureEmitter{}
	params.Emitter = emitter

	o, err := New(params)
	require.NoError(t, err)
	runEngine(t, o)

	assert.Equal(t, int64(3), params.State.Stats.Failed.Load())
	assert.Equal(t, int64(3), params.State.Stats.FetchAttempts.Load())
	assert.Len(t, emitter.byStage(progress.StageDomainDone), 1)
}

func TestSourceMerging(t *testing.T) {
	sources := []crawler.CrawlSource{
		{Domain: "example.com", URL: "https://example.com/x", SeedPrefix: "https://example.com", MaxPages: 5, Priority: 3, QualityThreshold: 60},
		{Domain: "example.com", URL: "https://example.com/y", SeedPrefix: "https://example.com", MaxPages: 7, Priority: 1, QualityThreshold: 40},
	}
	params := testParams(sources, newFakeFetcher(), acceptEvaluator{}, newStubRobots(), &memCorpus{})
	o, err := New(params)
	require.NoError(t, err)

	merged := o.sources["example.com"]
	assert.Equal(t, 12, merged.MaxPages)
	assert.Equal(t, 1, merged.Priority)
	assert.InDelta(t, 40.0, merged.QualityThreshold, 1e-9)
	assert.Equal(t, 2, params.State.QueueSize("example.com"))
	assert.Equal(t, 12, o.TotalCapacity())
}

func TestWorkerPanicIsIsolated(t *testing.T) {
	fetcher := newFakeFetcher()
	sources := []crawler.CrawlSource{source("ok.example", 1), source("bad.example", 5)}

	params := testParams(sources, fetcher, acceptEvaluator{}, newStubRobots(), &memCorpus{})
	params.NewEvaluator = func(src crawler.CrawlSource) crawler.Evaluator {
		if src.Domain == "bad.example" {
			return panicEvaluator{}
		}
		return acceptEvaluator{}
	}

	o, err := New(params)
	require.NoError(t, err)
	runEngine(t, o)

	// The healthy domain still completes despite the sibling panic.
	assert.Equal(t, 1, params.State.DomainCount("ok.example"))
	o.mu.Lock()
	_, badFinished := o.finished["bad.example"]
	o.mu.Unlock()
	assert.True(t, badFinished)
}

func TestRobotsDisallowedSkippedWithoutFetch(t *testing.T) {
	fetcher := newFakeFetcher()
	robots := newStubRobots()
	blocked := "https://example.com/a"
	robots.blocked[blocked] = struct{}{}

	sources := []crawler.CrawlSource{
		source("example.com", 10),
		{Domain: "example.com", URL: blocked, SeedPrefix: "https://example.com", MaxPages: 10, Priority: 1, QualityThreshold: 45},
	}
	params := testParams(sources, fetcher, acceptEvaluator{}, robots, &memCorpus{})
	o, err := New(params)
	require.NoError(t, err)
	runEngine(t, o)

	assert.Zero(t, fetcher.count(blocked))
	assert.True(t, params.State.IsVisited(blocked), "disallowed URLs are marked visited")
	assert.Equal(t, 1, robots.loaded["example.com"], "robots loaded once up front")
}

func TestVisitedURLNeverRefetched(t *testing.T) {
	fetcher := newFakeFetcher()
	params := testParams([]crawler.CrawlSource{source("example.com", 10)},
		fetcher, acceptEvaluator{}, newStubRobots(), &memCorpus{})
	params.State.MarkVisited("https://example.com")

	o, err := New(params)
	require.NoError(t, err)
	runEngine(t, o)

	assert.Zero(t, fetcher.count("https://example.com"))
}

func TestSchedulerRanking(t *testing.T) {
	sources := []crawler.CrawlSource{
		{Domain: "slow.example", URL: "https://slow.example", SeedPrefix: "https://slow.example", MaxPages: 5, Priority: 2, QualityThreshold: 45},
		{Domain: "deep.example", URL: "https://deep.example", SeedPrefix: "https://deep.example", MaxPages: 5, Priority: 1, QualityThreshold: 45},
		{Domain: "tiny.example", URL: "https://tiny.example", SeedPrefix: "https://tiny.example", MaxPages: 5, Priority: 1, QualityThreshold: 45},
	}
	params := testParams(sources, newFakeFetcher(), acceptEvaluator{}, newStubRobots(), &memCorpus{})
	o, err := New(params)
	require.NoError(t, err)

	// deep.example gets a bigger backlog than its priority peer.
	params.State.Enqueue("deep.example", "https://deep.example/docs/a")
	params.State.Enqueue("deep.example", "https://deep.example/docs/b")

	assert.Equal(t, []string{"deep.example", "tiny.example", "slow.example"}, o.domainsToStart())
}

func TestSchedulerNameTiebreakIsDeterministic(t *testing.T) {
	sources := []crawler.CrawlSource{source("b.example", 5), source("a.example", 5)}
	params := testParams(sources, newFakeFetcher(), acceptEvaluator{}, newStubRobots(), &memCorpus{})
	o, err := New(params)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.example", "b.example"}, o.domainsToStart())
}

func TestSitemapSeeding(t *testing.T) {
	fetcher := newFakeFetcher()
	robots := newStubRobots()
	robots.sitemaps["example.com"] = []string{
		"https://example.com/docs/from-sitemap",
		"https://elsewhere.example/offsite",
	}

	params := testParams([]crawler.CrawlSource{source("example.com", 10)},
		fetcher, acceptEvaluator{}, robots, &memCorpus{})
	params.Config.SitemapSeeding = true

	o, err := New(params)
	require.NoError(t, err)
	runEngine(t, o)

	assert.Equal(t, 1, fetcher.count("https://example.com/docs/from-sitemap"))
	assert.Zero(t, fetcher.count("https://elsewhere.example/offsite"))
}

func TestRejectionStatsByReason(t *testing.T) {
	cases := []struct {
		reason  crawler.RejectionReason
		counter func(*state.Statistics) int64
	}{
		{crawler.ReasonEmpty, func(s *state.Statistics) int64 { return s.RejectedEmpty.Load() }},
		{crawler.ReasonTooShort, func(s *state.Statistics) int64 { return s.RejectedShort.Load() }},
		{crawler.ReasonLanguage, func(s *state.Statistics) int64 { return s.RejectedLanguage.Load() }},
		{crawler.ReasonDuplicate, func(s *state.Statistics) int64 { return s.RejectedDuplicate.Load() }},
		{crawler.ReasonLowQuality, func(s *state.Statistics) int64 { return s.RejectedQuality.Load() }},
	}
	for _, tc := range cases {
		t.Run(tc.reason.String(), func(t *testing.T) {
			params := testParams([]crawler.CrawlSource{source("example.com", 10)},
				newFakeFetcher(), rejectEvaluator{reason: tc.reason}, newStubRobots(), &memCorpus{})
			o, err := New(params)
			require.NoError(t, err)
			runEngine(t, o)
			assert.Equal(t, int64(1), tc.counter(params.State.Stats))
		})
	}
}

func TestPublisherFailureDoesNotBlockAcceptance(t *testing.T) {
	published := pubmem.New()
	published.FailWith(errors.New("topic unavailable"))

	corpus := &memCorpus{}
	params := testParams([]crawler.CrawlSource{source("example.com", 10)},
		newFakeFetcher(), acceptEvaluator{}, newStubRobots(), corpus)
	params.Publisher = published

	o, err := New(params)
	require.NoError(t, err)
	runEngine(t, o)

	assert.Len(t, corpus.all(), 1, "publish failures must not drop corpus records")
	assert.Empty(t, published.Records())
}

func TestGracefulStopPreservesPendingDomains(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.delay = 10 * time.Millisecond
	seed := "https://example.com"
	var links []string
	for i := 0; i < 50; i++ {
		links = append(links, fmt.Sprintf("https://example.com/docs/p%d", i))
	}
	fetcher.pages[seed] = crawler.FetchResult{URL: seed, StatusCode: 200, Title: "t", Text: "x", Links: links}

	params := testParams([]crawler.CrawlSource{source("example.com", 1000)},
		fetcher, acceptEvaluator{}, newStubRobots(), &memCorpus{})
	o, err := New(params)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	err = o.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// Interrupted, not terminal: the domain may resume in a later run.
	o.mu.Lock()
	_, finished := o.finished["example.com"]
	o.mu.Unlock()
	assert.False(t, finished)
	assert.Positive(t, params.State.QueueSize("example.com"))
}
