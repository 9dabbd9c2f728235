package crawler

import "context"

// Fetcher retrieves one URL and extracts its title, text, and outbound
// links. Failures surface as errors; the engine never retries in place.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (FetchResult, error)
}

// Evaluator decides whether a fetched page enters the corpus. The duplicate
// gate inside an implementation must be atomic with its record step so two
// workers cannot both accept near-identical content.
type Evaluator interface {
	Evaluate(ctx context.Context, rawURL, title, text string) Evaluation
}

// CorpusSink persists accepted page records. Append must be safe for
// concurrent use by many domain workers.
type CorpusSink interface {
	Append(ctx context.Context, records []PageRecord) error
	Close(ctx context.Context) error
}

// MetadataStore keeps the per-URL crawl ledger.
type MetadataStore interface {
	Upsert(ctx context.Context, meta PageMeta) error
	Headers(ctx context.Context, rawURL string) (etag, lastModified string, err error)
	Close()
}

// Publisher streams accepted records to downstream consumers (indexing).
type Publisher interface {
	Publish(ctx context.Context, record PageRecord) (string, error)
}

// RobotsPolicy answers politeness questions for a domain. Load is lazy and
// cached; CanFetch falls back to allow when no policy could be loaded.
type RobotsPolicy interface {
	Load(ctx context.Context, domain string)
	CanFetch(domain, rawURL string) bool
	SitemapSeeds(ctx context.Context, domain string) []string
}
