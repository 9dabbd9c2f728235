// Package crawler defines core types shared across subsystems.
package crawler

import "time"

// CrawlSource is the static per-domain configuration loaded from the
// sources file. Immutable after load; duplicate-domain entries are merged
// by the engine (budgets sum, priority and threshold take the minimum).
type CrawlSource struct {
	Domain           string
	URL              string
	SeedPrefix       string
	MaxPages         int
	Priority         int
	QualityThreshold float64
}

// FetchResult is the payload returned by a Fetcher collaborator for one URL.
type FetchResult struct {
	URL          string
	StatusCode   int
	Title        string
	Text         string
	Links        []string
	ETag         string
	LastModified string
}

// RejectionReason tags why the acceptance collaborator declined a page.
type RejectionReason int

// Rejection taxonomy. Every reason maps to exactly one statistics counter.
const (
	ReasonNone RejectionReason = iota
	ReasonEmpty
	ReasonTooShort
	ReasonLanguage
	ReasonDuplicate
	ReasonLowQuality
)

func (r RejectionReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonEmpty:
		return "empty"
	case ReasonTooShort:
		return "too_short"
	case ReasonLanguage:
		return "language"
	case ReasonDuplicate:
		return "duplicate"
	case ReasonLowQuality:
		return "quality"
	default:
		return "unknown"
	}
}

// Evaluation is the acceptance collaborator verdict for one fetched page.
type Evaluation struct {
	Accepted         bool
	Reason           RejectionReason
	QualityScore     float64
	ContentType      string
	IsDuplicate      bool
	BoilerplateRatio float64
	WordCount        int
	HasCode          bool
}

// PageRecord is one accepted page, appended to the corpus log.
type PageRecord struct {
	URL              string    `json:"url"`
	Title            string    `json:"title"`
	Text             string    `json:"text"`
	Domain           string    `json:"domain"`
	QualityScore     float64   `json:"quality_score"`
	ContentType      string    `json:"content_type"`
	IsDuplicate      bool      `json:"is_duplicate"`
	BoilerplateRatio float64   `json:"boilerplate_ratio"`
	WordCount        int       `json:"word_count"`
	HasCode          bool      `json:"has_code"`
	RunID            string    `json:"run_id,omitempty"`
	CrawledAt        time.Time `json:"crawled_at"`
}

// PageMeta is the per-URL record kept in the metadata store. ETag and
// LastModified enable conditional fetches on a future incremental crawl.
type PageMeta struct {
	URL          string
	Domain       string
	Status       string
	Quality      float64
	WordCount    int
	ETag         string
	LastModified string
	UpdatedAt    time.Time
}

// DomainResult summarizes a finished domain worker run.
type DomainResult struct {
	Domain       string
	PagesCrawled int
	PageLimit    int
	Complete     bool
	Exhausted    bool
	Failed       bool
}
