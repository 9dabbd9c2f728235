// Package frontier implements the per-domain URL backlog: three FIFO lanes
// with strict lane priority and O(1) dedupe-on-insert.
package frontier

import (
	"errors"
	"sync"
)

// ErrEmptyFrontier is returned by Pop when no lane holds a URL.
var ErrEmptyFrontier = errors.New("frontier is empty")

// Frontier holds the not-yet-fetched URLs for one domain. It is owned by a
// single domain worker, but the scheduler and checkpointer read it
// concurrently, so all operations lock.
type Frontier struct {
	mu         sync.Mutex
	classifier *Classifier
	high       []string
	medium     []string
	low        []string
	queued     map[string]struct{}
}

// New returns an empty Frontier using the given lane classifier.
func New(classifier *Classifier) *Frontier {
	if classifier == nil {
		classifier = DefaultClassifier()
	}
	return &Frontier{
		classifier: classifier,
		queued:     make(map[string]struct{}),
	}
}

// NewFromList rebuilds a Frontier from a flattened checkpoint list,
// re-classifying each URL into its lane.
func NewFromList(classifier *Classifier, urls []string) *Frontier {
	f := New(classifier)
	for _, u := range urls {
		f.Add(u)
	}
	return f
}

// Add enqueues url into its lane. It returns false when the URL is already
// queued. A URL that has left the frontier via Pop may be re-added; keeping
// already-visited URLs out is the caller's global concern.
func (f *Frontier) Add(url string) bool {
	if url == "" {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.queued[url]; ok {
		return false
	}
	f.queued[url] = struct{}{}
	switch f.classifier.Classify(url) {
	case LaneHigh:
		f.high = append(f.high, url)
	case LaneMedium:
		f.medium = append(f.medium, url)
	default:
		f.low = append(f.low, url)
	}
	return true
}

// Pop removes and returns the next URL: all high-lane URLs before medium,
// medium before low, FIFO within a lane.
func (f *Frontier) Pop() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var url string
	switch {
	case len(f.high) > 0:
		url, f.high = f.high[0], f.high[1:]
	case len(f.medium) > 0:
		url, f.medium = f.medium[0], f.medium[1:]
	case len(f.low) > 0:
		url, f.low = f.low[0], f.low[1:]
	default:
		return "", ErrEmptyFrontier
	}
	delete(f.queued, url)
	return url, nil
}

// Len reports the number of queued URLs across all lanes.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.high) + len(f.medium) + len(f.low)
}

// URLs flattens the frontier to lane order (high, medium, low) for
// checkpointing. Order within a lane is preserved.
func (f *Frontier) URLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.high)+len(f.medium)+len(f.low))
	out = append(out, f.high...)
	out = append(out, f.medium...)
	out = append(out, f.low...)
	return out
}
