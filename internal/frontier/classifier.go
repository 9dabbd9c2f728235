package frontier

import "strings"

// Lane identifies one of the three priority lanes.
type Lane int

// Lanes in strict pop order.
const (
	LaneHigh Lane = iota
	LaneMedium
	LaneLow
)

// Classifier assigns a URL to a lane by substring match against the
// lowercased URL. The keyword lists are policy, loaded from configuration;
// only the strict lane ordering is a structural contract.
type Classifier struct {
	high   []string
	medium []string
}

// NewClassifier builds a Classifier from keyword lists. Empty lists fall
// back to the defaults.
func NewClassifier(high, medium []string) *Classifier {
	c := DefaultClassifier()
	if len(high) > 0 {
		c.high = lowerAll(high)
	}
	if len(medium) > 0 {
		c.medium = lowerAll(medium)
	}
	return c
}

// DefaultClassifier prioritizes instructional content over reference pages.
func DefaultClassifier() *Classifier {
	return &Classifier{
		high:   []string{"tutorial", "guide", "example", "getting-started", "howto"},
		medium: []string{"docs", "documentation", "reference", "api"},
	}
}

// Classify returns the lane for url.
func (c *Classifier) Classify(url string) Lane {
	lower := strings.ToLower(url)
	for _, kw := range c.high {
		if strings.Contains(lower, kw) {
			return LaneHigh
		}
	}
	for _, kw := range c.medium {
		if strings.Contains(lower, kw) {
			return LaneMedium
		}
	}
	return LaneLow
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(strings.ToLower(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
