package urlfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRejectsOffDomain(t *testing.T) {
	n := NewNormalizer("example.com")
	assert.Empty(t, n.Normalize("https://other.com/docs"))
	assert.Empty(t, n.Normalize("://bad"))
}

func TestNormalizeStripsTrackingAndFragment(t *testing.T) {
	n := NewNormalizer("example.com")
	got := n.Normalize("https://EXAMPLE.com/docs/?utm_source=x&page=2#section")
	assert.Equal(t, "https://example.com/docs/?page=2", got)
}

func TestNormalizeDefaultsAndTrimsPath(t *testing.T) {
	n := NewNormalizer("example.com")
	assert.Equal(t, "https://example.com", n.Normalize("https://example.com"))
	assert.Equal(t, "https://example.com/docs", n.Normalize("https://example.com/docs/"))
}

func TestShouldCrawl(t *testing.T) {
	f := NewFilter(Config{})

	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/docs/tutorial", true},
		{"https://example.com/python/guide", true},
		{"https://docs.example.com/api/v1/widgets", true},
		{"https://example.com/styles.css", false},
		{"https://example.com/archive.zip", false},
		{"https://example.com/login", false},
		{"https://example.com/shop/item", false},
		{"https://example.com/random-page", false}, // score < 1
		{"://not-a-url", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.ShouldCrawl(tt.url), tt.url)
	}
}

func TestShouldCrawlCustomPolicy(t *testing.T) {
	f := NewFilter(Config{
		GenericKeywords:  []string{"wiki"},
		NegativeKeywords: []string{"draft"},
	})
	assert.True(t, f.ShouldCrawl("https://example.com/wiki/page"))
	assert.False(t, f.ShouldCrawl("https://example.com/wiki/draft"))
}
