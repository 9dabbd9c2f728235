// Package urlfilter normalizes discovered links and filters them against
// keyword policy before they enter a frontier.
package urlfilter

import (
	"net/url"
	"path"
	"strings"
)

var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"gclid":        {},
	"fbclid":       {},
}

// Normalizer canonicalizes links for one domain. Off-domain links
// normalize to the empty string.
type Normalizer struct {
	domain string
}

// NewNormalizer returns a Normalizer scoped to domain.
func NewNormalizer(domain string) *Normalizer {
	return &Normalizer{domain: strings.ToLower(domain)}
}

// Normalize lowercases scheme/host, drops fragments and tracking
// parameters, defaults an empty path to "/", and trims the trailing slash.
// It returns "" for unparsable or off-domain URLs.
func (n *Normalizer) Normalize(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Host != n.domain {
		return ""
	}
	if u.Path == "" {
		u.Path = "/"
	}
	u.Fragment = ""

	q := u.Query()
	for key := range q {
		if _, ok := trackingParams[strings.ToLower(key)]; ok {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()

	return strings.TrimRight(u.String(), "/")
}

// Config carries the filter keyword policy. All lists are optional; zero
// values fall back to the compiled-in defaults.
type Config struct {
	BadExtensions    []string
	NegativeKeywords []string
	PositiveKeywords []string
	GenericKeywords  []string
}

// Filter scores URLs by keyword policy and rejects low-value or unwanted
// paths (assets, auth pages, storefronts). The lists are hand-tuned policy,
// not a structural contract.
type Filter struct {
	badExtensions    []string
	negativeKeywords []string
	positiveKeywords []string
	genericKeywords  []string
}

// NewFilter builds a Filter, defaulting any empty list.
func NewFilter(cfg Config) *Filter {
	f := &Filter{
		badExtensions: []string{
			".zip", ".gz", ".tar", ".pdf", ".png", ".jpg", ".jpeg", ".gif",
			".css", ".js", ".xml", ".rss", ".svg", ".mp4", ".mp3", ".avi",
			".json", ".txt", ".rst", ".md",
		},
		negativeKeywords: []string{
			"login", "register", "signup", "signin", "logout", "account",
			"cart", "checkout", "shop", "store", "product", "price",
			"career", "jobs", "hire", "about", "contact", "team",
			"policy", "terms", "privacy", "legal", "security",
			"forum", "blog", "news", "community", "support",
			"tag", "tags", "category", "categories", "author", "user",
			"profile", "settings", "dashboard", "download", "subscribe",
			"search", "feed", "redirect", "share", "compare",
			"assets", "_sources", "_downloads",
		},
		positiveKeywords: []string{
			"python", "django", "flask", "fastapi", "numpy", "pandas",
			"scipy", "sklearn", "scikit-learn", "matplotlib", "seaborn",
			"pytorch", "tensorflow", "keras", "pytest", "asyncio", "sqlalchemy",
			"pydantic", "datascience", "machine-learning", "deep-learning",
		},
		genericKeywords: []string{
			"doc", "docs", "documentation", "tutorial", "guide", "howto",
			"getting-started", "example", "examples", "api", "reference",
			"dsa", "data-structures", "algorithm", "algorithms",
			"programming", "coding", "development", "userguide",
		},
	}
	if len(cfg.BadExtensions) > 0 {
		f.badExtensions = lowerAll(cfg.BadExtensions)
	}
	if len(cfg.NegativeKeywords) > 0 {
		f.negativeKeywords = lowerAll(cfg.NegativeKeywords)
	}
	if len(cfg.PositiveKeywords) > 0 {
		f.positiveKeywords = lowerAll(cfg.PositiveKeywords)
	}
	if len(cfg.GenericKeywords) > 0 {
		f.genericKeywords = lowerAll(cfg.GenericKeywords)
	}
	return f
}

// ShouldCrawl reports whether raw is worth queueing.
func (f *Filter) ShouldCrawl(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	pathLower := strings.ToLower(u.Path)
	if ext := strings.ToLower(path.Ext(pathLower)); ext != "" {
		for _, bad := range f.badExtensions {
			if ext == bad {
				return false
			}
		}
	}
	for _, bad := range f.negativeKeywords {
		if strings.Contains(pathLower, bad) {
			return false
		}
	}
	return f.score(strings.ToLower(u.Host+u.Path)) >= 1
}

func (f *Filter) score(text string) int {
	score := 0
	for _, kw := range f.positiveKeywords {
		if strings.Contains(text, kw) {
			score++
		}
	}
	for _, kw := range f.genericKeywords {
		if strings.Contains(text, kw) {
			score += 2
			break
		}
	}
	if strings.Contains(text, "/api/") || strings.Contains(text, "/v1/") || strings.Contains(text, "/v2/") {
		score++
	}
	for _, bad := range []string{"utm_", "?ref=", "affiliate"} {
		if strings.Contains(text, bad) {
			score--
			break
		}
	}
	return score
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
