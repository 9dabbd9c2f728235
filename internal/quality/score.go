// Package quality scores extracted page text and decides acceptance
// into the corpus.
package quality

import (
	"math"
	"regexp"
	"strings"
)

var boilerplateIndicators = []string{
	"click here", "read more", "subscribe", "newsletter",
	"follow us", "share this", "related posts", "comments",
	"copyright", "all rights reserved", "privacy policy",
	"terms of service", "cookie policy", "advertisement",
	"sign up", "log in", "create account", "join now",
	"follow @", "tweet this", "share on facebook",
}

var codeIndicators = []string{
	"```", "def ", "class ", "import ", "function ",
	">>>", "print(", "return ", "for ", "if ", "while ",
	"const ", "let ", "var ", "public ", "private ",
	"void ", "int ", "string ", "float ", "double ",
}

var (
	headerRe = regexp.MustCompile(`(?m)^#{1,4} `)
	listRe   = regexp.MustCompile(`(?m)^\d+\.`)
)

// Score is the component breakdown for one page.
type Score struct {
	Total            float64
	HasCode          bool
	WordCount        int
	ContentType      string
	BoilerplateRatio float64
}

// BoilerplateRatio estimates the fraction of text made of navigation
// and footer phrases. Empty text counts as pure boilerplate.
func BoilerplateRatio(text string) float64 {
	if len(text) == 0 {
		return 1.0
	}
	lower := strings.ToLower(text)
	chars := 0
	for _, ind := range boilerplateIndicators {
		chars += len(ind) * strings.Count(lower, ind)
	}
	return math.Min(float64(chars)/float64(len(text)), 1.0)
}

// Compute scores text on a 0-100 scale. isDuplicate halves the total so
// duplicate pages carry a depressed score in their audit trail.
func Compute(text, rawURL, title string, isDuplicate bool) Score {
	boilerplate := BoilerplateRatio(text)

	hasCode := false
	for _, ind := range codeIndicators {
		if strings.Contains(text, ind) {
			hasCode = true
			break
		}
	}
	codeBlocks := strings.Count(text, "```") / 2

	total := 0.0
	if hasCode {
		total += math.Min(25, float64(10+codeBlocks*5))
	}

	words := strings.Fields(text)
	wordCount := len(words)

	switch {
	case wordCount < 50:
	case wordCount < 150:
		total += 10
	case wordCount < 500:
		total += 15
	default:
		total += 20
	}

	if headerRe.MatchString(text) {
		total += 7
	}
	if strings.Contains(text, "•") || listRe.MatchString(text) {
		total += 4
	}
	if strings.Count(text, "\n\n") > 2 {
		total += 4
	}

	switch {
	case wordCount > 100 && wordCount < 2000:
		total += 10
	case (wordCount > 50 && wordCount <= 100) || (wordCount >= 2000 && wordCount < 3000):
		total += 7
	default:
		total += 3
	}

	unique := make(map[string]struct{})
	for _, w := range words {
		if len(w) > 3 {
			unique[strings.ToLower(w)] = struct{}{}
		}
	}
	uniquenessRatio := float64(len(unique)) / math.Max(float64(wordCount), 1)
	switch {
	case uniquenessRatio > 0.5:
		total += 15
	case uniquenessRatio > 0.3:
		total += 10
	default:
		total += 5
	}

	if strings.Contains(strings.ToLower(text), "example") || hasCode {
		total += 7
	}
	if wordCount > 100 {
		total += 5
	}
	if !strings.HasSuffix(text, "...") {
		total += 3
	}

	total -= boilerplate * 30
	if isDuplicate {
		total *= 0.5
	}

	contentType := ClassifyContent(text, rawURL, title)
	switch contentType {
	case "tutorial", "example", "guide":
		total = math.Min(100, total*1.1)
	}

	return Score{
		Total:            math.Round(math.Max(0, total)*10) / 10,
		HasCode:          hasCode,
		WordCount:        wordCount,
		ContentType:      contentType,
		BoilerplateRatio: math.Round(boilerplate*100) / 100,
	}
}

// ClassifyContent buckets a page by title, URL, and text signals. The
// first matching bucket wins.
func ClassifyContent(text, rawURL, title string) string {
	titleLower := strings.ToLower(title)
	urlLower := strings.ToLower(rawURL)

	for _, kw := range []string{"tutorial", "guide", "how to", "getting started", "learn"} {
		if strings.Contains(titleLower, kw) || strings.Contains(urlLower, kw) {
			return "tutorial"
		}
	}
	for _, kw := range []string{"example", "cookbook", "recipe", "sample"} {
		if strings.Contains(titleLower, kw) {
			return "example"
		}
	}
	if strings.Count(text, "```") > 3 {
		return "example"
	}
	for _, kw := range []string{"reference", "api", "documentation", "method", "function", "class", "module"} {
		if strings.Contains(titleLower, kw) || strings.Contains(urlLower, kw) {
			return "reference"
		}
	}
	for _, kw := range []string{"guide", "overview", "best practices", "tips"} {
		if strings.Contains(titleLower, kw) {
			return "guide"
		}
	}
	if strings.HasPrefix(titleLower, "how to") || strings.Contains(urlLower, "how to") {
		return "howto"
	}
	return "general"
}
