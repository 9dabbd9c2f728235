package quality

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/harvestkit/harvestkit/internal/crawler"
	"github.com/harvestkit/harvestkit/internal/dedup"
)

// Defaults for the acceptance gates.
const (
	DefaultMinChars = 150
	DefaultMinWords = 50
)

// LanguageDetector reports the dominant language of a text sample.
// Implementations that cannot decide should return ok=false; undecided
// pages are assumed acceptable.
type LanguageDetector interface {
	Detect(text string) (lang string, ok bool)
}

// AcceptAllDetector never rejects a page on language.
type AcceptAllDetector struct{}

func (AcceptAllDetector) Detect(string) (string, bool) { return "", false }

// Options tune an Analyzer.
type Options struct {
	Threshold float64 // minimum accepted score
	MinChars  int
	MinWords  int
	Language  string // required language code, empty disables the gate
	Detector  LanguageDetector
}

// Analyzer runs the rejection gates in a fixed order: empty, too
// short, language, duplicate, quality. The first failing gate decides
// the rejection reason; later gates never run.
type Analyzer struct {
	opts   Options
	store  *dedup.Store
	logger *zap.Logger
}

// NewAnalyzer builds an Analyzer over the shared dedup store.
func NewAnalyzer(opts Options, store *dedup.Store, logger *zap.Logger) *Analyzer {
	if opts.MinChars <= 0 {
		opts.MinChars = DefaultMinChars
	}
	if opts.MinWords <= 0 {
		opts.MinWords = DefaultMinWords
	}
	if opts.Detector == nil {
		opts.Detector = AcceptAllDetector{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{opts: opts, store: store, logger: logger}
}

// Evaluate implements crawler.Evaluator.
func (a *Analyzer) Evaluate(ctx context.Context, rawURL, title, text string) crawler.Evaluation {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) == 0 {
		return crawler.Evaluation{Reason: crawler.ReasonEmpty}
	}
	if len(trimmed) < a.opts.MinChars {
		return crawler.Evaluation{Reason: crawler.ReasonEmpty}
	}

	wordCount := len(strings.Fields(text))
	if wordCount < a.opts.MinWords {
		return crawler.Evaluation{WordCount: wordCount, Reason: crawler.ReasonTooShort}
	}

	if a.opts.Language != "" {
		sample := text
		if len(sample) > 500 {
			sample = sample[:500]
		}
		if lang, ok := a.opts.Detector.Detect(sample); ok && lang != a.opts.Language {
			a.logger.Debug("page rejected on language",
				zap.String("url", rawURL), zap.String("lang", lang))
			return crawler.Evaluation{WordCount: wordCount, Reason: crawler.ReasonLanguage}
		}
	}

	isDuplicate := false
	if a.store != nil {
		isDuplicate = a.store.CheckDuplicate(text, title)
	}

	score := Compute(text, rawURL, title, isDuplicate)
	eval := crawler.Evaluation{
		QualityScore:     score.Total,
		ContentType:      score.ContentType,
		IsDuplicate:      isDuplicate,
		BoilerplateRatio: score.BoilerplateRatio,
		WordCount:        score.WordCount,
		HasCode:          score.HasCode,
	}
	if isDuplicate {
		eval.Reason = crawler.ReasonDuplicate
		return eval
	}
	if score.Total < a.opts.Threshold {
		eval.Reason = crawler.ReasonLowQuality
		return eval
	}
	eval.Accepted = true
	return eval
}
