// Package locate finds entity candidates in document text. Three tiers
// run in order, cheapest first: exact substring search, fuzzy matching
// against line and token units, and embedding similarity over tokens.
package locate

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"unicode"

	"github.com/agext/levenshtein"

	"github.com/mlehnert/docner/constants"
)

// Embedder produces one vector per input string. Inputs are embedded
// in a single batch so the candidate and all tokens share a request.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float64, error)
}

// Span is a located entity. Start and End are byte offsets into the
// text that was searched, End exclusive.
type Span struct {
	Start  int     `json:"start"`
	End    int     `json:"end"`
	Label  string  `json:"label"`
	Text   string  `json:"text"`
	Method string  `json:"method"`
	Score  float64 `json:"score"`
}

type Locator struct {
	// FuzzyThreshold is the minimum similarity score (0-100) for a
	// fuzzy unit match.
	FuzzyThreshold float64
	// SemanticThreshold is the minimum cosine similarity (0-1) for an
	// embedding match. The comparison is strict: a score equal to the
	// threshold does not match.
	SemanticThreshold float64
	// Embedder enables the semantic tier. Nil disables it.
	Embedder Embedder

	log *slog.Logger
}

func New(fuzzyThreshold, semanticThreshold float64, embedder Embedder, logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{
		FuzzyThreshold:    fuzzyThreshold,
		SemanticThreshold: semanticThreshold,
		Embedder:          embedder,
		log:               logger,
	}
}

// Locate finds candidate in text, trying exact, then fuzzy, then
// semantic matching. The returned bool is false when no tier produced
// a span at or above its threshold.
func (l *Locator) Locate(ctx context.Context, label, candidate, text string) (Span, bool) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || text == "" {
		return Span{}, false
	}

	if span, ok := l.exact(label, candidate, text); ok {
		return span, true
	}
	if span, ok := l.fuzzy(label, candidate, text); ok {
		return span, true
	}
	if l.Embedder != nil {
		if span, ok := l.semantic(ctx, label, candidate, text); ok {
			return span, true
		}
	}
	return Span{}, false
}

// FindAll returns every non-overlapping exact occurrence of candidate
// in text, left to right.
func FindAll(label, candidate, text string) []Span {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || text == "" {
		return nil
	}
	var spans []Span
	offset := 0
	for {
		i := strings.Index(text[offset:], candidate)
		if i < 0 {
			return spans
		}
		start := offset + i
		spans = append(spans, Span{
			Start:  start,
			End:    start + len(candidate),
			Label:  label,
			Text:   candidate,
			Method: constants.MethodExact,
			Score:  100,
		})
		offset = start + len(candidate)
	}
}

func (l *Locator) exact(label, candidate, text string) (Span, bool) {
	i := strings.Index(text, candidate)
	if i < 0 {
		return Span{}, false
	}
	return Span{
		Start:  i,
		End:    i + len(candidate),
		Label:  label,
		Text:   candidate,
		Method: constants.MethodExact,
		Score:  100,
	}, true
}

// fuzzy scores the candidate against line units, plus token units when
// the candidate is a single word. The winning unit's span in the
// original text is the result.
func (l *Locator) fuzzy(label, candidate, text string) (Span, bool) {
	units := lineUnits(text)
	if !strings.ContainsFunc(candidate, unicode.IsSpace) {
		units = append(units, tokenUnits(text)...)
	}

	best := unit{}
	bestScore := -1.0
	for _, u := range units {
		score := levenshtein.Similarity(candidate, u.text, nil) * 100
		if score > bestScore {
			best, bestScore = u, score
		}
	}
	if bestScore < l.FuzzyThreshold {
		return Span{}, false
	}
	return Span{
		Start:  best.start,
		End:    best.end,
		Label:  label,
		Text:   best.text,
		Method: constants.MethodFuzzy,
		Score:  bestScore,
	}, true
}

// semantic embeds the candidate together with every token of the text
// and returns the first token whose cosine similarity to the candidate
// exceeds the threshold by the widest margin.
func (l *Locator) semantic(ctx context.Context, label, candidate, text string) (Span, bool) {
	tokens := tokenUnits(text)
	if len(tokens) == 0 {
		return Span{}, false
	}

	inputs := make([]string, 0, len(tokens)+1)
	inputs = append(inputs, candidate)
	for _, t := range tokens {
		inputs = append(inputs, t.text)
	}

	vectors, err := l.Embedder.Embed(ctx, inputs)
	if err != nil {
		l.log.Warn("locate.embed_failed", "label", label, "error", err)
		return Span{}, false
	}
	if len(vectors) != len(inputs) {
		l.log.Warn("locate.embed_shape",
			"label", label, "want", len(inputs), "got", len(vectors))
		return Span{}, false
	}

	cand := vectors[0]
	best := -1
	bestScore := -1.0
	for i := range tokens {
		score := cosine(cand, vectors[i+1])
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 || bestScore <= l.SemanticThreshold {
		return Span{}, false
	}
	return Span{
		Start:  tokens[best].start,
		End:    tokens[best].end,
		Label:  label,
		Text:   tokens[best].text,
		Method: constants.MethodSemantic,
		Score:  bestScore,
	}, true
}

type unit struct {
	text       string
	start, end int
}

// lineUnits splits text into trimmed lines, keeping byte offsets into
// the original text.
func lineUnits(text string) []unit {
	var units []unit
	offset := 0
	for {
		nl := strings.IndexByte(text[offset:], '\n')
		line := text[offset:]
		if nl >= 0 {
			line = text[offset : offset+nl]
		}
		if u, ok := trimUnit(line, offset); ok {
			units = append(units, u)
		}
		if nl < 0 {
			return units
		}
		offset += nl + 1
	}
}

// tokenUnits splits text into whitespace-separated tokens, keeping
// byte offsets into the original text.
func tokenUnits(text string) []unit {
	var units []unit
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				units = append(units, unit{text: text[start:i], start: start, end: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		units = append(units, unit{text: text[start:], start: start, end: len(text)})
	}
	return units
}

// trimUnit trims surrounding whitespace from s while adjusting the
// span offsets, so the unit maps back to the exact bytes it covers.
func trimUnit(s string, offset int) (unit, bool) {
	trimmed := strings.TrimLeftFunc(s, unicode.IsSpace)
	lead := len(s) - len(trimmed)
	trimmed = strings.TrimRightFunc(trimmed, unicode.IsSpace)
	if trimmed == "" {
		return unit{}, false
	}
	start := offset + lead
	return unit{text: trimmed, start: start, end: start + len(trimmed)}, true
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
