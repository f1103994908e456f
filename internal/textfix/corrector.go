// Package textfix turns raw OCR output into clean prose: artifact
// cleanup, dictionary autocorrection, spacing normalization, paragraph
// restoration and noise trimming.
package textfix

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"
)

var (
	reDisallowed = regexp.MustCompile(`[^a-zA-Z0-9äöüÄÖÜß,.!?;:()@/\-]`)
	reWhitespace = regexp.MustCompile(`\s+`)
	reDate       = regexp.MustCompile(`(\d{2})\.(\d{2})\.(\d{2,4})`)
	rePhone      = regexp.MustCompile(`\+?\d{1,3}[\s\-]?\(?\d{1,4}\)?[\s\-]?\d{3,4}[\s\-]?\d{4}`)
	reEmail      = regexp.MustCompile(`[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+`)
	reLeadNoise  = regexp.MustCompile(`^[^\pL\pN]+`)
)

// DefaultArtifacts are known OCR artifact patterns stripped by the
// noise-trim stage.
var DefaultArtifacts = []string{`[Pp]r f re . f i N u N`}

// Config toggles the individual correction stages. Every stage is
// best-effort: a failing stage passes its input through unchanged.
type Config struct {
	Clean       bool
	Autocorrect bool
	Sentences   bool
	Paragraphs  bool
	Entities    bool
	NoiseTrim   bool

	ArtifactPatterns []string
}

// DefaultConfig enables every stage with the default artifact list.
func DefaultConfig() Config {
	return Config{
		Clean:            true,
		Autocorrect:      true,
		Sentences:        true,
		Paragraphs:       true,
		Entities:         true,
		NoiseTrim:        true,
		ArtifactPatterns: DefaultArtifacts,
	}
}

type Corrector struct {
	cfg       Config
	dict      *Dictionary
	artifacts []*regexp.Regexp
	log       *slog.Logger
}

// NewCorrector builds a Corrector. dict may be nil; autocorrection is
// then skipped, matching a missing dictionary file.
func NewCorrector(cfg Config, dict *Dictionary, logger *slog.Logger) *Corrector {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Corrector{cfg: cfg, dict: dict, log: logger}
	for _, p := range cfg.ArtifactPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			logger.Warn("textfix.bad_artifact_pattern", "pattern", p, "error", err)
			continue
		}
		c.artifacts = append(c.artifacts, re)
	}
	return c
}

// Correct runs all enabled stages in order. It is total over arbitrary
// strings and never fails; the worst case is returning its input.
func (c *Corrector) Correct(text string) string {
	if c.cfg.Clean {
		text = c.stage("clean", text, c.clean)
	}
	if c.cfg.Autocorrect && c.dict != nil && c.dict.Len() > 0 {
		text = c.stage("autocorrect", text, c.autocorrect)
	}
	if c.cfg.Sentences {
		text = c.stage("sentences", text, normalizeSpacing)
	}
	if c.cfg.Paragraphs {
		text = c.stage("paragraphs", text, restoreParagraphs)
	}
	if c.cfg.Entities {
		text = c.stage("entities", text, formatEntities)
	}
	if c.cfg.NoiseTrim {
		text = c.stage("noisetrim", text, c.trimNoise)
	}
	return text
}

// stage shields the pipeline from a misbehaving substage: on panic the
// stage's input is carried forward unchanged.
func (c *Corrector) stage(name string, in string, fn func(string) string) (out string) {
	out = in
	defer func() {
		if r := recover(); r != nil {
			c.log.Warn("textfix.stage_failed", "stage", name, "panic", r)
		}
	}()
	return fn(in)
}

// clean strips characters outside the allow-list, collapses whitespace
// and spaces out dd.dd.dddd date fragments.
func (c *Corrector) clean(text string) string {
	text = reDisallowed.ReplaceAllString(text, " ")
	text = strings.TrimSpace(reWhitespace.ReplaceAllString(text, " "))
	return reDate.ReplaceAllString(text, "$1. $2. $3")
}

// autocorrect replaces each whitespace token with the closest
// dictionary term within edit distance 2, keeping tokens the
// dictionary does not know.
func (c *Corrector) autocorrect(text string) string {
	tokens := strings.Fields(text)
	for i, tok := range tokens {
		if fixed, ok := c.dict.Lookup(tok); ok {
			tokens[i] = fixed
		}
	}
	return strings.Join(tokens, " ")
}

// normalizeSpacing re-tokenizes the text and rejoins tokens with
// single spaces, flattening the inter-token spacing OCR garbles.
func normalizeSpacing(text string) string {
	var parts []string
	tokens := words.FromString(text)
	for tokens.Next() {
		tok := strings.TrimSpace(tokens.Value())
		if tok == "" {
			continue
		}
		parts = append(parts, tok)
	}
	return strings.Join(parts, " ")
}

// restoreParagraphs inserts a blank line where sentence-ending
// punctuation is followed by a capitalized word, a heuristic for the
// paragraph boundaries OCR flattens.
func restoreParagraphs(text string) string {
	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text))
	i := 0
	for i < len(runes) {
		r := runes[i]
		b.WriteRune(r)
		i++
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		j := i
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j > i && j < len(runes) && unicode.IsUpper(runes[j]) {
			b.WriteString("\n\n")
			i = j
		}
	}
	return strings.TrimSpace(b.String())
}

// formatEntities passes phone-number- and email-shaped substrings
// through unchanged. It is deliberately an identity pass: the stage
// pins these token classes so a reordering of the pipeline cannot
// corrupt them.
func formatEntities(text string) string {
	text = rePhone.ReplaceAllString(text, "$0")
	text = reEmail.ReplaceAllString(text, "$0")
	return strings.TrimSpace(text)
}

// trimNoise drops leading non-alphanumeric runs and known artifact
// substrings.
func (c *Corrector) trimNoise(text string) string {
	text = reLeadNoise.ReplaceAllString(text, "")
	for _, re := range c.artifacts {
		text = re.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}
