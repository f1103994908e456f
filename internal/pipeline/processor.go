// Package pipeline ties extraction, correction, entity location and
// the document lifecycle together.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mlehnert/docner/constants"
	"github.com/mlehnert/docner/internal/common"
	"github.com/mlehnert/docner/internal/corrlog"
	"github.com/mlehnert/docner/internal/lifecycle"
	"github.com/mlehnert/docner/internal/locate"
	"github.com/mlehnert/docner/internal/ocr"
	"github.com/mlehnert/docner/internal/textfix"
)

// Extractor acquires a document's text. *ocr.Extractor satisfies it.
type Extractor interface {
	Extract(ctx context.Context, path string) (ocr.Result, error)
}

type Processor struct {
	Extractor Extractor
	Corrector *textfix.Corrector
	Locator   *locate.Locator
	Manager   *lifecycle.Manager
	Training  *corrlog.Store[corrlog.TrainingRecord]

	log *slog.Logger
}

func New(
	extractor Extractor,
	corrector *textfix.Corrector,
	locator *locate.Locator,
	manager *lifecycle.Manager,
	training *corrlog.Store[corrlog.TrainingRecord],
	logger *slog.Logger,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		Extractor: extractor,
		Corrector: corrector,
		Locator:   locator,
		Manager:   manager,
		Training:  training,
		log:       logger,
	}
}

// ProcessDocument acquires and corrects a document's text. On
// acquisition failure the document moves to the failed directory; the
// returned document then carries the terminal state alongside the
// error.
func (p *Processor) ProcessDocument(ctx context.Context, path string) (*lifecycle.Document, error) {
	doc := lifecycle.NewDocument(path)
	p.log.Info("pipeline.document", "path", path, "hints_empty", doc.Hints.Empty())

	res, err := p.Extractor.Extract(ctx, path)
	if err != nil {
		if ferr := p.Manager.Fail(doc); ferr != nil {
			p.log.Error("pipeline.fail_move", "path", path, "error", ferr)
		}
		return doc, fmt.Errorf("extract %s: %w", path, err)
	}

	text := p.Corrector.Correct(res.Text)
	if strings.TrimSpace(text) == "" {
		if ferr := p.Manager.Fail(doc); ferr != nil {
			p.log.Error("pipeline.fail_move", "path", path, "error", ferr)
		}
		return doc, fmt.Errorf("extract %s: empty text: %w", path, common.ErrAcquisition)
	}
	if err := p.Manager.MarkExtracted(doc, text); err != nil {
		return doc, err
	}
	p.log.Info("pipeline.extracted",
		"path", path, "method", res.Method, "pages", res.Pages, "chars", len(text))
	return doc, nil
}

// Suggest locates each filename hint in the document text and returns
// the spans for operator review, best tier first per label.
func (p *Processor) Suggest(ctx context.Context, doc *lifecycle.Document) []locate.Span {
	var spans []locate.Span
	for _, label := range constants.Labels {
		candidate := doc.Hints.ForLabel(label)
		if candidate == "" {
			continue
		}
		if span, ok := p.Locator.Locate(ctx, label, candidate, doc.Text); ok {
			spans = append(spans, span)
		}
	}
	return spans
}

// AutoAnnotate builds annotations without operator input: every exact
// occurrence of each hint, falling back to a single fuzzy or semantic
// span when the hint never appears verbatim.
func (p *Processor) AutoAnnotate(ctx context.Context, doc *lifecycle.Document) []corrlog.Annotation {
	var annotations []corrlog.Annotation
	for _, label := range constants.Labels {
		candidate := doc.Hints.ForLabel(label)
		if candidate == "" {
			continue
		}
		spans := locate.FindAll(label, candidate, doc.Text)
		if len(spans) == 0 {
			if span, ok := p.Locator.Locate(ctx, label, candidate, doc.Text); ok {
				spans = []locate.Span{span}
			}
		}
		for _, s := range spans {
			annotations = append(annotations, corrlog.Annotation{
				Start:     s.Start,
				End:       s.End,
				Label:     s.Label,
				Substring: s.Text,
			})
		}
	}
	return annotations
}

// Confirm finalizes a document with the given annotations.
func (p *Processor) Confirm(doc *lifecycle.Document, annotations []corrlog.Annotation) error {
	return p.Manager.Process(doc, annotations)
}

// GenerateFromFolder builds training examples from already-scanned
// documents in dir without touching their files. Documents that fail
// extraction or yield no annotations are skipped. It returns the
// number of examples appended.
func (p *Processor) GenerateFromFolder(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", dir, err)
	}

	appended := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := constants.NormalizeExt(filepath.Ext(e.Name()))
		if _, ok := constants.AllowedExtensions[ext]; !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return appended, err
		}

		path := filepath.Join(dir, e.Name())
		doc := lifecycle.NewDocument(path)
		if doc.Hints.Empty() {
			p.log.Debug("pipeline.generate_skip", "path", path, "reason", "no filename hints")
			continue
		}

		res, err := p.Extractor.Extract(ctx, path)
		if err != nil {
			p.log.Warn("pipeline.generate_skip", "path", path, "error", err)
			continue
		}
		doc.Text = p.Corrector.Correct(res.Text)

		annotations := p.AutoAnnotate(ctx, doc)
		if len(annotations) == 0 {
			p.log.Debug("pipeline.generate_skip", "path", path, "reason", "no annotations")
			continue
		}

		entities := make([]corrlog.TrainingEntity, 0, len(annotations))
		for _, a := range annotations {
			entities = append(entities, corrlog.TrainingEntity{
				Start: a.Start,
				End:   a.End,
				Label: a.Label,
				Soll:  doc.Hints.ForLabel(a.Label),
				Ist:   a.Substring,
			})
		}
		rec := corrlog.TrainingRecord{
			Text:     doc.Text,
			Entities: entities,
			FilenameEntities: corrlog.FilenameEntities{
				Absender:   doc.Hints.Absender,
				Empfaenger: doc.Hints.Empfaenger,
				Betreff:    doc.Hints.Betreff,
			},
		}
		if err := p.Training.Append(rec); err != nil {
			return appended, fmt.Errorf("append training example: %w", err)
		}
		appended++
	}
	p.log.Info("pipeline.generated", "dir", dir, "examples", appended)
	return appended, nil
}
