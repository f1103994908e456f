// Package lifecycle drives a document through its states: a document
// enters pending, becomes extracted once text acquisition succeeds,
// and ends processed, failed or skipped. Terminal states move the file
// into the matching directory; processing also feeds the correction
// and training logs.
package lifecycle

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mlehnert/docner/internal/common"
	"github.com/mlehnert/docner/internal/corrlog"
	"github.com/mlehnert/docner/internal/hints"
)

type State string

const (
	StatePending   State = "PENDING"
	StateExtracted State = "EXTRACTED"
	StateProcessed State = "PROCESSED"
	StateFailed    State = "FAILED"
	StateSkipped   State = "SKIPPED"
)

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == StateProcessed || s == StateFailed || s == StateSkipped
}

// Document is one file moving through the pipeline.
type Document struct {
	Path  string
	State State
	Text  string
	Hints hints.Hints
}

// NewDocument starts a pending document, with whatever entity hints
// its filename carries.
func NewDocument(path string) *Document {
	h, _ := hints.FromFilename(path)
	return &Document{Path: path, State: StatePending, Hints: h}
}

// Manager applies state transitions and their side effects.
type Manager struct {
	dirs        common.DirConfig
	corrections *corrlog.Store[corrlog.CorrectionRecord]
	training    *corrlog.Store[corrlog.TrainingRecord]
	threshold   int
	log         *slog.Logger
	now         func() time.Time
}

func NewManager(
	dirs common.DirConfig,
	corrections *corrlog.Store[corrlog.CorrectionRecord],
	training *corrlog.Store[corrlog.TrainingRecord],
	threshold int,
	logger *slog.Logger,
) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		dirs:        dirs,
		corrections: corrections,
		training:    training,
		threshold:   threshold,
		log:         logger,
		now:         time.Now,
	}
}

// MarkExtracted records successful text acquisition.
func (m *Manager) MarkExtracted(doc *Document, text string) error {
	if err := m.guard(doc, StatePending); err != nil {
		return err
	}
	doc.Text = text
	doc.State = StateExtracted
	m.log.Info("lifecycle.extracted", "path", doc.Path, "chars", len(text))
	return nil
}

// Fail moves the document's file to the failed directory. Allowed
// from any non-terminal state.
func (m *Manager) Fail(doc *Document) error {
	if doc.State.Terminal() {
		return m.terminalErr(doc)
	}
	moved, err := m.moveFile(doc.Path, m.dirs.Failed)
	if err != nil {
		return err
	}
	doc.Path = moved
	doc.State = StateFailed
	m.log.Warn("lifecycle.failed", "path", doc.Path)
	return nil
}

// Skip moves the document's file to the skipped directory. Allowed
// from any non-terminal state.
func (m *Manager) Skip(doc *Document) error {
	if doc.State.Terminal() {
		return m.terminalErr(doc)
	}
	moved, err := m.moveFile(doc.Path, m.dirs.Skipped)
	if err != nil {
		return err
	}
	doc.Path = moved
	doc.State = StateSkipped
	m.log.Info("lifecycle.skipped", "path", doc.Path)
	return nil
}

// Process confirms the document with the operator's annotations. The
// correction and training logs are appended before the file moves, so
// a crash between the two steps loses the move, never the record.
func (m *Manager) Process(doc *Document, annotations []corrlog.Annotation) error {
	if err := m.guard(doc, StateExtracted); err != nil {
		return err
	}

	fe := corrlog.FilenameEntities{
		Absender:   doc.Hints.Absender,
		Empfaenger: doc.Hints.Empfaenger,
		Betreff:    doc.Hints.Betreff,
	}
	annotations = fillSubstrings(doc.Text, annotations)

	if err := m.corrections.Append(corrlog.CorrectionRecord{
		Text:             doc.Text,
		FilenameEntities: fe,
		ManualEntities:   annotations,
		Timestamp:        m.now().UTC(),
	}); err != nil {
		return fmt.Errorf("log correction: %w", err)
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
	if err := m.training.Append(corrlog.TrainingRecord{
		Text:             doc.Text,
		Entities:         entities,
		FilenameEntities: fe,
	}); err != nil {
		return fmt.Errorf("log training example: %w", err)
	}

	moved, err := m.moveFile(doc.Path, m.dirs.Processed)
	if err != nil {
		return err
	}
	doc.Path = moved
	doc.State = StateProcessed
	m.log.Info("lifecycle.processed", "path", doc.Path, "entities", len(annotations))
	return nil
}

// CorrectionCount reports the size of the correction log.
func (m *Manager) CorrectionCount() (int, error) {
	return m.corrections.Count()
}

// TrainingDue reports whether the correction log has reached the
// retraining threshold.
func (m *Manager) TrainingDue() (bool, error) {
	n, err := m.corrections.Count()
	if err != nil {
		return false, err
	}
	return n >= m.threshold, nil
}

func (m *Manager) guard(doc *Document, want State) error {
	if doc.State.Terminal() {
		return m.terminalErr(doc)
	}
	if doc.State != want {
		return common.NewAppError("LIFECYCLE_ERROR",
			fmt.Sprintf("invalid transition from %s", doc.State), common.ErrInvalidInput)
	}
	return nil
}

func (m *Manager) terminalErr(doc *Document) error {
	return common.NewAppError("LIFECYCLE_ERROR",
		fmt.Sprintf("document already %s", doc.State), common.ErrTerminalState)
}

// fillSubstrings backfills missing annotation substrings from the text
// when the offsets are in range.
func fillSubstrings(text string, annotations []corrlog.Annotation) []corrlog.Annotation {
	out := make([]corrlog.Annotation, len(annotations))
	for i, a := range annotations {
		if a.Substring == "" && a.Start >= 0 && a.End <= len(text) && a.Start < a.End {
			a.Substring = text[a.Start:a.End]
		}
		out[i] = a
	}
	return out
}

// moveFile renames src into dstDir, uniquifying the name on collision
// and falling back to copy+remove across filesystems.
func (m *Manager) moveFile(src, dstDir string) (string, error) {
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dstDir, err)
	}
	dst := filepath.Join(dstDir, filepath.Base(src))
	for i := 1; ; i++ {
		if _, err := os.Stat(dst); os.IsNotExist(err) {
			break
		}
		ext := filepath.Ext(src)
		stem := filepath.Base(src)
		stem = stem[:len(stem)-len(ext)]
		dst = filepath.Join(dstDir, fmt.Sprintf("%s-%d%s", stem, i, ext))
	}

	if err := os.Rename(src, dst); err == nil {
		return dst, nil
	}
	if err := copyFile(src, dst); err != nil {
		return "", err
	}
	if err := os.Remove(src); err != nil {
		return "", fmt.Errorf("remove original after copy: %w", err)
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return out.Close()
}
