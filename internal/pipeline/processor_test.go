package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mlehnert/docner/constants"
	"github.com/mlehnert/docner/internal/common"
	"github.com/mlehnert/docner/internal/corrlog"
	"github.com/mlehnert/docner/internal/lifecycle"
	"github.com/mlehnert/docner/internal/locate"
	"github.com/mlehnert/docner/internal/ocr"
	"github.com/mlehnert/docner/internal/textfix"
)

const scanName = "2024_11_13-CS-#-133-Dropscan an ZvW Beteiligungen GmbH-Rechnung 24111351.pdf"

// stubExtractor maps file base names to canned text or errors.
type stubExtractor struct {
	texts map[string]string
	errs  map[string]error
}

func (s *stubExtractor) Extract(_ context.Context, path string) (ocr.Result, error) {
	base := filepath.Base(path)
	if err, ok := s.errs[base]; ok {
		return ocr.Result{}, err
	}
	text := s.texts[base]
	return ocr.Result{Text: text, Pages: 1, Method: "pdf-text"}, nil
}

type fixture struct {
	proc        *Processor
	inbox       string
	dirs        common.DirConfig
	corrections *corrlog.Store[corrlog.CorrectionRecord]
	training    *corrlog.Store[corrlog.TrainingRecord]
}

func newFixture(t *testing.T, ext Extractor) *fixture {
	t.Helper()
	root := t.TempDir()
	dirs := common.DirConfig{
		Inbox:     filepath.Join(root, "pdfs"),
		Processed: filepath.Join(root, "processed"),
		Failed:    filepath.Join(root, "failed"),
		Skipped:   filepath.Join(root, "skipped"),
	}
	if err := os.MkdirAll(dirs.Inbox, 0o755); err != nil {
		t.Fatal(err)
	}
	corrections := corrlog.NewCorrectionStore(filepath.Join(root, "corrections.json"), nil)
	training := corrlog.NewTrainingStore(filepath.Join(root, "training.json"), nil)
	mgr := lifecycle.NewManager(dirs, corrections, training, 50, nil)
	corrector := textfix.NewCorrector(textfix.Config{Clean: true, Sentences: true}, nil, nil)
	locator := locate.New(70, 0.7, nil, nil)
	return &fixture{
		proc:        New(ext, corrector, locator, mgr, training, nil),
		inbox:       dirs.Inbox,
		dirs:        dirs,
		corrections: corrections,
		training:    training,
	}
}

func (f *fixture) writePDF(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(f.inbox, name)
	if err := os.WriteFile(path, []byte("%PDF-1.4 fake"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProcessDocument(t *testing.T) {
	ext := &stubExtractor{texts: map[string]string{
		scanName: "Dropscan  sendet die Rechnung 24111351 an ZvW Beteiligungen GmbH",
	}}
	f := newFixture(t, ext)
	path := f.writePDF(t, scanName)

	doc, err := f.proc.ProcessDocument(context.Background(), path)
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if doc.State != lifecycle.StateExtracted {
		t.Errorf("state = %s", doc.State)
	}
	// The corrector collapsed the double space.
	if doc.Text != "Dropscan sendet die Rechnung 24111351 an ZvW Beteiligungen GmbH" {
		t.Errorf("text = %q", doc.Text)
	}
	if doc.Hints.Betreff != "Rechnung 24111351" {
		t.Errorf("hints = %+v", doc.Hints)
	}
}

func TestProcessDocumentAcquisitionFailure(t *testing.T) {
	ext := &stubExtractor{errs: map[string]error{
		scanName: common.ErrAcquisition,
	}}
	f := newFixture(t, ext)
	path := f.writePDF(t, scanName)

	doc, err := f.proc.ProcessDocument(context.Background(), path)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, common.ErrAcquisition) {
		t.Errorf("err = %v", err)
	}
	if doc.State != lifecycle.StateFailed {
		t.Errorf("state = %s, want FAILED", doc.State)
	}
	if filepath.Dir(doc.Path) != f.dirs.Failed {
		t.Errorf("file not moved to failed dir: %s", doc.Path)
	}
}

func TestProcessDocumentEmptyText(t *testing.T) {
	ext := &stubExtractor{texts: map[string]string{scanName: "   \n  "}}
	f := newFixture(t, ext)
	path := f.writePDF(t, scanName)

	doc, err := f.proc.ProcessDocument(context.Background(), path)
	if err == nil {
		t.Fatal("empty text must fail the document")
	}
	if !errors.Is(err, common.ErrAcquisition) {
		t.Errorf("err = %v", err)
	}
	if doc.State != lifecycle.StateFailed {
		t.Errorf("state = %s, want FAILED", doc.State)
	}
}

func TestSuggest(t *testing.T) {
	ext := &stubExtractor{texts: map[string]string{
		scanName: "Dropscan sendet die Rechnung 24111351 an ZvW Beteiligungen GmbH",
	}}
	f := newFixture(t, ext)
	path := f.writePDF(t, scanName)

	doc, err := f.proc.ProcessDocument(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}

	spans := f.proc.Suggest(context.Background(), doc)
	if len(spans) != 3 {
		t.Fatalf("got %d suggestions, want 3: %+v", len(spans), spans)
	}
	byLabel := map[string]locate.Span{}
	for _, s := range spans {
		byLabel[s.Label] = s
	}
	if byLabel[constants.LabelAbsender].Text != "Dropscan" {
		t.Errorf("absender span = %+v", byLabel[constants.LabelAbsender])
	}
	if byLabel[constants.LabelEmpfänger].Text != "ZvW Beteiligungen GmbH" {
		t.Errorf("empfänger span = %+v", byLabel[constants.LabelEmpfänger])
	}
	if byLabel[constants.LabelBetreff].Method != constants.MethodExact {
		t.Errorf("betreff method = %s", byLabel[constants.LabelBetreff].Method)
	}
}

func TestAutoAnnotateAndConfirm(t *testing.T) {
	text := "Dropscan und nochmal Dropscan an ZvW Beteiligungen GmbH, Rechnung 24111351"
	ext := &stubExtractor{texts: map[string]string{scanName: text}}
	f := newFixture(t, ext)
	path := f.writePDF(t, scanName)

	doc, err := f.proc.ProcessDocument(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}

	annotations := f.proc.AutoAnnotate(context.Background(), doc)
	senders := 0
	for _, a := range annotations {
		if a.Label == constants.LabelAbsender {
			senders++
		}
		if got := doc.Text[a.Start:a.End]; got != a.Substring {
			t.Errorf("annotation offsets cover %q, substring %q", got, a.Substring)
		}
	}
	if senders != 2 {
		t.Errorf("got %d sender annotations, want both exact occurrences", senders)
	}

	if err := f.proc.Confirm(doc, annotations); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if doc.State != lifecycle.StateProcessed {
		t.Errorf("state = %s", doc.State)
	}
	if n, _ := f.corrections.Count(); n != 1 {
		t.Errorf("correction log count = %d", n)
	}
}

func TestAutoAnnotateFallsBackToFuzzy(t *testing.T) {
	// OCR mangled the sender, so no exact occurrence exists.
	text := "Dropscen sendet an ZvW Beteiligungen GmbH die Rechnung 24111351"
	ext := &stubExtractor{texts: map[string]string{scanName: text}}
	f := newFixture(t, ext)
	path := f.writePDF(t, scanName)

	doc, err := f.proc.ProcessDocument(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}

	annotations := f.proc.AutoAnnotate(context.Background(), doc)
	var sender *corrlog.Annotation
	for i, a := range annotations {
		if a.Label == constants.LabelAbsender {
			sender = &annotations[i]
		}
	}
	if sender == nil {
		t.Fatal("no sender annotation despite fuzzy match")
	}
	if sender.Substring != "Dropscen" {
		t.Errorf("sender substring = %q", sender.Substring)
	}
}

func TestGenerateFromFolder(t *testing.T) {
	ext := &stubExtractor{
		texts: map[string]string{
			scanName: "Dropscan an ZvW Beteiligungen GmbH, Rechnung 24111351",
			"2023_01_02-CS-#-7-Amt an Kunde-Bescheid.pdf": "Amt schreibt an Kunde wegen Bescheid",
		},
		errs: map[string]error{
			"2023_05_05-CS-#-9-X an Y-Z.pdf": common.ErrAcquisition,
		},
	}
	f := newFixture(t, ext)
	for name := range ext.texts {
		f.writePDF(t, name)
	}
	f.writePDF(t, "2023_05_05-CS-#-9-X an Y-Z.pdf")
	f.writePDF(t, "notizen.txt") // wrong extension, ignored
	f.writePDF(t, "scan001.pdf") // no hints, skipped

	n, err := f.proc.GenerateFromFolder(context.Background(), f.inbox)
	if err != nil {
		t.Fatalf("GenerateFromFolder: %v", err)
	}
	if n != 2 {
		t.Errorf("appended %d examples, want 2", n)
	}
	records, err := f.training.All()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("training log has %d records", len(records))
	}
	for _, rec := range records {
		if len(rec.Entities) == 0 {
			t.Errorf("record without entities: %+v", rec)
		}
		for _, e := range rec.Entities {
			if got := rec.Text[e.Start:e.End]; got != e.Ist {
				t.Errorf("entity offsets cover %q, ist %q", got, e.Ist)
			}
		}
	}
}
