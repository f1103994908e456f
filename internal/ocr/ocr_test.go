package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"strings"
	"testing"

	"github.com/mlehnert/docner/internal/common"
)

// stubRunner fakes pdftotext, pdftoppm and tesseract. pdftoppm calls
// materialize real PNG files so the preprocessing path exercises its
// decode/encode round trip.
type stubRunner struct {
	nativeText    string
	nativeErr     error
	renderPages   int
	pageTexts     []string // tesseract output per page, cycled by call order
	tessErrs      []error
	tesseractCall int
}

func (r *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	switch {
	case strings.Contains(name, "pdftotext"):
		return []byte(r.nativeText), nil, r.nativeErr
	case strings.Contains(name, "pdftoppm"):
		prefix := args[len(args)-1]
		for i := 1; i <= r.renderPages; i++ {
			if err := writeTestPNG(fmt.Sprintf("%s-%d.png", prefix, i)); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	case strings.Contains(name, "tesseract"):
		i := r.tesseractCall
		r.tesseractCall++
		if i < len(r.tessErrs) && r.tessErrs[i] != nil {
			return nil, []byte("boom"), r.tessErrs[i]
		}
		if i < len(r.pageTexts) {
			return []byte(r.pageTexts[i]), nil, nil
		}
		return nil, nil, nil
	}
	return nil, nil, fmt.Errorf("unexpected command %q", name)
}

func writeTestPNG(path string) error {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

type stubEngine struct {
	text string
	err  error
}

func (s stubEngine) Name() string { return "stub" }
func (s stubEngine) Recognize(context.Context, string) (string, error) {
	return s.text, s.err
}

func newTestExtractor(t *testing.T, r Runner, secondary Engine, pages int) *Extractor {
	t.Helper()
	e := NewExtractorWithRunner(Config{PageWorkers: 1}, r, secondary, nil)
	e.pageCount = func(string) (int, error) { return pages, nil }
	return e
}

func TestExtractNativeTextWinsWithoutOCR(t *testing.T) {
	r := &stubRunner{nativeText: "Invoice 42"}
	e := newTestExtractor(t, r, nil, 1)

	res, err := e.Extract(context.Background(), "doc.pdf")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Text != "Invoice 42" {
		t.Errorf("text = %q, want %q", res.Text, "Invoice 42")
	}
	if res.Method != "pdf-text" {
		t.Errorf("method = %q, want pdf-text", res.Method)
	}
	if r.tesseractCall != 0 {
		t.Errorf("tesseract invoked %d times for a native-text document", r.tesseractCall)
	}
}

func TestExtractFallsBackToOCR(t *testing.T) {
	r := &stubRunner{nativeText: "  \n ", renderPages: 2, pageTexts: []string{"Seite eins Inhalt", "Seite zwei Inhalt"}}
	e := newTestExtractor(t, r, nil, 2)

	res, err := e.Extract(context.Background(), "doc.pdf")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Method != "pdf-ocr" {
		t.Errorf("method = %q, want pdf-ocr", res.Method)
	}
	if res.Pages != 2 {
		t.Errorf("pages = %d, want 2", res.Pages)
	}
	for _, want := range []string{"Seite eins Inhalt", "Seite zwei Inhalt"} {
		if !strings.Contains(res.Text, want) {
			t.Errorf("text %q missing %q", res.Text, want)
		}
	}
}

func TestExtractSecondaryEngineOnLowYield(t *testing.T) {
	longer := strings.Repeat("x", 40)
	tests := []struct {
		name      string
		primary   string
		secondary stubEngine
		want      string
	}{
		{
			name:      "secondary wins when longer",
			primary:   "abc",
			secondary: stubEngine{text: longer},
			want:      longer,
		},
		{
			name:      "secondary wins ties",
			primary:   "abc",
			secondary: stubEngine{text: "def"},
			want:      "def",
		},
		{
			name:      "primary kept when secondary shorter",
			primary:   "abcdefg",
			secondary: stubEngine{text: "hi"},
			want:      "abcdefg",
		},
		{
			name:      "primary kept when secondary fails",
			primary:   "abc",
			secondary: stubEngine{err: errors.New("engine down")},
			want:      "abc",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &stubRunner{renderPages: 1, pageTexts: []string{tt.primary}}
			e := newTestExtractor(t, r, tt.secondary, 1)

			res, err := e.Extract(context.Background(), "doc.pdf")
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if res.Text != tt.want {
				t.Errorf("text = %q, want %q", res.Text, tt.want)
			}
		})
	}
}

func TestExtractSecondarySalvagesPrimaryFailure(t *testing.T) {
	r := &stubRunner{
		renderPages: 1,
		tessErrs:    []error{errors.New("tesseract crashed")},
	}
	e := newTestExtractor(t, r, stubEngine{text: "Rettung durch den zweiten Motor"}, 1)

	res, err := e.Extract(context.Background(), "doc.pdf")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Text != "Rettung durch den zweiten Motor" {
		t.Errorf("text = %q, want secondary result", res.Text)
	}
	// The salvaged page must not hide the primary engine's failure.
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "primary ocr") {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings %v missing primary failure", res.Warnings)
	}
}

func TestExtractNoSecondaryAboveThreshold(t *testing.T) {
	primary := "genug Text auf dieser Seite erkannt"
	r := &stubRunner{renderPages: 1, pageTexts: []string{primary}}
	e := newTestExtractor(t, r, stubEngine{text: strings.Repeat("y", 100)}, 1)

	res, err := e.Extract(context.Background(), "doc.pdf")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Text != primary {
		t.Errorf("text = %q, want primary result untouched", res.Text)
	}
}

func TestExtractPageFailureDegrades(t *testing.T) {
	r := &stubRunner{
		renderPages: 2,
		pageTexts:   []string{"", "Seite zwei bleibt lesbar"},
		tessErrs:    []error{errors.New("tesseract crashed"), nil},
	}
	e := newTestExtractor(t, r, nil, 2)

	pages, res, err := e.ExtractPages(context.Background(), "doc.pdf")
	if err != nil {
		t.Fatalf("ExtractPages: %v", err)
	}
	if pages[1] != "" {
		t.Errorf("failed page should be empty, got %q", pages[1])
	}
	if pages[2] != "Seite zwei bleibt lesbar" {
		t.Errorf("page 2 = %q", pages[2])
	}
	if len(res.Warnings) == 0 {
		t.Error("expected a warning for the failed page")
	}
}

func TestExtractOpenFailure(t *testing.T) {
	e := NewExtractorWithRunner(Config{}, &stubRunner{}, nil, nil)
	e.pageCount = func(string) (int, error) { return 0, errors.New("not a pdf") }

	res, err := e.Extract(context.Background(), "broken.pdf")
	if !errors.Is(err, common.ErrAcquisition) {
		t.Errorf("err = %v, want ErrAcquisition", err)
	}
	if res.Text != "" {
		t.Errorf("text = %q, want empty", res.Text)
	}
}

func TestExtractUnsupportedExtension(t *testing.T) {
	e := NewExtractorWithRunner(Config{}, &stubRunner{}, nil, nil)
	if _, err := e.Extract(context.Background(), "notes.txt"); !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestExtractCancelledBeforePages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &stubRunner{renderPages: 1, pageTexts: []string{"text"}}
	e := newTestExtractor(t, r, nil, 1)

	if _, err := e.Extract(ctx, "doc.pdf"); err == nil {
		t.Error("expected error for cancelled context")
	}
}
