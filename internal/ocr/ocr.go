// Package ocr acquires document text: native embedded text first, OCR
// of rasterized pages as the fallback, with an optional secondary
// engine on low-yield pages.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/mlehnert/docner/constants"
	"github.com/mlehnert/docner/internal/common"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	Language    string // default "deu"
	DPI         int    // rasterization DPI for scanned pages, default 300
	MaxPages    int    // 0 = no limit
	MinOCRChars int    // below this, a page retries on the secondary engine; default 10
	PageWorkers int    // parallel page OCR, default 2
	PSM         int    // tesseract page segmentation mode, default 6
}

type Result struct {
	Text     string
	Pages    int
	Method   string // "pdf-text" | "pdf-ocr"
	Language string
	Duration time.Duration
	Warnings []string
}

type Extractor struct {
	cfg       Config
	runner    Runner
	secondary Engine
	logger    *slog.Logger

	// pageCount opens and validates the document; stubbed in tests.
	pageCount func(path string) (int, error)
}

// NewExtractor builds an Extractor with the real exec runner.
// secondary may be nil; then low-yield pages keep the primary result.
func NewExtractor(cfg Config, secondary Engine, logger *slog.Logger) *Extractor {
	return NewExtractorWithRunner(cfg, ExecRunner{}, secondary, logger)
}

// NewExtractorWithRunner is NewExtractor with a caller-supplied Runner.
func NewExtractorWithRunner(cfg Config, runner Runner, secondary Engine, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = "deu"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.MinOCRChars <= 0 {
		cfg.MinOCRChars = 10
	}
	if cfg.PageWorkers <= 0 {
		cfg.PageWorkers = 2
	}
	if cfg.PSM <= 0 {
		cfg.PSM = 6
	}
	return &Extractor{
		cfg:       cfg,
		runner:    runner,
		secondary: secondary,
		logger:    logger,
		pageCount: api.PageCountFile,
	}
}

// Extract acquires the whole-document text. Native embedded text wins
// whenever present; otherwise every page is rasterized and OCRed.
// A document that cannot be opened yields an empty-text Result and an
// error, which downstream routes to the failed state.
func (e *Extractor) Extract(ctx context.Context, path string) (Result, error) {
	pages, res, err := e.ExtractPages(ctx, path)
	if err != nil {
		return res, err
	}
	var b strings.Builder
	for i := 1; i <= res.Pages; i++ {
		txt := strings.TrimSpace(pages[i])
		if txt == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n") // keep a clear page break marker
		}
		b.WriteString(txt)
	}
	res.Text = b.String()
	return res, nil
}

// ExtractPages is the page-addressable variant: page index (1-based)
// to extracted text.
func (e *Extractor) ExtractPages(ctx context.Context, path string) (map[int]string, Result, error) {
	start := time.Now()
	ext := constants.NormalizeExt(filepath.Ext(path))
	if _, ok := constants.AllowedExtensions[ext]; !ok {
		e.logger.Error("ocr.unsupported_extension", "path", path, "extension", ext)
		return nil, Result{}, fmt.Errorf("unsupported extension %q: %w", ext, common.ErrInvalidInput)
	}

	pageCount, err := e.pageCount(path)
	if err != nil {
		e.logger.Error("ocr.open_failed", "path", path, "error", err)
		return nil, Result{Duration: time.Since(start)},
			fmt.Errorf("open %s: %w", path, common.ErrAcquisition)
	}
	if e.cfg.MaxPages > 0 && pageCount > e.cfg.MaxPages {
		pageCount = e.cfg.MaxPages
	}

	res := Result{Pages: pageCount, Language: e.cfg.Language}

	// Native embedded text is cheap and loss-free, so it always wins
	// when available.
	native, warns, err := e.pdfToText(ctx, path, pageCount)
	res.Warnings = append(res.Warnings, warns...)
	if err == nil && hasText(native) {
		res.Method = "pdf-text"
		res.Duration = time.Since(start)
		e.logger.Info("ocr.native_text", "path", path, "pages", pageCount)
		return native, res, nil
	}
	if err != nil {
		e.logger.Warn("ocr.native_text_failed", "path", path, "error", err)
		res.Warnings = append(res.Warnings, err.Error())
	}

	e.logger.Info("ocr.no_embedded_text", "path", path, "pages", pageCount)
	ocred, warns, err := e.ocrPages(ctx, path)
	res.Warnings = append(res.Warnings, warns...)
	res.Method = "pdf-ocr"
	res.Duration = time.Since(start)
	if err != nil {
		return nil, res, err
	}
	res.Pages = len(ocred)
	return ocred, res, nil
}

func hasText(pages map[int]string) bool {
	for _, txt := range pages {
		if strings.TrimSpace(txt) != "" {
			return true
		}
	}
	return false
}
