// extracttext acquires and corrects the text of a single document and
// writes it next to the input as <name>.txt.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mlehnert/docner/internal/common"
	"github.com/mlehnert/docner/internal/ocr"
	"github.com/mlehnert/docner/internal/textfix"
	"github.com/mlehnert/docner/internal/visionocr"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	raw := flag.Bool("raw", false, "skip text correction")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall extraction timeout")
	flag.Parse()

	if flag.NArg() != 1 {
		logger.Error("usage", "cmd", "extracttext [-raw] <document.pdf>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	cfg := common.LoadConfig()
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var secondary ocr.Engine
	if cfg.VisionOCR.BaseURL != "" {
		secondary = visionocr.New(cfg.VisionOCR, logger)
	}
	extractor := ocr.NewExtractor(ocr.Config{
		Pdftotext:   cfg.OCR.Pdftotext,
		Pdftoppm:    cfg.OCR.Pdftoppm,
		Tesseract:   cfg.OCR.Tesseract,
		Language:    cfg.OCR.Language,
		DPI:         cfg.OCR.DPI,
		MaxPages:    cfg.OCR.MaxPages,
		MinOCRChars: cfg.OCR.MinOCRChars,
		PageWorkers: cfg.OCR.PageWorkers,
	}, secondary, logger)

	res, err := extractor.Extract(ctx, path)
	if err != nil {
		logger.Error("extract", "path", path, "error", err)
		os.Exit(1)
	}

	text := res.Text
	if !*raw {
		dict, err := textfix.LoadDictionary(cfg.Correction.DictionaryPath)
		if err != nil {
			logger.Warn("dictionary unavailable, autocorrection disabled",
				"path", cfg.Correction.DictionaryPath, "error", err)
			dict = nil
		}
		text = textfix.NewCorrector(textfix.DefaultConfig(), dict, logger).Correct(text)
	}

	out := strings.TrimSuffix(path, filepath.Ext(path)) + ".txt"
	if err := os.WriteFile(out, []byte(text), 0o644); err != nil {
		logger.Error("write output", "path", out, "error", err)
		os.Exit(1)
	}

	logger.Info("extracted",
		"path", path, "output", out,
		"method", res.Method, "pages", res.Pages, "chars", len(text),
		"duration_ms", res.Duration.Milliseconds())
	fmt.Println(out)
}
