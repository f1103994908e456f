package ocr

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mlehnert/docner/internal/preprocess"
)

// ocrPages rasterizes every page and OCRs it. Page failures degrade to
// empty text for that page; only rasterization of the whole document is
// fatal. Results are index-addressed so parallel workers can never
// attribute a page's text to the wrong page.
func (e *Extractor) ocrPages(ctx context.Context, path string) (map[int]string, []string, error) {
	tmpDir, err := os.MkdirTemp("", "docner-ocr-*")
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			e.logger.Warn("ocr.tmpdir_cleanup_failed", "dir", tmpDir, "error", err)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, "-r", strconv.Itoa(e.cfg.DPI), "-png", path, prefix)
	if err != nil {
		return nil, []string{string(errb)}, fmt.Errorf("rasterize %s: %w", path, err)
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if e.cfg.MaxPages > 0 && len(matches) > e.cfg.MaxPages {
		matches = matches[:e.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return nil, []string{"pdftoppm produced no images"}, fmt.Errorf("no pages rendered from %s", path)
	}

	texts := make([]string, len(matches))
	var mu sync.Mutex
	var warns []string
	warn := func(msg string) {
		mu.Lock()
		warns = append(warns, msg)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.PageWorkers)
	for i, img := range matches {
		// Cancellation is observed here, at page boundaries; a single
		// page's OCR call is not preemptible.
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			txt, pageWarns, err := e.recognizePage(gctx, img)
			for _, w := range pageWarns {
				warn(w)
			}
			if err != nil {
				e.logger.Warn("ocr.page_failed", "image", img, "error", err)
				warn(fmt.Sprintf("page %d: %v", i+1, err))
				return nil // degrade page-by-page, never abort the document
			}
			texts[i] = txt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, warns, err
	}
	if err := ctx.Err(); err != nil {
		return nil, warns, err
	}

	pages := make(map[int]string, len(texts))
	for i, txt := range texts {
		pages[i+1] = txt
	}
	return pages, warns, nil
}

// recognizePage preprocesses one rasterized page and runs the primary
// engine, retrying on the secondary engine when the yield is
// implausibly short. The longer result wins, secondary breaking ties.
// Warnings carry non-fatal failures along the way.
func (e *Extractor) recognizePage(ctx context.Context, imgPath string) (string, []string, error) {
	var warns []string
	procPath, err := e.preprocessImage(imgPath)
	if err != nil {
		// Unpreprocessed input still OCRs, just worse.
		e.logger.Warn("ocr.preprocess_failed", "image", imgPath, "error", err)
		procPath = imgPath
	}

	primary, err := e.tesseract(ctx, procPath)
	if err != nil {
		if e.secondary == nil {
			return "", nil, err
		}
		// The secondary engine may still salvage the page, but the
		// primary failure must stay visible.
		e.logger.Warn("ocr.primary_failed", "image", imgPath, "error", err)
		warns = append(warns, fmt.Sprintf("primary ocr %s: %v", filepath.Base(imgPath), err))
	}

	if e.secondary != nil && len(primary) < e.cfg.MinOCRChars {
		e.logger.Info("ocr.secondary_engine",
			"image", imgPath,
			"engine", e.secondary.Name(),
			"primary_chars", len(primary),
		)
		alt, altErr := e.secondary.Recognize(ctx, procPath)
		if altErr != nil {
			e.logger.Warn("ocr.secondary_failed", "image", imgPath, "error", altErr)
			return primary, warns, nil
		}
		if len(alt) >= len(primary) {
			return alt, warns, nil
		}
	}
	return primary, warns, nil
}

func (e *Extractor) preprocessImage(imgPath string) (string, error) {
	f, err := os.Open(imgPath)
	if err != nil {
		return "", err
	}
	img, err := png.Decode(f)
	_ = f.Close()
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", imgPath, err)
	}

	processed := preprocess.Preprocess(img)

	outPath := strings.TrimSuffix(imgPath, ".png") + ".proc.png"
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	if err := png.Encode(out, processed); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("encode %s: %w", outPath, err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return outPath, nil
}

func (e *Extractor) tesseract(ctx context.Context, imgPath string) (string, error) {
	// tesseract <file> stdout -l deu --psm 6
	args := []string{imgPath, "stdout", "-l", e.cfg.Language, "--psm", strconv.Itoa(e.cfg.PSM)}
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w (%s)", err, truncate(string(errb), 512))
	}
	return strings.TrimSpace(string(out)), nil
}
