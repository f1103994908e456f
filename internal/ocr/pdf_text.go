package ocr

import (
	"context"
	"strings"
)

// pdfToText pulls embedded text per page.
// pdftotext uses \f as its default page separator.
func (e *Extractor) pdfToText(ctx context.Context, path string, pageCount int) (map[int]string, []string, error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return nil, []string{string(errb)}, err
	}

	chunks := strings.Split(string(out), "\f")
	pages := make(map[int]string, pageCount)
	for i := 1; i <= pageCount; i++ {
		if i-1 < len(chunks) {
			pages[i] = strings.TrimSpace(chunks[i-1])
		} else {
			pages[i] = ""
		}
	}
	return pages, nil, nil
}
