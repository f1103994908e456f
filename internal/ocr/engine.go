package ocr

import "context"

// Engine is a pluggable OCR capability for a single page image.
// The primary tesseract path is built in; a secondary Engine (usually
// an AI-backed one) is consulted when the primary yield is implausibly
// short.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, imagePath string) (string, error)
}
