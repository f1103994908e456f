// Package export produces XLSX workbooks from the correction log, for
// reviewing what the operators confirmed over time.
package export

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mlehnert/docner/internal/corrlog"
)

// Service turns correction records into XLSX bytes.
type Service struct {
	corrections *corrlog.Store[corrlog.CorrectionRecord]
	logger      *slog.Logger
}

func NewService(corrections *corrlog.Store[corrlog.CorrectionRecord], logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{corrections: corrections, logger: logger}
}

// ExportCorrectionsXLSX returns an XLSX workbook of the correction
// log. If from or to are set, only records in the window (inclusive,
// date-only, UTC) are exported.
func (s *Service) ExportCorrectionsXLSX(from, to *time.Time) ([]byte, error) {
	start := time.Now()

	var fromDate, toDate *time.Time
	if from != nil {
		f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
		fromDate = &f
	}
	if to != nil {
		t := time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 0, time.UTC)
		toDate = &t
	}

	recs, err := s.corrections.All()
	if err != nil {
		return nil, fmt.Errorf("load correction log: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Corrections"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	if defaultIndex, _ := f.GetSheetIndex("Sheet1"); defaultIndex != -1 {
		_ = f.DeleteSheet("Sheet1")
	}

	headers := []string{
		"Timestamp",
		"Absender (Dateiname)",
		"Empfänger (Dateiname)",
		"Betreff (Dateiname)",
		"Bestätigte Entitäten",
		"Textauszug",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	exported := 0
	for _, r := range recs {
		if fromDate != nil && r.Timestamp.Before(*fromDate) {
			continue
		}
		if toDate != nil && r.Timestamp.After(*toDate) {
			continue
		}

		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		if !r.Timestamp.IsZero() {
			write(1, r.Timestamp.UTC().Format("2006-01-02 15:04:05"))
		} else {
			write(1, "")
		}
		write(2, r.FilenameEntities.Absender)
		write(3, r.FilenameEntities.Empfaenger)
		write(4, r.FilenameEntities.Betreff)
		write(5, formatEntities(r.ManualEntities))
		write(6, excerpt(r.Text, 200))

		row++
		exported++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}

	s.logger.Info("export.corrections",
		"records", exported,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func formatEntities(entities []corrlog.Annotation) string {
	parts := make([]string, 0, len(entities))
	for _, e := range entities {
		parts = append(parts, fmt.Sprintf("%s=%q [%d:%d]", e.Label, e.Substring, e.Start, e.End))
	}
	return strings.Join(parts, "; ")
}

func excerpt(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= max {
		return text
	}
	// Cut on a rune boundary.
	cut := max
	for cut > 0 && !isRuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "…"
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
