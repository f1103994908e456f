// exportcorrections writes the correction log as an XLSX workbook.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mlehnert/docner/internal/common"
	"github.com/mlehnert/docner/internal/corrlog"
	"github.com/mlehnert/docner/internal/export"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	out := flag.String("out", "corrections.xlsx", "output workbook path")
	fromStr := flag.String("from", "", "window start (YYYY-MM-DD)")
	toStr := flag.String("to", "", "window end (YYYY-MM-DD)")
	flag.Parse()

	var from, to *time.Time
	if *fromStr != "" {
		t, err := time.Parse("2006-01-02", *fromStr)
		if err != nil {
			logger.Error("invalid -from", "value", *fromStr, "error", err)
			os.Exit(2)
		}
		from = &t
	}
	if *toStr != "" {
		t, err := time.Parse("2006-01-02", *toStr)
		if err != nil {
			logger.Error("invalid -to", "value", *toStr, "error", err)
			os.Exit(2)
		}
		to = &t
	}

	cfg := common.LoadConfig()
	corrections := corrlog.NewCorrectionStore(cfg.Train.CorrectionLog, logger)
	svc := export.NewService(corrections, logger)

	data, err := svc.ExportCorrectionsXLSX(from, to)
	if err != nil {
		logger.Error("export", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		logger.Error("write workbook", "path", *out, "error", err)
		os.Exit(1)
	}
	fmt.Println(*out)
}
