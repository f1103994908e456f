// docnerd watches the scan inbox, extracts and corrects document
// text, and drives documents through their lifecycle. With -auto the
// daemon confirms documents from filename hints alone; otherwise
// extracted documents wait in the inbox for operator confirmation.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mlehnert/docner/internal/common"
	"github.com/mlehnert/docner/internal/corrlog"
	"github.com/mlehnert/docner/internal/embed"
	"github.com/mlehnert/docner/internal/ingest"
	"github.com/mlehnert/docner/internal/lifecycle"
	"github.com/mlehnert/docner/internal/locate"
	"github.com/mlehnert/docner/internal/ocr"
	"github.com/mlehnert/docner/internal/pipeline"
	"github.com/mlehnert/docner/internal/textfix"
	"github.com/mlehnert/docner/internal/train"
	"github.com/mlehnert/docner/internal/visionocr"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	auto := flag.Bool("auto", false, "confirm documents automatically from filename hints")
	initialScan := flag.Bool("initial-scan", true, "process files already in the inbox at startup")
	debounce := flag.Duration("debounce", 500*time.Millisecond, "settle time for inbox file events")
	flag.Parse()

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dict, err := textfix.LoadDictionary(cfg.Correction.DictionaryPath)
	if err != nil {
		logger.Warn("dictionary unavailable, autocorrection disabled",
			"path", cfg.Correction.DictionaryPath, "error", err)
		dict = nil
	}
	corrector := textfix.NewCorrector(textfix.DefaultConfig(), dict, logger)

	var secondary ocr.Engine
	if cfg.VisionOCR.BaseURL != "" {
		secondary = visionocr.New(cfg.VisionOCR, logger)
		logger.Info("secondary ocr engine enabled", "model", cfg.VisionOCR.Model)
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

	var embedder locate.Embedder
	if cfg.Embeddings.BaseURL != "" {
		embedder = embed.New(cfg.Embeddings, logger)
		logger.Info("semantic matching enabled", "model", cfg.Embeddings.Model)
	}
	locator := locate.New(cfg.Locate.FuzzyThreshold, cfg.Locate.SemanticThreshold, embedder, logger)

	corrections := corrlog.NewCorrectionStore(cfg.Train.CorrectionLog, logger)
	training := corrlog.NewTrainingStore(cfg.Train.TrainingLog, logger)
	manager := lifecycle.NewManager(cfg.Dirs, corrections, training, cfg.Train.Threshold, logger)
	proc := pipeline.New(extractor, corrector, locator, manager, training, logger)

	trainer := train.NewCommandTrainer(cfg.Train.Command, nil, logger)
	job := train.NewJob(trainer, corrections, training, cfg.Train.ModelDir, cfg.Train.Epochs, logger)

	evCh, errCh, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Inbox:       cfg.Dirs.Inbox,
		InitialScan: *initialScan,
		Debounce:    *debounce,
	})
	if err != nil {
		logger.Error("start watcher", "inbox", cfg.Dirs.Inbox, "error", err)
		os.Exit(1)
	}
	logger.Info("watching inbox", "dir", cfg.Dirs.Inbox, "auto", *auto)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case werr, ok := <-errCh:
			if ok {
				logger.Error("watcher", "error", werr)
			}
		case path, ok := <-evCh:
			if !ok {
				logger.Info("watcher closed")
				return
			}
			handle(ctx, proc, job, path, *auto, logger)
		}
	}
}

func handle(ctx context.Context, proc *pipeline.Processor, job *train.Job, path string, auto bool, logger *slog.Logger) {
	doc, err := proc.ProcessDocument(ctx, path)
	if err != nil {
		logger.Error("document failed", "path", path, "error", err)
		return
	}

	if !auto {
		// Surface the located hints and leave confirmation to the
		// operator tooling.
		for _, span := range proc.Suggest(ctx, doc) {
			logger.Info("suggestion",
				"path", path, "label", span.Label, "text", span.Text,
				"method", span.Method, "score", span.Score)
		}
		return
	}

	annotations := proc.AutoAnnotate(ctx, doc)
	if len(annotations) == 0 {
		logger.Warn("no entities located, skipping", "path", path)
		if err := proc.Manager.Skip(doc); err != nil {
			logger.Error("skip document", "path", path, "error", err)
		}
		return
	}
	if err := proc.Confirm(doc, annotations); err != nil {
		logger.Error("confirm document", "path", path, "error", err)
		return
	}

	due, err := proc.Manager.TrainingDue()
	if err != nil {
		logger.Error("check retraining threshold", "error", err)
		return
	}
	if due {
		if job.Start(ctx) {
			logger.Info("retraining started")
		}
	}
}
