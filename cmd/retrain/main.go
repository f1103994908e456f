// retrain runs one model retraining cycle by hand: gather training
// examples, run the configured training command, swap the new model in
// and reset the correction counter. With -generate it first builds
// training examples from an already-sorted document folder.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/mlehnert/docner/internal/common"
	"github.com/mlehnert/docner/internal/corrlog"
	"github.com/mlehnert/docner/internal/lifecycle"
	"github.com/mlehnert/docner/internal/locate"
	"github.com/mlehnert/docner/internal/ocr"
	"github.com/mlehnert/docner/internal/pipeline"
	"github.com/mlehnert/docner/internal/textfix"
	"github.com/mlehnert/docner/internal/train"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	generate := flag.String("generate", "", "folder of sorted documents to build training examples from")
	flag.Parse()

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	corrections := corrlog.NewCorrectionStore(cfg.Train.CorrectionLog, logger)
	training := corrlog.NewTrainingStore(cfg.Train.TrainingLog, logger)

	if *generate != "" {
		dict, err := textfix.LoadDictionary(cfg.Correction.DictionaryPath)
		if err != nil {
			logger.Warn("dictionary unavailable", "error", err)
			dict = nil
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
		}, nil, logger)
		corrector := textfix.NewCorrector(textfix.DefaultConfig(), dict, logger)
		locator := locate.New(cfg.Locate.FuzzyThreshold, cfg.Locate.SemanticThreshold, nil, logger)
		manager := lifecycle.NewManager(cfg.Dirs, corrections, training, cfg.Train.Threshold, logger)
		proc := pipeline.New(extractor, corrector, locator, manager, training, logger)

		n, err := proc.GenerateFromFolder(ctx, *generate)
		if err != nil {
			logger.Error("generate training data", "dir", *generate, "error", err)
			os.Exit(1)
		}
		logger.Info("training data generated", "dir", *generate, "examples", n)
	}

	trainer := train.NewCommandTrainer(cfg.Train.Command, nil, logger)
	job := train.NewJob(trainer, corrections, training, cfg.Train.ModelDir, cfg.Train.Epochs, logger)
	if err := job.Run(ctx); err != nil {
		logger.Error("retraining failed", "error", err)
		os.Exit(1)
	}
	logger.Info("retraining complete", "model_dir", cfg.Train.ModelDir)
}
