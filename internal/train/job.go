package train

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/mlehnert/docner/internal/corrlog"
)

// Job runs a full retraining cycle: gather examples, train, swap the
// model in, clear the correction log. At most one cycle runs at a
// time.
type Job struct {
	trainer     Trainer
	corrections *corrlog.Store[corrlog.CorrectionRecord]
	training    *corrlog.Store[corrlog.TrainingRecord]
	modelDir    string
	epochs      int

	running atomic.Bool
	log     *slog.Logger
}

func NewJob(
	trainer Trainer,
	corrections *corrlog.Store[corrlog.CorrectionRecord],
	training *corrlog.Store[corrlog.TrainingRecord],
	modelDir string,
	epochs int,
	logger *slog.Logger,
) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		trainer:     trainer,
		corrections: corrections,
		training:    training,
		modelDir:    modelDir,
		epochs:      epochs,
		log:         logger,
	}
}

// Running reports whether a cycle is in flight.
func (j *Job) Running() bool {
	return j.running.Load()
}

// Run executes one retraining cycle synchronously. A second concurrent
// call fails fast instead of queueing.
func (j *Job) Run(ctx context.Context) error {
	if !j.running.CompareAndSwap(false, true) {
		return fmt.Errorf("retraining already in progress")
	}
	defer j.running.Store(false)

	examples, err := j.training.All()
	if err != nil {
		return fmt.Errorf("load training log: %w", err)
	}
	if len(examples) == 0 {
		// Older deployments only kept the correction log.
		records, err := j.corrections.All()
		if err != nil {
			return fmt.Errorf("load correction log: %w", err)
		}
		examples = ExamplesFromCorrections(records)
	}
	if len(examples) == 0 {
		return fmt.Errorf("nothing to train on")
	}

	artifactDir, err := j.trainer.Train(ctx, j.modelDir, examples, j.epochs)
	if err != nil {
		return err
	}
	if err := SwapModelDir(j.modelDir, artifactDir); err != nil {
		return err
	}

	// Only the correction counter resets; the training log keeps
	// accumulating so future cycles see the full history.
	if err := j.corrections.Clear(); err != nil {
		return fmt.Errorf("clear correction log: %w", err)
	}
	j.log.Info("train.cycle_done", "examples", len(examples), "model_dir", j.modelDir)
	return nil
}

// Start kicks off a cycle in the background. It returns false when a
// cycle is already running.
func (j *Job) Start(ctx context.Context) bool {
	if j.running.Load() {
		return false
	}
	go func() {
		if err := j.Run(ctx); err != nil {
			j.log.Error("train.cycle_failed", "error", err)
		}
	}()
	return true
}
