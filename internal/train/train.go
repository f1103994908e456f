// Package train retrains the entity model from accumulated training
// examples. The actual training happens in an external command; this
// package prepares its input, swaps the finished model into place and
// resets the correction counter.
package train

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/mlehnert/docner/internal/corrlog"
	"github.com/mlehnert/docner/internal/ocr"
)

// Trainer produces a new model directory from training examples.
type Trainer interface {
	Train(ctx context.Context, modelDir string, examples []corrlog.TrainingRecord, epochs int) (artifactDir string, err error)
}

// CommandTrainer shells out to a configured training command. The
// command receives the examples file, the current model directory, an
// output directory and the epoch count as flags, and must leave the
// trained model in the output directory.
type CommandTrainer struct {
	Command string
	Runner  ocr.Runner
	Log     *slog.Logger
}

func NewCommandTrainer(command string, runner ocr.Runner, logger *slog.Logger) *CommandTrainer {
	if runner == nil {
		runner = ocr.ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandTrainer{Command: command, Runner: runner, Log: logger}
}

func (t *CommandTrainer) Train(ctx context.Context, modelDir string, examples []corrlog.TrainingRecord, epochs int) (string, error) {
	if strings.TrimSpace(t.Command) == "" {
		return "", fmt.Errorf("no training command configured")
	}
	if len(examples) == 0 {
		return "", fmt.Errorf("no training examples")
	}

	examplesFile, err := writeExamples(examples)
	if err != nil {
		return "", err
	}
	defer os.Remove(examplesFile)

	artifactDir, err := os.MkdirTemp("", "docner-model-*")
	if err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}

	parts := strings.Fields(t.Command)
	args := append(parts[1:],
		"--examples", examplesFile,
		"--model", modelDir,
		"--output", artifactDir,
		"--epochs", strconv.Itoa(epochs),
	)

	t.Log.Info("train.start", "command", parts[0], "examples", len(examples), "epochs", epochs)
	_, stderr, err := t.Runner.Run(ctx, parts[0], args...)
	if err != nil {
		os.RemoveAll(artifactDir)
		return "", fmt.Errorf("training command: %w (stderr: %s)", err, stderr)
	}
	t.Log.Info("train.done", "artifact_dir", artifactDir)
	return artifactDir, nil
}

func writeExamples(examples []corrlog.TrainingRecord) (string, error) {
	f, err := os.CreateTemp("", "docner-examples-*.json")
	if err != nil {
		return "", fmt.Errorf("create examples file: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(examples); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write examples: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close examples file: %w", err)
	}
	return f.Name(), nil
}

// ExamplesFromCorrections converts correction records into training
// examples. Only corrections with at least one confirmed span
// contribute.
func ExamplesFromCorrections(records []corrlog.CorrectionRecord) []corrlog.TrainingRecord {
	var out []corrlog.TrainingRecord
	for _, rec := range records {
		if len(rec.ManualEntities) == 0 {
			continue
		}
		entities := make([]corrlog.TrainingEntity, 0, len(rec.ManualEntities))
		for _, a := range rec.ManualEntities {
			entities = append(entities, corrlog.TrainingEntity{
				Start: a.Start,
				End:   a.End,
				Label: a.Label,
				Soll:  a.Substring,
				Ist:   a.Substring,
			})
		}
		out = append(out, corrlog.TrainingRecord{
			Text:             rec.Text,
			Entities:         entities,
			FilenameEntities: rec.FilenameEntities,
		})
	}
	return out
}

// SwapModelDir replaces modelDir with artifactDir. The previous model
// is parked next to the new one until the swap succeeds, then removed.
func SwapModelDir(modelDir, artifactDir string) error {
	backup := modelDir + ".previous"
	os.RemoveAll(backup)

	hadModel := true
	if err := os.Rename(modelDir, backup); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("park old model: %w", err)
		}
		hadModel = false
	}
	if err := os.Rename(artifactDir, modelDir); err != nil {
		if hadModel {
			// Put the old model back so the locator keeps working.
			if rerr := os.Rename(backup, modelDir); rerr != nil {
				return fmt.Errorf("install new model: %w (restore failed: %v)", err, rerr)
			}
		}
		return fmt.Errorf("install new model: %w", err)
	}
	if hadModel {
		os.RemoveAll(backup)
	}
	return nil
}
