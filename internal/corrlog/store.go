package corrlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	compiledCorrection = jsonschema.MustCompileString("correction.schema.json", correctionSchema)
	compiledTraining   = jsonschema.MustCompileString("training.schema.json", trainingSchema)
)

// Store is a mutex-guarded JSON array file of records. Every write is
// a read-modify-write with an atomic temp-file rename, so a crash
// never leaves a half-written log behind.
type Store[T any] struct {
	path   string
	schema *jsonschema.Schema

	mu  sync.Mutex
	log *slog.Logger
}

func NewCorrectionStore(path string, logger *slog.Logger) *Store[CorrectionRecord] {
	return newStore[CorrectionRecord](path, compiledCorrection, logger)
}

func NewTrainingStore(path string, logger *slog.Logger) *Store[TrainingRecord] {
	return newStore[TrainingRecord](path, compiledTraining, logger)
}

func newStore[T any](path string, schema *jsonschema.Schema, logger *slog.Logger) *Store[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store[T]{path: path, schema: schema, log: logger}
}

// Path returns the log file's location on disk.
func (s *Store[T]) Path() string {
	return s.path
}

// Append adds one record to the end of the log.
func (s *Store[T]) Append(rec T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	records = append(records, rec)
	if err := s.save(records); err != nil {
		return err
	}
	s.log.Info("corrlog.appended", "path", s.path, "count", len(records))
	return nil
}

// All returns every valid record in log order.
func (s *Store[T]) All() ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Count reports the number of valid records.
func (s *Store[T]) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.load()
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Clear empties the log.
func (s *Store[T]) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.save(nil); err != nil {
		return err
	}
	s.log.Info("corrlog.cleared", "path", s.path)
	return nil
}

// load reads and validates the log. Records failing schema validation
// are appended to the quarantine sidecar and dropped from the log;
// a file that is not a JSON array at all is quarantined wholesale.
// The caller must hold s.mu.
func (s *Store[T]) load() ([]T, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		s.log.Warn("corrlog.corrupt_file", "path", s.path, "error", err)
		if qerr := os.Rename(s.path, s.quarantinePath()); qerr != nil {
			return nil, fmt.Errorf("quarantine corrupt log: %w", qerr)
		}
		return nil, nil
	}

	var valid []T
	var quarantined []json.RawMessage
	for i, el := range elements {
		var v any
		if err := json.Unmarshal(el, &v); err != nil {
			quarantined = append(quarantined, el)
			continue
		}
		if err := s.schema.Validate(v); err != nil {
			s.log.Warn("corrlog.invalid_record", "path", s.path, "index", i, "error", err)
			quarantined = append(quarantined, el)
			continue
		}
		var rec T
		if err := json.Unmarshal(el, &rec); err != nil {
			s.log.Warn("corrlog.undecodable_record", "path", s.path, "index", i, "error", err)
			quarantined = append(quarantined, el)
			continue
		}
		valid = append(valid, rec)
	}

	if len(quarantined) > 0 {
		if err := s.quarantine(quarantined); err != nil {
			return nil, err
		}
		// Rewrite so quarantined records are not re-processed on the
		// next load.
		if err := s.save(valid); err != nil {
			return nil, err
		}
	}
	return valid, nil
}

// save writes records atomically via a temp file in the same
// directory. The caller must hold s.mu.
func (s *Store[T]) save(records []T) error {
	if records == nil {
		records = []T{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode log: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".corrlog-*")
	if err != nil {
		return fmt.Errorf("create temp log: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp log: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace log: %w", err)
	}
	return nil
}

func (s *Store[T]) quarantinePath() string {
	return s.path + ".quarantine"
}

// quarantine appends raw records as JSON lines to the sidecar file.
func (s *Store[T]) quarantine(records []json.RawMessage) error {
	f, err := os.OpenFile(s.quarantinePath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open quarantine: %w", err)
	}
	defer f.Close()
	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("write quarantine: %w", err)
		}
	}
	s.log.Warn("corrlog.quarantined", "path", s.quarantinePath(), "records", len(records))
	return nil
}
