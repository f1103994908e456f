package common

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Dirs       DirConfig
	OCR        OCRConfig
	Correction CorrectionConfig
	Locate     LocateConfig
	Train      TrainConfig
	VisionOCR  VisionOCRConfig
	Embeddings EmbeddingsConfig
}

// DirConfig holds the inbox and the terminal-state directories.
type DirConfig struct {
	Inbox     string
	Processed string
	Failed    string
	Skipped   string
}

// OCRConfig holds text-acquisition configuration.
type OCRConfig struct {
	Pdftotext   string
	Pdftoppm    string
	Tesseract   string
	Language    string
	DPI         int
	MaxPages    int
	MinOCRChars int
	PageWorkers int
}

// CorrectionConfig holds text-correction configuration.
type CorrectionConfig struct {
	DictionaryPath string
}

// LocateConfig holds entity-locator thresholds.
type LocateConfig struct {
	FuzzyThreshold    float64
	SemanticThreshold float64
}

// TrainConfig holds model and retraining configuration.
type TrainConfig struct {
	ModelDir      string
	Command       string
	Epochs        int
	Threshold     int
	CorrectionLog string
	TrainingLog   string
}

// VisionOCRConfig configures the optional secondary OCR engine.
type VisionOCRConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// EmbeddingsConfig configures the optional semantic-matching backend.
type EmbeddingsConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	dataDir := getEnv("DATA_DIR", "data")
	return &Config{
		Dirs: DirConfig{
			Inbox:     getEnv("INBOX_DIR", filepath.Join(dataDir, "pdfs")),
			Processed: getEnv("PROCESSED_DIR", filepath.Join(dataDir, "processed_pdfs")),
			Failed:    getEnv("FAILED_DIR", filepath.Join(dataDir, "failed_pdfs")),
			Skipped:   getEnv("SKIPPED_DIR", filepath.Join(dataDir, "skipped_pdfs")),
		},
		OCR: OCRConfig{
			Pdftotext:   getEnv("PDFTOTEXT", "pdftotext"),
			Pdftoppm:    getEnv("PDFTOPPM", "pdftoppm"),
			Tesseract:   getEnv("TESSERACT", "tesseract"),
			Language:    getEnv("OCR_LANGUAGE", "deu"),
			DPI:         getEnvAsInt("OCR_DPI", 300),
			MaxPages:    getEnvAsInt("OCR_MAX_PAGES", 0),
			MinOCRChars: getEnvAsInt("OCR_MIN_CHARS", 10),
			PageWorkers: getEnvAsInt("OCR_PAGE_WORKERS", 2),
		},
		Correction: CorrectionConfig{
			DictionaryPath: getEnv("DICTIONARY_PATH", filepath.Join(dataDir, "german_dictionary.txt")),
		},
		Locate: LocateConfig{
			FuzzyThreshold:    getEnvAsFloat64("LOCATE_FUZZY_THRESHOLD", 70),
			SemanticThreshold: getEnvAsFloat64("LOCATE_SEMANTIC_THRESHOLD", 0.7),
		},
		Train: TrainConfig{
			ModelDir:      getEnv("MODEL_DIR", filepath.Join(dataDir, "ner_model")),
			Command:       getEnv("TRAIN_COMMAND", ""),
			Epochs:        getEnvAsInt("TRAIN_EPOCHS", 5),
			Threshold:     getEnvAsInt("RETRAIN_THRESHOLD", 50),
			CorrectionLog: getEnv("CORRECTION_LOG", filepath.Join(dataDir, "correction_logs.json")),
			TrainingLog:   getEnv("TRAINING_LOG", filepath.Join(dataDir, "training_log.json")),
		},
		VisionOCR: VisionOCRConfig{
			BaseURL: getEnv("VISION_OCR_BASE_URL", ""),
			APIKey:  getEnv("VISION_OCR_API_KEY", ""),
			Model:   getEnv("VISION_OCR_MODEL", "gpt-4o-mini"),
			Timeout: getEnvAsDuration("VISION_OCR_TIMEOUT", 60*time.Second),
		},
		Embeddings: EmbeddingsConfig{
			BaseURL: getEnv("EMBEDDINGS_BASE_URL", ""),
			APIKey:  getEnv("EMBEDDINGS_API_KEY", ""),
			Model:   getEnv("EMBEDDINGS_MODEL", "nomic-embed-text"),
			Timeout: getEnvAsDuration("EMBEDDINGS_TIMEOUT", 30*time.Second),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Dirs.Inbox == "" {
		return NewAppError("CONFIG_ERROR", "INBOX_DIR is required", ErrInvalidInput)
	}
	if c.Train.CorrectionLog == "" {
		return NewAppError("CONFIG_ERROR", "CORRECTION_LOG is required", ErrInvalidInput)
	}
	if c.Train.TrainingLog == "" {
		return NewAppError("CONFIG_ERROR", "TRAINING_LOG is required", ErrInvalidInput)
	}
	if c.Train.Threshold <= 0 {
		return NewAppError("CONFIG_ERROR", "RETRAIN_THRESHOLD must be positive", ErrInvalidInput)
	}
	if c.OCR.DPI <= 0 {
		return NewAppError("CONFIG_ERROR", "OCR_DPI must be positive", ErrInvalidInput)
	}
	return nil
}
