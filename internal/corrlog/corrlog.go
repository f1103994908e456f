// Package corrlog persists operator corrections and training examples
// as JSON array files. Records are validated against a schema on read;
// invalid ones are moved to a quarantine sidecar instead of being
// silently dropped.
package corrlog

import (
	"time"
)

// FilenameEntities are the entity candidates the filename encoded when
// the document was processed.
type FilenameEntities struct {
	Absender   string `json:"absender"`
	Empfaenger string `json:"empfänger"`
	Betreff    string `json:"betreff"`
}

// Annotation is an operator-confirmed entity span. Offsets are byte
// positions into the record's text, End exclusive.
type Annotation struct {
	Start     int    `json:"start"`
	End       int    `json:"end"`
	Label     string `json:"label"`
	Substring string `json:"substring"`
}

// CorrectionRecord is one confirmed document: the corrected text, what
// the filename suggested, and what the operator actually marked.
type CorrectionRecord struct {
	Text             string           `json:"text"`
	FilenameEntities FilenameEntities `json:"filename_entities"`
	ManualEntities   []Annotation     `json:"manual_entities"`
	Timestamp        time.Time        `json:"timestamp"`
}

// TrainingEntity is one labeled span in a training example. Soll is
// the expected surface form, Ist what the text actually contains at
// the span.
type TrainingEntity struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Label string `json:"label"`
	Soll  string `json:"soll"`
	Ist   string `json:"ist"`
}

// TrainingRecord is one training example for the entity model.
type TrainingRecord struct {
	Text             string           `json:"text"`
	Entities         []TrainingEntity `json:"entities"`
	FilenameEntities FilenameEntities `json:"filename_entities"`
}
