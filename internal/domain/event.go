package domain

import "time"

const (
	// DefaultCategory is applied when no explicit category is supplied.
	DefaultCategory = "Auto-Detected"
	// DefaultDescription is applied when no description is supplied.
	DefaultDescription = "Newly detected event"
)

// EventSource records which ingestion path created an event.
type EventSource string

const (
	SourceScan   EventSource = "scan"
	SourceUpload EventSource = "upload"
)

// Event is the persisted record describing one detected or uploaded image.
type Event struct {
	ID          string      `json:"id"`
	Filename    string      `json:"filename"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
	Timestamp   time.Time   `json:"timestamp"`
	Source      EventSource `json:"source"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// EventInput carries the caller-controlled fields of a new event. The store
// assigns ID and CreatedAt.
type EventInput struct {
	Filename    string
	Category    string
	Description string
	Timestamp   time.Time
	Source      EventSource
}

// WithDefaults returns a copy of the input with empty category and
// description replaced by their defaults.
func (in EventInput) WithDefaults() EventInput {
	if in.Category == "" {
		in.Category = DefaultCategory
	}
	if in.Description == "" {
		in.Description = DefaultDescription
	}
	return in
}

// Validate checks the fields every stored event must have.
func (in EventInput) Validate() error {
	if in.Filename == "" {
		return ErrEmptyFilename
	}
	if in.Timestamp.IsZero() {
		return ErrInvalidTimestamp
	}
	return nil
}
