package pipeline

import (
	"time"

	"kvpedit/internal/prefs"
	"kvpedit/internal/render"
)

// Stage is the progress of a document through the pipeline.
type Stage int

const (
	// Empty: the source text is empty or whitespace.
	Empty Stage = iota
	// Pending: source text is present and segmentation is scheduled or in
	// flight.
	Pending
	// Segmented: a segmentation result is stored.
	Segmented
	// Phoneticized: the rendering reflects the current segmented text.
	Phoneticized
)

func (s Stage) String() string {
	switch s {
	case Empty:
		return "empty"
	case Pending:
		return "pending"
	case Segmented:
		return "segmented"
	case Phoneticized:
		return "phoneticized"
	default:
		return "unknown"
	}
}

// RawPhonetics is the service output the rendering was computed from.
type RawPhonetics struct {
	Romanized string `json:"romanized"`
	Phonetic  string `json:"phonetic"`
}

// Document is the state of one editing session.
type Document struct {
	SessionID     string         `json:"session_id"`
	SourceText    string         `json:"source_text"`
	SegmentedText string         `json:"segmented_text"`
	Raw           *RawPhonetics  `json:"raw,omitempty"`
	Rendering     *render.Bundle `json:"rendering,omitempty"`
	Stage         Stage          `json:"stage"`
	UpdatedAt     time.Time      `json:"updated_at"`

	Variant      string            `json:"variant"`
	Granularity  prefs.Granularity `json:"granularity"`
	SanskritMode string            `json:"sanskrit_mode"`
	Anusvara     string            `json:"anusvara"`
}

// Snapshot is an immutable copy of the document published after every
// transition. Raw and Rendering point at values that are never mutated.
type Snapshot struct {
	Document
	// Busy is true while a service call is scheduled or in flight.
	Busy bool `json:"busy"`
}

// Display returns the selected variant of the rendering, or "" when there is
// none.
func (s Snapshot) Display() string {
	return s.Rendering.Variant(s.Variant)
}
