package protocol

import "time"

// Transcript represents STT output broadcast on the bus by an upstream
// transcription engine. The runtime only consumes these, it never produces
// them (except through the verselink-feed utility).
type Transcript struct {
	SessionID  string    `json:"session_id"`
	Text       string    `json:"text"`
	Partial    bool      `json:"partial"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence,omitempty"`
}

// Detection announces a scripture reference detected in a transcript.
type Detection struct {
	ID          string    `json:"id"`
	Reference   string    `json:"reference"`
	Translation string    `json:"translation"`
	HeardText   string    `json:"heard_text"`
	Confidence  float64   `json:"confidence"`
	Timestamp   time.Time `json:"timestamp"`
}

// PendingUpdate announces a change to the pending buffer.
type PendingUpdate struct {
	Kind      string    `json:"kind"`
	ID        string    `json:"id,omitempty"`
	Pending   int       `json:"pending"`
	Timestamp time.Time `json:"timestamp"`
}

// DisplayStatus announces a stage display connection status change.
type DisplayStatus struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectTranscriptPartial = "stt.text.partial"
	SubjectTranscriptFinal   = "stt.text.final"
	SubjectDetection         = "detect.reference"
	SubjectPendingUpdated    = "pending.updated"
	SubjectDisplayStatus     = "display.status"
)
