package types

import "time"

// Job status constants
const (
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// UnknownSpeaker is the sentinel speaker id used when no diarization turn
// overlaps a transcription segment.
const UnknownSpeaker = "UNKNOWN"

// SpeakerTurn is one diarization turn: a continuous interval attributed to
// one speaker. The set of turns for a recording is unordered and turns of
// different speakers may overlap each other.
type SpeakerTurn struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// Segment represents a timestamped segment of transcription
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Utterance is a transcription segment attributed to its dominant speaker.
// Speaker is UnknownSpeaker when no turn overlapped the segment.
type Utterance struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker"`
}

// LabeledUtterance is an Utterance with its inferred classroom role:
// "Teacher", "Student <N>" or "Unknown".
type LabeledUtterance struct {
	Utterance
	Role string `json:"speaker_role"`
}

// JobRecord is the operational metadata kept per processed request. The
// fused transcript itself is never stored.
type JobRecord struct {
	JobID          string    `json:"job_id"`
	Filename       string    `json:"filename"`
	Status         string    `json:"status"`
	Error          string    `json:"error,omitempty"`
	AudioDuration  float64   `json:"audio_duration"`
	UtteranceCount int       `json:"utterance_count"`
	SpeakerCount   int       `json:"speaker_count"`
	CreatedAt      time.Time `json:"created_at"`
}
