package autosave

import "github.com/vonshlovens/nebula-notes/internal/note"

// Status is the save indicator shown to the user
type Status int

const (
	StatusIdle Status = iota
	StatusSaving
	StatusSaved
)

func (s Status) String() string {
	switch s {
	case StatusSaving:
		return "saving"
	case StatusSaved:
		return "saved"
	default:
		return "idle"
	}
}

// Outcome classifies a save request
type Outcome int

const (
	// OutcomeSaved means the repository accepted the write
	OutcomeSaved Outcome = iota
	// OutcomeSkipped means nothing was written: another save was in
	// flight, the session was closed, or there was nothing to save
	OutcomeSkipped
	// OutcomeRetrying means the write failed and a retry is scheduled
	OutcomeRetrying
	// OutcomeFailed means the write failed with no retry left
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSaved:
		return "saved"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeRetrying:
		return "retrying"
	default:
		return "failed"
	}
}

// Result describes what a save request did
type Result struct {
	Outcome Outcome
	// Note is the canonical note after a successful save
	Note note.Note
	// Attempt is zero for the first try and counts retries after that
	Attempt int
	Err     error
}
