package events

import "time"

// Job lifecycle event types.
const (
	TypeJobStarted  = "job.started"
	TypeJobSubject  = "job.subject"
	TypeJobError    = "job.error"
	TypeJobFinished = "job.finished"
)

// JobEvent is one lifecycle transition of a running ingestion job.
// RunID ties together all events of one runner invocation; resuming a
// job starts a new run.
type JobEvent struct {
	Type      string    `json:"type"`
	Job       string    `json:"job"`
	RunID     string    `json:"run_id"`
	SubjectID string    `json:"subject_id,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	Error     string    `json:"error,omitempty"`
	Done      int       `json:"done,omitempty"`
	Total     int       `json:"total,omitempty"`
	At        time.Time `json:"at"`
}
