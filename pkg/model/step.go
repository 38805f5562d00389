package model

import "time"

// StepRecord describes one non-empty scheduler step. Records are produced on
// the scheduler goroutine and handed to observers by value.
type StepRecord struct {
	RunID      string        `json:"run_id"`
	Seq        uint64        `json:"seq"`
	Status     StepStatus    `json:"-"`
	StatusName string        `json:"status"`
	ThreadID   string        `json:"thread_id,omitempty"`
	ThreadName string        `json:"thread_name,omitempty"`
	Message    string        `json:"message,omitempty"`
	Trace      string        `json:"trace,omitempty"`
	Result     string        `json:"result,omitempty"` // JSON of the final return value
	Duration   time.Duration `json:"duration_ns"`
	CreatedAt  time.Time     `json:"created_at"`
}

// RunSummary describes one scheduler run and aggregates its journal entries.
type RunSummary struct {
	RunID     string     `json:"run_id"`
	Script    string     `json:"script,omitempty"`
	State     RunState   `json:"state"`
	Error     string     `json:"error,omitempty"`
	Steps     int        `json:"steps"`
	Failures  int        `json:"failures"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}
