package models

import "time"

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// TaskState tracks one platform inside a job.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
	TaskCanceled  TaskState = "canceled"
)

// PlatformReport is the per-platform diagnostic kept on a job.
type PlatformReport struct {
	Platform  Platform      `json:"platform"`
	State     TaskState     `json:"state"`
	Listings  int           `json:"listings"`
	Attempts  int           `json:"attempts"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Error     string        `json:"error,omitempty"`
	Warnings  []string      `json:"warnings,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Job is one orchestration run as seen by pollers.
type Job struct {
	ID           string           `json:"id"`
	Spec         SearchSpec       `json:"spec"`
	Fingerprint  string           `json:"fingerprint"`
	Status       Status           `json:"status"`
	Progress     int              `json:"progress"`
	ListingCount int              `json:"listing_count"`
	Cached       bool             `json:"cached"`
	Canceled     bool             `json:"canceled,omitempty"`
	Error        string           `json:"error,omitempty"`
	Platforms    []PlatformReport `json:"platforms"`
	CreatedAt    time.Time        `json:"created_at"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}

// Clone returns a deep copy safe to hand to readers.
func (j Job) Clone() Job {
	out := j
	out.Spec.Platforms = append([]Platform(nil), j.Spec.Platforms...)
	out.Platforms = make([]PlatformReport, len(j.Platforms))
	for i, r := range j.Platforms {
		r.Warnings = append([]string(nil), r.Warnings...)
		out.Platforms[i] = r
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// Report returns the report for p, or nil.
func (j *Job) Report(p Platform) *PlatformReport {
	for i := range j.Platforms {
		if j.Platforms[i].Platform == p {
			return &j.Platforms[i]
		}
	}
	return nil
}
