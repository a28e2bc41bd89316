// Package notify publishes job lifecycle events.
package notify

import (
	"context"
	"time"

	"github.com/bernabe05rodriguez-stack/CarScraper/models"
)

// EventType is also used as the routing key.
type EventType string

const (
	JobCreated   EventType = "job.created"
	JobRunning   EventType = "job.running"
	JobCompleted EventType = "job.completed"
	JobFailed    EventType = "job.failed"
)

// Event is one job state transition.
type Event struct {
	Type         EventType               `json:"type"`
	JobID        string                  `json:"job_id"`
	Fingerprint  string                  `json:"fingerprint"`
	Status       models.Status           `json:"status"`
	Progress     int                     `json:"progress"`
	ListingCount int                     `json:"listing_count"`
	Cached       bool                    `json:"cached,omitempty"`
	Canceled     bool                    `json:"canceled,omitempty"`
	Error        string                  `json:"error,omitempty"`
	Platforms    []models.PlatformReport `json:"platforms,omitempty"`
	Time         time.Time               `json:"time"`
}

// NewEvent snapshots job for t.
func NewEvent(t EventType, job models.Job, now time.Time) Event {
	job = job.Clone()
	return Event{
		Type:         t,
		JobID:        job.ID,
		Fingerprint:  job.Fingerprint,
		Status:       job.Status,
		Progress:     job.Progress,
		ListingCount: job.ListingCount,
		Cached:       job.Cached,
		Canceled:     job.Canceled,
		Error:        job.Error,
		Platforms:    job.Platforms,
		Time:         now,
	}
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

func (Nop) Close() error { return nil }
