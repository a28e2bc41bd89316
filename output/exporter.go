package output

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bernabe05rodriguez-stack/CarScraper/models"
)

// ErrExporterClosed is returned when Add is called after Close.
var ErrExporterClosed = errors.New("exporter: closed")

// Counts summarises what an Exporter did with the listings it was given.
type Counts struct {
	Written    int
	Duplicates int
	Invalid    int
}

// Exporter validates and de-duplicates listings, then writes them in batches.
// The same listing reached through two jobs (say a search and its compare
// counterpart) is written once.
type Exporter struct {
	writer    Writer
	batchSize int

	mu     sync.Mutex
	seen   map[string]struct{}
	batch  []models.Listing
	counts Counts
	closed bool
}

// NewExporter wraps w. A non-positive batchSize defaults to 64.
func NewExporter(w Writer, batchSize int) *Exporter {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Exporter{
		writer:    w,
		batchSize: batchSize,
		seen:      make(map[string]struct{}),
		batch:     make([]models.Listing, 0, batchSize),
	}
}

// Add queues listings, flushing whenever a batch fills up.
func (e *Exporter) Add(listings []models.Listing) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrExporterClosed
	}

	for i := range listings {
		l := listings[i]
		if err := l.Validate(); err != nil {
			e.counts.Invalid++
			continue
		}
		if l.URL != "" {
			key := string(l.Platform) + "|" + l.URL
			if _, dup := e.seen[key]; dup {
				e.counts.Duplicates++
				continue
			}
			e.seen[key] = struct{}{}
		}
		e.batch = append(e.batch, l)
		if len(e.batch) >= e.batchSize {
			if err := e.flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close flushes the last batch and closes the writer.
func (e *Exporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	flushErr := e.flush()
	return errors.Join(flushErr, e.writer.Close())
}

// Flush writes any queued listings without closing the writer.
func (e *Exporter) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flush()
}

// Counts returns a snapshot of the counters.
func (e *Exporter) Counts() Counts {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counts
}

func (e *Exporter) flush() error {
	if len(e.batch) == 0 {
		return nil
	}
	if err := e.writer.Write(e.batch); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	e.counts.Written += len(e.batch)
	e.batch = e.batch[:0]
	return nil
}
