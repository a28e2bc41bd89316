package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/bernabe05rodriguez-stack/CarScraper/models"
	amqp "github.com/rabbitmq/amqp091-go"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	sent   []published
	err    error
	closed bool
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func TestAMQPPublisherRoutesByEventType(t *testing.T) {
	ch := &fakeChannel{}
	p := newAMQPPublisher(ch, nil, "carscraper.jobs", nil)
	now := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	job := models.Job{
		ID:           "job-1",
		Status:       models.StatusCompleted,
		Progress:     100,
		ListingCount: 12,
		Platforms:    []models.PlatformReport{{Platform: models.PlatformBaT, State: models.TaskSucceeded, Listings: 12}},
	}

	if err := p.Publish(context.Background(), NewEvent(JobCompleted, job, now)); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	if len(ch.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(ch.sent))
	}
	sent := ch.sent[0]
	if sent.exchange != "carscraper.jobs" || sent.key != "job.completed" {
		t.Fatalf("routed to %s/%s", sent.exchange, sent.key)
	}
	if sent.msg.ContentType != "application/json" || sent.msg.DeliveryMode != amqp.Persistent || sent.msg.MessageId == "" {
		t.Fatalf("unexpected publishing properties: %+v", sent.msg)
	}

	var e Event
	if err := json.Unmarshal(sent.msg.Body, &e); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if e.JobID != "job-1" || e.ListingCount != 12 || len(e.Platforms) != 1 || !e.Time.Equal(now) {
		t.Fatalf("event body wrong: %+v", e)
	}
}

func TestAMQPPublisherErrors(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	p := newAMQPPublisher(ch, nil, "x", nil)
	if err := p.Publish(context.Background(), Event{Type: JobFailed}); err == nil {
		t.Fatal("expected the channel error")
	}
	if err := p.Close(); err != nil || !ch.closed {
		t.Fatalf("Close() = %v, closed=%v", err, ch.closed)
	}
	if err := p.Publish(context.Background(), Event{Type: JobFailed}); err == nil {
		t.Fatal("publishing after close should fail")
	}
}
