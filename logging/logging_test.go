package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type post struct {
	tag  string
	data map[string]interface{}
}

type fakePoster struct {
	mu    sync.Mutex
	posts []post
	err   error
}

func (p *fakePoster) Post(tag string, message interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posts = append(p.posts, post{tag: tag, data: message.(map[string]interface{})})
	return p.err
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Writer: &buf, JSON: true, Level: slog.LevelWarn})
	logger.Info("hidden")
	logger.Warn("platform failed", slog.String("platform", "bat"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["msg"] != "platform failed" || rec["platform"] != "bat" {
		t.Fatalf("record = %v", rec)
	}
}

func TestNewConsoleWithoutColor(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Writer: &buf})
	logger.Info("job finished", slog.Int("listings", 12))
	out := buf.String()
	if !strings.Contains(out, "job finished") || !strings.Contains(out, "listings=12") {
		t.Fatalf("output = %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("unexpected color codes in %q", out)
	}
}

func TestFluentHandlerPostsFlatRecords(t *testing.T) {
	poster := &fakePoster{}
	logger := slog.New(NewFluentHandler(poster, slog.LevelInfo)).
		With(slog.String("component", "orchestrator")).
		WithGroup("task")
	logger.Debug("ignored")
	logger.Error("platform task failed",
		slog.String("platform", "mobilede"),
		slog.Any("error", errors.New("blocked")),
		slog.Duration("duration", 1500*time.Millisecond),
	)

	if len(poster.posts) != 1 {
		t.Fatalf("posts = %d, want 1", len(poster.posts))
	}
	p := poster.posts[0]
	if p.tag != "error" {
		t.Fatalf("tag = %q, want error", p.tag)
	}
	want := map[string]interface{}{
		"component":     "orchestrator",
		"task.platform": "mobilede",
		"task.error":    "blocked",
		"task.duration": "1.5s",
		"message":       "platform task failed",
		"level":         "ERROR",
	}
	for k, v := range want {
		if p.data[k] != v {
			t.Fatalf("data[%q] = %v, want %v (all: %v)", k, p.data[k], v, p.data)
		}
	}
	if _, ok := p.data["timestamp"]; !ok {
		t.Fatal("missing timestamp")
	}
}

func TestFluentHandlerSwallowsPostErrors(t *testing.T) {
	poster := &fakePoster{err: errors.New("connection refused")}
	h := NewFluentHandler(poster, nil)
	logger := slog.New(h)
	logger.Info("still fine")
	if len(poster.posts) != 1 {
		t.Fatalf("posts = %d", len(poster.posts))
	}
}

func TestFanoutRespectsEachLevel(t *testing.T) {
	var console bytes.Buffer
	poster := &fakePoster{}
	logger := New(Options{
		Writer: &console,
		JSON:   true,
		Level:  slog.LevelDebug,
		Extra:  []slog.Handler{NewFluentHandler(poster, slog.LevelWarn)},
	})
	logger.Debug("debug only")
	logger.Warn("both")

	if n := strings.Count(console.String(), "\n"); n != 2 {
		t.Fatalf("console lines = %d, want 2", n)
	}
	if len(poster.posts) != 1 || poster.posts[0].data["message"] != "both" {
		t.Fatalf("fluent posts = %+v", poster.posts)
	}
}

func TestDialFluentRequiresTagPrefix(t *testing.T) {
	if _, err := DialFluent(FluentConfig{Host: "127.0.0.1", Port: 24224}); err == nil {
		t.Fatal("expected error")
	}
}
