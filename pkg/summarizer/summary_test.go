package summarizer

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/user/depthcap/pkg/mocks"
	"github.com/user/depthcap/pkg/pipeline"
)

func TestNewSummary(t *testing.T) {
	before := time.Now()
	summary := NewSummary()
	after := time.Now()

	if summary.GeneratedAt.Before(before) || summary.GeneratedAt.After(after) {
		t.Errorf("GeneratedAt should be between %v and %v, got %v",
			before, after, summary.GeneratedAt)
	}
}

func TestBuilder(t *testing.T) {
	start := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	summary := NewBuilder().
		WithSession(SessionInfo{ID: "abc", StartedAt: start, StoppedAt: start.Add(90 * time.Second), State: "stopped"}).
		WithSettings(Settings{OutputDir: "./images", Interval: time.Second}).
		WithSets(SetInfo{Emitted: 90, Persisted: 88, SyncOverflow: 1, PersistOverflow: 1}).
		AddStream(StreamInfo{ID: pipeline.StreamColor, Frames: 2700}).
		AddStream(StreamInfo{ID: pipeline.StreamRectLeft, Frames: 2690}).
		Build()

	if summary.Session.Duration() != 90*time.Second {
		t.Errorf("expected 90s duration, got %v", summary.Session.Duration())
	}
	if summary.Sets.Dropped() != 2 {
		t.Errorf("expected 2 dropped sets, got %d", summary.Sets.Dropped())
	}
	if len(summary.Streams) != 2 || summary.Streams[1].ID != pipeline.StreamRectLeft {
		t.Errorf("expected streams in insertion order, got %+v", summary.Streams)
	}
}

func TestSessionInfo_DurationWhileRunning(t *testing.T) {
	s := SessionInfo{StartedAt: time.Now()}
	if s.Duration() != 0 {
		t.Errorf("expected zero duration without a stop time, got %v", s.Duration())
	}
}

func TestWriter_Write(t *testing.T) {
	fs := mocks.NewFileSystem()
	formatter := FormatFunc(func(s *Summary) string {
		return "session " + s.Session.ID
	})
	w := NewWriter(formatter, fs)

	summary := NewBuilder().WithSession(SessionInfo{ID: "xyz"}).Build()
	if err := w.Write("out/summary.md", summary); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, ok := fs.GetFile("out/summary.md")
	if !ok {
		t.Fatal("expected summary file")
	}
	if string(data) != "session xyz" {
		t.Errorf("unexpected contents %q", data)
	}
}

func TestWriter_WriteError(t *testing.T) {
	fs := mocks.NewFileSystem()
	fs.WriteFileFunc = func(path string, data []byte) error {
		return errors.New("read-only")
	}
	w := NewWriter(NewMarkdownFormatter(), fs)

	err := w.Write("summary.md", NewSummary())
	if err == nil || !strings.Contains(err.Error(), "read-only") {
		t.Errorf("expected wrapped write error, got %v", err)
	}
}
