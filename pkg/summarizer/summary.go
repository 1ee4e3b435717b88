// Package summarizer provides summary generation for capture sessions.
package summarizer

import (
	"time"

	"github.com/user/depthcap/pkg/pipeline"
)

// Summary contains all data collected during a capture session.
type Summary struct {
	// Metadata
	GeneratedAt time.Time

	// Session lifecycle
	Session SessionInfo

	// Capture settings
	Settings Settings

	// Set counters
	Sets SetInfo

	// Per-stream counters, in configured order
	Streams []StreamInfo
}

// SessionInfo describes one run of the controller.
type SessionInfo struct {
	ID         string
	StartedAt  time.Time
	StoppedAt  time.Time
	State      string
	FatalError string
}

// Duration returns the session length.
func (s SessionInfo) Duration() time.Duration {
	if s.StartedAt.IsZero() || s.StoppedAt.IsZero() {
		return 0
	}
	return s.StoppedAt.Sub(s.StartedAt)
}

// Settings contains the capture configuration.
type Settings struct {
	OutputDir     string
	ImageFormat   string
	Interval      time.Duration
	QueueCapacity int
	MaxFailures   int
	DryRun        bool
	Streams       []pipeline.StreamConfig
}

// SetInfo contains FrameSet counters.
type SetInfo struct {
	Emitted         uint64
	Partial         uint64
	SyncOverflow    uint64
	CadenceSkipped  uint64
	PersistOverflow uint64
	Persisted       uint64
	Failed          uint64
	Files           uint64
	LastIndex       int64
	LastError       string
}

// Dropped returns the number of sets that never reached the sink.
func (s SetInfo) Dropped() uint64 {
	return s.SyncOverflow + s.PersistOverflow
}

// StreamInfo contains counters for one stream.
type StreamInfo struct {
	ID       pipeline.StreamID
	Frames   uint64
	Timeouts uint64
	Errors   uint64
	Dropped  uint64
	Absent   uint64
}

// NewSummary creates a new Summary with the current timestamp.
func NewSummary() *Summary {
	return &Summary{
		GeneratedAt: time.Now(),
	}
}

// Builder provides a fluent interface for building a Summary.
type Builder struct {
	summary *Summary
}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{
		summary: NewSummary(),
	}
}

// WithSession sets session information.
func (b *Builder) WithSession(session SessionInfo) *Builder {
	b.summary.Session = session
	return b
}

// WithSettings sets capture settings.
func (b *Builder) WithSettings(settings Settings) *Builder {
	b.summary.Settings = settings
	return b
}

// WithSets sets FrameSet counters.
func (b *Builder) WithSets(sets SetInfo) *Builder {
	b.summary.Sets = sets
	return b
}

// AddStream appends counters for one stream.
func (b *Builder) AddStream(stream StreamInfo) *Builder {
	b.summary.Streams = append(b.summary.Streams, stream)
	return b
}

// Build returns the constructed Summary.
func (b *Builder) Build() *Summary {
	return b.summary
}
