// Package nullsink provides a no-op persister for dry runs.
package nullsink

import (
	"context"
	"sync/atomic"

	"github.com/user/depthcap/pkg/pipeline"
)

// Sink is a no-op implementation of pipeline.Persister.
// It discards every set and only counts what it was handed.
type Sink struct {
	sets   atomic.Uint64
	frames atomic.Uint64
}

// New creates a new NullSink.
func New() *Sink {
	return &Sink{}
}

// Execute counts the set and discards it.
func (s *Sink) Execute(ctx context.Context, set *pipeline.FrameSet) (pipeline.PersistResult, error) {
	s.sets.Add(1)
	s.frames.Add(uint64(len(set.Present())))
	return pipeline.PersistResult{SetIndex: set.Index}, nil
}

// Sets returns the number of sets discarded.
func (s *Sink) Sets() uint64 {
	return s.sets.Load()
}

// Frames returns the number of frames discarded.
func (s *Sink) Frames() uint64 {
	return s.frames.Load()
}

// Ensure Sink implements pipeline.Persister
var _ pipeline.Persister = (*Sink)(nil)
