// Package source provides the latest-only FrameSource used between a
// device and the synchronizer.
package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/depthcap/pkg/pipeline"
	"github.com/user/depthcap/pkg/ports"
)

// DefaultTimeout bounds a Next call when no timeout is configured.
const DefaultTimeout = 500 * time.Millisecond

// Latest buffers at most one pending frame for one stream.
//
// Publish never blocks the producer: a new frame replaces an unconsumed
// one and the replacement is counted. Next waits up to Timeout.
type Latest struct {
	id      pipeline.StreamID
	timeout time.Duration
	box     *pipeline.Handoff[*pipeline.Frame]

	mu    sync.Mutex
	cause error

	published   atomic.Uint64
	overwritten atomic.Uint64
	delivered   atomic.Uint64
}

// NewLatest creates a source for stream id with the given Next deadline.
func NewLatest(id pipeline.StreamID, timeout time.Duration) *Latest {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Latest{
		id:      id,
		timeout: timeout,
		box:     pipeline.NewHandoff[*pipeline.Frame](1),
	}
}

// ID returns the stream this source produces.
func (l *Latest) ID() pipeline.StreamID {
	return l.id
}

// Publish hands a frame from the device side. It never blocks.
func (l *Latest) Publish(frame *pipeline.Frame) {
	l.published.Add(1)
	if _, replaced := l.box.Push(frame); replaced {
		l.overwritten.Add(1)
	}
}

// Disconnect marks the device link as lost. A frame already buffered is
// still delivered; afterwards Next fails with ErrDisconnected.
func (l *Latest) Disconnect(cause error) {
	l.mu.Lock()
	if l.cause == nil {
		if cause == nil {
			cause = errors.New("link closed")
		}
		l.cause = cause
	}
	l.mu.Unlock()
	l.box.Close()
}

// Next returns the pending frame, waiting up to the configured timeout.
func (l *Latest) Next(ctx context.Context) (*pipeline.Frame, error) {
	frame, err := l.box.Pop(ctx, l.timeout)
	switch {
	case err == nil:
		l.delivered.Add(1)
		return frame, nil
	case errors.Is(err, pipeline.ErrClosed):
		l.mu.Lock()
		cause := l.cause
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: stream %s: %v", pipeline.ErrDisconnected, l.id, cause)
	default:
		return nil, err
	}
}

// Stats reports producer-side counters.
func (l *Latest) Stats() Stats {
	return Stats{
		Published:   l.published.Load(),
		Overwritten: l.overwritten.Load(),
		Delivered:   l.delivered.Load(),
	}
}

// Stats summarises one source.
type Stats struct {
	Published   uint64
	Overwritten uint64 // Frames replaced before anyone consumed them
	Delivered   uint64
}

var _ ports.FrameSource = (*Latest)(nil)
