// Package ports defines interfaces for external dependencies.
package ports

import (
	"context"

	"github.com/user/depthcap/pkg/pipeline"
)

// FrameSource is the only call across the device boundary.
type FrameSource interface {
	// ID returns the stream this source produces.
	ID() pipeline.StreamID

	// Next returns the next frame. It blocks for at most the source's
	// configured deadline and returns pipeline.ErrTimeout when nothing
	// arrived, or an error wrapping pipeline.ErrDisconnected once the
	// device link is gone.
	Next(ctx context.Context) (*pipeline.Frame, error)
}

// Device owns the hardware (or a simulation of it) and exposes one
// FrameSource per output stream.
type Device interface {
	// Start begins producing frames. Production stops when ctx is done or Close is called.
	Start(ctx context.Context) error

	// Sources returns the sources in configured stream order.
	Sources() []FrameSource

	// Close stops production and disconnects every source.
	Close() error
}
