package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/user/depthcap/pkg/pipeline"
	"github.com/user/depthcap/pkg/ports"
)

// FrameSource is a scripted implementation of ports.FrameSource.
// Next returns Frames in order, then ErrTimeout after Delay, or Err
// once the script is exhausted when Err is set.
type FrameSource struct {
	mu sync.Mutex

	Stream pipeline.StreamID
	Frames []*pipeline.Frame
	Delay  time.Duration // Pause before each call returns
	Err    error         // Returned after the script is exhausted

	NextFunc func(ctx context.Context) (*pipeline.Frame, error)

	pos   int
	Calls int
}

// NewScriptedSource creates a source emitting count gray frames with
// timestamps spaced by cadence.
func NewScriptedSource(id pipeline.StreamID, count int, cadence time.Duration) *FrameSource {
	frames := make([]*pipeline.Frame, count)
	for i := range frames {
		frames[i] = &pipeline.Frame{
			StreamID:  id,
			Sequence:  uint64(i),
			Timestamp: time.Duration(i) * cadence,
			Payload:   []byte{byte(i), byte(i), byte(i), byte(i)},
			Width:     2,
			Height:    2,
			Format:    pipeline.FormatGray8,
		}
	}
	return &FrameSource{Stream: id, Frames: frames, Delay: cadence}
}

func (m *FrameSource) ID() pipeline.StreamID {
	return m.Stream
}

func (m *FrameSource) Next(ctx context.Context) (*pipeline.Frame, error) {
	if m.NextFunc != nil {
		return m.NextFunc(ctx)
	}

	m.mu.Lock()
	m.Calls++
	delay := m.Delay
	var frame *pipeline.Frame
	if m.pos < len(m.Frames) {
		frame = m.Frames[m.pos]
		m.pos++
	}
	err := m.Err
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	switch {
	case frame != nil:
		return frame, nil
	case err != nil:
		return nil, err
	default:
		return nil, fmt.Errorf("%w: stream %s", pipeline.ErrTimeout, m.Stream)
	}
}

// Remaining returns how many scripted frames are left.
func (m *FrameSource) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Frames) - m.pos
}

var _ ports.FrameSource = (*FrameSource)(nil)
