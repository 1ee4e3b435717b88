package mocks

import (
	"sync"

	"github.com/user/depthcap/pkg/pipeline"
	"github.com/user/depthcap/pkg/ports"
)

// FrameEncoder is a mock implementation of ports.FrameEncoder.
// By default it returns the raw payload unchanged.
type FrameEncoder struct {
	mu sync.Mutex

	EncodeFunc func(frame *pipeline.Frame) ([]byte, error)
	Ext        string

	// Recorded calls for verification
	Encoded []EncodeCall
}

// EncodeCall records a call to Encode.
type EncodeCall struct {
	StreamID pipeline.StreamID
	Sequence uint64
}

func (m *FrameEncoder) Encode(frame *pipeline.Frame) ([]byte, error) {
	m.mu.Lock()
	m.Encoded = append(m.Encoded, EncodeCall{StreamID: frame.StreamID, Sequence: frame.Sequence})
	m.mu.Unlock()
	if m.EncodeFunc != nil {
		return m.EncodeFunc(frame)
	}
	return frame.Payload, nil
}

func (m *FrameEncoder) Extension() string {
	if m.Ext != "" {
		return m.Ext
	}
	return "raw"
}

var _ ports.FrameEncoder = (*FrameEncoder)(nil)
