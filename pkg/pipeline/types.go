package pipeline

import (
	"fmt"
	"time"
)

// =============================================================================
// Streams
// =============================================================================

// StreamID names one hardware output stream.
type StreamID string

// Stream names exposed by the stereo depth device.
const (
	StreamDisparity  StreamID = "disparity"
	StreamConfidence StreamID = "conf"
	StreamRectLeft   StreamID = "recLeft"
	StreamRectRight  StreamID = "recRight"
	StreamColor      StreamID = "color"
)

// PixelFormat describes the layout of a frame payload.
type PixelFormat int

const (
	// FormatGray8 is one byte per pixel.
	FormatGray8 PixelFormat = iota
	// FormatGray16 is two bytes per pixel, big endian.
	FormatGray16
	// FormatRGB24 is three interleaved bytes per pixel in R, G, B order.
	FormatRGB24
	// FormatBGR24 is three interleaved bytes per pixel in B, G, R order.
	FormatBGR24
)

// String returns the configuration name of the pixel format.
func (p PixelFormat) String() string {
	switch p {
	case FormatGray8:
		return "gray8"
	case FormatGray16:
		return "gray16"
	case FormatRGB24:
		return "rgb24"
	case FormatBGR24:
		return "bgr24"
	default:
		return "unknown"
	}
}

// BytesPerPixel returns the payload size of a single pixel.
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case FormatGray8:
		return 1
	case FormatGray16:
		return 2
	case FormatRGB24, FormatBGR24:
		return 3
	default:
		return 0
	}
}

// ParsePixelFormat parses a configuration name into a PixelFormat.
func ParsePixelFormat(s string) (PixelFormat, error) {
	switch s {
	case "gray8", "":
		return FormatGray8, nil
	case "gray16":
		return FormatGray16, nil
	case "rgb24":
		return FormatRGB24, nil
	case "bgr24":
		return FormatBGR24, nil
	default:
		return FormatGray8, fmt.Errorf("unknown pixel format %q", s)
	}
}

// StreamConfig describes one configured stream.
type StreamConfig struct {
	ID      StreamID
	Cadence time.Duration // Expected interval between frames
	MaxSkew time.Duration // Max timestamp distance from the set anchor

	// Geometry, used by the simulated device.
	Width  int
	Height int
	Format PixelFormat
}

// =============================================================================
// Frames
// =============================================================================

// Frame is one image produced by one stream.
// A Frame is immutable once published; ownership moves with the pointer.
type Frame struct {
	StreamID  StreamID
	Sequence  uint64
	Timestamp time.Duration // Device monotonic clock
	Payload   []byte
	Width     int
	Height    int
	Format    PixelFormat
}

// Validate checks that the payload matches the declared geometry.
func (f *Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", f.Width, f.Height)
	}
	bpp := f.Format.BytesPerPixel()
	if bpp == 0 {
		return fmt.Errorf("unsupported pixel format: %d", f.Format)
	}
	if want := f.Width * f.Height * bpp; len(f.Payload) != want {
		return fmt.Errorf("invalid payload size: got %d, expected %d", len(f.Payload), want)
	}
	return nil
}

// FrameSet bundles one frame per stream for a single capture instant.
// Every configured stream is a key of Frames; a nil value marks the
// stream as absent from a partial set.
type FrameSet struct {
	Index  uint64
	Order  []StreamID
	Frames map[StreamID]*Frame
}

// NewFrameSet creates a FrameSet with every stream in order marked absent.
func NewFrameSet(index uint64, order []StreamID) *FrameSet {
	frames := make(map[StreamID]*Frame, len(order))
	for _, id := range order {
		frames[id] = nil
	}
	return &FrameSet{
		Index:  index,
		Order:  order,
		Frames: frames,
	}
}

// Present returns the frames that are part of the set, in stream order.
func (s *FrameSet) Present() []*Frame {
	out := make([]*Frame, 0, len(s.Order))
	for _, id := range s.Order {
		if f := s.Frames[id]; f != nil {
			out = append(out, f)
		}
	}
	return out
}

// Absent returns the streams explicitly missing from the set.
func (s *FrameSet) Absent() []StreamID {
	var out []StreamID
	for _, id := range s.Order {
		if s.Frames[id] == nil {
			out = append(out, id)
		}
	}
	return out
}

// Partial reports whether any stream is absent.
func (s *FrameSet) Partial() bool {
	return len(s.Absent()) > 0
}

// Span returns the distance between the earliest and latest present timestamps.
func (s *FrameSet) Span() time.Duration {
	var lo, hi time.Duration
	first := true
	for _, f := range s.Present() {
		if first {
			lo, hi = f.Timestamp, f.Timestamp
			first = false
			continue
		}
		if f.Timestamp < lo {
			lo = f.Timestamp
		}
		if f.Timestamp > hi {
			hi = f.Timestamp
		}
	}
	return hi - lo
}
