package ports

import (
	"github.com/user/depthcap/pkg/pipeline"
)

// ImageFormat specifies the on-disk image encoding.
type ImageFormat int

const (
	FormatPNG ImageFormat = iota
	FormatTIFF
	FormatBMP
)

// Extension returns the file extension without the dot.
func (f ImageFormat) Extension() string {
	switch f {
	case FormatTIFF:
		return "tiff"
	case FormatBMP:
		return "bmp"
	default:
		return "png"
	}
}

// FrameEncoder turns a raw frame into file bytes.
type FrameEncoder interface {
	// Encode encodes the frame payload.
	Encode(frame *pipeline.Frame) ([]byte, error)

	// Extension returns the file extension for encoded frames.
	Extension() string
}
