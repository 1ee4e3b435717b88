// Package imageencoder turns raw frame payloads into image files.
package imageencoder

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/user/depthcap/pkg/pipeline"
	"github.com/user/depthcap/pkg/ports"
)

// Encoder implements ports.FrameEncoder for PNG, TIFF and BMP.
type Encoder struct {
	format ports.ImageFormat
}

// New creates an encoder producing the given format.
func New(format ports.ImageFormat) *Encoder {
	return &Encoder{format: format}
}

// ParseFormat parses a configuration name into an image format.
func ParseFormat(s string) (ports.ImageFormat, error) {
	switch s {
	case "png", "":
		return ports.FormatPNG, nil
	case "tiff", "tif":
		return ports.FormatTIFF, nil
	case "bmp":
		return ports.FormatBMP, nil
	default:
		return ports.FormatPNG, fmt.Errorf("unsupported image format: %s", s)
	}
}

// Extension returns the file extension without the dot.
func (e *Encoder) Extension() string {
	return e.format.Extension()
}

// Encode converts the frame payload and encodes it.
func (e *Encoder) Encode(frame *pipeline.Frame) ([]byte, error) {
	img, err := ToImage(frame)
	if err != nil {
		return nil, err
	}
	return EncodeImage(img, e.format)
}

// EncodeImage encodes an image to the specified format.
func EncodeImage(img image.Image, format ports.ImageFormat) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case ports.FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode PNG: %w", err)
		}
	case ports.FormatTIFF:
		opts := &tiff.Options{Compression: tiff.Deflate}
		if err := tiff.Encode(&buf, img, opts); err != nil {
			return nil, fmt.Errorf("encode TIFF: %w", err)
		}
	case ports.FormatBMP:
		// BMP has no 16-bit grayscale.
		if g16, ok := img.(*image.Gray16); ok {
			img = downsample16(g16)
		}
		if err := bmp.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode BMP: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format: %d", format)
	}

	return buf.Bytes(), nil
}

// ToImage wraps a frame payload in an image.Image without losing depth.
// Gray8 and Gray16 stay grayscale; RGB24 and BGR24 become RGBA.
func ToImage(frame *pipeline.Frame) (image.Image, error) {
	if err := frame.Validate(); err != nil {
		return nil, fmt.Errorf("frame %s #%d: %w", frame.StreamID, frame.Sequence, err)
	}
	w, h := frame.Width, frame.Height
	rect := image.Rect(0, 0, w, h)

	switch frame.Format {
	case pipeline.FormatGray8:
		img := image.NewGray(rect)
		copy(img.Pix, frame.Payload)
		return img, nil

	case pipeline.FormatGray16:
		// image.Gray16 is big endian, same as the payload.
		img := image.NewGray16(rect)
		copy(img.Pix, frame.Payload)
		return img, nil

	case pipeline.FormatRGB24, pipeline.FormatBGR24:
		img := image.NewRGBA(rect)
		src := frame.Payload
		for i, j := 0, 0; i < len(src); i, j = i+3, j+4 {
			r, g, b := src[i], src[i+1], src[i+2]
			if frame.Format == pipeline.FormatBGR24 {
				r, b = b, r
			}
			img.Pix[j] = r
			img.Pix[j+1] = g
			img.Pix[j+2] = b
			img.Pix[j+3] = 0xff
		}
		return img, nil

	default:
		return nil, fmt.Errorf("unsupported pixel format: %s", frame.Format)
	}
}

func downsample16(src *image.Gray16) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := src.Gray16At(x, y).Y
			dst.SetGray(x, y, color.Gray{Y: uint8(v >> 8)})
		}
	}
	return dst
}

// Ensure Encoder implements ports.FrameEncoder
var _ ports.FrameEncoder = (*Encoder)(nil)
