package mocks

import (
	"image"

	"github.com/user/depthcap/pkg/pipeline"
	"github.com/user/depthcap/pkg/ports"
)

// MontageRenderer is a mock implementation of ports.MontageRenderer.
type MontageRenderer struct {
	RenderFunc func(set *pipeline.FrameSet) (image.Image, error)

	Rendered []uint64
}

func (m *MontageRenderer) Render(set *pipeline.FrameSet) (image.Image, error) {
	m.Rendered = append(m.Rendered, set.Index)
	if m.RenderFunc != nil {
		return m.RenderFunc(set)
	}
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

var _ ports.MontageRenderer = (*MontageRenderer)(nil)
