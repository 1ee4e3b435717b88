package ports

import (
	"image"

	"github.com/user/depthcap/pkg/pipeline"
)

// MontageRenderer lays out every stream of a FrameSet on one canvas.
type MontageRenderer interface {
	// Render returns the contact sheet for the set. Absent streams are
	// drawn as labelled empty tiles.
	Render(set *pipeline.FrameSet) (image.Image, error)
}
