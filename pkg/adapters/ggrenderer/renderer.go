// Package ggrenderer provides a montage renderer implementation using the gg library.
package ggrenderer

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"

	"github.com/user/depthcap/pkg/adapters/imageencoder"
	"github.com/user/depthcap/pkg/pipeline"
	"github.com/user/depthcap/pkg/ports"
)

// Options controls the montage layout.
type Options struct {
	TileWidth  int // Width of one stream tile
	TileHeight int // Height of one stream tile
	Columns    int // Tiles per row, 0 picks a near-square grid
	Gap        int // Spacing between tiles
	FontPath   string
	FontSize   float64
}

// DefaultOptions returns the layout used for contact sheets.
func DefaultOptions() Options {
	return Options{
		TileWidth:  320,
		TileHeight: 200,
		Gap:        4,
		FontSize:   14,
	}
}

var (
	background  = color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff}
	placeholder = color.RGBA{R: 0x40, G: 0x10, B: 0x10, A: 0xff}
	labelColor  = color.White
	labelShadow = color.RGBA{A: 0xc0}
)

// Renderer implements ports.MontageRenderer using the gg library.
type Renderer struct {
	opts Options
}

// New creates a new Renderer.
func New(opts Options) *Renderer {
	def := DefaultOptions()
	if opts.TileWidth <= 0 {
		opts.TileWidth = def.TileWidth
	}
	if opts.TileHeight <= 0 {
		opts.TileHeight = def.TileHeight
	}
	if opts.Gap < 0 {
		opts.Gap = 0
	}
	if opts.FontSize <= 0 {
		opts.FontSize = def.FontSize
	}
	return &Renderer{opts: opts}
}

// Grid returns the number of columns and rows used for n tiles.
func (r *Renderer) Grid(n int) (cols, rows int) {
	if n <= 0 {
		return 0, 0
	}
	cols = r.opts.Columns
	if cols <= 0 {
		cols = int(math.Ceil(math.Sqrt(float64(n))))
	}
	if cols > n {
		cols = n
	}
	rows = (n + cols - 1) / cols
	return cols, rows
}

// Render lays out every stream of the set in order. Absent streams get a
// placeholder tile carrying the stream name.
func (r *Renderer) Render(set *pipeline.FrameSet) (image.Image, error) {
	if len(set.Order) == 0 {
		return nil, fmt.Errorf("set %d has no streams", set.Index)
	}

	o := r.opts
	cols, rows := r.Grid(len(set.Order))
	width := cols*o.TileWidth + (cols+1)*o.Gap
	height := rows*o.TileHeight + (rows+1)*o.Gap

	dc := gg.NewContext(width, height)
	dc.SetColor(background)
	dc.Clear()
	if o.FontPath != "" {
		// Keep the built-in face if the font cannot be loaded.
		_ = dc.LoadFontFace(o.FontPath, o.FontSize)
	}

	for i, id := range set.Order {
		x := o.Gap + (i%cols)*(o.TileWidth+o.Gap)
		y := o.Gap + (i/cols)*(o.TileHeight+o.Gap)

		frame := set.Frames[id]
		label := string(id)
		if frame == nil {
			dc.SetColor(placeholder)
			dc.DrawRectangle(float64(x), float64(y), float64(o.TileWidth), float64(o.TileHeight))
			dc.Fill()
			label += " (missing)"
		} else {
			src, err := imageencoder.ToImage(frame)
			if err != nil {
				return nil, err
			}
			dc.DrawImage(r.scale(src), x, y)
			label = fmt.Sprintf("%s #%d", id, frame.Sequence)
		}
		r.drawLabel(dc, label, x, y)
	}

	return dc.Image(), nil
}

// scale fits src into one tile.
func (r *Renderer) scale(src image.Image) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, r.opts.TileWidth, r.opts.TileHeight))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func (r *Renderer) drawLabel(dc *gg.Context, text string, x, y int) {
	tx := float64(x) + 6
	ty := float64(y) + 6 + r.opts.FontSize/2
	dc.SetColor(labelShadow)
	dc.DrawStringAnchored(text, tx+1, ty+1, 0, 0.5)
	dc.SetColor(labelColor)
	dc.DrawStringAnchored(text, tx, ty, 0, 0.5)
}

// Ensure Renderer implements ports.MontageRenderer
var _ ports.MontageRenderer = (*Renderer)(nil)
