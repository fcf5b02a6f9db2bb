package render

import (
	"bytes"
	"image/color"
	"image/png"
	"sync"

	"github.com/fogleman/gg"
)

// Config contains rasterizer configuration.
type Config struct {
	Width      int
	Height     int
	Background color.Color
}

// Rasterizer draws meshes into PNG snapshots.
type Rasterizer struct {
	config      Config
	contextPool sync.Pool
	bufferPool  sync.Pool
}

// NewRasterizer creates a new rasterizer producing Width x Height images.
func NewRasterizer(cfg Config) *Rasterizer {
	if cfg.Width <= 0 {
		cfg.Width = 1024
	}
	if cfg.Height <= 0 {
		cfg.Height = 256
	}
	if cfg.Background == nil {
		cfg.Background = color.White
	}
	return &Rasterizer{
		config: cfg,
		contextPool: sync.Pool{
			New: func() interface{} {
				return gg.NewContext(cfg.Width, cfg.Height)
			},
		},
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 64*1024))
			},
		},
	}
}

// Size returns the snapshot dimensions in pixels.
func (r *Rasterizer) Size() (int, int) {
	return r.config.Width, r.config.Height
}

// RenderPNG draws g, which must be a *Mesh, with its current transform
// applied. A nil or foreign Graphics yields a blank image.
func (r *Rasterizer) RenderPNG(g Graphics) ([]byte, error) {
	dc := r.contextPool.Get().(*gg.Context)
	defer r.contextPool.Put(dc)

	dc.SetColor(r.config.Background)
	dc.Clear()

	mesh, ok := g.(*Mesh)
	if !ok || mesh == nil || mesh.Empty() {
		return r.encodeContext(dc)
	}

	t := mesh.Transform()
	pos := mesh.Positions
	cols := mesh.Colors
	width := float64(r.config.Width)
	height := float64(r.config.Height)

	// One triangle is 3 vertices: 6 position floats and 12 colour floats.
	for p, c := 0, 0; p+6 <= len(pos) && c+4 <= len(cols); p, c = p+6, c+12 {
		x0, y0 := t.Apply(float64(pos[p]), float64(pos[p+1]))
		x1, y1 := t.Apply(float64(pos[p+2]), float64(pos[p+3]))
		x2, y2 := t.Apply(float64(pos[p+4]), float64(pos[p+5]))

		// Skip triangles entirely outside the image
		if max3(x0, x1, x2) < 0 || min3(x0, x1, x2) > width ||
			max3(y0, y1, y2) < 0 || min3(y0, y1, y2) > height {
			continue
		}

		dc.SetRGBA(float64(cols[c]), float64(cols[c+1]), float64(cols[c+2]), float64(cols[c+3]))
		dc.MoveTo(x0, y0)
		dc.LineTo(x1, y1)
		dc.LineTo(x2, y2)
		dc.ClosePath()
		dc.Fill()
	}

	return r.encodeContext(dc)
}

func (r *Rasterizer) encodeContext(dc *gg.Context) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		r.bufferPool.Put(buf)
	}()

	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(buf, dc.Image()); err != nil {
		return nil, err
	}

	// Copy buffer contents (buffer will be reused)
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}

func min3(a, b, c float64) float64 {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

func max3(a, b, c float64) float64 {
	if b > a {
		a = b
	}
	if c > a {
		a = c
	}
	return a
}
