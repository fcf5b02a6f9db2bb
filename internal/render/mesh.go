// Package render holds the geometry produced for a pileup track and
// rasterizes it with fogleman/gg.
package render

// Transform is the affine placement of a mesh inside its track.
type Transform struct {
	ScaleX float64 `json:"scale_x"`
	ScaleY float64 `json:"scale_y"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// IdentityTransform leaves vertices where they are.
func IdentityTransform() Transform {
	return Transform{ScaleX: 1, ScaleY: 1}
}

// Apply maps a vertex through the transform.
func (t Transform) Apply(x, y float64) (float64, float64) {
	return x*t.ScaleX + t.X, y*t.ScaleY + t.Y
}

// Graphics is a drawable whose placement can be changed without touching
// its vertex data.
type Graphics interface {
	SetScaleX(k float64)
	SetPositionX(x float64)
	SetScaleY(k float64)
	SetPositionY(y float64)
	Transform() Transform
}

// Backend turns vertex buffers into drawables.
type Backend interface {
	NewGraphics(positions, colors []float32) Graphics
}

// Mesh is a triangle list: two floats of position and four floats of RGBA
// per vertex, three vertices per triangle.
type Mesh struct {
	Positions []float32
	Colors    []float32
	transform Transform
}

// NewMesh creates a mesh at the identity transform. The buffers are owned by
// the mesh from now on.
func NewMesh(positions, colors []float32) *Mesh {
	return &Mesh{
		Positions: positions,
		Colors:    colors,
		transform: IdentityTransform(),
	}
}

func (m *Mesh) SetScaleX(k float64)    { m.transform.ScaleX = k }
func (m *Mesh) SetPositionX(x float64) { m.transform.X = x }
func (m *Mesh) SetScaleY(k float64)    { m.transform.ScaleY = k }
func (m *Mesh) SetPositionY(y float64) { m.transform.Y = y }

// Transform returns the current placement.
func (m *Mesh) Transform() Transform { return m.transform }

// VertexCount returns the number of vertices in the mesh.
func (m *Mesh) VertexCount() int { return len(m.Positions) / 2 }

// Empty reports whether the mesh has nothing to draw.
func (m *Mesh) Empty() bool { return len(m.Positions) == 0 }

// MeshBackend creates in-memory meshes.
type MeshBackend struct{}

// NewGraphics implements Backend.
func (MeshBackend) NewGraphics(positions, colors []float32) Graphics {
	return NewMesh(positions, colors)
}
