package track

import (
	"math"

	"github.com/pileup-tiles/server/internal/scale"
)

// ValueTransform is the vertical zoom (K) and pan (Y) applied to the rows.
type ValueTransform struct {
	K float64 `json:"k"`
	Y float64 `json:"y"`
}

// IdentityTransform is the unzoomed, unpanned transform.
var IdentityTransform = ValueTransform{K: 1, Y: 0}

// Scalable is anything whose horizontal placement can be changed without
// rebuilding it.
type Scalable interface {
	SetScaleX(k float64)
	SetPositionX(x float64)
}

// ZoomFunc composes a vertical zoom gesture with the current transform.
type ZoomFunc func(pivotY, kMultiplier float64, current ValueTransform, height float64) ValueTransform

// Rescale stretches g, drawn at drawnAt, so it lines up with the live
// scale. It touches no vertex data and keeps no state.
func Rescale(g Scalable, live, drawnAt scale.Linear) {
	tileK := drawnAt.DomainWidth() / live.DomainWidth()
	newRange0 := drawnAt.Map(live.Domain[0])

	g.SetScaleX(tileK)
	g.SetPositionX(-newRange0 * tileK)
}

// ApplyVerticalPan moves the rows by dY pixels. The move is rejected, not
// clamped, if it would scroll past the top or the fully scrolled bottom.
func ApplyVerticalPan(current ValueTransform, dY, height float64) (ValueTransform, bool) {
	y := current.Y + dY/current.K
	if y > -(current.K-1)*height && y < 0 {
		return ValueTransform{K: current.K, Y: y}, true
	}
	return current, false
}

// ZoomedY zooms around pivotY, keeping the pivot's content in place, and
// clamps the result so the rows always cover the track. K never drops
// below 1.
func ZoomedY(pivotY, kMultiplier float64, current ValueTransform, height float64) ValueTransform {
	k0 := current.K
	t0 := current.Y
	dp := (pivotY - t0) / k0
	k1 := math.Max(k0/kMultiplier, 1)

	t1 := k0*dp + t0 - k1*dp
	t1 = math.Max(t1, -(k1-1)*height)
	t1 = math.Min(t1, 0)

	return ValueTransform{K: k1, Y: t1}
}

// TransformManager keeps the scale the geometry was last built at and the
// current vertical transform. Both are replaced, never mutated.
type TransformManager struct {
	drawnAt scale.Linear
	value   ValueTransform
	zoom    ZoomFunc
}

// NewTransformManager creates a manager at the identity transforms. A nil
// zoom function selects ZoomedY.
func NewTransformManager(zoom ZoomFunc) *TransformManager {
	if zoom == nil {
		zoom = ZoomedY
	}
	return &TransformManager{
		drawnAt: scale.Identity(),
		value:   IdentityTransform,
		zoom:    zoom,
	}
}

// DrawnAt returns the scale the current geometry was built at.
func (m *TransformManager) DrawnAt() scale.Linear { return m.drawnAt }

// SetDrawnAt records the scale of freshly built geometry.
func (m *TransformManager) SetDrawnAt(s scale.Linear) { m.drawnAt = s }

// Value returns the current vertical transform.
func (m *TransformManager) Value() ValueTransform { return m.value }

// Rescale aligns g with the live scale using the recorded drawn-at scale.
func (m *TransformManager) Rescale(g Scalable, live scale.Linear) {
	Rescale(g, live, m.drawnAt)
}

// Pan applies a vertical pan and reports whether it was accepted.
func (m *TransformManager) Pan(dY, height float64) bool {
	next, ok := ApplyVerticalPan(m.value, dY, height)
	m.value = next
	return ok
}

// Zoom applies a vertical zoom gesture and returns the new transform.
func (m *TransformManager) Zoom(pivotY, kMultiplier, height float64) ValueTransform {
	m.value = m.zoom(pivotY, kMultiplier, m.value, height)
	return m.value
}
