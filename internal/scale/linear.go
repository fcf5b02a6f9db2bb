// Package scale provides the one-dimensional linear scales used to map
// genomic coordinates onto track pixels.
package scale

// Linear maps Domain onto Range with a single affine function.
type Linear struct {
	Domain [2]float64 `json:"domain"`
	Range  [2]float64 `json:"range"`
}

// Identity returns the unit scale [0,1] -> [0,1].
func Identity() Linear {
	return Linear{Domain: [2]float64{0, 1}, Range: [2]float64{0, 1}}
}

// NewLinear creates a scale from a domain and range pair.
func NewLinear(domain, rng [2]float64) Linear {
	return Linear{Domain: domain, Range: rng}
}

// Map returns the range value for x.
func (s Linear) Map(x float64) float64 {
	d := s.Domain[1] - s.Domain[0]
	if d == 0 {
		return (s.Range[0] + s.Range[1]) / 2
	}
	t := (x - s.Domain[0]) / d
	return s.Range[0] + t*(s.Range[1]-s.Range[0])
}

// Invert returns the domain value for a range value y.
func (s Linear) Invert(y float64) float64 {
	r := s.Range[1] - s.Range[0]
	if r == 0 {
		return (s.Domain[0] + s.Domain[1]) / 2
	}
	t := (y - s.Range[0]) / r
	return s.Domain[0] + t*(s.Domain[1]-s.Domain[0])
}

// DomainWidth returns Domain[1] - Domain[0].
func (s Linear) DomainWidth() float64 {
	return s.Domain[1] - s.Domain[0]
}

// RangeWidth returns Range[1] - Range[0].
func (s Linear) RangeWidth() float64 {
	return s.Range[1] - s.Range[0]
}

// Band is an ordinal scale that splits Range into n equal bands separated
// by an inner padding expressed as a fraction of the step.
type Band struct {
	N            int
	Range        [2]float64
	PaddingInner float64
}

// Step returns the distance between the starts of adjacent bands.
func (b Band) Step() float64 {
	n := float64(b.N) - b.PaddingInner
	if n < 1 {
		n = 1
	}
	return (b.Range[1] - b.Range[0]) / n
}

// Bandwidth returns the height of a single band.
func (b Band) Bandwidth() float64 {
	return b.Step() * (1 - b.PaddingInner)
}

// Start returns the start of band i.
func (b Band) Start(i int) float64 {
	return b.Range[0] + float64(i)*b.Step()
}
