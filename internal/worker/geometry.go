package worker

import (
	"fmt"

	"github.com/biogo/hts/sam"
	"github.com/pileup-tiles/server/internal/scale"
	"github.com/pileup-tiles/server/pkg/colormap"
)

// Segment is a horizontal stretch of a read drawn in one colour.
type Segment struct {
	From, To float64
	Color    [4]float32
}

// Segments splits a read into coloured stretches along the reference. Reads
// without a CIGAR are drawn as a single block.
func Segments(r Read, p colormap.Palette) ([]Segment, error) {
	body := colormap.Floats(p.Strand(r.Strand))
	if r.Cigar == "" || r.Cigar == "*" {
		return []Segment{{From: r.From, To: r.To, Color: body}}, nil
	}

	cigar, err := sam.ParseCigar([]byte(r.Cigar))
	if err != nil {
		return nil, fmt.Errorf("read %s: invalid cigar %q: %w", r.ID, r.Cigar, err)
	}

	segs := make([]Segment, 0, len(cigar))
	pos := r.From
	for _, op := range cigar {
		n := float64(op.Len())
		switch op.Type() {
		case sam.CigarMatch, sam.CigarEqual:
			segs = appendSegment(segs, pos, pos+n, body)
		case sam.CigarMismatch:
			segs = appendSegment(segs, pos, pos+n, colormap.Floats(p.Mismatch))
		case sam.CigarDeletion:
			segs = appendSegment(segs, pos, pos+n, colormap.Floats(p.Deletion))
		case sam.CigarInsertion:
			// Insertions take no reference space; mark the boundary.
			segs = appendSegment(segs, pos-0.5, pos+0.5, colormap.Floats(p.Insertion))
		}
		if op.Type().Consumes().Reference > 0 {
			pos += n
		}
	}
	return segs, nil
}

// appendSegment merges adjacent same-coloured stretches.
func appendSegment(segs []Segment, from, to float64, c [4]float32) []Segment {
	if n := len(segs); n > 0 && segs[n-1].Color == c && segs[n-1].To == from {
		segs[n-1].To = to
		return segs
	}
	return append(segs, Segment{From: from, To: to, Color: c})
}

// Layout describes where rows are drawn within the track.
type Layout struct {
	XScale     scale.Linear
	Height     float64
	RowPadding float64
}

// BuildGeometry emits two triangles per segment. Rows share the track
// height through a band scale so that the tooltip's hit-testing matches what
// is drawn.
func BuildGeometry(rows [][]Read, layout Layout, p colormap.Palette) ([]float32, []float32, error) {
	band := scale.Band{
		N:            len(rows),
		Range:        [2]float64{0, layout.Height},
		PaddingInner: layout.RowPadding,
	}
	rowHeight := band.Bandwidth()

	positions := make([]float32, 0, 12*countReads(rows))
	colors := make([]float32, 0, 24*countReads(rows))

	for i, row := range rows {
		y0 := float32(band.Start(i))
		y1 := y0 + float32(rowHeight)
		for _, r := range row {
			segs, err := Segments(r, p)
			if err != nil {
				return nil, nil, err
			}
			for _, s := range segs {
				x0 := float32(layout.XScale.Map(s.From))
				x1 := float32(layout.XScale.Map(s.To))
				positions = append(positions,
					x0, y0, x1, y0, x0, y1,
					x0, y1, x1, y0, x1, y1,
				)
				for v := 0; v < 6; v++ {
					colors = append(colors, s.Color[:]...)
				}
			}
		}
	}
	return positions, colors, nil
}

func countReads(rows [][]Read) int {
	n := 0
	for _, row := range rows {
		n += len(row)
	}
	return n
}
