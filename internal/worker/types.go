// Package worker runs the off-thread pileup geometry computation: it loads
// the reads of the fetched tiles, packs them into rows and emits vertex
// buffers.
package worker

import (
	"context"
	"strconv"
	"strings"
)

// Read is the genomic span of one alignment. Reads are used for row packing
// and hit-testing; the geometry buffers carry everything needed to draw.
type Read struct {
	ID        string  `json:"id"`
	ChrName   string  `json:"chrName"`
	ChrOffset float64 `json:"chrOffset"`
	From      float64 `json:"from"`
	To        float64 `json:"to"`
	Strand    string  `json:"strand,omitempty"`
	Cigar     string  `json:"cigar,omitempty"`
	MD        string  `json:"md,omitempty"`
}

// alignmentKey identifies a read by where and how it aligns.
func (r Read) alignmentKey() string {
	return strings.Join([]string{
		r.ChrName,
		strconv.FormatFloat(r.ChrOffset, 'g', -1, 64),
		strconv.FormatFloat(r.From, 'g', -1, 64),
		strconv.FormatFloat(r.To, 'g', -1, 64),
		r.Strand,
		r.Cigar,
		r.MD,
	}, ":")
}

// Request is one renderSegments call.
type Request struct {
	TrackUID      string     `json:"track_uid"`
	TileRemoteIDs []string   `json:"tile_remote_ids"`
	XDomain       [2]float64 `json:"x_domain"`
	XRange        [2]float64 `json:"x_range"`
	Position      [2]float64 `json:"position"`
	Dimensions    [2]float64 `json:"dimensions"`
	PrevRows      [][]Read   `json:"prev_rows"`
}

// Result holds freshly allocated geometry. Positions carry two floats per
// vertex, Colors four (RGBA); both describe the same triangle list.
type Result struct {
	Positions    []float32  `json:"-"`
	Colors       []float32  `json:"-"`
	Rows         [][]Read   `json:"rows"`
	XScaleDomain [2]float64 `json:"x_scale_domain"`
	XScaleRange  [2]float64 `json:"x_scale_range"`
}

// Renderer computes pileup geometry. Implementations must not retain or
// mutate the request's slices.
type Renderer interface {
	RenderSegments(ctx context.Context, req Request) (*Result, error)
}

// TileSource resolves a tile's remote id to the reads it contains.
type TileSource interface {
	Reads(ctx context.Context, remoteID string) ([]Read, error)
}
