package worker

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/pileup-tiles/server/internal/scale"
	"github.com/pileup-tiles/server/pkg/colormap"
)

// PoolConfig contains configuration for the segment worker pool.
type PoolConfig struct {
	MaxConcurrent int     // Max concurrent renderSegments calls (default 2)
	RowPadding    float64 // Inner padding between rows as a fraction of the row step (default 0.2)
	ReadGap       float64 // Minimum genomic gap between reads sharing a row (default 1)
	Palette       colormap.Palette
	Source        TileSource
}

// Pool runs renderSegments calls on a bounded number of goroutines.
type Pool struct {
	cfg PoolConfig
	sem chan struct{}
}

// NewPool creates a worker pool reading tiles from cfg.Source.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	if cfg.RowPadding <= 0 || cfg.RowPadding >= 1 {
		cfg.RowPadding = 0.2
	}
	if cfg.ReadGap < 0 {
		cfg.ReadGap = 0
	} else if cfg.ReadGap == 0 {
		cfg.ReadGap = 1
	}
	if cfg.Palette == (colormap.Palette{}) {
		cfg.Palette = colormap.Default
	}
	return &Pool{
		cfg: cfg,
		sem: make(chan struct{}, cfg.MaxConcurrent),
	}
}

// RowPadding returns the band padding used when laying out rows.
func (p *Pool) RowPadding() float64 {
	return p.cfg.RowPadding
}

// RenderSegments implements Renderer. It blocks until a slot is free or ctx
// is done.
func (p *Pool) RenderSegments(ctx context.Context, req Request) (*Result, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.sem }()

	if p.cfg.Source == nil {
		return nil, fmt.Errorf("worker pool has no tile source")
	}

	reads, err := p.loadReads(ctx, req.TileRemoteIDs)
	if err != nil {
		return nil, err
	}

	rows := PackRows(reads, req.PrevRows, p.cfg.ReadGap)

	layout := Layout{
		XScale:     scale.NewLinear(req.XDomain, req.XRange),
		Height:     req.Dimensions[1],
		RowPadding: p.cfg.RowPadding,
	}
	positions, colors, err := BuildGeometry(rows, layout, p.cfg.Palette)
	if err != nil {
		return nil, err
	}

	log.Printf("[WorkerPool] track %s: %d reads in %d rows from %d tiles",
		req.TrackUID, len(reads), len(rows), len(req.TileRemoteIDs))

	return &Result{
		Positions:    positions,
		Colors:       colors,
		Rows:         rows,
		XScaleDomain: req.XDomain,
		XScaleRange:  req.XRange,
	}, nil
}

// loadReads collects the reads of every tile, dropping duplicates of reads
// that span tile boundaries. Reads without an ID get one derived from their
// alignment, so identical reads within one tile stay distinct while the
// copy of a read in a neighbouring tile is still recognised.
func (p *Pool) loadReads(ctx context.Context, remoteIDs []string) ([]Read, error) {
	seen := make(map[string]bool)
	var out []Read
	for _, id := range remoteIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		reads, err := p.cfg.Source.Reads(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load tile %s: %w", id, err)
		}
		occurrences := make(map[string]int)
		for _, r := range reads {
			if r.ID == "" {
				key := r.alignmentKey()
				r.ID = fmt.Sprintf("%s#%d", key, occurrences[key])
				occurrences[key]++
			}
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].From < out[j].From })
	return out, nil
}
