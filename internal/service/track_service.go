// Package service provides business logic for the pileup track server.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/pileup-tiles/server/internal/render"
	"github.com/pileup-tiles/server/internal/scale"
	"github.com/pileup-tiles/server/internal/tiles"
	"github.com/pileup-tiles/server/internal/tileset"
	"github.com/pileup-tiles/server/internal/track"
	"github.com/pileup-tiles/server/internal/worker"
)

// ErrInvalidViewport is returned for a viewport that cannot be mapped.
var ErrInvalidViewport = errors.New("invalid viewport")

// TrackServiceConfig contains track service configuration.
type TrackServiceConfig struct {
	TrackID    string
	TilesetUID string
	Store      *tiles.Store
	Pool       *worker.Pool
	Rasterizer *render.Rasterizer
	Width      float64
	Height     float64
	MaxZoom    *int
}

// TrackService owns one pileup track and the store it reads from.
type TrackService struct {
	id         string
	tilesetUID string
	store      *tiles.Store
	rasterizer *render.Rasterizer
	track      *track.Track

	// Tileset info is loaded once; a failed load is retried on next use.
	loadMu sync.Mutex
	loaded bool
}

// NewTrackService creates a track service. The tileset info is not fetched
// until Load is called.
func NewTrackService(cfg TrackServiceConfig) *TrackService {
	rowPadding := 0.0
	var renderer worker.Renderer
	if cfg.Pool != nil {
		renderer = cfg.Pool
		rowPadding = cfg.Pool.RowPadding()
	}
	if cfg.Rasterizer == nil {
		cfg.Rasterizer = render.NewRasterizer(render.Config{})
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		w, h := cfg.Rasterizer.Size()
		cfg.Width, cfg.Height = float64(w), float64(h)
	}

	var fetcher track.TileFetcher
	if cfg.Store != nil {
		fetcher = cfg.Store
	}

	return &TrackService{
		id:         cfg.TrackID,
		tilesetUID: cfg.TilesetUID,
		store:      cfg.Store,
		rasterizer: cfg.Rasterizer,
		track: track.New(track.Config{
			UID:        cfg.TrackID,
			TilesetUID: cfg.TilesetUID,
			Fetcher:    fetcher,
			Renderer:   renderer,
			MaxZoom:    cfg.MaxZoom,
			RowPadding: rowPadding,
			Dimensions: [2]float64{cfg.Width, cfg.Height},
		}),
	}
}

// ID returns the track id.
func (s *TrackService) ID() string { return s.id }

// TilesetUID returns the uid of the displayed tileset.
func (s *TrackService) TilesetUID() string { return s.tilesetUID }

// Track returns the underlying track.
func (s *TrackService) Track() *track.Track { return s.track }

// Load fetches the tileset info if it has not been loaded yet.
func (s *TrackService) Load(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if s.loaded {
		return nil
	}
	if err := s.track.LoadTilesetInfo(ctx); err != nil {
		log.Printf("[TrackService] %s: failed to load tileset %s: %v", s.id, s.tilesetUID, err)
		return err
	}
	s.loaded = true
	log.Printf("[TrackService] %s: loaded tileset %s", s.id, s.tilesetUID)
	return nil
}

// TilesetInfo returns the tileset metadata, loading it if needed.
func (s *TrackService) TilesetInfo(ctx context.Context) (*tileset.Info, error) {
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	return s.track.TilesetInfo(), nil
}

// Viewport is the horizontal scale and placement of a track in the view.
type Viewport struct {
	Domain     [2]float64  `json:"domain"`
	Range      [2]float64  `json:"range"`
	Position   *[2]float64 `json:"position,omitempty"`
	Dimensions *[2]float64 `json:"dimensions,omitempty"`
}

// Validate checks that the viewport maps a non-empty domain onto a
// non-empty range.
func (v Viewport) Validate() error {
	for _, f := range []float64{v.Domain[0], v.Domain[1], v.Range[0], v.Range[1]} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite bound", ErrInvalidViewport)
		}
	}
	if v.Domain[1] <= v.Domain[0] {
		return fmt.Errorf("%w: empty domain", ErrInvalidViewport)
	}
	if v.Range[1] <= v.Range[0] {
		return fmt.Errorf("%w: empty range", ErrInvalidViewport)
	}
	if v.Dimensions != nil && (v.Dimensions[0] <= 0 || v.Dimensions[1] <= 0) {
		return fmt.Errorf("%w: non-positive dimensions", ErrInvalidViewport)
	}
	return nil
}

// SetViewport moves and resizes the track and applies the new x scale.
func (s *TrackService) SetViewport(v Viewport) error {
	if err := v.Validate(); err != nil {
		return err
	}
	if v.Position != nil {
		s.track.SetPosition(*v.Position)
	}
	if v.Dimensions != nil {
		s.track.SetDimensions(*v.Dimensions)
	}
	s.track.Zoomed(scale.NewLinear(v.Domain, v.Range))
	return nil
}

// Pan scrolls the rows vertically.
func (s *TrackService) Pan(dy float64) {
	s.track.MovedY(dy)
}

// ZoomY zooms the rows vertically around y. k < 1 zooms in.
func (s *TrackService) ZoomY(y, k float64) error {
	if k <= 0 || math.IsNaN(k) || math.IsInf(k, 0) {
		return fmt.Errorf("invalid zoom factor %v", k)
	}
	s.track.ZoomedY(y, k)
	return nil
}

// State returns a snapshot of the track.
func (s *TrackService) State() track.State {
	return s.track.State()
}

// MouseOver describes the read at (x, y) in track coordinates.
func (s *TrackService) MouseOver(x, y float64) string {
	return s.track.MouseOverHTML(x, y)
}

// Snapshot renders the track as it is currently drawn.
func (s *TrackService) Snapshot() ([]byte, error) {
	return s.track.Snapshot(s.rasterizer)
}

// Wait blocks until outstanding fetches and renders have finished.
func (s *TrackService) Wait() {
	s.track.Wait()
}

// Close cancels outstanding work.
func (s *TrackService) Close() {
	s.track.Close()
}
