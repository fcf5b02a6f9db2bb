// Package tileset describes tileset metadata and maps tile coordinates onto
// genomic pixel space.
package tileset

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// DefaultMaxTileWidth is the widest tile, in genomic units, that a track
// renders when the tileset does not say otherwise.
const DefaultMaxTileWidth = 2e5

// DefaultTileSize is the number of bins per tile assumed for tilesets that
// omit tile_size.
const DefaultTileSize = 256

// ErrInvalidTileset is returned when a tileset descriptor cannot address the
// requested tile.
var ErrInvalidTileset = errors.New("invalid tileset")

// Mode is the addressing scheme of a tileset.
type Mode int

const (
	ModeInvalid Mode = iota
	ModeResolutions
	ModeQuadtree
)

func (m Mode) String() string {
	switch m {
	case ModeResolutions:
		return "resolutions"
	case ModeQuadtree:
		return "quadtree"
	default:
		return "invalid"
	}
}

// Info is the tileset metadata served by a tile server's tileset_info
// endpoint.
type Info struct {
	Resolutions  Resolutions `json:"resolutions,omitempty"`
	MaxWidth     float64     `json:"max_width,omitempty"`
	MinPos       []float64   `json:"min_pos,omitempty"`
	MaxPos       []float64   `json:"max_pos,omitempty"`
	TileSize     float64     `json:"tile_size,omitempty"`
	MaxTileWidth float64     `json:"max_tile_width,omitempty"`
	MaxZoom      *int        `json:"max_zoom,omitempty"`
	ChromSizes   [][]any     `json:"chromsizes,omitempty"`
	Name         string      `json:"name,omitempty"`

	// sorted holds Resolutions in descending order, filled by Normalize.
	sorted []float64
}

// Resolutions accepts both numbers and numeric strings on decode.
type Resolutions []float64

// UnmarshalJSON implements json.Unmarshaler.
func (r *Resolutions) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]float64, 0, len(raw))
	for _, item := range raw {
		var f float64
		if err := json.Unmarshal(item, &f); err == nil {
			out = append(out, f)
			continue
		}
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			return fmt.Errorf("resolution %s: not a number", string(item))
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("resolution %q: %w", s, err)
		}
		out = append(out, f)
	}
	*r = out
	return nil
}

// Parse decodes tileset metadata and normalizes it.
func Parse(data []byte) (*Info, error) {
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse tileset info: %w", err)
	}
	info.Normalize()
	return &info, nil
}

// Normalize sorts the resolutions once, descending. It must be called
// before the descriptor is shared.
func (i *Info) Normalize() {
	if len(i.Resolutions) == 0 {
		i.sorted = nil
		return
	}
	sorted := make([]float64, len(i.Resolutions))
	copy(sorted, i.Resolutions)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	i.sorted = sorted
}

// Mode reports which addressing scheme is active.
func (i *Info) Mode() Mode {
	if i == nil {
		return ModeInvalid
	}
	if len(i.Resolutions) > 0 {
		return ModeResolutions
	}
	if i.MaxWidth > 0 {
		return ModeQuadtree
	}
	return ModeInvalid
}

// Validate checks that exactly one addressing mode is usable.
func (i *Info) Validate() error {
	switch i.Mode() {
	case ModeResolutions:
		for _, r := range i.Resolutions {
			if r <= 0 {
				return fmt.Errorf("%w: non-positive resolution %v", ErrInvalidTileset, r)
			}
		}
		return nil
	case ModeQuadtree:
		return nil
	default:
		return fmt.Errorf("%w: neither resolutions nor max_width present", ErrInvalidTileset)
	}
}

// SortedResolutions returns the resolutions in descending order.
func (i *Info) SortedResolutions() []float64 {
	if i.sorted != nil || len(i.Resolutions) == 0 {
		return i.sorted
	}
	sorted := make([]float64, len(i.Resolutions))
	copy(sorted, i.Resolutions)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	return sorted
}

// BinsPerTile returns tile_size or DefaultTileSize when unset.
func (i *Info) BinsPerTile() float64 {
	if i.TileSize > 0 {
		return i.TileSize
	}
	return DefaultTileSize
}

// MaxTileWidthOrDefault returns max_tile_width or DefaultMaxTileWidth.
func (i *Info) MaxTileWidthOrDefault() float64 {
	if i.MaxTileWidth > 0 {
		return i.MaxTileWidth
	}
	return DefaultMaxTileWidth
}

// MaxZoomLevel returns the deepest addressable zoom level. Quadtree
// tilesets without max_zoom go as deep as ceil(log2(max_width / tile_size)).
func (i *Info) MaxZoomLevel() int {
	if len(i.Resolutions) > 0 {
		return len(i.Resolutions) - 1
	}
	if i.MaxZoom != nil {
		return *i.MaxZoom
	}
	if i.MaxWidth <= 0 {
		return 0
	}
	z := math.Ceil(math.Log2(i.MaxWidth / i.BinsPerTile()))
	if z < 0 {
		return 0
	}
	return int(z)
}

// MinX returns min_pos[0], defaulting to zero.
func (i *Info) MinX() float64 {
	if len(i.MinPos) > 0 {
		return i.MinPos[0]
	}
	return 0
}

// MinY returns min_pos[1], defaulting to zero.
func (i *Info) MinY() float64 {
	if len(i.MinPos) > 1 {
		return i.MinPos[1]
	}
	return 0
}

// MaxX returns max_pos[0] and whether it is known. Quadtree tilesets fall
// back to min_pos[0] + max_width.
func (i *Info) MaxX() (float64, bool) {
	if len(i.MaxPos) > 0 {
		return i.MaxPos[0], true
	}
	if i.MaxWidth > 0 {
		return i.MinX() + i.MaxWidth, true
	}
	return 0, false
}
