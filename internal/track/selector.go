package track

import (
	"errors"
	"fmt"

	"github.com/pileup-tiles/server/internal/scale"
	"github.com/pileup-tiles/server/internal/tileset"
)

// ErrZoomBoundary is reported when the visible tiles are too wide to draw.
var ErrZoomBoundary = errors.New("Zoom in to see details")

// SelectVisibleTiles lists the tiles to display for xs. If any candidate is
// wider than the tileset's max tile width the whole pass is abandoned and
// no tiles are returned.
func SelectVisibleTiles(info *tileset.Info, xs scale.Linear, maxZoom int) ([]tileset.Coord, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}

	candidates := tileset.VisibleTiles1D(info, xs, maxZoom)
	limit := info.MaxTileWidthOrDefault()

	for _, c := range candidates {
		rect, err := tileset.ResolveTileRect(c.Zoom, [2]int{c.X, c.Y}, info.BinsPerTile(), info)
		if err != nil {
			return nil, fmt.Errorf("tile %s: %w", c.ID(), err)
		}
		if rect.Width > limit {
			return nil, ErrZoomBoundary
		}
	}
	return candidates, nil
}
