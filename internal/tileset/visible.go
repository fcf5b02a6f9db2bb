package tileset

import (
	"math"

	"github.com/pileup-tiles/server/internal/scale"
)

const (
	// tileEpsilon keeps a domain ending exactly on a tile boundary from
	// pulling in the next tile.
	tileEpsilon = 1e-7

	// maxResolutionTiles caps the tiles requested per pass in resolutions
	// mode.
	maxResolutionTiles = 20
)

// ZoomLevel1D picks the zoom level a horizontal track should display for
// the given x scale. A negative maxZoom means "use the tileset's deepest
// level".
func ZoomLevel1D(info *Info, xs scale.Linear, maxZoom int) int {
	if maxZoom < 0 {
		maxZoom = info.MaxZoomLevel()
	}

	if info.Mode() == ModeResolutions {
		return zoomFromResolutions(info.SortedResolutions(), xs)
	}

	minX := info.MinX()
	maxX, ok := info.MaxX()
	if !ok {
		maxX = minX + info.MaxWidth
	}

	domainWidth := xs.DomainWidth()
	zoomScale := 1.0
	if domainWidth > 0 {
		zoomScale = math.Max((maxX-minX)/domainWidth, 1)
	}

	// Wider tracks than one tile of bins need finer tiles.
	addedZoom := 0.0
	if rw := xs.RangeWidth(); rw > 0 {
		addedZoom = math.Max(0, math.Ceil(math.Log2(rw/info.BinsPerTile())))
	}

	zoom := int(math.Round(math.Log2(zoomScale)) + addedZoom)
	if zoom > maxZoom {
		zoom = maxZoom
	}
	if zoom < 0 {
		zoom = 0
	}
	return zoom
}

// zoomFromResolutions returns the finest resolution at which fewer than one
// bin falls on each pixel.
func zoomFromResolutions(sorted []float64, xs scale.Linear) int {
	trackWidth := xs.RangeWidth()
	if trackWidth <= 0 {
		return 0
	}
	best := -1
	for i, r := range sorted {
		binsPerPixel := xs.DomainWidth() / r / trackWidth
		if binsPerPixel < 1 {
			best = i
		}
	}
	if best < 0 {
		return 0
	}
	return best
}

// VisibleTiles1D lists the tiles covering the x scale's domain at the
// current zoom level.
func VisibleTiles1D(info *Info, xs scale.Linear, maxZoom int) []Coord {
	zoom := ZoomLevel1D(info, xs, maxZoom)
	minX := info.MinX()
	maxX, bounded := info.MaxX()

	var tileWidth float64
	lower, upper := 0, 0

	switch info.Mode() {
	case ModeResolutions:
		sorted := info.SortedResolutions()
		if zoom >= len(sorted) {
			return nil
		}
		tileWidth = sorted[zoom] * info.BinsPerTile()
		end := xs.Domain[1]
		if bounded {
			end = math.Min(maxX, end)
		}
		lower = int(math.Max(math.Floor((xs.Domain[0]-minX)/tileWidth), 0))
		upper = int(math.Ceil((end - minX - tileEpsilon) / tileWidth))
		if upper-lower > maxResolutionTiles {
			upper = lower + maxResolutionTiles
		}

	case ModeQuadtree:
		tileWidth = info.MaxWidth / math.Exp2(float64(zoom))
		lower = int(math.Max(math.Floor((xs.Domain[0]-minX)/tileWidth), 0))
		upper = int(math.Min(math.Ceil((xs.Domain[1]-minX-tileEpsilon)/tileWidth), math.Exp2(float64(zoom))))

	default:
		return nil
	}

	if upper <= lower {
		return nil
	}
	tiles := make([]Coord, 0, upper-lower)
	for x := lower; x < upper; x++ {
		tiles = append(tiles, Coord{Zoom: zoom, X: x})
	}
	return tiles
}
