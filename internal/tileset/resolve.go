package tileset

import (
	"fmt"
	"math"
)

// Coord identifies a tile. Y is unused by horizontal tracks but kept so the
// coordinate round-trips through two-dimensional tile APIs.
type Coord struct {
	Zoom int `json:"zoom"`
	X    int `json:"x"`
	Y    int `json:"y"`
}

// ID returns the tile id "{zoom}.{x}" used as the fetched-tiles key.
func (c Coord) ID() string {
	return fmt.Sprintf("%d.%d", c.Zoom, c.X)
}

// RemoteID returns the id a tile server knows this tile by.
func (c Coord) RemoteID(tilesetUID string) string {
	return tilesetUID + "." + c.ID()
}

// Rect is a tile's extent in genomic pixel space. Tiles are square.
type Rect struct {
	X      float64 `json:"tileX"`
	Y      float64 `json:"tileY"`
	Width  float64 `json:"tileWidth"`
	Height float64 `json:"tileHeight"`
}

// ResolveTileRect returns the genomic extent of the tile at zoom and pos.
// The same descriptor must be used for tile selection and resolution.
func ResolveTileRect(zoom int, pos [2]int, binsPerTile float64, info *Info) (Rect, error) {
	if zoom < 0 {
		return Rect{}, fmt.Errorf("%w: negative zoom level %d", ErrInvalidTileset, zoom)
	}

	switch info.Mode() {
	case ModeResolutions:
		sorted := info.SortedResolutions()
		if zoom >= len(sorted) {
			return Rect{}, fmt.Errorf("%w: zoom level %d out of range (%d resolutions)",
				ErrInvalidTileset, zoom, len(sorted))
		}
		width := sorted[zoom] * binsPerTile
		return Rect{
			X:      width * float64(pos[0]),
			Y:      width * float64(pos[1]),
			Width:  width,
			Height: width,
		}, nil

	case ModeQuadtree:
		// max_width is 2^max_zoom by convention; trust what the server sent.
		width := info.MaxWidth / math.Exp2(float64(zoom))
		return Rect{
			X:      info.MinX() + float64(pos[0])*width,
			Y:      info.MinY() + float64(pos[1])*width,
			Width:  width,
			Height: width,
		}, nil
	}

	return Rect{}, fmt.Errorf("%w: neither resolutions nor max_width present", ErrInvalidTileset)
}
