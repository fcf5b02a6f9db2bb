package track

import (
	"sort"

	"github.com/pileup-tiles/server/internal/render"
	"github.com/pileup-tiles/server/internal/scale"
	"github.com/pileup-tiles/server/internal/tileset"
)

// State is a point-in-time copy of everything a front-end needs to draw
// the track.
type State struct {
	UID            string            `json:"uid"`
	TilesetUID     string            `json:"tileset_uid"`
	HasTilesetInfo bool              `json:"has_tileset_info"`
	XScale         scale.Linear      `json:"x_scale"`
	Position       [2]float64        `json:"position"`
	Dimensions     [2]float64        `json:"dimensions"`
	VisibleTiles   []tileset.Coord   `json:"visible_tiles"`
	FetchedTiles   []FetchedTile     `json:"fetched_tiles"`
	Fetching       []string          `json:"fetching"`
	Rendering      []string          `json:"rendering"`
	Display        DisplayState      `json:"display"`
	ValueTransform ValueTransform    `json:"value_transform"`
	DrawnAt        scale.Linear      `json:"drawn_at"`
	Graphics       *render.Transform `json:"graphics,omitempty"`
	RowCount       int               `json:"row_count"`
	ValueScale     scale.Linear      `json:"value_scale"`
	Generation     uint64            `json:"generation"`
	Applied        uint64            `json:"applied_generation"`
	Redraws        uint64            `json:"redraws"`
}

// State returns a snapshot of the track.
func (t *Track) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := State{
		UID:            t.uid,
		TilesetUID:     t.tilesetUID,
		HasTilesetInfo: t.info != nil,
		XScale:         t.xScale,
		Position:       t.position,
		Dimensions:     t.dimensions,
		Fetching:       t.state.Fetching(),
		Rendering:      t.state.Rendering(),
		Display:        t.display,
		ValueTransform: t.transforms.Value(),
		DrawnAt:        t.transforms.DrawnAt(),
		RowCount:       len(t.coord.Rows()),
		Redraws:        t.redraws,
	}
	s.Display.Error = t.errorText
	s.Generation, s.Applied = t.coord.Generations()

	// axis labels count rows from the top
	s.ValueScale = scale.NewLinear(
		[2]float64{0, float64(s.RowCount)},
		[2]float64{0, t.dimensions[1]},
	)

	for _, c := range t.visible {
		s.VisibleTiles = append(s.VisibleTiles, c)
	}
	sort.Slice(s.VisibleTiles, func(i, j int) bool { return s.VisibleTiles[i].X < s.VisibleTiles[j].X })

	for _, ft := range t.fetched {
		s.FetchedTiles = append(s.FetchedTiles, ft)
	}
	sort.Slice(s.FetchedTiles, func(i, j int) bool { return s.FetchedTiles[i].ID < s.FetchedTiles[j].ID })

	if g := t.coord.Graphics(); g != nil {
		tr := g.Transform()
		s.Graphics = &tr
	}
	return s
}

// PluginConfig describes the track type to a genome browser front-end.
type PluginConfig struct {
	Type             string            `json:"type"`
	Datatype         []string          `json:"datatype"`
	Orientation      string            `json:"orientation"`
	Name             string            `json:"name"`
	AvailableOptions []string          `json:"availableOptions"`
	DefaultOptions   map[string]string `json:"defaultOptions"`
}

// Plugin is the pileup track's type description.
var Plugin = PluginConfig{
	Type:        "pileup",
	Datatype:    []string{"reads"},
	Orientation: "1d-horizontal",
	Name:        "Pileup Track",
	AvailableOptions: []string{
		"axisPositionHorizontal",
		"axisLabelFormatting",
	},
	DefaultOptions: map[string]string{
		"axisPositionHorizontal": "right",
		"axisLabelFormatting":    "normal",
	},
}
