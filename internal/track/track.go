package track

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/pileup-tiles/server/internal/render"
	"github.com/pileup-tiles/server/internal/scale"
	"github.com/pileup-tiles/server/internal/tileset"
	"github.com/pileup-tiles/server/internal/worker"
)

// TileFetcher loads tileset metadata and makes tile data available to the
// worker under the tile's remote id.
type TileFetcher interface {
	TilesetInfo(ctx context.Context, tilesetUID string) (*tileset.Info, error)
	FetchTile(ctx context.Context, remoteID string) error
}

// Config contains track configuration.
type Config struct {
	UID        string
	TilesetUID string
	Fetcher    TileFetcher
	Renderer   worker.Renderer
	Backend    render.Backend
	Zoom       ZoomFunc
	MaxZoom    *int // nil: the tileset's deepest level
	RowPadding float64
	Position   [2]float64
	Dimensions [2]float64

	// OnRedraw is called with the track locked whenever the track needs to
	// be drawn again. It must not call back into the track.
	OnRedraw func()
}

// DisplayState is what the track overlays on top of the reads.
type DisplayState struct {
	Error          string     `json:"error,omitempty"`
	LoadingText    string     `json:"loading_text,omitempty"`
	LoadingVisible bool       `json:"loading_visible"`
	LoadingAnchor  [2]float64 `json:"loading_anchor"`
}

// Track is a horizontal pileup track. All methods are safe for concurrent
// use; they and every render completion are serialized on the track's lock.
type Track struct {
	mu sync.Mutex

	uid        string
	tilesetUID string
	fetcher    TileFetcher
	maxZoom    int
	rowPadding float64
	onRedraw   func()

	info       *tileset.Info
	xScale     scale.Linear
	haveScale  bool
	position   [2]float64
	dimensions [2]float64

	visible  map[string]tileset.Coord
	fetched  map[string]FetchedTile
	inflight map[string]bool
	state    FetchState

	errorText string
	display   DisplayState
	redraws   uint64

	transforms *TransformManager
	coord      *Coordinator

	ctx     context.Context
	cancel  context.CancelFunc
	fetchWG sync.WaitGroup
}

// New creates a track. It does nothing until it receives tileset info and
// an x scale.
func New(cfg Config) *Track {
	if cfg.UID == "" {
		cfg.UID = uuid.NewString()
	}
	maxZoom := -1
	if cfg.MaxZoom != nil && *cfg.MaxZoom >= 0 {
		maxZoom = *cfg.MaxZoom
	}
	if cfg.RowPadding <= 0 || cfg.RowPadding >= 1 {
		cfg.RowPadding = 0.2
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Track{
		uid:        cfg.UID,
		tilesetUID: cfg.TilesetUID,
		fetcher:    cfg.Fetcher,
		maxZoom:    maxZoom,
		rowPadding: cfg.RowPadding,
		onRedraw:   cfg.OnRedraw,
		position:   cfg.Position,
		dimensions: cfg.Dimensions,
		visible:    make(map[string]tileset.Coord),
		fetched:    make(map[string]FetchedTile),
		inflight:   make(map[string]bool),
		state:      NewFetchState(),
		transforms: NewTransformManager(cfg.Zoom),
		ctx:        ctx,
		cancel:     cancel,
	}
	t.coord = NewCoordinator(CoordinatorConfig{
		Lock:       &t.mu,
		Renderer:   cfg.Renderer,
		Backend:    cfg.Backend,
		Transforms: t.transforms,
		State:      &t.state,
		Host:       trackHost{t},
	})
	t.display.LoadingAnchor = cfg.Position
	t.updateStatus()
	return t
}

// trackHost exposes the lock-held side of the track to the coordinator.
type trackHost struct{ t *Track }

func (h trackHost) XScale() scale.Linear { return h.t.xScale }
func (h trackHost) SetError(msg string)  { h.t.errorText = msg }
func (h trackHost) UpdateStatus()        { h.t.updateStatus() }
func (h trackHost) Redraw()              { h.t.redraw() }

// UID returns the track's identifier.
func (t *Track) UID() string { return t.uid }

// TilesetUID returns the identifier of the tileset the track displays.
func (t *Track) TilesetUID() string { return t.tilesetUID }

// LoadTilesetInfo fetches the tileset metadata and starts tile selection.
func (t *Track) LoadTilesetInfo(ctx context.Context) error {
	if t.fetcher == nil {
		return fmt.Errorf("track %s has no tile fetcher", t.uid)
	}
	info, err := t.fetcher.TilesetInfo(ctx, t.tilesetUID)
	if err != nil {
		t.mu.Lock()
		t.errorText = err.Error()
		t.redraw()
		t.mu.Unlock()
		return err
	}
	return t.SetTilesetInfo(info)
}

// SetTilesetInfo installs tileset metadata. The descriptor must not be
// modified afterwards.
func (t *Track) SetTilesetInfo(info *tileset.Info) error {
	if err := info.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.info = info
	t.updateStatus()
	t.calculateVisibleTiles()
	return nil
}

// TilesetInfo returns the installed tileset metadata, or nil.
func (t *Track) TilesetInfo() *tileset.Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info
}

// Zoomed is called when the horizontal scale changes. Existing geometry is
// stretched to the new scale and the visible tiles are recomputed.
func (t *Track) Zoomed(xs scale.Linear) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.xScale = xs
	t.haveScale = true
	if g := t.coord.Graphics(); g != nil {
		t.transforms.Rescale(g, xs)
	}
	t.calculateVisibleTiles()
	t.redraw()
}

// SetPosition moves the track; the loading text follows its origin.
func (t *Track) SetPosition(pos [2]float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.position = pos
	t.display.LoadingAnchor = pos
	t.redraw()
}

// SetDimensions resizes the track.
func (t *Track) SetDimensions(dims [2]float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dimensions = dims
	t.redraw()
}

// MovedY pans the rows vertically by dY pixels.
func (t *Track) MovedY(dY float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.transforms.Pan(dY, t.dimensions[1])
	// graphics do not exist while zoomed out past the tile width limit
	if g := t.coord.Graphics(); g != nil {
		g.SetPositionY(t.transforms.Value().Y)
	}
	t.redraw()
}

// ZoomedY zooms the rows vertically around pivotY.
func (t *Track) ZoomedY(pivotY, kMultiplier float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	vt := t.transforms.Zoom(pivotY, kMultiplier, t.dimensions[1])
	if g := t.coord.Graphics(); g != nil {
		g.SetScaleY(vt.K)
		g.SetPositionY(vt.Y)
	}
	t.redraw()
}

// Rerender regenerates geometry from the tiles already fetched.
func (t *Track) Rerender() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rerender()
}

// Display returns the current overlay state.
func (t *Track) Display() DisplayState {
	t.mu.Lock()
	defer t.mu.Unlock()
	d := t.display
	d.Error = t.errorText
	return d
}

// MouseOverHTML describes the read under (trackX, trackY), or returns ""
// when there is none.
func (t *Track) MouseOverHTML(trackX, trackY float64) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows := t.coord.Rows()
	if t.coord.Graphics() == nil || len(rows) == 0 {
		return ""
	}
	band := scale.Band{
		N:            len(rows),
		Range:        [2]float64{t.position[1], t.position[1] + t.dimensions[1]},
		PaddingInner: t.rowPadding,
	}
	index := int(math.Floor(trackY/band.Step() + 0.5))
	if index < 0 || index >= len(rows) {
		return ""
	}
	for _, read := range rows[index] {
		from := t.xScale.Map(read.From)
		to := t.xScale.Map(read.To)
		if from <= trackX && trackX <= to {
			return "Position: " + read.ChrName + ":" + formatNum(read.From-read.ChrOffset) + "<br>" +
				"Read length: " + formatNum(read.To-read.From) + "<br>"
		}
	}
	return ""
}

// Snapshot rasterizes the current geometry with its live transform.
func (t *Track) Snapshot(r *render.Rasterizer) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return r.RenderPNG(t.coord.Graphics())
}

// Wait blocks until pending tile fetches and renders have completed. It is
// meant for tests and shutdown; gestures issued concurrently may start new
// work that Wait does not cover.
func (t *Track) Wait() {
	t.fetchWG.Wait()
	t.coord.Wait()
}

// Close cancels outstanding work and waits for it to finish.
func (t *Track) Close() {
	t.cancel()
	t.Wait()
}

func (t *Track) calculateVisibleTiles() {
	if t.info == nil || !t.haveScale {
		return
	}
	tiles, err := SelectVisibleTiles(t.info, t.xScale, t.maxZoom)
	if err != nil {
		t.errorText = err.Error()
		t.redraw()
		return
	}
	t.errorText = ""
	t.setVisibleTiles(tiles)
}

// setVisibleTiles drops fetched tiles that scrolled out of view and starts
// fetches for new ones.
func (t *Track) setVisibleTiles(tiles []tileset.Coord) {
	visible := make(map[string]tileset.Coord, len(tiles))
	for _, c := range tiles {
		visible[c.ID()] = c
	}
	t.visible = visible

	removed := false
	for id := range t.fetched {
		if _, ok := visible[id]; !ok {
			delete(t.fetched, id)
			removed = true
		}
	}

	ids := make([]string, 0, len(visible))
	for id := range visible {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, ok := t.fetched[id]; ok || t.inflight[id] {
			continue
		}
		t.fetchTile(visible[id])
	}

	t.updateStatus()
	if removed {
		t.rerender()
	}
}

func (t *Track) fetchTile(c tileset.Coord) {
	if t.fetcher == nil {
		return
	}
	id := c.ID()
	remoteID := c.RemoteID(t.tilesetUID)

	t.inflight[id] = true
	t.state = t.state.MarkFetching(id)

	t.fetchWG.Add(1)
	go func() {
		defer t.fetchWG.Done()
		err := t.fetcher.FetchTile(t.ctx, remoteID)

		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.inflight, id)

		if err != nil {
			t.state = t.state.Forget(id)
			t.updateStatus()
			if t.ctx.Err() == nil {
				log.Printf("[Track] %s: failed to fetch tile %s: %v", t.uid, remoteID, err)
				t.errorText = fmt.Sprintf("failed to fetch tile %s: %v", id, err)
				t.redraw()
			}
			return
		}
		if _, ok := t.visible[id]; !ok {
			t.state = t.state.Forget(id)
			t.updateStatus()
			return
		}
		t.fetched[id] = FetchedTile{ID: id, RemoteID: remoteID}
		t.rerender()
	}()
}

func (t *Track) rerender() {
	if t.coord.cfg.Renderer == nil {
		return
	}
	tiles := make([]FetchedTile, 0, len(t.fetched))
	for _, ft := range t.fetched {
		tiles = append(tiles, ft)
	}
	sort.Slice(tiles, func(i, j int) bool { return tiles[i].ID < tiles[j].ID })

	t.coord.Invoke(t.ctx, Invocation{
		TrackUID:   t.uid,
		Tiles:      tiles,
		XScale:     t.xScale,
		Position:   t.position,
		Dimensions: t.dimensions,
	})
}

func (t *Track) updateStatus() {
	t.display.LoadingText, t.display.LoadingVisible = t.state.StatusText(t.info != nil)
}

func (t *Track) redraw() {
	t.redraws++
	if t.onRedraw != nil {
		t.onRedraw()
	}
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
