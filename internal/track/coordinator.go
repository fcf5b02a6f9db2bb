package track

import (
	"context"
	"log"
	"sync"

	"github.com/pileup-tiles/server/internal/render"
	"github.com/pileup-tiles/server/internal/scale"
	"github.com/pileup-tiles/server/internal/worker"
)

// Host is what the coordinator needs from the track it renders for. All
// methods are called with the track's lock held.
type Host interface {
	XScale() scale.Linear
	SetError(msg string)
	UpdateStatus()
	Redraw()
}

// FetchedTile is a tile whose data is available to the worker.
type FetchedTile struct {
	ID       string `json:"id"`
	RemoteID string `json:"remote_id"`
}

// Invocation is the snapshot of track state a render is started from.
type Invocation struct {
	TrackUID   string
	Tiles      []FetchedTile
	XScale     scale.Linear
	Position   [2]float64
	Dimensions [2]float64
}

// CoordinatorConfig wires a coordinator to its track.
type CoordinatorConfig struct {
	Lock       sync.Locker // the track's lock; completions run holding it
	Renderer   worker.Renderer
	Backend    render.Backend
	Transforms *TransformManager
	State      *FetchState
	Host       Host
}

// Coordinator turns fetched tiles into geometry off the caller's goroutine
// and applies the result when it arrives.
//
// Every invocation gets a generation number. A completion older than the
// last applied one is stale: its tiles are still marked rendered but its
// geometry or error is discarded, so a slow superseded request can never
// overwrite newer geometry.
type Coordinator struct {
	cfg CoordinatorConfig
	wg  sync.WaitGroup

	issued  uint64
	applied uint64

	graphics render.Graphics
	rows     [][]worker.Read
}

// NewCoordinator creates a coordinator. A nil backend selects
// render.MeshBackend.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Backend == nil {
		cfg.Backend = render.MeshBackend{}
	}
	if cfg.Transforms == nil {
		cfg.Transforms = NewTransformManager(nil)
	}
	return &Coordinator{cfg: cfg}
}

// Invoke starts a render for inv and returns immediately. The caller must
// hold the track's lock.
func (c *Coordinator) Invoke(ctx context.Context, inv Invocation) uint64 {
	for _, t := range inv.Tiles {
		*c.cfg.State = c.cfg.State.MarkFetched(t.ID)
	}
	c.cfg.Host.UpdateStatus()

	c.issued++
	gen := c.issued

	remoteIDs := make([]string, len(inv.Tiles))
	for i, t := range inv.Tiles {
		remoteIDs[i] = t.RemoteID
	}
	req := worker.Request{
		TrackUID:      inv.TrackUID,
		TileRemoteIDs: remoteIDs,
		XDomain:       inv.XScale.Domain,
		XRange:        inv.XScale.Range,
		Position:      inv.Position,
		Dimensions:    inv.Dimensions,
		PrevRows:      copyRows(c.rows),
	}
	tiles := append([]FetchedTile(nil), inv.Tiles...)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		res, err := c.cfg.Renderer.RenderSegments(ctx, req)

		c.cfg.Lock.Lock()
		defer c.cfg.Lock.Unlock()
		if err != nil {
			c.fail(gen, err)
			return
		}
		c.succeed(gen, tiles, res)
	}()
	return gen
}

func (c *Coordinator) succeed(gen uint64, tiles []FetchedTile, res *worker.Result) {
	for _, t := range tiles {
		*c.cfg.State = c.cfg.State.MarkRendered(t.ID)
	}
	c.cfg.Host.UpdateStatus()

	if gen <= c.applied {
		log.Printf("[Coordinator] discarding stale render %d (applied %d)", gen, c.applied)
		return
	}
	c.applied = gen

	c.rows = res.Rows
	c.graphics = c.cfg.Backend.NewGraphics(res.Positions, res.Colors)
	c.cfg.Host.SetError("")

	drawnAt := scale.NewLinear(res.XScaleDomain, res.XScaleRange)
	c.cfg.Transforms.SetDrawnAt(drawnAt)
	c.cfg.Transforms.Rescale(c.graphics, c.cfg.Host.XScale())

	// New geometry starts untransformed; keep the user's vertical zoom.
	vt := c.cfg.Transforms.Value()
	c.graphics.SetScaleY(vt.K)
	c.graphics.SetPositionY(vt.Y)

	c.cfg.Host.Redraw()
}

// fail leaves the previous geometry in place. The invocation's tiles stay
// in the rendering set.
func (c *Coordinator) fail(gen uint64, err error) {
	if gen <= c.applied {
		log.Printf("[Coordinator] discarding stale failure %d: %v", gen, err)
		return
	}
	c.applied = gen

	log.Printf("[Coordinator] render %d failed: %v", gen, err)
	c.cfg.Host.SetError(err.Error())
	c.cfg.Host.Redraw()
}

// Wait blocks until every issued invocation has completed. It must not be
// called with the track's lock held.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Graphics returns the current geometry, or nil before the first success.
func (c *Coordinator) Graphics() render.Graphics { return c.graphics }

// Rows returns the current row assignment.
func (c *Coordinator) Rows() [][]worker.Read { return c.rows }

// Generations returns the last issued and last applied generation.
func (c *Coordinator) Generations() (issued, applied uint64) {
	return c.issued, c.applied
}

func copyRows(rows [][]worker.Read) [][]worker.Read {
	out := make([][]worker.Read, len(rows))
	for i, row := range rows {
		out[i] = append([]worker.Read(nil), row...)
	}
	return out
}
