package track

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/pileup-tiles/server/internal/scale"
	"github.com/pileup-tiles/server/internal/tileset"
	"github.com/pileup-tiles/server/internal/worker"
)

type fakeFetcher struct {
	info    *tileset.Info
	infoErr error
	tileErr error

	mu      sync.Mutex
	fetched []string
}

func (f *fakeFetcher) TilesetInfo(ctx context.Context, uid string) (*tileset.Info, error) {
	return f.info, f.infoErr
}

func (f *fakeFetcher) FetchTile(ctx context.Context, remoteID string) error {
	f.mu.Lock()
	f.fetched = append(f.fetched, remoteID)
	f.mu.Unlock()
	return f.tileErr
}

func (f *fakeFetcher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

type readSource map[string][]worker.Read

func (s readSource) Reads(_ context.Context, remoteID string) ([]worker.Read, error) {
	reads, ok := s[remoteID]
	if !ok {
		return nil, errors.New("no such tile")
	}
	return reads, nil
}

func testReads() readSource {
	return readSource{
		"reads.2.0": {
			{ID: "a", ChrName: "chr1", From: 0, To: 10},
			{ID: "b", ChrName: "chr1", From: 5, To: 15},
			{ID: "c", ChrName: "chr1", From: 100, To: 120},
		},
		"reads.2.1": {
			{ID: "d", ChrName: "chr1", From: 300, To: 310},
		},
	}
}

func newTestTrack(t *testing.T, fetcher *fakeFetcher) *Track {
	t.Helper()
	pool := worker.NewPool(worker.PoolConfig{Source: testReads()})
	tr := New(Config{
		TilesetUID: "reads",
		Fetcher:    fetcher,
		Renderer:   pool,
		Dimensions: [2]float64{256, 100},
	})
	t.Cleanup(tr.Close)
	return tr
}

func identity256() scale.Linear {
	return scale.NewLinear([2]float64{0, 256}, [2]float64{0, 256})
}

func TestTrack_InitialStatus(t *testing.T) {
	tr := newTestTrack(t, &fakeFetcher{})
	d := tr.Display()
	if d.LoadingText != "Fetching tileset info..." || !d.LoadingVisible {
		t.Fatalf("unexpected initial display: %+v", d)
	}
	if tr.UID() == "" {
		t.Fatal("expected a generated uid")
	}
}

func TestTrack_FetchAndRender(t *testing.T) {
	fetcher := &fakeFetcher{info: readsInfo(5000)}
	tr := newTestTrack(t, fetcher)

	if err := tr.LoadTilesetInfo(context.Background()); err != nil {
		t.Fatalf("LoadTilesetInfo: %v", err)
	}
	tr.Zoomed(identity256())
	tr.Wait()

	if got := fetcher.calls(); len(got) != 1 || got[0] != "reads.2.0" {
		t.Fatalf("unexpected fetches: %v", got)
	}

	s := tr.State()
	if len(s.VisibleTiles) != 1 || s.VisibleTiles[0] != (tileset.Coord{Zoom: 2, X: 0}) {
		t.Fatalf("unexpected visible tiles: %v", s.VisibleTiles)
	}
	if len(s.FetchedTiles) != 1 || s.FetchedTiles[0].RemoteID != "reads.2.0" {
		t.Fatalf("unexpected fetched tiles: %v", s.FetchedTiles)
	}
	if len(s.Fetching) != 0 || len(s.Rendering) != 0 {
		t.Fatalf("expected idle fetch state, got %v / %v", s.Fetching, s.Rendering)
	}
	if s.Display.LoadingVisible || s.Display.Error != "" {
		t.Fatalf("unexpected display: %+v", s.Display)
	}
	if s.RowCount != 2 {
		t.Fatalf("expected 2 rows, got %d", s.RowCount)
	}
	if s.Graphics == nil || s.Graphics.ScaleX != 1 || s.Graphics.X != 0 {
		t.Fatalf("unexpected graphics transform: %+v", s.Graphics)
	}
	if s.Applied != s.Generation || s.Generation == 0 {
		t.Fatalf("generations = %d/%d", s.Generation, s.Applied)
	}
}

func TestTrack_ZoomBoundary(t *testing.T) {
	fetcher := &fakeFetcher{info: readsInfo(200)}
	tr := newTestTrack(t, fetcher)

	if err := tr.LoadTilesetInfo(context.Background()); err != nil {
		t.Fatalf("LoadTilesetInfo: %v", err)
	}
	tr.Zoomed(scale.NewLinear([2]float64{0, 1024}, [2]float64{0, 256}))
	tr.Wait()

	if got := tr.Display().Error; got != "Zoom in to see details" {
		t.Fatalf("expected zoom boundary message, got %q", got)
	}
	if got := fetcher.calls(); len(got) != 0 {
		t.Fatalf("expected no fetches, got %v", got)
	}
	if s := tr.State(); len(s.VisibleTiles) != 0 {
		t.Fatalf("expected no visible tiles, got %v", s.VisibleTiles)
	}
}

func TestTrack_FetchFailure(t *testing.T) {
	fetcher := &fakeFetcher{info: readsInfo(5000), tileErr: errors.New("boom")}
	tr := newTestTrack(t, fetcher)

	if err := tr.LoadTilesetInfo(context.Background()); err != nil {
		t.Fatalf("LoadTilesetInfo: %v", err)
	}
	tr.Zoomed(identity256())
	tr.Wait()

	s := tr.State()
	if s.Display.Error != "failed to fetch tile 2.0: boom" {
		t.Fatalf("unexpected error: %q", s.Display.Error)
	}
	if len(s.Fetching) != 0 || s.Display.LoadingVisible {
		t.Fatalf("failed tile left in fetching: %v", s.Fetching)
	}
	if len(s.FetchedTiles) != 0 {
		t.Fatalf("expected no fetched tiles, got %v", s.FetchedTiles)
	}
}

func TestTrack_TilesetInfoFailure(t *testing.T) {
	fetcher := &fakeFetcher{infoErr: errors.New("unreachable")}
	tr := newTestTrack(t, fetcher)

	if err := tr.LoadTilesetInfo(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if got := tr.Display().Error; got != "unreachable" {
		t.Fatalf("unexpected error text %q", got)
	}
}

func TestTrack_MaxZoom(t *testing.T) {
	tests := []struct {
		name    string
		maxZoom *int
		want    tileset.Coord
	}{
		{"unset", nil, tileset.Coord{Zoom: 2, X: 0}},
		{"pinnedToZero", new(int), tileset.Coord{Zoom: 0, X: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New(Config{
				TilesetUID: "reads",
				Fetcher:    &fakeFetcher{},
				Renderer:   worker.NewPool(worker.PoolConfig{Source: testReads()}),
				MaxZoom:    tt.maxZoom,
				Dimensions: [2]float64{256, 100},
			})
			t.Cleanup(tr.Close)

			if err := tr.SetTilesetInfo(readsInfo(5000)); err != nil {
				t.Fatalf("SetTilesetInfo: %v", err)
			}
			tr.Zoomed(identity256())
			tr.Wait()

			s := tr.State()
			if len(s.VisibleTiles) != 1 || s.VisibleTiles[0] != tt.want {
				t.Fatalf("expected %+v, got %v", tt.want, s.VisibleTiles)
			}
		})
	}
}

func TestTrack_ScrollEvictsTiles(t *testing.T) {
	fetcher := &fakeFetcher{info: readsInfo(5000)}
	tr := newTestTrack(t, fetcher)

	if err := tr.SetTilesetInfo(readsInfo(5000)); err != nil {
		t.Fatalf("SetTilesetInfo: %v", err)
	}
	tr.Zoomed(identity256())
	tr.Wait()

	tr.Zoomed(scale.NewLinear([2]float64{256, 512}, [2]float64{0, 256}))
	tr.Wait()

	s := tr.State()
	if len(s.FetchedTiles) != 1 || s.FetchedTiles[0].ID != "2.1" {
		t.Fatalf("expected only 2.1 fetched, got %v", s.FetchedTiles)
	}
	if s.RowCount != 1 {
		t.Fatalf("expected rows rebuilt from 2.1 only, got %d", s.RowCount)
	}
}

func TestTrack_VerticalGestures(t *testing.T) {
	fetcher := &fakeFetcher{info: readsInfo(5000)}
	tr := newTestTrack(t, fetcher)
	if err := tr.SetTilesetInfo(readsInfo(5000)); err != nil {
		t.Fatalf("SetTilesetInfo: %v", err)
	}
	tr.Zoomed(identity256())
	tr.Wait()

	tr.ZoomedY(50, 0.5)
	s := tr.State()
	if s.ValueTransform != (ValueTransform{K: 2, Y: -50}) || s.Graphics.ScaleY != 2 || s.Graphics.Y != -50 {
		t.Fatalf("unexpected state after vertical zoom: %+v / %+v", s.ValueTransform, s.Graphics)
	}

	tr.MovedY(-200)
	if s := tr.State(); s.ValueTransform.Y != -50 || s.Graphics.Y != -50 {
		t.Fatalf("pan past bottom should be rejected: %+v", s.ValueTransform)
	}

	tr.MovedY(-20)
	if s := tr.State(); s.ValueTransform.Y != -60 || s.Graphics.Y != -60 {
		t.Fatalf("expected pan to -60, got %+v", s.ValueTransform)
	}
}

func TestTrack_MouseOver(t *testing.T) {
	fetcher := &fakeFetcher{info: readsInfo(5000)}
	tr := newTestTrack(t, fetcher)

	if got := tr.MouseOverHTML(5, 0); got != "" {
		t.Fatalf("expected empty mouseover before render, got %q", got)
	}

	if err := tr.SetTilesetInfo(readsInfo(5000)); err != nil {
		t.Fatalf("SetTilesetInfo: %v", err)
	}
	tr.Zoomed(identity256())
	tr.Wait()

	if got, want := tr.MouseOverHTML(10, 60), "Position: chr1:5<br>Read length: 10<br>"; got != want {
		t.Fatalf("MouseOverHTML() = %q, want %q", got, want)
	}
	if got := tr.MouseOverHTML(50, 0); got != "" {
		t.Fatalf("expected no read between a and c, got %q", got)
	}
	if got := tr.MouseOverHTML(5, 500); got != "" {
		t.Fatalf("expected no read below the last row, got %q", got)
	}
}

func TestTrack_OnRedraw(t *testing.T) {
	var mu sync.Mutex
	redraws := 0
	tr := New(Config{
		TilesetUID: "reads",
		Dimensions: [2]float64{256, 100},
		OnRedraw: func() {
			mu.Lock()
			redraws++
			mu.Unlock()
		},
	})
	defer tr.Close()

	tr.SetPosition([2]float64{10, 20})
	tr.SetDimensions([2]float64{300, 120})

	mu.Lock()
	defer mu.Unlock()
	if redraws != 2 {
		t.Fatalf("expected 2 redraws, got %d", redraws)
	}
	if d := tr.Display(); d.LoadingAnchor != [2]float64{10, 20} {
		t.Fatalf("loading text did not follow the track origin: %+v", d.LoadingAnchor)
	}
}
