package tiles

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pileup-tiles/server/internal/cache"
	"github.com/pileup-tiles/server/internal/tileset"
	"github.com/pileup-tiles/server/internal/worker"
)

const infoJSON = `{"max_width": 1024, "min_pos": [0], "max_pos": [1024], "tile_size": 256, "max_zoom": 2, "max_tile_width": 5000}`

func sampleReads() []worker.Read {
	return []worker.Read{
		{ID: "r1", ChrName: "chr1", From: 10, To: 110, Strand: "+", Cigar: "100M"},
		{ID: "r2", ChrName: "chr1", From: 50, To: 150, Strand: "-"},
	}
}

func TestDecodeReads(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		payload, err := EncodeReads(sampleReads(), false)
		if err != nil {
			t.Fatalf("EncodeReads: %v", err)
		}
		reads, err := DecodeReads(payload)
		if err != nil {
			t.Fatalf("DecodeReads: %v", err)
		}
		if len(reads) != 2 || reads[0].Cigar != "100M" || reads[1].Strand != "-" {
			t.Fatalf("unexpected reads: %+v", reads)
		}
	})

	t.Run("compressed", func(t *testing.T) {
		payload, err := EncodeReads(sampleReads(), true)
		if err != nil {
			t.Fatalf("EncodeReads: %v", err)
		}
		if payload[0] != '"' {
			t.Fatalf("expected a JSON string, got %q", payload[:1])
		}
		reads, err := DecodeReads(payload)
		if err != nil {
			t.Fatalf("DecodeReads: %v", err)
		}
		if len(reads) != 2 || reads[1].ID != "r2" {
			t.Fatalf("unexpected reads: %+v", reads)
		}
	})

	t.Run("empty", func(t *testing.T) {
		reads, err := DecodeReads([]byte("[]"))
		if err != nil || len(reads) != 0 {
			t.Fatalf("DecodeReads([]) = %v, %v", reads, err)
		}
	})

	t.Run("serverError", func(t *testing.T) {
		_, err := DecodeReads([]byte(`{"error": "No such tileset"}`))
		if !errors.Is(err, ErrTileError) {
			t.Fatalf("expected ErrTileError, got %v", err)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		for _, in := range []string{"", "42", `"not base64!"`, "{}"} {
			if _, err := DecodeReads([]byte(in)); err == nil {
				t.Fatalf("expected error for %q", in)
			}
		}
	})
}

// newHiGlassServer serves tileset info and tiles the way a HiGlass server
// does, counting requests.
func newHiGlassServer(t *testing.T, tiles map[string][]byte) (*httptest.Server, *int) {
	t.Helper()
	var mu sync.Mutex
	requests := 0

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/tileset_info/", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		uid := r.URL.Query().Get("d")
		if uid != "reads" {
			_ = json.NewEncoder(w).Encode(map[string]any{uid: map[string]string{"error": "No such tileset with uid: " + uid}})
			return
		}
		w.Write([]byte(`{"reads": ` + infoJSON + `}`))
	})
	mux.HandleFunc("/api/v1/tiles/", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		id := r.URL.Query().Get("d")
		payload, ok := tiles[id]
		if !ok {
			w.Write([]byte(`{}`))
			return
		}
		w.Write([]byte(`{"` + id + `": `))
		w.Write(payload)
		w.Write([]byte(`}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestHTTPSource(t *testing.T) {
	payload, err := EncodeReads(sampleReads(), true)
	if err != nil {
		t.Fatalf("EncodeReads: %v", err)
	}
	srv, _ := newHiGlassServer(t, map[string][]byte{"reads.2.0": payload})
	src := NewHTTPSource(srv.URL+"/api/v1/", nil)
	ctx := context.Background()

	raw, err := src.TilesetInfo(ctx, "reads")
	if err != nil {
		t.Fatalf("TilesetInfo: %v", err)
	}
	info, err := tileset.Parse(raw)
	if err != nil || info.MaxWidth != 1024 {
		t.Fatalf("unexpected info %+v, %v", info, err)
	}

	if _, err := src.TilesetInfo(ctx, "missing"); !errors.Is(err, ErrTileError) {
		t.Fatalf("expected server error for unknown tileset, got %v", err)
	}

	raw, err = src.Tile(ctx, "reads.2.0")
	if err != nil {
		t.Fatalf("Tile: %v", err)
	}
	if reads, err := DecodeReads(raw); err != nil || len(reads) != 2 {
		t.Fatalf("unexpected tile reads %v, %v", reads, err)
	}

	if _, err := src.Tile(ctx, "reads.2.3"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHTTPSource_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPSource(srv.URL, nil).Tile(context.Background(), "reads.0.0")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected a status error, got %v", err)
	}
}

func TestHTTPSource_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := NewHTTPSource(srv.URL, nil).Tile(ctx, "reads.0.0"); err == nil {
		t.Fatal("expected error for cancelled request")
	}
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "tileset_info.json"), []byte(infoJSON))

	plain, err := EncodeReads(sampleReads(), false)
	if err != nil {
		t.Fatalf("EncodeReads: %v", err)
	}
	writeFile(t, filepath.Join(dir, "2", "0.json"), plain)

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	writeFile(t, filepath.Join(dir, "2", "1.json.zst"), enc.EncodeAll(plain, nil))
	enc.Close()

	src := NewDirSource(dir)
	ctx := context.Background()

	if _, err := src.TilesetInfo(ctx, "reads"); err != nil {
		t.Fatalf("TilesetInfo: %v", err)
	}

	for _, id := range []string{"reads.2.0", "my.reads.2.1"} {
		raw, err := src.Tile(ctx, id)
		if err != nil {
			t.Fatalf("Tile(%s): %v", id, err)
		}
		if reads, err := DecodeReads(raw); err != nil || len(reads) != 2 {
			t.Fatalf("Tile(%s) reads = %v, %v", id, reads, err)
		}
	}

	if _, err := src.Tile(ctx, "reads.2.2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	for _, bad := range []string{"reads", "reads.2", "reads.a.0", "reads.2.-1", "reads.2.."} {
		if _, err := src.Tile(ctx, bad); err == nil {
			t.Fatalf("expected error for malformed id %q", bad)
		}
	}
	if _, err := NewDirSource(t.TempDir()).TilesetInfo(ctx, "reads"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing tileset_info.json, got %v", err)
	}
}

func newTestCache(t *testing.T) *cache.Manager {
	t.Helper()
	m, err := cache.NewManager(cache.Config{TileCacheSizeMB: 16, TileTTL: time.Minute, InfoCacheSize: 8})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestStore(t *testing.T) {
	payload, err := EncodeReads(sampleReads(), false)
	if err != nil {
		t.Fatalf("EncodeReads: %v", err)
	}
	srv, requests := newHiGlassServer(t, map[string][]byte{"reads.2.0": payload})
	mgr := newTestCache(t)
	ctx := context.Background()

	store, err := NewStore(NewHTTPSource(srv.URL+"/api/v1", nil), mgr, 4)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	info, err := store.TilesetInfo(ctx, "reads")
	if err != nil {
		t.Fatalf("TilesetInfo: %v", err)
	}
	if info.Mode() != tileset.ModeQuadtree || info.MaxTileWidth != 5000 {
		t.Fatalf("unexpected info: %+v", info)
	}
	if _, err := store.TilesetInfo(ctx, "reads"); err != nil {
		t.Fatalf("cached TilesetInfo: %v", err)
	}

	if err := store.FetchTile(ctx, "reads.2.0"); err != nil {
		t.Fatalf("FetchTile: %v", err)
	}
	reads, err := store.Reads(ctx, "reads.2.0")
	if err != nil || len(reads) != 2 {
		t.Fatalf("Reads() = %v, %v", reads, err)
	}
	if *requests != 2 {
		t.Fatalf("expected one info and one tile request, got %d", *requests)
	}

	// a second store sharing the cache manager reuses the raw payload
	other, err := NewStore(NewHTTPSource(srv.URL+"/api/v1", nil), mgr, 4)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := other.Reads(ctx, "reads.2.0"); err != nil {
		t.Fatalf("Reads: %v", err)
	}
	if *requests != 2 {
		t.Fatalf("expected payload cache hit, got %d requests", *requests)
	}

	if err := store.FetchTile(ctx, "reads.2.1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_InvalidTileset(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "tileset_info.json"), []byte(`{"tile_size": 256}`))

	store, err := NewStore(NewDirSource(dir), nil, 0)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := store.TilesetInfo(context.Background(), "reads"); !errors.Is(err, tileset.ErrInvalidTileset) {
		t.Fatalf("expected ErrInvalidTileset, got %v", err)
	}
}

func TestStore_FeedsWorkerPool(t *testing.T) {
	dir := t.TempDir()
	plain, err := EncodeReads(sampleReads(), false)
	if err != nil {
		t.Fatalf("EncodeReads: %v", err)
	}
	writeFile(t, filepath.Join(dir, "0", "0.json"), plain)

	store, err := NewStore(NewDirSource(dir), nil, 0)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	pool := worker.NewPool(worker.PoolConfig{Source: store})
	res, err := pool.RenderSegments(context.Background(), worker.Request{
		TrackUID:      "t",
		TileRemoteIDs: []string{"reads.0.0"},
		XDomain:       [2]float64{0, 200},
		XRange:        [2]float64{0, 200},
		Dimensions:    [2]float64{200, 50},
	})
	if err != nil {
		t.Fatalf("RenderSegments: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("expected overlapping reads on 2 rows, got %d", len(res.Rows))
	}
}

func TestStore_DefaultMaxTileWidth(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "tileset_info.json"), []byte(`{"max_width": 1024, "tile_size": 256, "max_zoom": 2}`))

	store, err := NewStore(NewDirSource(dir), nil, 0)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	store.SetDefaultMaxTileWidth(500)

	info, err := store.TilesetInfo(context.Background(), "reads")
	if err != nil {
		t.Fatalf("TilesetInfo: %v", err)
	}
	if info.MaxTileWidthOrDefault() != 500 {
		t.Fatalf("expected configured default, got %v", info.MaxTileWidthOrDefault())
	}
}
