// Package main is the entry point for the pileup track server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pileup-tiles/server/internal/api"
	"github.com/pileup-tiles/server/internal/cache"
	"github.com/pileup-tiles/server/internal/config"
	"github.com/pileup-tiles/server/internal/render"
	"github.com/pileup-tiles/server/internal/service"
	"github.com/pileup-tiles/server/internal/tiles"
	"github.com/pileup-tiles/server/internal/worker"
	"github.com/pileup-tiles/server/pkg/colormap"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/server.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting pileup track server on port %d", cfg.Server.Port)

	ctx := context.Background()

	// Initialize cache manager (shared across all tracks)
	cacheManager, err := cache.NewManager(cache.Config{
		TileCacheSizeMB: cfg.Cache.TileSizeMB,
		TileTTL:         time.Duration(cfg.Cache.TileTTLMinutes) * time.Minute,
		InfoCacheSize:   cfg.Cache.TilesetInfoEntries,
	})
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}
	defer cacheManager.Close()

	palette, err := colormap.Lookup(cfg.Worker.Palette)
	if err != nil {
		log.Fatalf("Invalid worker palette: %v", err)
	}

	// Snapshot rasterizer (shared across all tracks)
	rasterizer := render.NewRasterizer(render.Config{
		Width:  cfg.Render.ExportWidth,
		Height: cfg.Render.ExportHeight,
	})

	trackIDs := cfg.Tracks.TrackIDs()
	registry := api.NewTrackRegistry("")
	defer registry.Close()

	log.Printf("Initializing %d track(s)", len(trackIDs))

	for _, trackID := range trackIDs {
		tc := cfg.Tracks.Tracks[trackID]

		var source tiles.Source
		if tc.Server != "" {
			source = tiles.NewHTTPSource(tc.Server, nil)
		} else {
			source = tiles.NewDirSource(tc.Dir)
		}

		store, err := tiles.NewStore(source, cacheManager, cfg.Cache.DecodedTileEntries)
		if err != nil {
			log.Fatalf("Failed to initialize tile store for track %q: %v", trackID, err)
		}
		store.SetDefaultMaxTileWidth(cfg.Render.MaxTileWidth)

		pool := worker.NewPool(worker.PoolConfig{
			MaxConcurrent: cfg.Worker.MaxConcurrent,
			RowPadding:    cfg.Worker.RowPadding,
			ReadGap:       cfg.Worker.ReadGap,
			Palette:       palette,
			Source:        store,
		})

		svc := service.NewTrackService(service.TrackServiceConfig{
			TrackID:    trackID,
			TilesetUID: tc.TilesetUID,
			Store:      store,
			Pool:       pool,
			Rasterizer: rasterizer,
			Width:      tc.Width,
			Height:     tc.Height,
			MaxZoom:    tc.MaxZoom,
		})
		registry.Register(svc, source.Name())

		log.Printf("  [%s] tileset %s from %s", trackID, tc.TilesetUID, source.Name())

		// Fetch tileset info in the background; handlers retry on failure.
		go func() {
			loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			svc.Load(loadCtx)
		}()
	}

	// Set up HTTP router
	router := api.NewRouter(api.RouterConfig{
		Registry:    registry,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on http://localhost:%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
