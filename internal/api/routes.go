// Package api provides HTTP handlers for the pileup track server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pileup-tiles/server/internal/service"
	"github.com/pileup-tiles/server/internal/tiles"
	"github.com/pileup-tiles/server/internal/tileset"
	"github.com/pileup-tiles/server/internal/track"
	"github.com/pileup-tiles/server/pkg/colormap"
)

// maxBodySize bounds gesture request bodies.
const maxBodySize = 1 << 20

// RouterConfig contains router configuration.
type RouterConfig struct {
	Registry    *TrackRegistry
	CORSOrigins []string
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Get("/api/tracks", tracksHandler(cfg.Registry))

	// Track-scoped routes: /api/tracks/{track}/...
	r.Route("/api/tracks/{track}", func(r chi.Router) {
		r.Use(trackMiddleware(cfg.Registry))

		r.Get("/tileset_info", tilesetInfoHandler)
		r.Get("/state", stateHandler)
		r.Get("/mouseover", mouseOverHandler)
		r.Get("/snapshot.png", snapshotHandler)
		r.Post("/viewport", viewportHandler)
		r.Post("/pan", panHandler)
		r.Post("/zoom", zoomHandler)
	})

	return r
}

// Context key for track service
type ctxKey string

const trackServiceKey ctxKey = "trackService"

// trackMiddleware resolves the track from URL and injects its service into context.
func trackMiddleware(registry *TrackRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			trackID := chi.URLParam(r, "track")
			svc := registry.Get(trackID)
			if svc == nil {
				writeError(w, http.StatusNotFound, fmt.Errorf("track not found: %s", trackID))
				return
			}
			ctx := context.WithValue(r.Context(), trackServiceKey, svc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getTrackService(r *http.Request) *service.TrackService {
	if svc, ok := r.Context().Value(trackServiceKey).(*service.TrackService); ok {
		return svc
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// waitRequested reports whether the client asked to block until pending
// fetches and renders finish.
func waitRequested(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	return v
}

// tracksHandler returns the configured tracks and the track type description.
func tracksHandler(registry *TrackRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"title":    registry.Title(),
			"tracks":   registry.Tracks(),
			"plugin":   track.Plugin,
			"palettes": colormap.Names(),
		})
	}
}

func tilesetInfoHandler(w http.ResponseWriter, r *http.Request) {
	svc := getTrackService(r)
	if svc == nil {
		http.Error(w, "track service not found", http.StatusInternalServerError)
		return
	}

	info, err := svc.TilesetInfo(r.Context())
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, tiles.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, tileset.ErrInvalidTileset):
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		svc.TilesetUID(): info,
	})
}

func stateHandler(w http.ResponseWriter, r *http.Request) {
	svc := getTrackService(r)
	if svc == nil {
		http.Error(w, "track service not found", http.StatusInternalServerError)
		return
	}
	if waitRequested(r) {
		svc.Wait()
	}
	writeJSON(w, http.StatusOK, svc.State())
}

func viewportHandler(w http.ResponseWriter, r *http.Request) {
	svc := getTrackService(r)
	if svc == nil {
		http.Error(w, "track service not found", http.StatusInternalServerError)
		return
	}

	var v service.Viewport
	if err := decodeBody(r, &v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := v.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// Selection needs the tileset info; a failed load is reported through
	// the track's error text.
	svc.Load(r.Context())

	if err := svc.SetViewport(v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if waitRequested(r) {
		svc.Wait()
	}
	writeJSON(w, http.StatusOK, svc.State())
}

type panRequest struct {
	DY float64 `json:"dy"`
}

func panHandler(w http.ResponseWriter, r *http.Request) {
	svc := getTrackService(r)
	if svc == nil {
		http.Error(w, "track service not found", http.StatusInternalServerError)
		return
	}

	var req panRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	svc.Pan(req.DY)
	writeJSON(w, http.StatusOK, svc.State())
}

type zoomRequest struct {
	Y float64 `json:"y"`
	K float64 `json:"k"`
}

func zoomHandler(w http.ResponseWriter, r *http.Request) {
	svc := getTrackService(r)
	if svc == nil {
		http.Error(w, "track service not found", http.StatusInternalServerError)
		return
	}

	var req zoomRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := svc.ZoomY(req.Y, req.K); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, svc.State())
}

func mouseOverHandler(w http.ResponseWriter, r *http.Request) {
	svc := getTrackService(r)
	if svc == nil {
		http.Error(w, "track service not found", http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	x, err := strconv.ParseFloat(query.Get("x"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid x: %w", err))
		return
	}
	y, err := strconv.ParseFloat(query.Get("y"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid y: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"html": svc.MouseOver(x, y),
	})
}

func snapshotHandler(w http.ResponseWriter, r *http.Request) {
	svc := getTrackService(r)
	if svc == nil {
		http.Error(w, "track service not found", http.StatusInternalServerError)
		return
	}
	if waitRequested(r) {
		svc.Wait()
	}

	data, err := svc.Snapshot()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}
