package api

import (
	"github.com/pileup-tiles/server/internal/service"
)

// TrackInfo contains information about a track for the API response.
type TrackInfo struct {
	ID         string `json:"id"`
	TilesetUID string `json:"tileset_uid"`
	Source     string `json:"source,omitempty"`
}

// TrackRegistry holds the services of all configured tracks.
type TrackRegistry struct {
	services   map[string]*service.TrackService
	sources    map[string]string
	trackOrder []string
	title      string
}

// NewTrackRegistry creates a new track registry.
func NewTrackRegistry(title string) *TrackRegistry {
	return &TrackRegistry{
		services: make(map[string]*service.TrackService),
		sources:  make(map[string]string),
		title:    title,
	}
}

// Register adds a track service. source names where its tiles come from.
func (r *TrackRegistry) Register(svc *service.TrackService, source string) {
	id := svc.ID()
	if _, ok := r.services[id]; !ok {
		r.trackOrder = append(r.trackOrder, id)
	}
	r.services[id] = svc
	r.sources[id] = source
}

// Get returns the service for a track, or nil if not found.
func (r *TrackRegistry) Get(trackID string) *service.TrackService {
	return r.services[trackID]
}

// Title returns the configured site title.
func (r *TrackRegistry) Title() string {
	if r.title != "" {
		return r.title
	}
	return "Pileup Tiles"
}

// Tracks returns track info for all registered tracks.
func (r *TrackRegistry) Tracks() []TrackInfo {
	infos := make([]TrackInfo, 0, len(r.trackOrder))
	for _, id := range r.trackOrder {
		infos = append(infos, TrackInfo{
			ID:         id,
			TilesetUID: r.services[id].TilesetUID(),
			Source:     r.sources[id],
		})
	}
	return infos
}

// Close stops every track.
func (r *TrackRegistry) Close() {
	for _, id := range r.trackOrder {
		r.services[id].Close()
	}
}
