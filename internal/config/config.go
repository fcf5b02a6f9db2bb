// Package config handles configuration loading for the pileup track server.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Cache  CacheConfig  `yaml:"cache"`
	Worker WorkerConfig `yaml:"worker"`
	Render RenderConfig `yaml:"render"`
	Tracks TracksConfig `yaml:"tracks"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	TileSizeMB         int `yaml:"tile_size_mb"`
	TileTTLMinutes     int `yaml:"tile_ttl_minutes"`
	TilesetInfoEntries int `yaml:"tileset_info_entries"`
	DecodedTileEntries int `yaml:"decoded_tile_entries"`
}

// WorkerConfig contains segment worker settings.
type WorkerConfig struct {
	MaxConcurrent int     `yaml:"max_concurrent"`
	RowPadding    float64 `yaml:"row_padding"`
	ReadGap       float64 `yaml:"read_gap"`
	Palette       string  `yaml:"palette"`
}

// RenderConfig contains tile selection and snapshot settings.
type RenderConfig struct {
	MaxTileWidth float64 `yaml:"max_tile_width"`
	ExportWidth  int     `yaml:"export_width"`
	ExportHeight int     `yaml:"export_height"`
}

// TrackConfig describes one pileup track. Exactly one of Server and Dir
// is set.
type TrackConfig struct {
	Server     string  `yaml:"server"`
	Dir        string  `yaml:"dir"`
	TilesetUID string  `yaml:"tileset_uid"`
	Width      float64 `yaml:"width"`
	Height     float64 `yaml:"height"`
	MaxZoom    *int    `yaml:"max_zoom"` // unset: the tileset's deepest level
}

// TracksConfig holds the configured tracks in file order.
type TracksConfig struct {
	Tracks map[string]TrackConfig
	order  []string
}

// UnmarshalYAML implements yaml.Unmarshaler, keeping the key order.
func (t *TracksConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("tracks: expected a mapping, got %v", node.Tag)
	}
	t.Tracks = make(map[string]TrackConfig, len(node.Content)/2)
	t.order = t.order[:0]
	for i := 0; i+1 < len(node.Content); i += 2 {
		id := node.Content[i].Value
		var tc TrackConfig
		if err := node.Content[i+1].Decode(&tc); err != nil {
			return fmt.Errorf("tracks.%s: %w", id, err)
		}
		if _, dup := t.Tracks[id]; dup {
			return fmt.Errorf("tracks.%s: duplicate track", id)
		}
		t.Tracks[id] = tc
		t.order = append(t.order, id)
	}
	return nil
}

// TrackIDs returns the track ids in configuration order.
func (t TracksConfig) TrackIDs() []string {
	return append([]string(nil), t.order...)
}

// Add appends a track, replacing any track with the same id.
func (t *TracksConfig) Add(id string, tc TrackConfig) {
	if t.Tracks == nil {
		t.Tracks = make(map[string]TrackConfig)
	}
	if _, ok := t.Tracks[id]; !ok {
		t.order = append(t.order, id)
	}
	t.Tracks[id] = tc
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		return DefaultConfig(), nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Cache: CacheConfig{
			TileSizeMB:         512,
			TileTTLMinutes:     10,
			TilesetInfoEntries: 64,
			DecodedTileEntries: 256,
		},
		Worker: WorkerConfig{
			MaxConcurrent: 2,
			RowPadding:    0.2,
			ReadGap:       1,
			Palette:       "default",
		},
		Render: RenderConfig{
			MaxTileWidth: 2e5,
			ExportWidth:  1024,
			ExportHeight: 256,
		},
	}
}

// Validate checks the track definitions.
func (c *Config) Validate() error {
	for _, id := range c.Tracks.TrackIDs() {
		tc := c.Tracks.Tracks[id]
		if tc.TilesetUID == "" {
			return fmt.Errorf("tracks.%s: tileset_uid is required", id)
		}
		if (tc.Server == "") == (tc.Dir == "") {
			return fmt.Errorf("tracks.%s: exactly one of server and dir must be set", id)
		}
		if tc.MaxZoom != nil && *tc.MaxZoom < 0 {
			return fmt.Errorf("tracks.%s: max_zoom must not be negative", id)
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Cache.TileSizeMB == 0 {
		cfg.Cache.TileSizeMB = defaults.Cache.TileSizeMB
	}
	if cfg.Cache.TileTTLMinutes == 0 {
		cfg.Cache.TileTTLMinutes = defaults.Cache.TileTTLMinutes
	}
	if cfg.Cache.TilesetInfoEntries == 0 {
		cfg.Cache.TilesetInfoEntries = defaults.Cache.TilesetInfoEntries
	}
	if cfg.Cache.DecodedTileEntries == 0 {
		cfg.Cache.DecodedTileEntries = defaults.Cache.DecodedTileEntries
	}
	if cfg.Worker.MaxConcurrent == 0 {
		cfg.Worker.MaxConcurrent = defaults.Worker.MaxConcurrent
	}
	if cfg.Worker.RowPadding == 0 {
		cfg.Worker.RowPadding = defaults.Worker.RowPadding
	}
	if cfg.Worker.ReadGap == 0 {
		cfg.Worker.ReadGap = defaults.Worker.ReadGap
	}
	if cfg.Worker.Palette == "" {
		cfg.Worker.Palette = defaults.Worker.Palette
	}
	if cfg.Render.MaxTileWidth == 0 {
		cfg.Render.MaxTileWidth = defaults.Render.MaxTileWidth
	}
	if cfg.Render.ExportWidth == 0 {
		cfg.Render.ExportWidth = defaults.Render.ExportWidth
	}
	if cfg.Render.ExportHeight == 0 {
		cfg.Render.ExportHeight = defaults.Render.ExportHeight
	}

	for id, tc := range cfg.Tracks.Tracks {
		if tc.Width == 0 {
			tc.Width = float64(cfg.Render.ExportWidth)
		}
		if tc.Height == 0 {
			tc.Height = float64(cfg.Render.ExportHeight)
		}
		cfg.Tracks.Tracks[id] = tc
	}
}
