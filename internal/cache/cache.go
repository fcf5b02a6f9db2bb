// Package cache keeps raw tile payloads and tileset metadata fetched from
// tile servers.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Config contains cache configuration.
type Config struct {
	TileCacheSizeMB int
	TileTTL         time.Duration
	InfoCacheSize   int
}

// Manager manages the tile payload and tileset info caches.
type Manager struct {
	tileCache *bigcache.BigCache
	infoCache *lru.Cache[string, []byte]
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TileTTL <= 0 {
		cfg.TileTTL = 30 * time.Minute
	}
	if cfg.InfoCacheSize <= 0 {
		cfg.InfoCacheSize = 64
	}

	// Few shards: a read tile must fit in one shard of the hard limit.
	tileCacheConfig := bigcache.Config{
		Shards:             64,
		LifeWindow:         cfg.TileTTL,
		CleanWindow:        cfg.TileTTL / 2,
		MaxEntriesInWindow: 1024,
		MaxEntrySize:       64 * 1024,
		HardMaxCacheSize:   cfg.TileCacheSizeMB,
		Verbose:            false,
	}

	tileCache, err := bigcache.New(context.Background(), tileCacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create tile cache: %w", err)
	}

	infoCache, err := lru.New[string, []byte](cfg.InfoCacheSize)
	if err != nil {
		tileCache.Close()
		return nil, fmt.Errorf("failed to create tileset info cache: %w", err)
	}

	return &Manager{
		tileCache: tileCache,
		infoCache: infoCache,
	}, nil
}

// GetTile retrieves a raw tile payload from cache.
func (m *Manager) GetTile(key string) ([]byte, bool) {
	data, err := m.tileCache.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetTile stores a raw tile payload in cache.
func (m *Manager) SetTile(key string, data []byte) error {
	return m.tileCache.Set(key, data)
}

// GetInfo retrieves tileset info JSON from cache.
func (m *Manager) GetInfo(key string) ([]byte, bool) {
	return m.infoCache.Get(key)
}

// SetInfo stores tileset info JSON in cache.
func (m *Manager) SetInfo(key string, data []byte) {
	m.infoCache.Add(key, data)
}

// TileKey generates a cache key for a tile served by source.
func TileKey(source, remoteID string) string {
	return fmt.Sprintf("tile:%s/%s", source, remoteID)
}

// InfoKey generates a cache key for a tileset's metadata.
func InfoKey(source, tilesetUID string) string {
	return fmt.Sprintf("info:%s/%s", source, tilesetUID)
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"tile_cache_len":  m.tileCache.Len(),
		"tile_cache_cap":  m.tileCache.Capacity(),
		"info_cache_len":  m.infoCache.Len(),
		"tile_cache_hits": m.tileCache.Stats().Hits,
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	return m.tileCache.Close()
}
