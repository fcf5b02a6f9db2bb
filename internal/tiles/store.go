// Package tiles fetches tileset metadata and read tiles from tile servers
// or exported directories, with caching.
package tiles

import (
	"context"
	"fmt"
	"log"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pileup-tiles/server/internal/cache"
	"github.com/pileup-tiles/server/internal/tileset"
	"github.com/pileup-tiles/server/internal/worker"
)

// Store loads tiles from a Source. Raw payloads and tileset info go through
// the shared cache manager; decoded reads are kept in a per-store LRU.
// A Store is safe for concurrent use.
type Store struct {
	source  Source
	cache   *cache.Manager
	decoded *lru.Cache[string, []worker.Read]

	maxTileWidth float64
}

// NewStore creates a store. cacheManager may be nil to disable payload
// caching; decodedEntries bounds the decoded reads cache (default 256).
func NewStore(source Source, cacheManager *cache.Manager, decodedEntries int) (*Store, error) {
	if decodedEntries <= 0 {
		decodedEntries = 256
	}
	decoded, err := lru.New[string, []worker.Read](decodedEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoded tile cache: %w", err)
	}
	return &Store{
		source:  source,
		cache:   cacheManager,
		decoded: decoded,
	}, nil
}

// Source returns the store's source.
func (s *Store) Source() Source { return s.source }

// SetDefaultMaxTileWidth sets the max tile width used for tilesets whose
// metadata does not carry one. It must be called before the store is used.
func (s *Store) SetDefaultMaxTileWidth(w float64) { s.maxTileWidth = w }

// TilesetInfo returns the parsed metadata of a tileset.
func (s *Store) TilesetInfo(ctx context.Context, tilesetUID string) (*tileset.Info, error) {
	key := cache.InfoKey(s.source.Name(), tilesetUID)

	var raw []byte
	if s.cache != nil {
		raw, _ = s.cache.GetInfo(key)
	}
	if raw == nil {
		fetched, err := s.source.TilesetInfo(ctx, tilesetUID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch tileset info for %s: %w", tilesetUID, err)
		}
		raw = fetched
	}

	info, err := tileset.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("tileset %s: %w", tilesetUID, err)
	}
	if err := info.Validate(); err != nil {
		return nil, fmt.Errorf("tileset %s: %w", tilesetUID, err)
	}
	if s.cache != nil {
		s.cache.SetInfo(key, raw)
	}
	if info.MaxTileWidth == 0 && s.maxTileWidth > 0 {
		info.MaxTileWidth = s.maxTileWidth
	}
	return info, nil
}

// FetchTile makes a tile's reads available to Reads.
func (s *Store) FetchTile(ctx context.Context, remoteID string) error {
	_, err := s.Reads(ctx, remoteID)
	return err
}

// Reads returns the reads of a tile, fetching it if needed. The returned
// slice is shared and must not be modified.
func (s *Store) Reads(ctx context.Context, remoteID string) ([]worker.Read, error) {
	if reads, ok := s.decoded.Get(remoteID); ok {
		return reads, nil
	}

	key := cache.TileKey(s.source.Name(), remoteID)
	var raw []byte
	cached := false
	if s.cache != nil {
		raw, cached = s.cache.GetTile(key)
	}
	if !cached {
		fetched, err := s.source.Tile(ctx, remoteID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch tile %s: %w", remoteID, err)
		}
		raw = fetched
	}

	reads, err := DecodeReads(raw)
	if err != nil {
		return nil, fmt.Errorf("tile %s: %w", remoteID, err)
	}

	if s.cache != nil && !cached {
		if err := s.cache.SetTile(key, raw); err != nil {
			log.Printf("[TileStore] failed to cache tile %s: %v", remoteID, err)
		}
	}
	s.decoded.Add(remoteID, reads)
	return reads, nil
}
