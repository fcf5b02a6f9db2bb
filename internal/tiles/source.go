package tiles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// maxResponseSize bounds a single tile server response.
const maxResponseSize = 64 << 20

// Source fetches raw tileset metadata and tile payloads.
type Source interface {
	// Name identifies the source in cache keys and logs.
	Name() string
	TilesetInfo(ctx context.Context, tilesetUID string) ([]byte, error)
	Tile(ctx context.Context, remoteID string) ([]byte, error)
}

// HTTPSource talks to a HiGlass-compatible tile server, e.g.
// http://higlass.io/api/v1.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource creates a source for the server at baseURL. A nil client
// selects one with a 30 second timeout.
func NewHTTPSource(baseURL string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Name implements Source.
func (s *HTTPSource) Name() string { return s.baseURL }

// TilesetInfo implements Source.
func (s *HTTPSource) TilesetInfo(ctx context.Context, tilesetUID string) ([]byte, error) {
	return s.lookup(ctx, "/tileset_info/", tilesetUID)
}

// Tile implements Source.
func (s *HTTPSource) Tile(ctx context.Context, remoteID string) ([]byte, error) {
	return s.lookup(ctx, "/tiles/", remoteID)
}

// lookup requests ?d=key and returns the entry for key from the response
// object.
func (s *HTTPSource) lookup(ctx context.Context, path, key string) ([]byte, error) {
	u := s.baseURL + path + "?d=" + url.QueryEscape(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tile server returned %s for %s", resp.Status, u)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode response from %s: %w", u, err)
	}
	raw, ok := entries[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err := serverError(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// DirSource serves a tileset exported to disk:
//
//	{dir}/tileset_info.json
//	{dir}/{zoom}/{x}.json      JSON array of reads
//	{dir}/{zoom}/{x}.json.zst  zstd-compressed JSON array of reads
type DirSource struct {
	dir string
}

// NewDirSource creates a source reading from dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// Name implements Source.
func (s *DirSource) Name() string { return "file://" + s.dir }

// TilesetInfo implements Source. The directory holds a single tileset, so
// the uid is not used.
func (s *DirSource) TilesetInfo(ctx context.Context, tilesetUID string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, "tileset_info.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: tileset info for %s", ErrNotFound, tilesetUID)
	}
	return data, err
}

// Tile implements Source.
func (s *DirSource) Tile(ctx context.Context, remoteID string) ([]byte, error) {
	zoom, x, err := splitRemoteID(remoteID)
	if err != nil {
		return nil, err
	}
	base := filepath.Join(s.dir, zoom, x+".json")

	compressed, err := os.ReadFile(base + ".zst")
	if err == nil {
		plain, err := zstdDecoder.DecodeAll(compressed, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress %s.zst: %w", base, err)
		}
		return plain, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	data, err := os.ReadFile(base)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: tile %s", ErrNotFound, remoteID)
	}
	return data, err
}

// splitRemoteID returns the zoom and x parts of "{uid}.{zoom}.{x}". The uid
// may itself contain dots.
func splitRemoteID(remoteID string) (zoom, x string, err error) {
	parts := strings.Split(remoteID, ".")
	if len(parts) < 3 {
		return "", "", fmt.Errorf("malformed tile id %q", remoteID)
	}
	zoom, x = parts[len(parts)-2], parts[len(parts)-1]
	for _, p := range []string{zoom, x} {
		if p == "" || strings.Trim(p, "0123456789") != "" {
			return "", "", fmt.Errorf("malformed tile id %q", remoteID)
		}
	}
	return zoom, x, nil
}
