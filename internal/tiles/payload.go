package tiles

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pileup-tiles/server/internal/worker"
)

var (
	// ErrNotFound is returned when a source has no such tileset or tile.
	ErrNotFound = errors.New("not found")
	// ErrTileError wraps an error reported by the tile server in place of
	// tile data.
	ErrTileError = errors.New("tile server error")
)

// Safe for concurrent DecodeAll / EncodeAll.
var (
	zstdDecoder, _ = zstd.NewReader(nil)
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
)

// DecodeReads decodes a tile payload. A payload is either a JSON array of
// reads or a JSON string holding base64 zstd-compressed JSON. A JSON object
// with an "error" field is reported as ErrTileError.
func DecodeReads(raw []byte) ([]worker.Read, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty tile payload")
	}

	switch raw[0] {
	case '[':
		var reads []worker.Read
		if err := json.Unmarshal(raw, &reads); err != nil {
			return nil, fmt.Errorf("failed to decode reads: %w", err)
		}
		return reads, nil

	case '"':
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, fmt.Errorf("failed to decode payload string: %w", err)
		}
		compressed, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 payload: %w", err)
		}
		plain, err := zstdDecoder.DecodeAll(compressed, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress payload: %w", err)
		}
		if len(plain) == 0 || plain[0] == '"' {
			return nil, fmt.Errorf("compressed payload is not a reads array")
		}
		return DecodeReads(plain)

	case '{':
		if err := serverError(raw); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("unsupported tile payload object")
	}

	return nil, fmt.Errorf("unsupported tile payload starting with %q", raw[0])
}

// EncodeReads produces a payload DecodeReads accepts, optionally compressed.
func EncodeReads(reads []worker.Read, compress bool) ([]byte, error) {
	if reads == nil {
		reads = []worker.Read{}
	}
	plain, err := json.Marshal(reads)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reads: %w", err)
	}
	if !compress {
		return plain, nil
	}
	encoded := base64.StdEncoding.EncodeToString(zstdEncoder.EncodeAll(plain, nil))
	return json.Marshal(encoded)
}

// serverError returns the error an {"error": "..."} object carries, or nil.
func serverError(raw []byte) error {
	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || obj.Error == "" {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrTileError, obj.Error)
}
