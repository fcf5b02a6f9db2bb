// Package track implements the pileup track: visible tile selection, fetch
// bookkeeping, the asynchronous render pipeline and viewport transforms.
package track

import (
	"sort"
	"strings"
)

// FetchState records which tiles are being fetched and which are waiting
// for geometry. A tile id is in at most one of the two sets. Transitions
// return a new value and never modify the receiver.
type FetchState struct {
	fetching  map[string]struct{}
	rendering map[string]struct{}
}

// NewFetchState returns an empty state.
func NewFetchState() FetchState {
	return FetchState{
		fetching:  map[string]struct{}{},
		rendering: map[string]struct{}{},
	}
}

func (s FetchState) clone() FetchState {
	out := FetchState{
		fetching:  make(map[string]struct{}, len(s.fetching)),
		rendering: make(map[string]struct{}, len(s.rendering)),
	}
	for id := range s.fetching {
		out.fetching[id] = struct{}{}
	}
	for id := range s.rendering {
		out.rendering[id] = struct{}{}
	}
	return out
}

// MarkFetching records that a request for id has been issued.
func (s FetchState) MarkFetching(id string) FetchState {
	out := s.clone()
	delete(out.rendering, id)
	out.fetching[id] = struct{}{}
	return out
}

// MarkFetched moves id from fetching to rendering. Idempotent.
func (s FetchState) MarkFetched(id string) FetchState {
	out := s.clone()
	delete(out.fetching, id)
	out.rendering[id] = struct{}{}
	return out
}

// MarkRendered removes id from rendering.
func (s FetchState) MarkRendered(id string) FetchState {
	out := s.clone()
	delete(out.rendering, id)
	return out
}

// Forget drops id from both sets, e.g. after a failed fetch.
func (s FetchState) Forget(id string) FetchState {
	out := s.clone()
	delete(out.fetching, id)
	delete(out.rendering, id)
	return out
}

// IsFetching reports whether id is being fetched.
func (s FetchState) IsFetching(id string) bool {
	_, ok := s.fetching[id]
	return ok
}

// IsRendering reports whether id is waiting for geometry.
func (s FetchState) IsRendering(id string) bool {
	_, ok := s.rendering[id]
	return ok
}

// Fetching returns the ids being fetched, sorted.
func (s FetchState) Fetching() []string { return sortedKeys(s.fetching) }

// Rendering returns the ids waiting for geometry, sorted.
func (s FetchState) Rendering() []string { return sortedKeys(s.rendering) }

// StatusText returns the loading indicator text and whether the indicator
// is shown. Fetching takes precedence over rendering when both are pending.
func (s FetchState) StatusText(haveTilesetInfo bool) (string, bool) {
	if !haveTilesetInfo {
		return "Fetching tileset info...", true
	}
	if len(s.fetching) > 0 {
		ids := s.Fetching()
		names := make([]string, len(ids))
		for i, id := range ids {
			names[i] = shortName(id)
		}
		return "Fetching... " + strings.Join(names, " "), true
	}
	if len(s.rendering) > 0 {
		return "Rendering... " + strings.Join(s.Rendering(), " "), true
	}
	return "", false
}

// shortName strips any "|"-separated qualifier from a tile id.
func shortName(id string) string {
	if i := strings.IndexByte(id, '|'); i >= 0 {
		return id[:i]
	}
	return id
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
