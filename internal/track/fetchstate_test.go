package track

import "testing"

func TestFetchState_Transitions(t *testing.T) {
	s := NewFetchState().MarkFetching("1.0")
	if !s.IsFetching("1.0") || s.IsRendering("1.0") {
		t.Fatalf("expected 1.0 fetching only")
	}

	s = s.MarkFetched("1.0")
	if s.IsFetching("1.0") || !s.IsRendering("1.0") {
		t.Fatalf("expected 1.0 rendering only after MarkFetched")
	}

	// idempotent
	again := s.MarkFetched("1.0")
	if again.IsFetching("1.0") || !again.IsRendering("1.0") || len(again.Rendering()) != 1 {
		t.Fatalf("MarkFetched is not idempotent: %v / %v", again.Fetching(), again.Rendering())
	}

	s = s.MarkRendered("1.0")
	if s.IsFetching("1.0") || s.IsRendering("1.0") {
		t.Fatalf("expected 1.0 gone after MarkRendered")
	}
}

func TestFetchState_TransitionsDoNotMutateReceiver(t *testing.T) {
	before := NewFetchState().MarkFetching("a")
	after := before.MarkFetched("a")

	if !before.IsFetching("a") || before.IsRendering("a") {
		t.Fatalf("receiver was modified: %v / %v", before.Fetching(), before.Rendering())
	}
	if !after.IsRendering("a") {
		t.Fatalf("expected new state to hold a in rendering")
	}
}

func TestFetchState_StatusText(t *testing.T) {
	tests := []struct {
		name        string
		state       FetchState
		haveInfo    bool
		wantText    string
		wantVisible bool
	}{
		{
			name:        "noTilesetInfo",
			state:       NewFetchState().MarkFetching("1.0"),
			haveInfo:    false,
			wantText:    "Fetching tileset info...",
			wantVisible: true,
		},
		{
			name:        "fetchingShortNames",
			state:       NewFetchState().MarkFetching("1.1|reads").MarkFetching("1.0|reads"),
			haveInfo:    true,
			wantText:    "Fetching... 1.0 1.1",
			wantVisible: true,
		},
		{
			name:        "fetchingWinsOverRendering",
			state:       NewFetchState().MarkFetching("2.0").MarkFetching("2.1").MarkFetched("2.1"),
			haveInfo:    true,
			wantText:    "Fetching... 2.0",
			wantVisible: true,
		},
		{
			name:        "renderingOnly",
			state:       NewFetchState().MarkFetched("2.1").MarkFetched("2.0"),
			haveInfo:    true,
			wantText:    "Rendering... 2.0 2.1",
			wantVisible: true,
		},
		{
			name:        "idle",
			state:       NewFetchState(),
			haveInfo:    true,
			wantText:    "",
			wantVisible: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			text, visible := tc.state.StatusText(tc.haveInfo)
			if text != tc.wantText || visible != tc.wantVisible {
				t.Fatalf("StatusText() = (%q, %v), want (%q, %v)", text, visible, tc.wantText, tc.wantVisible)
			}
		})
	}
}

func TestFetchState_Forget(t *testing.T) {
	s := NewFetchState().MarkFetching("a").Forget("a")
	if s.IsFetching("a") || s.IsRendering("a") {
		t.Fatalf("expected a to be forgotten")
	}
}
