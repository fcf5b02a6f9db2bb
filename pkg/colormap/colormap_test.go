package colormap

import (
	"image/color"
	"testing"
)

func TestFloatsEndpoints(t *testing.T) {
	t.Parallel()

	got := Floats(color.RGBA{R: 255, G: 0, B: 51, A: 255})
	want := [4]float32{1, 0, 0.2, 1}
	if got != want {
		t.Fatalf("Floats() = %v, want %v", got, want)
	}
}

func TestStrandColours(t *testing.T) {
	t.Parallel()

	if Default.Strand("+") != Default.Forward {
		t.Errorf("expected forward colour for +")
	}
	if Default.Strand("-") != Default.Reverse {
		t.Errorf("expected reverse colour for -")
	}
	if Default.Strand("") != Default.Unknown {
		t.Errorf("expected unknown colour for empty strand")
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()

	p, err := Lookup("")
	if err != nil || p != Default {
		t.Fatalf("Lookup(\"\") = %v, %v; want Default", p, err)
	}
	if _, err := Lookup("colorblind"); err != nil {
		t.Fatalf("Lookup(colorblind) error: %v", err)
	}
	if _, err := Lookup("nope"); err == nil {
		t.Fatalf("expected error for unknown palette")
	}
	if names := Names(); len(names) != 2 || names[0] != "colorblind" {
		t.Fatalf("unexpected names: %v", names)
	}
}
