// Package colormap provides colour schemes for pileup reads.
package colormap

import (
	"fmt"
	"image/color"
	"sort"
)

// Palette assigns colours to the parts of an aligned read.
type Palette struct {
	Forward   color.RGBA
	Reverse   color.RGBA
	Unknown   color.RGBA
	Mismatch  color.RGBA
	Deletion  color.RGBA
	Insertion color.RGBA
}

// Strand returns the body colour of a read on the given strand ("+", "-").
func (p Palette) Strand(strand string) color.RGBA {
	switch strand {
	case "+":
		return p.Forward
	case "-":
		return p.Reverse
	default:
		return p.Unknown
	}
}

// Floats converts c to normalized RGBA components as vertex attributes
// expect them.
func Floats(c color.RGBA) [4]float32 {
	return [4]float32{
		float32(c.R) / 255,
		float32(c.G) / 255,
		float32(c.B) / 255,
		float32(c.A) / 255,
	}
}

// Default is the standard grey pileup palette.
var Default = Palette{
	Forward:   color.RGBA{176, 176, 220, 255},
	Reverse:   color.RGBA{220, 176, 176, 255},
	Unknown:   color.RGBA{190, 190, 190, 255},
	Mismatch:  color.RGBA{240, 60, 60, 255},
	Deletion:  color.RGBA{40, 40, 40, 255},
	Insertion: color.RGBA{120, 40, 200, 255},
}

// Colorblind avoids red/green contrasts (Okabe-Ito).
var Colorblind = Palette{
	Forward:   color.RGBA{86, 180, 233, 255},
	Reverse:   color.RGBA{230, 159, 0, 255},
	Unknown:   color.RGBA{153, 153, 153, 255},
	Mismatch:  color.RGBA{213, 94, 0, 255},
	Deletion:  color.RGBA{0, 0, 0, 255},
	Insertion: color.RGBA{204, 121, 167, 255},
}

var palettes = map[string]Palette{
	"default":    Default,
	"colorblind": Colorblind,
}

// Lookup returns the named palette.
func Lookup(name string) (Palette, error) {
	if name == "" {
		return Default, nil
	}
	p, ok := palettes[name]
	if !ok {
		return Palette{}, fmt.Errorf("unknown palette: %s", name)
	}
	return p, nil
}

// Names lists the registered palettes in sorted order.
func Names() []string {
	names := make([]string, 0, len(palettes))
	for name := range palettes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
