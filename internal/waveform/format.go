package waveform

import (
	"fmt"
	"strconv"
	"strings"
)

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// SVG renders spec as a standalone SVG document
func SVG(spec DrawSpec) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%s" height="%s" viewBox="0 0 %s %s">`,
		num(spec.Width), num(spec.Height), num(spec.Width), num(spec.Height))
	b.WriteByte('\n')

	for _, bar := range spec.Bars {
		fmt.Fprintf(&b, `  <rect x="%s" y="%s" width="%s" height="%s" rx="%s" fill="%s"/>`,
			num(bar.X), num(bar.Y), num(bar.Width), num(bar.Height), num(spec.CornerRadius), bar.Color)
		b.WriteByte('\n')
	}

	m := spec.Playhead
	switch m.Shape {
	case MarkerLine:
		fmt.Fprintf(&b, `  <line x1="%s" y1="0" x2="%s" y2="%s" stroke="%s" stroke-width="2"/>`,
			num(m.X), num(m.X), num(spec.Height), m.Color)
	default:
		fmt.Fprintf(&b, `  <circle cx="%s" cy="%s" r="%s" fill="%s"/>`,
			num(m.X), num(m.Y), num(m.Radius), m.Color)
	}
	b.WriteString("\n</svg>\n")

	return []byte(b.String())
}

var levels = []rune("▁▂▃▄▅▆▇█")

const (
	ansiActive = "\x1b[38;2;10;186;181m"
	ansiDim    = "\x1b[38;2;110;110;110m"
	ansiReset  = "\x1b[0m"
)

// Terminal renders spec as one line of block glyphs. Without color, bars
// after the playhead are drawn as dots.
func Terminal(spec DrawSpec, color bool) string {
	var b strings.Builder
	active := true
	height := spec.Height
	if height <= 0 {
		height = 100
	}

	for _, bar := range spec.Bars {
		level := int(bar.Height / height * float64(len(levels)))
		level = max(0, min(level, len(levels)-1))
		glyph := levels[level]

		if color {
			if bar.Active != active || b.Len() == 0 {
				if bar.Active {
					b.WriteString(ansiActive)
				} else {
					b.WriteString(ansiDim)
				}
				active = bar.Active
			}
			b.WriteRune(glyph)
			continue
		}

		if bar.Active {
			b.WriteRune(glyph)
		} else {
			b.WriteRune('·')
		}
	}

	if color && b.Len() > 0 {
		b.WriteString(ansiReset)
	}
	return b.String()
}
