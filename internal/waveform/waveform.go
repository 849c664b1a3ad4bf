// Package waveform turns an amplitude sequence and a playhead position into
// drawable bars. Render is pure; SVG and Terminal only format its result.
package waveform

import (
	"math"

	"github.com/audiolibrelab/voicememo/internal/config"
)

// MarkerShape selects how the playhead is drawn
type MarkerShape string

const (
	MarkerDot  MarkerShape = "dot"
	MarkerLine MarkerShape = "line"
)

const (
	ActiveColor   = "#0ABAB5"
	InactiveColor = "#E0E0E0"
)

type Options struct {
	BarWidth     float64
	BarSpacing   float64
	CenterY      float64
	Height       float64
	CornerRadius float64
	MarkerRadius float64
	Marker       MarkerShape
	// ThresholdScale divides the playhead before it is compared with bar indexes
	ThresholdScale float64

	ActiveColor   string
	InactiveColor string
}

// Pitch is the horizontal distance between the left edges of two bars
func (o Options) Pitch() float64 {
	return o.BarWidth + o.BarSpacing
}

// OptionsFor returns the layout used by a display mode
func OptionsFor(mode string) Options {
	opts := Options{
		CenterY:        50,
		Height:         100,
		CornerRadius:   2,
		Marker:         MarkerDot,
		ThresholdScale: 1,
		ActiveColor:    ActiveColor,
		InactiveColor:  InactiveColor,
	}

	switch mode {
	case config.ModeList:
		opts.BarWidth = 1.1
		opts.BarSpacing = 4.3
		opts.MarkerRadius = 5.7
	default:
		opts.BarWidth = 4
		opts.BarSpacing = 2
		opts.MarkerRadius = 5
	}
	return opts
}

// OptionsFromConfig applies the configured mode and threshold scale
func OptionsFromConfig(cfg *config.Config) Options {
	opts := OptionsFor(cfg.Waveform.Mode)
	if cfg.Waveform.ThresholdScale > 0 {
		opts.ThresholdScale = cfg.Waveform.ThresholdScale
	}
	return opts
}

type Bar struct {
	Index  int     `json:"index"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Active bool    `json:"active"`
	Color  string  `json:"color"`
}

type Marker struct {
	Shape  MarkerShape `json:"shape"`
	X      float64     `json:"x"`
	Y      float64     `json:"y"`
	Radius float64     `json:"radius"`
	Color  string      `json:"color"`
}

// DrawSpec is everything needed to draw one waveform
type DrawSpec struct {
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	CornerRadius float64 `json:"corner_radius"`
	Bars         []Bar   `json:"bars"`
	Playhead     Marker  `json:"playhead"`
}

// Render lays out one bar per amplitude. Bar i is active when
// i <= playhead/ThresholdScale; the marker sits at the same scaled position.
func Render(amplitudes []float64, playhead float64, opts Options) DrawSpec {
	scale := opts.ThresholdScale
	if scale <= 0 {
		scale = 1
	}
	position := playhead / scale
	pitch := opts.Pitch()

	spec := DrawSpec{
		Width:        math.Max(float64(len(amplitudes))*pitch, position*pitch+opts.MarkerRadius),
		Height:       opts.Height,
		CornerRadius: opts.CornerRadius,
		Bars:         make([]Bar, len(amplitudes)),
		Playhead: Marker{
			Shape:  opts.Marker,
			X:      position * pitch,
			Y:      opts.CenterY,
			Radius: opts.MarkerRadius,
			Color:  opts.ActiveColor,
		},
	}

	for i, amplitude := range amplitudes {
		active := float64(i) <= position
		color := opts.InactiveColor
		if active {
			color = opts.ActiveColor
		}
		spec.Bars[i] = Bar{
			Index:  i,
			X:      float64(i) * pitch,
			Y:      opts.CenterY - amplitude/2,
			Width:  opts.BarWidth,
			Height: amplitude,
			Active: active,
			Color:  color,
		}
	}

	return spec
}
