// Copyright 2024 The credramp Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bayer implements the extractRGGBchan sibling utility: it
// splits a single raw Bayer-pattern frame into four half-resolution
// channel images without allocating a transposed buffer.
package bayer

import "gonum.org/v1/gonum/stat"

// Mode selects which of the four 2x2 Bayer positions maps to which
// channel.
type Mode int

// Valid values for Mode. Mode1 (GBRG) is the default fallback for an
// unrecognized sensor size.
const (
	Mode1GBRG Mode = iota
	Mode2RGGB
)

// sizeToMode is a hard-coded lookup for the two known sensor sizes.
// A future revision should probably surface this as explicit
// configuration rather than a size guess; unknown sizes silently fall
// through to Mode1GBRG.
func sizeToMode(w, h int) (Mode, bool) {
	switch {
	case w == 5202 && h == 3465:
		return Mode2RGGB, true
	case w == 4770 && h == 3178:
		return Mode1GBRG, true
	default:
		return Mode1GBRG, false
	}
}

// ModeForSize returns the Bayer mode for a sensor size, defaulting to
// Mode1GBRG with ok=false for unrecognized sizes so the caller can log
// a warning instead of failing.
func ModeForSize(w, h int) (mode Mode, known bool) {
	return sizeToMode(w, h)
}

// Channels holds the four split half-resolution planes.
type Channels struct {
	W, H       int
	R, G1, G2, B []float32
}

// Split walks destination pixels and reads the four source positions
// (2i,2j), (2i+1,2j), (2i,2j+1), (2i+1,2j+1) directly out of raw,
// without ever materializing a transposed buffer.
func Split[T ~uint16 | ~int16](raw []T, w, h int, mode Mode) *Channels {
	dw, dh := w/2, h/2
	c := &Channels{
		W:  dw,
		H:  dh,
		R:  make([]float32, dw*dh),
		G1: make([]float32, dw*dh),
		G2: make([]float32, dw*dh),
		B:  make([]float32, dw*dh),
	}
	// topLeft, topRight, botLeft and botRight name the channel fed by the
	// (dx,dy) offsets (0,0), (1,0), (0,1) and (1,1) of each 2x2 block.
	var topLeft, topRight, botLeft, botRight *[]float32
	switch mode {
	case Mode2RGGB:
		topLeft, topRight, botLeft, botRight = &c.R, &c.G1, &c.G2, &c.B
	default: // Mode1GBRG
		topLeft, topRight, botLeft, botRight = &c.G1, &c.B, &c.R, &c.G2
	}
	for j := 0; j < dh; j++ {
		srcRow0 := (2 * j) * w
		srcRow1 := (2*j + 1) * w
		for i := 0; i < dw; i++ {
			d := j*dw + i
			(*topLeft)[d] = float32(raw[srcRow0+2*i])
			(*topRight)[d] = float32(raw[srcRow0+2*i+1])
			(*botLeft)[d] = float32(raw[srcRow1+2*i])
			(*botRight)[d] = float32(raw[srcRow1+2*i+1])
		}
	}
	return c
}

// Stats reports per-channel mean/variance, a read-only diagnostic used
// by the extractRGGBchan CLI's --verbose flag. It is not on the
// per-pixel split hot path.
type Stats struct {
	Mean, Variance float64
}

func channelStats(ch []float32) Stats {
	xs := make([]float64, len(ch))
	for i, v := range ch {
		xs[i] = float64(v)
	}
	mean, variance := stat.MeanVariance(xs, nil)
	return Stats{Mean: mean, Variance: variance}
}

// ChannelStats computes Stats for all four channels.
func (c *Channels) ChannelStats() (r, g1, g2, b Stats) {
	return channelStats(c.R), channelStats(c.G1), channelStats(c.G2), channelStats(c.B)
}
