// Copyright 2024 The credramp Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package reduce implements the three per-ramp finalizers: passthrough
// (NDR=1), SDS (correlated double sampling, NDR<=6), and UTR
// (up-the-ramp least squares, NDR>6).
package reduce

import (
	"github.com/milk-org/credramp/accum"
	"github.com/milk-org/credramp/sample"
	"github.com/milk-org/credramp/stream"
)

const tagPixels = 8

// Passthrough casts every non-tag pixel of the raw frame to float32.
// Tag pixels and telemetry are the caller's responsibility; this only
// fills pixels 8..n.
func Passthrough[T sample.Raw](out []float32, raw []T) {
	for i := tagPixels; i < len(raw); i++ {
		out[i] = float32(raw[i])
	}
}

// SDS finalizes the correlated-double-sampling output for every pixel.
//
// The inversion applies only when dt==U16 and n==2 — for dt==U16 and
// n>2 the non-inverted form is used. This asymmetry looks like it could
// be a historical bug, but it is preserved here bit-identically rather
// than "fixed," since it is not otherwise explained.
func SDS(out []float32, s *accum.SDS, n int, dt stream.DType) {
	invert := dt == stream.U16 && n == 2
	nf := float32(n)
	for i := tagPixels; i < len(out); i++ {
		count := s.Count[i]
		if count < 2 {
			out[i] = 0
			continue
		}
		numerator := s.LastValid[i] - s.FirstRead[i]
		if invert {
			numerator = s.FirstRead[i] - s.LastValid[i]
		}
		out[i] = (nf - 1) * numerator / float32(count-1)
	}
}

// utrOnePointQuirk documents an open question: the count==1 branch
// below returns N*sum_x[i], i.e. N times the NDR index at which the
// sole valid read happened. That is not a slope estimate. Whether it
// was meant as a placeholder or a position tag is unclear from the
// surrounding code; it is preserved bit-identically rather than
// guessed at.
const utrOnePointQuirk = true

// UTR finalizes the up-the-ramp least-squares slope for every pixel.
//
// D==0 (degenerate fit, e.g. a single distinct x value across all
// valid reads) yields the sentinel -1.
func UTR(out []float32, u *accum.UTR, n int) {
	nf := float32(n)
	for i := tagPixels; i < len(out); i++ {
		switch {
		case u.Count[i] > 1:
			cf := float32(u.Count[i])
			d := cf*u.SumXX[i] - u.SumX[i]*u.SumX[i]
			if d == 0 {
				out[i] = -1
				continue
			}
			out[i] = -nf * (cf*u.SumXY[i] - u.SumX[i]*u.SumY[i]) / d
		case u.Count[i] == 1:
			_ = utrOnePointQuirk
			out[i] = nf * u.SumX[i]
		default:
			out[i] = 0
		}
	}
}
