// Copyright 2024 The credramp Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sample implements the per-pixel saturation classifier: the
// single branch-free decision every accumulator and finalizer kernel
// is built on.
package sample

// Raw is the set of integer pixel widths the classifier accepts. The
// raw element type is runtime-dispatched between U16 and S16 streams
// (see stream.DType); this constraint lets one generic kernel serve
// both instead of scattering datatype conditionals through the loop.
type Raw interface {
	~uint16 | ~int16
}

// Classify maps a raw pixel to (validity, value) given a saturation
// threshold.
//
// k is 1 when the sample is unsaturated (v <= satVal, inclusive), 0
// otherwise. The comparison is inclusive: a sample exactly at the
// threshold counts as valid.
//
// This runs once per non-tag pixel per frame, so the boolean-to-integer
// step is factored into b2i: a single comparison the compiler folds
// into a conditional move rather than scattering an if through every
// caller. Accumulator and finalizer kernels downstream multiply k into
// their sums instead of branching on it; preserve that (k as a 0/1
// float32 factor) if you touch this function.
func Classify[T Raw](r T, satVal float32) (k uint8, v float32) {
	v = float32(r)
	k = b2i(v <= satVal)
	return k, v
}

func b2i(cond bool) uint8 {
	if cond {
		return 1
	}
	return 0
}
