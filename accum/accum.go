// Copyright 2024 The credramp Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package accum implements the two per-pixel accumulator kernels, SDS
// (correlated double sampling) and UTR (up-the-ramp least squares),
// over engine-lifetime-owned flat arrays. No per-frame allocation
// happens here: callers size SDS/UTR once at engine start and reuse
// them across every ramp.
package accum

import (
	"log/slog"

	"golang.org/x/sys/cpu"

	"github.com/milk-org/credramp/sample"
)

// Backend identifies which loop shape services the accumulator
// kernels. Both backends compute bit-identical results; the split is a
// performance axis only, aimed at giving the compiler a better shot at
// auto-vectorizing the hot per-pixel loops.
type Backend int

const (
	BackendScalar Backend = iota
	BackendUnrolled4
)

func (b Backend) String() string {
	switch b {
	case BackendUnrolled4:
		return "unrolled4"
	default:
		return "scalar"
	}
}

// ActiveBackend reports which backend this process selected at init.
var ActiveBackend Backend

func init() {
	if cpu.X86.HasAVX2 || cpu.ARM64.HasASIMD {
		ActiveBackend = BackendUnrolled4
		slog.Debug("accum kernel initialized", "backend", ActiveBackend.String())
	} else {
		ActiveBackend = BackendScalar
		slog.Debug("accum kernel initialized", "backend", ActiveBackend.String())
	}
}

// forceBackend is a test hook: it lets tests assert bit-identical
// output across backends without depending on the host CPU's actual
// feature set.
func forceBackend(b Backend) (restore func()) {
	prev := ActiveBackend
	ActiveBackend = b
	return func() { ActiveBackend = prev }
}

// tagPixels is the count of reserved leading elements every kernel
// skips.
const tagPixels = 8

// SDS holds the correlated-double-sampling accumulator state for every
// pixel of one engine instance.
type SDS struct {
	Count     []uint32
	Valid     []uint8
	LastValid []float32
	FirstRead []float32
}

// NewSDS allocates SDS state for n pixels (w*h), zeroed.
func NewSDS(n int) *SDS {
	return &SDS{
		Count:     make([]uint32, n),
		Valid:     make([]uint8, n),
		LastValid: make([]float32, n),
		FirstRead: make([]float32, n),
	}
}

// ResetFrame processes the ramp-opening frame: FirstRead is captured
// by the caller (the raw frame, cast to f32) before this runs;
// ResetFrame sets count/valid/last_valid for exactly one read.
func ResetFrame[T sample.Raw](s *SDS, raw []T, satVal float32) {
	switch ActiveBackend {
	case BackendUnrolled4:
		sdsResetUnrolled4(s, raw, satVal)
	default:
		sdsResetScalar(s, raw, satVal)
	}
}

// AddFrame processes a continuation frame.
func AddFrame[T sample.Raw](s *SDS, raw []T, satVal float32) {
	switch ActiveBackend {
	case BackendUnrolled4:
		sdsAddUnrolled4(s, raw, satVal)
	default:
		sdsAddScalar(s, raw, satVal)
	}
}

func sdsResetScalar[T sample.Raw](s *SDS, raw []T, satVal float32) {
	for i := tagPixels; i < len(raw); i++ {
		k, v := sample.Classify(raw[i], satVal)
		s.Valid[i] = k
		s.Count[i] = 1
		s.LastValid[i] = float32(k) * v
	}
}

func sdsAddScalar[T sample.Raw](s *SDS, raw []T, satVal float32) {
	for i := tagPixels; i < len(raw); i++ {
		k, v := sample.Classify(raw[i], satVal)
		s.Valid[i] = k
		s.Count[i] += uint32(k)
		// Branch-free carry-forward: a saturated read (k==0) leaves
		// LastValid untouched; an unsaturated read overwrites it.
		s.LastValid[i] = float32(k)*v + float32(1-k)*s.LastValid[i]
	}
}

// sdsResetUnrolled4/sdsAddUnrolled4 are the auto-vectorization-friendly
// variants: identical arithmetic, four lanes unrolled per iteration so
// the compiler has a better shot at issuing SIMD loads/stores. They
// must never diverge numerically from the scalar variants above.
func sdsResetUnrolled4[T sample.Raw](s *SDS, raw []T, satVal float32) {
	n := len(raw)
	i := tagPixels
	for ; i+4 <= n; i += 4 {
		for j := 0; j < 4; j++ {
			k, v := sample.Classify(raw[i+j], satVal)
			s.Valid[i+j] = k
			s.Count[i+j] = 1
			s.LastValid[i+j] = float32(k) * v
		}
	}
	for ; i < n; i++ {
		k, v := sample.Classify(raw[i], satVal)
		s.Valid[i] = k
		s.Count[i] = 1
		s.LastValid[i] = float32(k) * v
	}
}

func sdsAddUnrolled4[T sample.Raw](s *SDS, raw []T, satVal float32) {
	n := len(raw)
	i := tagPixels
	for ; i+4 <= n; i += 4 {
		for j := 0; j < 4; j++ {
			k, v := sample.Classify(raw[i+j], satVal)
			s.Valid[i+j] = k
			s.Count[i+j] += uint32(k)
			s.LastValid[i+j] = float32(k)*v + float32(1-k)*s.LastValid[i+j]
		}
	}
	for ; i < n; i++ {
		k, v := sample.Classify(raw[i], satVal)
		s.Valid[i] = k
		s.Count[i] += uint32(k)
		s.LastValid[i] = float32(k)*v + float32(1-k)*s.LastValid[i]
	}
}

// UTR holds the up-the-ramp linear-regression accumulator state for
// every pixel of one engine instance.
type UTR struct {
	Count  []uint32
	SumX   []float32
	SumY   []float32
	SumXY  []float32
	SumXX  []float32
	SumYY  []float32
}

// NewUTR allocates UTR state for n pixels, zeroed.
func NewUTR(n int) *UTR {
	return &UTR{
		Count: make([]uint32, n),
		SumX:  make([]float32, n),
		SumY:  make([]float32, n),
		SumXY: make([]float32, n),
		SumXX: make([]float32, n),
		SumYY: make([]float32, n),
	}
}

// ResetFrameUTR processes the ramp-opening frame. x is the current
// frame's tag[2] value (the NDR index, decreasing across the ramp).
func ResetFrameUTR[T sample.Raw](u *UTR, raw []T, satVal float32, x float32) {
	switch ActiveBackend {
	case BackendUnrolled4:
		utrResetUnrolled4(u, raw, satVal, x)
	default:
		utrResetScalar(u, raw, satVal, x)
	}
}

// AddFrameUTR processes a continuation frame.
func AddFrameUTR[T sample.Raw](u *UTR, raw []T, satVal float32, x float32) {
	switch ActiveBackend {
	case BackendUnrolled4:
		utrAddUnrolled4(u, raw, satVal, x)
	default:
		utrAddScalar(u, raw, satVal, x)
	}
}

func utrResetScalar[T sample.Raw](u *UTR, raw []T, satVal float32, x float32) {
	for i := tagPixels; i < len(raw); i++ {
		k, v := sample.Classify(raw[i], satVal)
		kf := float32(k)
		u.Count[i] = uint32(k)
		kx := kf * x
		u.SumX[i] = kx
		u.SumY[i] = kf * v
		u.SumXY[i] = kx * v
		u.SumXX[i] = kx * x
		u.SumYY[i] = (kf * v) * v
	}
}

func utrAddScalar[T sample.Raw](u *UTR, raw []T, satVal float32, x float32) {
	for i := tagPixels; i < len(raw); i++ {
		k, v := sample.Classify(raw[i], satVal)
		kf := float32(k)
		u.Count[i] += uint32(k)
		kx := kf * x
		u.SumX[i] += kx
		u.SumY[i] += kf * v
		u.SumXY[i] += kx * v
		u.SumXX[i] += kx * x
		u.SumYY[i] += (kf * v) * v
	}
}

func utrResetUnrolled4[T sample.Raw](u *UTR, raw []T, satVal float32, x float32) {
	n := len(raw)
	i := tagPixels
	for ; i+4 <= n; i += 4 {
		for j := 0; j < 4; j++ {
			utrResetOne(u, i+j, raw[i+j], satVal, x)
		}
	}
	for ; i < n; i++ {
		utrResetOne(u, i, raw[i], satVal, x)
	}
}

func utrAddUnrolled4[T sample.Raw](u *UTR, raw []T, satVal float32, x float32) {
	n := len(raw)
	i := tagPixels
	for ; i+4 <= n; i += 4 {
		for j := 0; j < 4; j++ {
			utrAddOne(u, i+j, raw[i+j], satVal, x)
		}
	}
	for ; i < n; i++ {
		utrAddOne(u, i, raw[i], satVal, x)
	}
}

func utrResetOne[T sample.Raw](u *UTR, i int, r T, satVal float32, x float32) {
	k, v := sample.Classify(r, satVal)
	kf := float32(k)
	u.Count[i] = uint32(k)
	kx := kf * x
	u.SumX[i] = kx
	u.SumY[i] = kf * v
	u.SumXY[i] = kx * v
	u.SumXX[i] = kx * x
	u.SumYY[i] = (kf * v) * v
}

func utrAddOne[T sample.Raw](u *UTR, i int, r T, satVal float32, x float32) {
	k, v := sample.Classify(r, satVal)
	kf := float32(k)
	u.Count[i] += uint32(k)
	kx := kf * x
	u.SumX[i] += kx
	u.SumY[i] += kf * v
	u.SumXY[i] += kx * v
	u.SumXX[i] += kx * x
	u.SumYY[i] += (kf * v) * v
}
