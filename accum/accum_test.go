// Copyright 2024 The credramp Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package accum

import "testing"

func makeFrame(vals ...uint16) []uint16 {
	return append(make([]uint16, tagPixels), vals...)
}

func TestSDSCarryForwardOnSaturation(t *testing.T) {
	// Pixel sequence: 100 (valid), 60000 (saturated), 150 (valid).
	// last_valid must skip the saturated read, not zero it.
	satVal := float32(1000)
	run := func() (count uint32, last float32) {
		s := NewSDS(tagPixels + 1)
		ResetFrame(s, makeFrame(100), satVal)
		AddFrame(s, makeFrame(60000), satVal)
		AddFrame(s, makeFrame(150), satVal)
		return s.Count[tagPixels], s.LastValid[tagPixels]
	}
	for _, b := range []Backend{BackendScalar, BackendUnrolled4} {
		restore := forceBackend(b)
		count, last := run()
		restore()
		if count != 2 {
			t.Errorf("backend %s: count = %d, want 2", b, count)
		}
		if last != 150 {
			t.Errorf("backend %s: last_valid = %v, want 150", b, last)
		}
	}
}

func TestUTRSumsMatchHandOLS(t *testing.T) {
	// v = 5*t + 7 for t=0..3, tag2 = 3,2,1,0 (decreasing), satVal huge
	// so nothing saturates; SumXY etc. should match a hand OLS sum.
	satVal := float32(1e9)
	u := NewUTR(tagPixels + 1)
	vals := []float32{7, 12, 17, 22}
	xs := []float32{3, 2, 1, 0}
	ResetFrameUTR(u, makeFrame(uint16(vals[0])), satVal, xs[0])
	for i := 1; i < 4; i++ {
		AddFrameUTR(u, makeFrame(uint16(vals[i])), satVal, xs[i])
	}
	var wantSumX, wantSumY, wantSumXY, wantSumXX float32
	for i := range vals {
		wantSumX += xs[i]
		wantSumY += vals[i]
		wantSumXY += xs[i] * vals[i]
		wantSumXX += xs[i] * xs[i]
	}
	if u.SumX[tagPixels] != wantSumX || u.SumY[tagPixels] != wantSumY ||
		u.SumXY[tagPixels] != wantSumXY || u.SumXX[tagPixels] != wantSumXX {
		t.Fatalf("sums = (%v,%v,%v,%v), want (%v,%v,%v,%v)",
			u.SumX[tagPixels], u.SumY[tagPixels], u.SumXY[tagPixels], u.SumXX[tagPixels],
			wantSumX, wantSumY, wantSumXY, wantSumXX)
	}
	if u.Count[tagPixels] != 4 {
		t.Fatalf("count = %d, want 4", u.Count[tagPixels])
	}
}

func TestUTRSaturatedMidpointContributesZero(t *testing.T) {
	satVal := float32(1000)
	u := NewUTR(tagPixels + 1)
	ResetFrameUTR(u, makeFrame(10), satVal, 3)
	AddFrameUTR(u, makeFrame(60000), satVal, 2) // saturated, should contribute nothing.
	AddFrameUTR(u, makeFrame(30), satVal, 1)
	AddFrameUTR(u, makeFrame(40), satVal, 0)
	if u.Count[tagPixels] != 3 {
		t.Fatalf("count = %d, want 3 (saturated sample excluded)", u.Count[tagPixels])
	}
	// sum_x should only include x=3,1,0 -> 4, never touching x=2.
	if u.SumX[tagPixels] != 4 {
		t.Fatalf("sum_x = %v, want 4", u.SumX[tagPixels])
	}
}

func TestBackendsAgree(t *testing.T) {
	satVal := float32(5000)
	frames := [][]uint16{
		makeFrame(10, 20, 30),
		makeFrame(4000, 4001, 4002),
		makeFrame(9999, 1, 2),
	}
	run := func(b Backend) (*SDS, *UTR) {
		restore := forceBackend(b)
		defer restore()
		s := NewSDS(tagPixels + 3)
		u := NewUTR(tagPixels + 3)
		ResetFrame(s, frames[0], satVal)
		ResetFrameUTR(u, frames[0], satVal, 2)
		for i, x := 1, float32(1); i < len(frames); i, x = i+1, x-1 {
			AddFrame(s, frames[i], satVal)
			AddFrameUTR(u, frames[i], satVal, x)
		}
		return s, u
	}
	scalarS, scalarU := run(BackendScalar)
	vecS, vecU := run(BackendUnrolled4)
	for i := range scalarS.Count {
		if scalarS.Count[i] != vecS.Count[i] || scalarS.LastValid[i] != vecS.LastValid[i] {
			t.Fatalf("SDS diverges at pixel %d between backends", i)
		}
		if scalarU.SumXY[i] != vecU.SumXY[i] || scalarU.SumXX[i] != vecU.SumXX[i] {
			t.Fatalf("UTR diverges at pixel %d between backends", i)
		}
	}
}
