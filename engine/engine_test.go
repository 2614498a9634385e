// Copyright 2024 The credramp Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package engine

import (
	"testing"

	"github.com/milk-org/credramp/ramp"
	"github.com/milk-org/credramp/stream"
	"github.com/milk-org/credramp/stream/mem"
)

func newDev(t *testing.T, w, h int, dt stream.DType, satVal float32) (*Dev, *mem.Image, *mem.Output) {
	t.Helper()
	in := mem.New(w, h, dt)
	r := mem.NewResolver(map[string]stream.Image{"in": in})
	d, err := New(r, "in", "out", satVal, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, ok := d.out.(*mem.Output)
	if !ok {
		t.Fatalf("output is %T, want *mem.Output", d.out)
	}
	return d, in, out
}

func pushFrame(in *mem.Image, ndr int, tag0, tag2, tag3 uint16, pix ...uint16) {
	w, h := in.Dims()
	raw := make([]uint16, w*h)
	raw[0] = tag0
	raw[2] = tag2
	raw[3] = tag3
	copy(raw[8:], pix)
	in.Push(raw, map[string]int64{ndrKeyword: int64(ndr)})
}

// NDR==1 is passthrough, published on the same frame that opens the
// ramp.
func TestPassthroughSingleRead(t *testing.T) {
	d, in, out := newDev(t, 3, 3, stream.U16, 1000)
	pushFrame(in, 1, 10, 0, ramp.SyncU16, 55)
	if err := d.processFrame(); err != nil {
		t.Fatalf("processFrame: %v", err)
	}
	frames := out.Frames()
	if len(frames) != 1 {
		t.Fatalf("published %d frames, want 1", len(frames))
	}
	f := frames[0]
	if f[8] != 55 {
		t.Fatalf("pixel = %v, want 55", f[8])
	}
	if f[0] != 10 || f[2] != 0 || f[4] != 1 || f[6] != 10 {
		t.Fatalf("tag layout = %v", f[:8])
	}
}

// SDS N=2, U16 triggers the sign inversion.
func TestSDSTwoFrameRamp(t *testing.T) {
	d, in, out := newDev(t, 3, 3, stream.U16, 1000)
	pushFrame(in, 2, 1, 1, ramp.SyncU16, 100)
	if err := d.processFrame(); err != nil {
		t.Fatalf("processFrame 1: %v", err)
	}
	if len(out.Frames()) != 0 {
		t.Fatalf("ramp closed early, got %d frames", len(out.Frames()))
	}
	pushFrame(in, 2, 2, 0, ramp.SyncU16, 150)
	if err := d.processFrame(); err != nil {
		t.Fatalf("processFrame 2: %v", err)
	}
	frames := out.Frames()
	if len(frames) != 1 {
		t.Fatalf("published %d frames, want 1", len(frames))
	}
	if frames[0][8] != -50 {
		t.Fatalf("SDS N=2 U16 = %v, want -50", frames[0][8])
	}
}

// A ramp that opens and closes with no second read is suppressed
// rather than published.
func TestSDSSingleFrameSuppressed(t *testing.T) {
	d, in, out := newDev(t, 3, 3, stream.U16, 1000)
	pushFrame(in, 2, 5, 0, ramp.SyncU16, 77)
	if err := d.processFrame(); err != nil {
		t.Fatalf("processFrame: %v", err)
	}
	if len(out.Frames()) != 0 {
		t.Fatalf("suppressed ramp published %d frames, want 0", len(out.Frames()))
	}
}

// A repeated tag[0] is dropped without touching ramp state or
// publishing again.
func TestDuplicateFrameDropped(t *testing.T) {
	d, in, out := newDev(t, 3, 3, stream.U16, 1000)
	pushFrame(in, 1, 1, 0, ramp.SyncU16, 9)
	if err := d.processFrame(); err != nil {
		t.Fatalf("processFrame 1: %v", err)
	}
	pushFrame(in, 1, 1, 0, ramp.SyncU16, 9)
	if err := d.processFrame(); err != nil {
		t.Fatalf("processFrame 2 (duplicate): %v", err)
	}
	if len(out.Frames()) != 1 {
		t.Fatalf("published %d frames, want 1 (duplicate must be dropped)", len(out.Frames()))
	}
}

// A bad sync word forces a single-read passthrough, and the next good
// frame reopens a fresh ramp.
func TestDesyncRecovery(t *testing.T) {
	d, in, out := newDev(t, 3, 3, stream.U16, 1000)
	pushFrame(in, 8, 30, 7, ramp.SyncU16, 1)
	if err := d.processFrame(); err != nil {
		t.Fatalf("frame 1: %v", err)
	}
	if len(out.Frames()) != 0 {
		t.Fatalf("ramp open published early: %d frames", len(out.Frames()))
	}

	pushFrame(in, 8, 31, 6, 0xDEAD, 2)
	if err := d.processFrame(); err != nil {
		t.Fatalf("frame 2 (desync): %v", err)
	}
	frames := out.Frames()
	if len(frames) != 1 {
		t.Fatalf("desync frame published %d frames, want 1", len(frames))
	}
	if frames[0][0] != 31 || frames[0][4] != 1 {
		t.Fatalf("desync tag layout = %v, want tag0=31 ndr_effective=1", frames[0][:8])
	}

	pushFrame(in, 8, 32, 7, ramp.SyncU16, 3)
	if err := d.processFrame(); err != nil {
		t.Fatalf("frame 3 (reopen): %v", err)
	}
	if len(out.Frames()) != 1 {
		t.Fatalf("reopened ramp should not publish yet, got %d frames", len(out.Frames()))
	}
	if !d.ctx.JustOpened || d.ctx.FrameInitIdx != 32 {
		t.Fatalf("ramp not reopened at frame 32: init_idx=%d justOpened=%v", d.ctx.FrameInitIdx, d.ctx.JustOpened)
	}
}

// A mid-ramp missed frame surfaces in tag[7] of the published frame and
// is reset afterward.
func TestMissCountSurfacesAndResets(t *testing.T) {
	d, in, out := newDev(t, 3, 3, stream.U16, 1000)
	pushFrame(in, 4, 100, 3, ramp.SyncU16, 10)
	if err := d.processFrame(); err != nil {
		t.Fatalf("frame 1: %v", err)
	}
	// Skip tag2==2: jump straight to 1.
	pushFrame(in, 4, 101, 1, ramp.SyncU16, 20)
	if err := d.processFrame(); err != nil {
		t.Fatalf("frame 2 (missed): %v", err)
	}
	pushFrame(in, 4, 102, 0, ramp.SyncU16, 30)
	if err := d.processFrame(); err != nil {
		t.Fatalf("frame 3 (close): %v", err)
	}
	frames := out.Frames()
	if len(frames) != 1 {
		t.Fatalf("published %d frames, want 1", len(frames))
	}
	if frames[0][7] != 1 {
		t.Fatalf("miss_count in tag[7] = %v, want 1", frames[0][7])
	}
	if d.ctx.MissCount != 0 {
		t.Fatalf("miss_count not reset after publish: %d", d.ctx.MissCount)
	}
}

// An up-the-ramp (NDR>6) close publishes exactly once, at tag2==0.
func TestUTRRampClosesOnce(t *testing.T) {
	d, in, out := newDev(t, 3, 3, stream.U16, 60000)
	const n = 8
	for t2 := n - 1; t2 >= 0; t2-- {
		tt := n - 1 - t2
		v := uint16(5*tt + 7)
		if t2 == n-1 {
			pushFrame(in, n, 200, uint16(t2), ramp.SyncU16, v)
		} else {
			pushFrame(in, n, uint16(200+tt), uint16(t2), ramp.SyncU16, v)
		}
		if err := d.processFrame(); err != nil {
			t.Fatalf("frame t2=%d: %v", t2, err)
		}
	}
	frames := out.Frames()
	if len(frames) != 1 {
		t.Fatalf("UTR ramp published %d frames, want 1", len(frames))
	}
	if frames[0][4] != n {
		t.Fatalf("ndr_effective in tag[4] = %v, want %d", frames[0][4], n)
	}
}
