// Copyright 2024 The credramp Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package engine is the driver loop: it wires the sample classifier,
// the SDS/UTR accumulators, the ramp state machine and the finalizers
// together, copies embedded tag pixels and keyword metadata onto the
// output, and publishes one frame per closed ramp.
//
// The engine runs on a single goroutine. Scheduling is
// cooperative-by-notification: Run blocks on the input stream's
// Waiter until a frame-arrival notification wakes it, processes that
// frame to completion, then waits again. There is no parallelism
// inside per-frame work.
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/milk-org/credramp/accum"
	"github.com/milk-org/credramp/ramp"
	"github.com/milk-org/credramp/reduce"
	"github.com/milk-org/credramp/sample"
	"github.com/milk-org/credramp/stream"
)

// ndrKeyword is the sideband keyword name carrying the camera-reported
// true NDR value.
const ndrKeyword = "NDR"

// tagPixels is the count of reserved leading elements accumulator and
// finalizer kernels never read or write.
const tagPixels = 8

// Dev drives one reduction pipeline from an input stream to an output
// stream. It owns its accumulator arrays and the ramp context for its
// entire lifetime; they are allocated once by New and never
// reallocated.
type Dev struct {
	in     stream.Image
	waiter stream.Waiter
	out    stream.Output
	dt     stream.DType
	w, h   int
	n      int
	satVal float32
	logger *zap.SugaredLogger

	ctx    *ramp.Context
	sds    *accum.SDS
	utr    *accum.UTR
	outBuf []float32
	sraw   []int16
}

// New resolves input and output streams through r and allocates the
// engine's buffers. Resolution failure for the input stream is fatal
// an absent output stream is created by r.
func New(r stream.Resolver, inputName, outputName string, satVal float32, logger *zap.SugaredLogger) (*Dev, error) {
	in, err := r.Resolve(inputName)
	if err != nil {
		return nil, fmt.Errorf("engine: resolve input %q: %w", inputName, err)
	}
	waiter, ok := in.(stream.Waiter)
	if !ok {
		return nil, fmt.Errorf("engine: input stream %q does not support frame-arrival notification", inputName)
	}
	out, err := r.ResolveOrCreate(outputName, in)
	if err != nil {
		return nil, fmt.Errorf("engine: resolve output %q: %w", outputName, err)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	w, h := in.Dims()
	n := w * h
	return &Dev{
		in:     in,
		waiter: waiter,
		out:    out,
		dt:     in.DType(),
		w:      w,
		h:      h,
		n:      n,
		satVal: satVal,
		logger: logger,
		ctx:    ramp.NewContext(),
		sds:    accum.NewSDS(n),
		utr:    accum.NewUTR(n),
		outBuf: make([]float32, n),
		sraw:   make([]int16, n),
	}, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("credramp.Dev(%dx%d, %s)", d.w, d.h, d.dt)
}

// Run blocks, processing one frame per notification, until ctx is
// canceled. The in-flight frame always finishes before Run observes
// cancellation.
func (d *Dev) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.waiter.Notify():
			if err := d.processFrame(); err != nil {
				return err
			}
		}
	}
}

// processFrame handles exactly one frame-arrival notification,
// including the datatype dispatch this keeps out of the main loop
// body.
func (d *Dev) processFrame() error {
	raw := d.in.Raw()
	if len(raw) < 8 {
		return fmt.Errorf("engine: frame has %d pixels, need at least 8 tag pixels", len(raw))
	}
	ndrReported, _ := d.in.Keyword(ndrKeyword)
	if d.dt == stream.S16 {
		for i, v := range raw {
			d.sraw[i] = int16(v)
		}
		return process(d, d.sraw, int(ndrReported))
	}
	return process(d, raw, int(ndrReported))
}

// process is generic over the raw element type so the datatype
// dispatch happens once per frame instead of scattering conditionals
// through the kernels.
func process[T sample.Raw](d *Dev, raw []T, ndrReported int) error {
	tag0 := uint16(raw[0])
	tag2 := uint16(raw[2])
	tag3 := uint16(raw[3])

	decision := d.ctx.Advance(tag0, tag2, tag3, ndrReported, d.dt)
	if decision.Duplicate {
		return nil
	}
	// A freshly opened NDR==1 frame the camera did not report as
	// single-read is a desync collapse (sync mismatch or stuck tag[2]).
	if decision.JustOpened && decision.NDREffective == 1 && ndrReported != 1 {
		d.logger.Warnw("stream desynchronized, emitting frame as passthrough",
			"frame", tag0, "cred", tag2, "sync", tag3, "ndr_reported", ndrReported)
	}

	switch {
	case decision.NDREffective > 1 && decision.NDREffective <= 6:
		if decision.JustOpened {
			for i := tagPixels; i < len(raw); i++ {
				d.sds.FirstRead[i] = float32(raw[i])
			}
			accum.ResetFrame(d.sds, raw, d.satVal)
		} else {
			accum.AddFrame(d.sds, raw, d.satVal)
		}
	case decision.NDREffective > 6:
		x := float32(tag2)
		if decision.JustOpened {
			accum.ResetFrameUTR(d.utr, raw, d.satVal, x)
		} else {
			accum.AddFrameUTR(d.utr, raw, d.satVal, x)
		}
	}

	if !decision.ShouldFinalize {
		return nil
	}
	return finalize(d, raw, decision, tag0, tag2, tag3)
}

func finalize[T sample.Raw](d *Dev, raw []T, decision ramp.Decision, tag0, tag2, tag3 uint16) error {
	n := decision.NDREffective
	switch {
	case n == 1:
		reduce.Passthrough(d.outBuf, raw)
	case n <= 6:
		// SDS suppression: a ramp that only ever saw one frame cannot
		// produce a difference; suppress the whole ramp rather than
		// publish a meaningless frame.
		if d.ctx.FrameCur <= d.ctx.FrameInitIdx {
			d.logger.Warnw("suppressing SDS ramp: fewer than two reads observed",
				"frame_init_idx", d.ctx.FrameInitIdx, "frame_cur", d.ctx.FrameCur)
			d.ctx.ResetMissCount()
			return nil
		}
		reduce.SDS(d.outBuf, d.sds, n, d.dt)
	default:
		reduce.UTR(d.outBuf, d.utr, n)
	}

	// Tag-pixel layout of the output, bit-exact.
	d.outBuf[0] = float32(tag0)
	d.outBuf[1] = float32(raw[1])
	d.outBuf[2] = float32(tag2)
	d.outBuf[3] = float32(tag3)
	d.outBuf[4] = float32(decision.NDREffective)
	d.outBuf[5] = float32(d.ctx.CredInitIdx)
	d.outBuf[6] = float32(d.ctx.FrameInitIdx)
	d.outBuf[7] = float32(d.ctx.MissCount)

	for i := 0; i < d.n; i++ {
		d.out.SetPix(i, d.outBuf[i])
	}
	for k, v := range d.in.Keywords() {
		d.out.SetKeyword(k, v)
	}

	if d.ctx.MissCount > 0 {
		d.logger.Warnw("ramp closed with missed frames", "miss_count", d.ctx.MissCount, "ndr_effective", n)
	}
	d.ctx.ResetMissCount()

	if err := d.out.Publish(); err != nil {
		return fmt.Errorf("engine: publish: %w", err)
	}
	return nil
}
