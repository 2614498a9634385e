// Copyright 2024 The credramp Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ramp implements the ramp state machine: it interprets the
// embedded frame counters (tag[0], tag[2]), the sync word (tag[3]),
// and the externally reported NDR keyword to decide, for each
// arriving frame, whether it opens a new ramp, continues the current
// one, or should collapse to a standalone passthrough because the
// stream has desynchronized.
//
// The state machine is stateless across ramps beyond the scalar
// Context below; all per-pixel accumulator state is reset lazily by
// the accum package's Reset* entry points whenever Decision.JustOpened
// is true on a frame that accumulates (NDREffective > 1); passthrough
// frames leave accumulator state untouched.
package ramp

import "github.com/milk-org/credramp/stream"

// Sync words expected at tag[3].
const (
	SyncS16 = 0x0000
	SyncU16 = 0x3ff0
)

// credRepeatSaturate is the ceiling cred_repeat counts to.
const credRepeatSaturate = 10

// Context holds the scalar ramp state carried between frames.
type Context struct {
	NDRReported  int
	NDREffective int

	CredCur, CredPrev int
	FrameCur, FramePrev int

	CredRepeat int

	FrameInitIdx, CredInitIdx int

	MissCount int

	JustOpened bool

	hasFrame bool
}

// NewContext returns a zero-valued ramp context, as at engine start.
func NewContext() *Context {
	return &Context{}
}

// Decision is the outcome of processing one accepted frame.
type Decision struct {
	// Duplicate is true when this notification repeats an
	// already-processed tag[0]; every other field is zero and the
	// caller must not advance any state.
	Duplicate bool
	// JustOpened is true iff this frame begins a new ramp.
	JustOpened bool
	// NDREffective is the NDR value to use for this ramp; may be
	// overridden to 1 on desync.
	NDREffective int
	// ShouldFinalize is true when this frame closes the ramp and the
	// engine must run the finalizer and publish.
	ShouldFinalize bool
}

// Advance processes one accepted frame's tags and keyword through the
// full open/continue/close transition. Finalizing and publishing is
// left to the caller; Decision.ShouldFinalize tells it when to run it.
func (c *Context) Advance(tag0, tag2, sync uint16, ndrReported int, dt stream.DType) Decision {
	// Duplicate drop: a repeated tag[0] is a replayed notification.
	if c.hasFrame && int(tag0) == c.FrameCur {
		return Decision{Duplicate: true}
	}

	credPrev := c.CredCur
	c.FrameCur = int(tag0)
	c.CredCur = int(tag2)
	c.NDRReported = ndrReported

	// cred_repeat tracks how long tag[2] has been stuck, saturating at 10.
	if c.hasFrame && int(tag2) == credPrev {
		if c.CredRepeat < credRepeatSaturate {
			c.CredRepeat++
		}
	} else {
		c.CredRepeat = 0
	}

	// Desync/open/continue rules, first matching one wins.
	var justOpened bool
	ndrEffective := c.NDREffective
	switch {
	case ndrReported == 1:
		ndrEffective, justOpened = 1, true
	case dt == stream.U16 && (c.CredRepeat == credRepeatSaturate || sync != SyncU16):
		ndrEffective, justOpened = 1, true
	case dt == stream.S16 && (int(tag2) == ndrReported || sync&0x3ff0 != 0x3ff0):
		ndrEffective, justOpened = 1, true
	case credPrev == 0 || int(tag2) > credPrev:
		ndrEffective, justOpened = ndrReported, true
	default:
		justOpened = false
	}

	if justOpened {
		c.FrameInitIdx = int(tag0)
		c.CredInitIdx = int(tag2)
	}

	// Mid-ramp miss counting: a continuation frame whose tag[2] didn't
	// decrement by exactly one skipped a read.
	if !justOpened && int(tag2) != credPrev-1 {
		c.MissCount++
	}

	c.NDREffective = ndrEffective
	c.JustOpened = justOpened
	c.CredPrev = int(tag2)
	c.FramePrev = c.FrameCur
	c.hasFrame = true

	// The caller runs the finalizer; this only flags when to.
	shouldFinalize := int(tag2) == 0 || ndrEffective == 1

	return Decision{
		JustOpened:     justOpened,
		NDREffective:   ndrEffective,
		ShouldFinalize: shouldFinalize,
	}
}

// ResetMissCount clears the per-ramp miss counter. The engine calls
// this after publishing a ramp's output.
func (c *Context) ResetMissCount() { c.MissCount = 0 }
