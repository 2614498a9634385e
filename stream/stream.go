// Copyright 2024 The credramp Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package stream declares the shared-memory image substrate interfaces
// that the reduction engine consumes and produces.
//
// The substrate itself (registration, semaphores, keyword storage,
// output publication) is an external collaborator the engine never
// implements directly. This package only declares the shape of that
// collaborator so the engine can depend on an opaque handle instead of
// a name lookup into a process-wide stream table.
package stream

import "fmt"

// DType is the raw pixel element type of an input stream.
type DType int

// Valid values for DType.
const (
	U16 DType = iota
	S16
)

func (d DType) String() string {
	switch d {
	case U16:
		return "u16"
	case S16:
		return "s16"
	default:
		return fmt.Sprintf("DType(%d)", int(d))
	}
}

// Image is a read-only view of a shared-memory frame: raw pixels, the
// datatype discriminant, and sideband keywords.
//
// Raw always holds the frame's bit pattern reinterpreted as uint16;
// callers needing signed values reinterpret per DType. This mirrors
// the substrate, which stores both datatypes in the same fixed-width
// backing array.
type Image interface {
	// Dims returns the frame width and height in pixels.
	Dims() (w, h int)
	// DType returns the element datatype of this stream.
	DType() DType
	// Raw returns the current frame's pixels, row-major, tag pixels
	// first. The returned slice is only stable for the duration of one
	// frame's processing (write-before-notify contract).
	Raw() []uint16
	// Keyword returns a named sideband value and whether it was present.
	Keyword(name string) (int64, bool)
	// Keywords returns every keyword on the frame, for copy-through.
	Keywords() map[string]int64
}

// Output is a shared-memory frame the engine owns exclusively during
// composition.
type Output interface {
	Image
	// SetPix writes output pixel i as a float32.
	SetPix(i int, v float32)
	// SetKeyword copies one keyword value onto the output.
	SetKeyword(name string, v int64)
	// Publish sets the write flag, makes the frame visible to readers
	// and clears the write flag, releasing any waiters.
	Publish() error
}

// Waiter is the frame-arrival notification primitive. Each receive on
// the returned channel corresponds to one notification, including
// duplicate notifications for a frame already processed.
type Waiter interface {
	Notify() <-chan struct{}
}

// Resolver resolves stream names to handles. Name lookup happens once
// at setup; the engine never touches a global registry afterward.
type Resolver interface {
	// Resolve looks up an existing stream. Fatal if not found.
	Resolve(name string) (Image, error)
	// ResolveOrCreate looks up a stream, creating one shaped like
	// "like" (same W, H, float32 elements, mirrored keyword layout) if
	// absent.
	ResolveOrCreate(name string, like Image) (Output, error)
}
