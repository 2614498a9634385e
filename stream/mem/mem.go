// Copyright 2024 The credramp Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package mem is an in-process stand-in for the shared-memory image
// substrate. It is not a production substrate adapter: there is no
// POSIX shared memory and no semaphore, only plain slices and a Go
// channel. It exists so the engine, its tests, and the CLI's
// --simulate mode can exercise the stream.Image/Output/Waiter/Resolver
// interfaces without a real acquisition pipeline, which is out of
// scope for this module.
package mem

import (
	"fmt"
	"sync"

	"github.com/milk-org/credramp/stream"
)

// Image is an in-process input stream. Feed frames to it with Push;
// each Push notifies one waiter receive.
type Image struct {
	w, h  int
	dt    stream.DType
	mu    sync.Mutex
	raw   []uint16
	kw    map[string]int64
	notif chan struct{}
}

// New creates an Image of the given dimensions and datatype.
func New(w, h int, dt stream.DType) *Image {
	return &Image{
		w:     w,
		h:     h,
		dt:    dt,
		raw:   make([]uint16, w*h),
		kw:    map[string]int64{},
		notif: make(chan struct{}, 1<<16),
	}
}

// Push installs a new frame and queues one arrival notification.
//
// raw must have exactly w*h elements. kw is copied; callers may reuse
// it. The notification channel buffers 1<<16 arrivals, so Push only
// blocks once that many notifications are queued and unconsumed.
func (m *Image) Push(raw []uint16, kw map[string]int64) {
	if len(raw) != m.w*m.h {
		panic(fmt.Sprintf("mem: frame has %d pixels, want %d", len(raw), m.w*m.h))
	}
	m.mu.Lock()
	copy(m.raw, raw)
	m.kw = make(map[string]int64, len(kw))
	for k, v := range kw {
		m.kw[k] = v
	}
	m.mu.Unlock()
	m.notif <- struct{}{}
}

// Notify implements stream.Waiter.
func (m *Image) Notify() <-chan struct{} { return m.notif }

// Dims implements stream.Image.
func (m *Image) Dims() (int, int) { return m.w, m.h }

// DType implements stream.Image.
func (m *Image) DType() stream.DType { return m.dt }

// Raw implements stream.Image.
func (m *Image) Raw() []uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uint16, len(m.raw))
	copy(out, m.raw)
	return out
}

// Keyword implements stream.Image.
func (m *Image) Keyword(name string) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.kw[name]
	return v, ok
}

// Keywords implements stream.Image.
func (m *Image) Keywords() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.kw))
	for k, v := range m.kw {
		out[k] = v
	}
	return out
}

// Output is an in-process output stream of float32 pixels.
type Output struct {
	w, h    int
	pix     []float32
	kw      map[string]int64
	write   bool
	history [][]float32 // retained published frames, for test assertions.
}

// NewOutput creates an Output shaped like "like".
func NewOutput(like stream.Image) *Output {
	w, h := like.Dims()
	return &Output{
		w:   w,
		h:   h,
		pix: make([]float32, w*h),
		kw:  map[string]int64{},
	}
}

// Dims implements stream.Image.
func (o *Output) Dims() (int, int) { return o.w, o.h }

// DType implements stream.Image; outputs are always float32-backed, but
// the interface only distinguishes raw integer datatypes, so this
// reports U16 as a harmless default. Callers of Output never read
// DType; it exists only to satisfy stream.Image embedding.
func (o *Output) DType() stream.DType { return stream.U16 }

// Raw implements stream.Image; unused for outputs (no raw integer
// backing), returns nil.
func (o *Output) Raw() []uint16 { return nil }

// Keyword implements stream.Image.
func (o *Output) Keyword(name string) (int64, bool) {
	v, ok := o.kw[name]
	return v, ok
}

// Keywords implements stream.Image.
func (o *Output) Keywords() map[string]int64 {
	out := make(map[string]int64, len(o.kw))
	for k, v := range o.kw {
		out[k] = v
	}
	return out
}

// SetPix implements stream.Output.
func (o *Output) SetPix(i int, v float32) { o.pix[i] = v }

// SetKeyword implements stream.Output.
func (o *Output) SetKeyword(name string, v int64) { o.kw[name] = v }

// Publish implements stream.Output.
func (o *Output) Publish() error {
	o.write = true
	frame := make([]float32, len(o.pix))
	copy(frame, o.pix)
	o.history = append(o.history, frame)
	o.write = false
	return nil
}

// Frames returns every frame published so far, for test assertions.
func (o *Output) Frames() [][]float32 { return o.history }

// Resolver resolves names against a fixed in-process table, created up
// front by the caller (e.g. a test or the CLI's --simulate mode).
type Resolver struct {
	images map[string]stream.Image
}

// NewResolver wraps a name->Image table.
func NewResolver(images map[string]stream.Image) *Resolver {
	return &Resolver{images: images}
}

// Resolve implements stream.Resolver.
func (r *Resolver) Resolve(name string) (stream.Image, error) {
	img, ok := r.images[name]
	if !ok {
		return nil, fmt.Errorf("mem: stream %q not found", name)
	}
	return img, nil
}

// ResolveOrCreate implements stream.Resolver.
func (r *Resolver) ResolveOrCreate(name string, like stream.Image) (stream.Output, error) {
	// In this in-process stand-in, outputs are never pre-registered;
	// always create one, matching the "recovered by creating it" policy
	// for an absent output stream.
	return NewOutput(like), nil
}

var (
	_ stream.Image    = &Image{}
	_ stream.Waiter   = &Image{}
	_ stream.Output   = &Output{}
	_ stream.Resolver = &Resolver{}
)
