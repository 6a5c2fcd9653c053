package ffi

import (
	"sync"
	"sync/atomic"

	"github.com/vimo-ai/vhisper-core/pkg/pipeline"
)

// handleTable issues monotonically increasing int64 handles mapped to a
// live Pipeline, the same opaque-handle-over-a-registry shape the
// pack's cgo callback registries use for their uintptr-keyed maps,
// generalized here to the core's create/destroy lifecycle instead of a
// per-callback ID.
type handleTable struct {
	next    atomic.Int64
	entries sync.Map // int64 -> *pipeline.Pipeline
}

func (t *handleTable) put(p *pipeline.Pipeline) int64 {
	h := t.next.Add(1)
	t.entries.Store(h, p)
	return h
}

func (t *handleTable) get(h int64) (*pipeline.Pipeline, bool) {
	v, ok := t.entries.Load(h)
	if !ok {
		return nil, false
	}
	return v.(*pipeline.Pipeline), true
}

func (t *handleTable) delete(h int64) (*pipeline.Pipeline, bool) {
	v, ok := t.entries.LoadAndDelete(h)
	if !ok {
		return nil, false
	}
	return v.(*pipeline.Pipeline), true
}
