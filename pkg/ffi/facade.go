// Package ffi is the pure-Go facade behind the C ABI shim: it turns
// opaque int64 handles, JSON config strings, and a flat callback
// function into calls against a pipeline.Pipeline, with the integer
// return codes the C ABI documents. The cgo trampoline that actually
// exports these as C symbols lives in cmd/vhisperlib, which imports
// this package — Facade itself never touches cgo and is unit-testable
// on its own.
package ffi

import (
	"github.com/vimo-ai/vhisper-core/pkg/config"
	"github.com/vimo-ai/vhisper-core/pkg/pipeline"
)

// defaultFrameMs is the chunk duration requested from AudioSource when
// a Pipeline is constructed from raw config JSON; every streaming
// recognizer in this core accepts 100ms frames.
const defaultFrameMs = 100

// EventCallback is the facade-level shape of the streaming callback:
// event_type is one of FFIEventPartial/FFIEventFinal/FFIEventError;
// for Partial, text/stash carry confirmed/stash; for Final only text;
// for Error only errMsg.
type EventCallback func(eventType int32, text, stash, errMsg string)

// Facade owns every live Pipeline behind an opaque handle.
type Facade struct {
	handles     handleTable
	newPipeline func(cfg config.Config) (*pipeline.Pipeline, error)
}

// NewFacade builds an empty handle table backed by real capture
// devices and recognizer connections.
func NewFacade() *Facade {
	return &Facade{
		newPipeline: func(cfg config.Config) (*pipeline.Pipeline, error) {
			return pipeline.NewFromConfig(cfg, defaultFrameMs)
		},
	}
}

// Create parses configJSON and constructs a Pipeline, returning its
// handle. A zero handle with a non-nil error means parsing or
// construction failed; the C ABI maps that to a null handle.
func (f *Facade) Create(configJSON string) (int64, error) {
	cfg, err := config.LoadString(configJSON)
	if err != nil {
		return 0, err
	}
	p, err := f.newPipeline(*cfg)
	if err != nil {
		return 0, err
	}
	return f.handles.put(p), nil
}

// Destroy cancels any active session, waits for its worker goroutine,
// and releases the handle. Destroying an unknown handle is a no-op.
func (f *Facade) Destroy(handle int64) {
	p, ok := f.handles.delete(handle)
	if !ok {
		return
	}
	p.Close()
}

// GetState returns the current PipelineState, or StateCodeInvalid for
// an unknown handle.
func (f *Facade) GetState(handle int64) StateCode {
	p, ok := f.handles.get(handle)
	if !ok {
		return StateCodeInvalid
	}
	switch p.GetState() {
	case pipeline.StateRecording:
		return StateCodeRecording
	case pipeline.StateProcessing:
		return StateCodeProcessing
	default:
		return StateCodeIdle
	}
}

// IsStreaming reports whether the handle is Recording or Processing.
// An unknown handle reads as not-streaming rather than an error, since
// the ABI reserves this call to a plain 0/1.
func (f *Facade) IsStreaming(handle int64) int32 {
	p, ok := f.handles.get(handle)
	if !ok {
		return 0
	}
	switch p.GetState() {
	case pipeline.StateRecording, pipeline.StateProcessing:
		return 1
	default:
		return 0
	}
}

// StartStreaming begins a session on handle, translating every
// pipeline.Event into the flat callback shape the C ABI exposes.
// EventWarning never reaches cb: the streaming callback signature has
// no fourth event kind, so dropped-frame warnings are discarded here.
// An enhancer fallback is only logged by the enhancer and never becomes
// an event at all.
func (f *Facade) StartStreaming(handle int64, cb EventCallback) Code {
	p, ok := f.handles.get(handle)
	if !ok {
		return CodeInvalidHandle
	}

	code := p.StartStreaming(func(ev pipeline.Event) {
		if cb == nil {
			return
		}
		switch ev.Kind {
		case pipeline.EventPartial:
			cb(FFIEventPartial, ev.Confirmed, ev.Stash, "")
		case pipeline.EventFinal:
			cb(FFIEventFinal, ev.Text, "", "")
		case pipeline.EventError:
			cb(FFIEventError, "", "", ev.Message)
		}
	})
	return toCode(code)
}

// StopStreaming requests the terminal Final. A no-op on an unknown
// handle returns CodeInvalidHandle; stopping a non-Recording pipeline
// is itself a silent no-op at the pipeline layer.
func (f *Facade) StopStreaming(handle int64) Code {
	p, ok := f.handles.get(handle)
	if !ok {
		return CodeInvalidHandle
	}
	p.StopStreaming()
	return CodeSuccess
}

// CancelStreaming is always safe to call; unlike the other operations
// it never returns CodeRejected.
func (f *Facade) CancelStreaming(handle int64) Code {
	p, ok := f.handles.get(handle)
	if !ok {
		return CodeInvalidHandle
	}
	p.CancelStreaming()
	return CodeSuccess
}

// UpdateConfig parses configJSON and replaces the Pipeline's config,
// only while Idle.
func (f *Facade) UpdateConfig(handle int64, configJSON string) Code {
	p, ok := f.handles.get(handle)
	if !ok {
		return CodeInvalidHandle
	}
	cfg, err := config.LoadString(configJSON)
	if err != nil {
		return CodeRejected
	}
	return toCode(p.UpdateConfig(*cfg))
}

func toCode(c pipeline.Code) Code {
	switch c {
	case pipeline.CodeOK:
		return CodeSuccess
	default:
		return CodeRejected
	}
}
