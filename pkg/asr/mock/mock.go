// Package mock provides a scriptable Recognizer for exercising the
// pipeline's state machine and reconnect logic without a network.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/vimo-ai/vhisper-core/pkg/asr"
)

// Script describes how one scripted Recognizer behaves across its
// lifetime. Events stream out unprompted as soon as the Recognizer is
// constructed, simulating server pushes; Final, when set, is appended
// afterward — immediately, if EmitFinalOnEOS is false, simulating a
// server-side VAD Final the client never asked for, or only once
// SendEOS is called, simulating the client-driven terminal stop.
type Script struct {
	Events         []asr.Event
	Final          *asr.Event
	EmitFinalOnEOS bool
	DropErr        error // leaves the channel open, undrained, until Close
	DialErr        error // Dialer returns this instead of constructing a Recognizer
}

// Recognizer replays a Script. Every SendAudio call is recorded for
// assertions; SendEOS releases a Final withheld by EmitFinalOnEOS.
type Recognizer struct {
	mu       sync.Mutex
	script   Script
	events   chan asr.Event
	eosCh    chan struct{}
	eosOnce  sync.Once
	done     chan struct{}
	sentPCM  [][]byte
	eosCalls int
	closed   bool
}

// New builds a Recognizer and immediately starts replaying script.
func New(script Script) *Recognizer {
	r := &Recognizer{
		script: script,
		events: make(chan asr.Event, len(script.Events)+1),
		eosCh:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	go r.stream()
	return r
}

// stream is the sole writer to r.events; it is the only goroutine
// allowed to close it, which sidesteps any double-close race with
// Close.
func (r *Recognizer) stream() {
	defer close(r.events)

	for _, ev := range r.script.Events {
		if !r.send(ev) {
			return
		}
	}

	if r.script.Final == nil {
		if r.script.DropErr != nil {
			<-r.done // hang until Close, simulating a stalled connection
		}
		return
	}

	if r.script.EmitFinalOnEOS {
		select {
		case <-r.eosCh:
		case <-r.done:
			return
		}
	}
	r.send(*r.script.Final)
}

func (r *Recognizer) send(ev asr.Event) bool {
	select {
	case r.events <- ev:
		return true
	case <-r.done:
		return false
	}
}

// Dialer returns a pipeline.Dialer-shaped func consuming one Script per
// call, so pipeline tests can script one Dial per (re)connect attempt.
func Dialer(scripts ...Script) func(ctx context.Context) (asr.Recognizer, error) {
	i := 0
	return func(ctx context.Context) (asr.Recognizer, error) {
		if i >= len(scripts) {
			return nil, errors.New("mock: no more scripted dials")
		}
		s := scripts[i]
		i++
		if s.DialErr != nil {
			return nil, s.DialErr
		}
		return New(s), nil
	}
}

func (r *Recognizer) SendAudio(_ context.Context, pcm []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("mock: recognizer closed")
	}
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	r.sentPCM = append(r.sentPCM, cp)
	return nil
}

func (r *Recognizer) SendEOS(_ context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errors.New("mock: recognizer closed")
	}
	r.eosCalls++
	r.mu.Unlock()
	r.eosOnce.Do(func() { close(r.eosCh) })
	return nil
}

func (r *Recognizer) Events() <-chan asr.Event { return r.events }

func (r *Recognizer) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()
	close(r.done)
	return nil
}

// SentAudio returns every PCM chunk handed to SendAudio, for assertions.
func (r *Recognizer) SentAudio() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.sentPCM...)
}

// EOSCalls reports how many times SendEOS was invoked.
func (r *Recognizer) EOSCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eosCalls
}
