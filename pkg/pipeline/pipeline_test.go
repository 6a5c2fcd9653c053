package pipeline_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vimo-ai/vhisper-core/pkg/asr"
	"github.com/vimo-ai/vhisper-core/pkg/asr/mock"
	"github.com/vimo-ai/vhisper-core/pkg/audio"
	"github.com/vimo-ai/vhisper-core/pkg/config"
	"github.com/vimo-ai/vhisper-core/pkg/pipeline"
)

// fakeSource is a trivial AudioSource standing in for a real capture
// device in these tests; frames are pushed manually by push.
type fakeSource struct {
	ch chan audio.Frame
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan audio.Frame, 32)}
}

func (f *fakeSource) Start()                          {}
func (f *fakeSource) Stop()                            {}
func (f *fakeSource) Chunks() <-chan audio.Frame       { return f.ch }
func (f *fakeSource) DrainPreroll() []byte             { return nil }
func (f *fakeSource) DroppedFrames() int64             { return 0 }
func (f *fakeSource) Close() error                     { return nil }
func (f *fakeSource) push(b []byte)                    { f.ch <- audio.Frame{Samples: b} }

func testConfig() config.Config {
	return config.Config{
		ASR:    config.ASRConfig{Provider: config.ASRQwen, Qwen: config.ProviderParams{APIKey: "test-key"}},
		Output: config.DefaultOutput(),
	}
}

// collector buckets delivered events by kind on channels a test can
// block on, avoiding sleep-based synchronization with the background
// session goroutine.
type collector struct {
	mu       sync.Mutex
	all      []pipeline.Event
	partials chan pipeline.Event
	finals   chan pipeline.Event
	errors   chan pipeline.Event
}

func newCollector() *collector {
	return &collector{
		partials: make(chan pipeline.Event, 16),
		finals:   make(chan pipeline.Event, 16),
		errors:   make(chan pipeline.Event, 16),
	}
}

func (c *collector) cb(ev pipeline.Event) {
	c.mu.Lock()
	c.all = append(c.all, ev)
	c.mu.Unlock()

	switch ev.Kind {
	case pipeline.EventPartial:
		c.partials <- ev
	case pipeline.EventFinal:
		c.finals <- ev
	case pipeline.EventError:
		c.errors <- ev
	}
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.all)
}

// dialOnConnect wraps a Dialer so the test can block until a connection
// actually succeeds, since start_streaming's connect runs on a
// background goroutine.
func dialOnConnect(d pipeline.Dialer, connected chan<- struct{}) pipeline.Dialer {
	return func(ctx context.Context) (asr.Recognizer, error) {
		r, err := d(ctx)
		if err == nil {
			select {
			case connected <- struct{}{}:
			default:
			}
		}
		return r, err
	}
}

const testTimeout = 2 * time.Second

func waitEvent(t *testing.T, ch <-chan pipeline.Event) pipeline.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for event")
		return pipeline.Event{}
	}
}

// 1. Happy path.
func TestHappyPath(t *testing.T) {
	final := asr.Event{Kind: asr.EventFinal, Text: "hello world"}
	dial := mock.Dialer(mock.Script{
		Events: []asr.Event{
			{Kind: asr.EventPartial, Confirmed: "he", Stash: "llo"},
			{Kind: asr.EventPartial, Confirmed: "hello", Stash: ""},
		},
		Final:          &final,
		EmitFinalOnEOS: true,
	})

	p, err := pipeline.New(testConfig(), newFakeSource(), dial)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c := newCollector()

	if code := p.StartStreaming(c.cb); code != pipeline.CodeOK {
		t.Fatalf("StartStreaming code = %v", code)
	}

	p1 := waitEvent(t, c.partials)
	if p1.Confirmed != "he" || p1.Stash != "llo" {
		t.Fatalf("unexpected first partial: %+v", p1)
	}
	p2 := waitEvent(t, c.partials)
	if p2.Confirmed != "hello" || p2.Stash != "" {
		t.Fatalf("unexpected second partial: %+v", p2)
	}

	p.StopStreaming()

	f := waitEvent(t, c.finals)
	if f.Text != "hello world" {
		t.Fatalf("unexpected final: %+v", f)
	}

	deadline := time.Now().Add(testTimeout)
	for p.GetState() != pipeline.StateIdle && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if p.GetState() != pipeline.StateIdle {
		t.Fatalf("expected Idle, got %v", p.GetState())
	}
}

// 2. Auto-reconnect across a server-side VAD Final.
func TestAutoReconnect(t *testing.T) {
	first := asr.Event{Kind: asr.EventFinal, Text: "first segment"}
	second := asr.Event{Kind: asr.EventFinal, Text: "more text"}
	dial := mock.Dialer(
		mock.Script{Final: &first}, // unsolicited: no client EOS
		mock.Script{
			Events:         []asr.Event{{Kind: asr.EventPartial, Confirmed: "", Stash: "more"}},
			Final:          &second,
			EmitFinalOnEOS: true,
		},
	)

	p, err := pipeline.New(testConfig(), newFakeSource(), dial)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c := newCollector()

	p.StartStreaming(c.cb)

	f1 := waitEvent(t, c.finals)
	if f1.Text != "first segment" {
		t.Fatalf("unexpected first final: %+v", f1)
	}

	deadline := time.Now().Add(testTimeout)
	for p.GetState() != pipeline.StateRecording && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if p.GetState() != pipeline.StateRecording {
		t.Fatalf("expected Recording between segments, got %v", p.GetState())
	}

	partial := waitEvent(t, c.partials)
	if partial.Stash != "more" {
		t.Fatalf("unexpected partial after reconnect: %+v", partial)
	}

	p.StopStreaming()
	f2 := waitEvent(t, c.finals)
	if f2.Text != "more text" {
		t.Fatalf("unexpected second final: %+v", f2)
	}

	select {
	case ev := <-c.errors:
		t.Fatalf("unexpected error event: %+v", ev)
	default:
	}
}

// 3. Cancel mid-stream.
func TestCancelMidStream(t *testing.T) {
	final := asr.Event{Kind: asr.EventFinal, Text: "unused"}
	dial := mock.Dialer(mock.Script{
		Events:         []asr.Event{{Kind: asr.EventPartial, Confirmed: "h"}},
		Final:          &final,
		EmitFinalOnEOS: true,
	})

	p, err := pipeline.New(testConfig(), newFakeSource(), dial)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c := newCollector()

	p.StartStreaming(c.cb)
	waitEvent(t, c.partials)

	before := c.count()
	p.CancelStreaming()

	deadline := time.Now().Add(100 * time.Millisecond)
	for p.GetState() != pipeline.StateIdle && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if p.GetState() != pipeline.StateIdle {
		t.Fatalf("expected Idle within 100ms of cancel, got %v", p.GetState())
	}

	time.Sleep(50 * time.Millisecond)
	if c.count() != before {
		t.Fatalf("callback fired after CancelStreaming returned")
	}
}

// 4. Auth failure.
func TestAuthFailure(t *testing.T) {
	dial := mock.Dialer(mock.Script{
		DialErr: &asr.Error{Code: asr.ErrCodeAuthError, Message: "auth failed"},
	})

	p, err := pipeline.New(testConfig(), newFakeSource(), dial)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c := newCollector()

	p.StartStreaming(c.cb)

	ev := waitEvent(t, c.errors)
	if ev.Kind != pipeline.EventError {
		t.Fatalf("expected error event, got %+v", ev)
	}

	deadline := time.Now().Add(testTimeout)
	for p.GetState() != pipeline.StateIdle && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if p.GetState() != pipeline.StateIdle {
		t.Fatalf("expected Idle after auth failure, got %v", p.GetState())
	}
}

// 5. Reconnect storm: three immediate dial failures.
func TestReconnectStorm(t *testing.T) {
	netErr := &asr.Error{Code: asr.ErrCodeNetworkError, Message: "connection refused"}
	dial := mock.Dialer(
		mock.Script{DialErr: netErr},
		mock.Script{DialErr: netErr},
		mock.Script{DialErr: netErr},
	)

	p, err := pipeline.New(testConfig(), newFakeSource(), dial)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c := newCollector()

	p.StartStreaming(c.cb)

	ev := waitEvent(t, c.errors)
	if ev.Kind != pipeline.EventError {
		t.Fatalf("expected error event, got %+v", ev)
	}

	deadline := time.Now().Add(testTimeout)
	for p.GetState() != pipeline.StateIdle && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if p.GetState() != pipeline.StateIdle {
		t.Fatalf("expected Idle after reconnect storm, got %v", p.GetState())
	}
}

// 6. Stop with no audio.
func TestStopWithNoAudio(t *testing.T) {
	final := asr.Event{Kind: asr.EventFinal, Text: ""}
	connected := make(chan struct{}, 1)
	dial := dialOnConnect(mock.Dialer(mock.Script{Final: &final, EmitFinalOnEOS: true}), connected)

	p, err := pipeline.New(testConfig(), newFakeSource(), dial)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c := newCollector()

	p.StartStreaming(c.cb)
	<-connected
	p.StopStreaming()

	f := waitEvent(t, c.finals)
	if f.Text != "" {
		t.Fatalf("expected empty final, got %+v", f)
	}
}

// Idempotence: cancel_streaming called repeatedly behaves as once.
func TestCancelStreamingIdempotent(t *testing.T) {
	p, err := pipeline.New(testConfig(), newFakeSource(), mock.Dialer(mock.Script{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.CancelStreaming()
	p.CancelStreaming()
	p.CancelStreaming()
	if p.GetState() != pipeline.StateIdle {
		t.Fatalf("expected Idle, got %v", p.GetState())
	}
}

// Idempotence: stop_streaming from a non-Recording state is a no-op.
func TestStopStreamingNoOpWhenIdle(t *testing.T) {
	p, err := pipeline.New(testConfig(), newFakeSource(), mock.Dialer(mock.Script{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.StopStreaming()
	if p.GetState() != pipeline.StateIdle {
		t.Fatalf("expected Idle, got %v", p.GetState())
	}
}

// update_config is rejected while a session is active.
func TestUpdateConfigBusyWhileRecording(t *testing.T) {
	final := asr.Event{Kind: asr.EventFinal, Text: "x"}
	p, err := pipeline.New(testConfig(), newFakeSource(), mock.Dialer(mock.Script{
		Final: &final, EmitFinalOnEOS: true,
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.StartStreaming(func(pipeline.Event) {})

	if code := p.UpdateConfig(testConfig()); code != pipeline.CodeBusy {
		t.Fatalf("expected CodeBusy, got %v", code)
	}
	p.CancelStreaming()
}
