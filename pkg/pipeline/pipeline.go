// Package pipeline implements the coordinator that wires an AudioSource
// to a recognizer, drives the Idle/Recording/Processing state machine,
// performs seamless auto-reconnect across server-side VAD finals, and
// dispatches Partial/Final/Error/Warning events to a host callback.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vimo-ai/vhisper-core/pkg/asr"
	"github.com/vimo-ai/vhisper-core/pkg/audio"
	"github.com/vimo-ai/vhisper-core/pkg/config"
	"github.com/vimo-ai/vhisper-core/pkg/enhancer"
)

const (
	sendTimeout          = 500 * time.Millisecond
	postEOSWait          = 3 * time.Second
	enhancerTimeout      = 10 * time.Second
	maxReconnectAttempts = 3
	reconnectWindow      = 2 * time.Second
)

// Code is the synchronous result of a Pipeline operation. Asynchronous
// failures (auth, network, device) are never encoded here; they surface
// later as an EventError delivered to the session's callback, since
// connecting a recognizer is an inherently suspending operation and
// every Pipeline method is documented to return immediately.
type Code int

const (
	CodeOK Code = iota
	CodeBusy
	CodeConfigInvalid
)

// AudioSource is the capture surface the Pipeline drives. audio.Source
// satisfies it directly; tests substitute a fake that doesn't touch a
// real device.
type AudioSource interface {
	Start()
	Stop()
	Chunks() <-chan audio.Frame
	DrainPreroll() []byte
	DroppedFrames() int64
	Close() error
}

// Dialer opens one recognizer session. Production pipelines leave it nil
// and let New wire it to asr.Dial against the live config; tests inject
// a scripted one (see pkg/asr/mock).
type Dialer func(ctx context.Context) (asr.Recognizer, error)

// Pipeline is the coordinator described by the core design: it owns the
// AudioSource and the current recognizer Session, and is safe to drive
// concurrently from a foreign caller (the FFI shim) and its own
// background session goroutine.
type Pipeline struct {
	mu     sync.Mutex
	cfg    config.Config
	stateM *stateMachine
	source AudioSource
	dial   Dialer
	enh    *enhancer.Enhancer

	cancel        context.CancelFunc
	activeRec     asr.Recognizer
	stopRequested bool
	stopSignal    chan struct{}
	suppressed    atomic.Bool
	sessionWG     sync.WaitGroup
}

// New constructs a Pipeline from cfg, an AudioSource, and an optional
// Dialer. Passing a nil dial wires recognizer connections to asr.Dial
// against whatever cfg.ASR holds at connect time, so UpdateConfig takes
// effect on the next StartStreaming without rebuilding the Pipeline.
func New(cfg config.Config, source AudioSource, dial Dialer) (*Pipeline, error) {
	p := &Pipeline{
		cfg:    cfg,
		stateM: newStateMachine(),
		source: source,
	}

	if dial != nil {
		p.dial = dial
	} else {
		p.dial = func(ctx context.Context) (asr.Recognizer, error) {
			p.mu.Lock()
			asrCfg := p.cfg.ASR
			p.mu.Unlock()
			return asr.Dial(ctx, asrCfg)
		}
	}

	if cfg.LLM.Enabled {
		enh, err := enhancer.Dial(cfg.LLM)
		if err != nil {
			return nil, err
		}
		p.enh = enh
	}

	return p, nil
}

// NewFromConfig is the production constructor: it opens a real capture
// device sized to frameMs and wires recognizer connections to asr.Dial.
func NewFromConfig(cfg config.Config, frameMs int) (*Pipeline, error) {
	src, err := audio.NewSource(frameMs)
	if err != nil {
		return nil, err
	}
	p, err := New(cfg, src, nil)
	if err != nil {
		src.Close()
		return nil, err
	}
	return p, nil
}

// GetState reads the current state. Never blocks, never fails.
func (p *Pipeline) GetState() State {
	return p.stateM.Load()
}

// StartStreaming begins a recording session if the Pipeline is Idle.
// It returns immediately; the recognizer connection and every
// subsequent event are delivered to cb on a background goroutine.
func (p *Pipeline) StartStreaming(cb Callback) Code {
	if err := p.stateM.transition(StateRecording, StateIdle); err != nil {
		return CodeBusy
	}

	ctx, cancel := context.WithCancel(context.Background())

	p.mu.Lock()
	p.cancel = cancel
	p.stopRequested = false
	p.stopSignal = make(chan struct{})
	p.mu.Unlock()
	p.suppressed.Store(false)

	p.source.Start()
	p.sessionWG.Add(1)
	go p.run(ctx, cb)

	return CodeOK
}

// StopStreaming requests the terminal Final for the active session. A
// call while not Recording is a silent no-op, per the design's
// idempotence requirement.
func (p *Pipeline) StopStreaming() {
	if !p.stateM.compareAndTransition(StateProcessing, StateRecording) {
		return
	}

	p.mu.Lock()
	p.stopRequested = true
	rec := p.activeRec
	signal := p.stopSignal
	p.mu.Unlock()

	if rec != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()
			rec.SendEOS(ctx)
		}()
	}
	close(signal)
}

// CancelStreaming is the out-of-band escape: valid from any state,
// idempotent, and guarantees no further callback fires once it returns.
// Worker goroutines finish asynchronously; Close waits for them.
func (p *Pipeline) CancelStreaming() {
	p.suppressed.Store(true)

	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	rec := p.activeRec
	p.activeRec = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if rec != nil {
		rec.Close()
	}
	p.source.Stop()
	p.stateM.forceTo(StateIdle)
}

// UpdateConfig atomically replaces the configuration. Only permitted
// while Idle, matching the design's requirement that in-flight sessions
// never observe a provider swap mid-utterance.
func (p *Pipeline) UpdateConfig(cfg config.Config) Code {
	if err := config.Validate(&cfg); err != nil {
		return CodeConfigInvalid
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stateM.Load() != StateIdle {
		return CodeBusy
	}

	diff := config.DiffConfigs(&p.cfg, &cfg)
	slog.Info("pipeline: config updated",
		"asr_provider_changed", diff.ASRProviderChanged, "asr_provider", cfg.ASR.Provider,
		"llm_enabled_changed", diff.LLMEnabledChanged, "llm_provider_changed", diff.LLMProviderChanged,
		"output_changed", diff.OutputChanged)
	if cfg.LLM != p.cfg.LLM {
		if cfg.LLM.Enabled {
			enh, err := enhancer.Dial(cfg.LLM)
			if err != nil {
				return CodeConfigInvalid
			}
			p.enh = enh
		} else {
			p.enh = nil
		}
	}
	p.cfg = cfg
	return CodeOK
}

// Close cancels any active session, waits for its goroutine to exit,
// and releases the capture device. Equivalent to the FFI shim's
// `destroy`.
func (p *Pipeline) Close() error {
	p.CancelStreaming()
	p.sessionWG.Wait()
	return p.source.Close()
}

// deliver invokes cb unless CancelStreaming has suppressed callbacks for
// this session.
func (p *Pipeline) deliver(cb Callback, ev Event) {
	if p.suppressed.Load() {
		return
	}
	if cb != nil {
		cb(ev)
	}
}
