package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vimo-ai/vhisper-core/pkg/asr"
)

// errCancelled is the sentinel for a session ended by CancelStreaming.
// driveSession reports that case as outcomeCancelled rather than as this
// error; run then stops immediately with no callback.
var errCancelled = errors.New("pipeline: cancelled")

// outcome classifies why driveSession returned.
type outcome int

const (
	outcomeFinal outcome = iota
	outcomeAbnormalDrop
	outcomeCancelled
)

// run owns one start_streaming session end to end: the initial connect,
// every reconnected Session spawned by a server-side VAD Final, and the
// terminal transition back to Idle. It runs entirely on its own
// goroutine; the only synchronization with the public API is the
// mutex-guarded fields on Pipeline and the stopSignal/cancel channels.
func (p *Pipeline) run(ctx context.Context, cb Callback) {
	defer p.sessionWG.Done()
	defer p.source.Stop()

	p.mu.Lock()
	stopSignal := p.stopSignal
	p.mu.Unlock()

	dropped := p.source.DroppedFrames()

	rec, err := p.connect(ctx, p.source.DrainPreroll())
	if err != nil {
		p.finishError(err, cb)
		return
	}

	for {
		result, ev := p.driveSession(ctx, rec, cb, stopSignal)

		// Frames the hand-off queue dropped during this session surface
		// as a non-fatal warning, never as an error.
		if n := p.source.DroppedFrames(); n > dropped && result != outcomeCancelled {
			p.deliver(cb, Event{Kind: EventWarning, Message: fmt.Sprintf("audio: %d frames dropped", n-dropped)})
			dropped = n
		}

		switch result {
		case outcomeCancelled:
			return

		case outcomeFinal:
			p.deliver(cb, Event{Kind: EventFinal, Text: p.applyEnhancer(ctx, ev.Text)})
			if p.isStopRequested() {
				p.stateM.forceTo(StateIdle)
				return
			}

		case outcomeAbnormalDrop:
			if p.isStopRequested() {
				// The server dropped the connection before answering
				// EOS; treat it the same as the post-EOS watchdog.
				p.deliver(cb, Event{Kind: EventFinal, Text: ""})
				p.stateM.forceTo(StateIdle)
				return
			}
		}

		next, err := p.connect(ctx, p.source.DrainPreroll())
		if err != nil {
			p.finishError(err, cb)
			return
		}
		rec = next
	}
}

// driveSession forwards audio into rec while pumping its event stream,
// until it yields a terminal Final, its channel closes without one, or
// ctx is cancelled. Once stopSignal fires it arms the post-EOS watchdog
// so a silent server doesn't hang the terminal stop indefinitely.
func (p *Pipeline) driveSession(ctx context.Context, rec asr.Recognizer, cb Callback, stopSignal chan struct{}) (outcome, asr.Event) {
	forwardCtx, stopForwarding := context.WithCancel(ctx)
	defer stopForwarding()
	go p.forwardAudio(forwardCtx, rec)

	var watchdog <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			rec.Close()
			return outcomeCancelled, asr.Event{}

		case <-stopSignal:
			stopSignal = nil
			timer := time.NewTimer(postEOSWait)
			defer timer.Stop()
			watchdog = timer.C

		case <-watchdog:
			rec.Close()
			return outcomeFinal, asr.Event{Kind: asr.EventFinal, Text: ""}

		case ev, ok := <-rec.Events():
			if !ok {
				return outcomeAbnormalDrop, asr.Event{}
			}
			switch ev.Kind {
			case asr.EventPartial:
				p.deliver(cb, Event{Kind: EventPartial, Confirmed: ev.Confirmed, Stash: ev.Stash})
			case asr.EventFinal:
				return outcomeFinal, ev
			}
		}
	}
}

// forwardAudio pulls frames off the AudioSource and pushes them into
// rec until the session ends or a send stalls past the inter-chunk
// timeout, at which point it closes rec itself to trigger the reconnect
// path, the backpressure behavior the design calls for.
func (p *Pipeline) forwardAudio(ctx context.Context, rec asr.Recognizer) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-p.source.Chunks():
			if !ok {
				return
			}
			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			err := rec.SendAudio(sendCtx, frame.Samples)
			cancel()
			if err != nil {
				rec.Close()
				return
			}
		}
	}
}

// connect dials a recognizer, retrying up to maxReconnectAttempts within
// reconnectWindow — the bound the design places on both the initial
// connect and every subsequent auto-reconnect. An AuthError is never
// retried: a bad credential will not start working on the next attempt.
//
// Each successful dial mints a fresh locally-minted session id (providers
// here don't echo one back on connect) purely for log correlation across
// an utterance's reconnects; it never crosses the FFI boundary.
func (p *Pipeline) connect(ctx context.Context, preroll []byte) (asr.Recognizer, error) {
	deadline := time.Now().Add(reconnectWindow)
	var lastErr error

	for attempt := 0; attempt < maxReconnectAttempts; attempt++ {
		rec, err := p.dial(ctx)
		if err == nil {
			sessionID := "sess_" + uuid.New().String()[:12]
			slog.Debug("pipeline: session connected", "session_id", sessionID, "attempt", attempt+1, "preroll_bytes", len(preroll))
			if len(preroll) > 0 {
				rec.SendAudio(ctx, preroll)
			}
			p.mu.Lock()
			p.activeRec = rec
			p.mu.Unlock()
			return rec, nil
		}

		lastErr = err
		if asrErr, ok := err.(*asr.Error); ok && asrErr.Code == asr.ErrCodeAuthError {
			return nil, err
		}
		if time.Now().After(deadline) {
			break
		}
	}
	return nil, lastErr
}

func (p *Pipeline) finishError(err error, cb Callback) {
	p.mu.Lock()
	p.activeRec = nil
	p.mu.Unlock()
	p.stateM.forceTo(StateIdle)
	p.deliver(cb, Event{Kind: EventError, Message: err.Error()})
}

func (p *Pipeline) isStopRequested() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopRequested
}

// applyEnhancer rewrites Final text through the optional Enhancer,
// falling back to the original text within enhancerTimeout on any
// failure. A dropped warning about the fallback is intentional here:
// Enhancer already logs it, and EventWarning is reserved for audio
// backpressure per the design's event vocabulary.
func (p *Pipeline) applyEnhancer(ctx context.Context, text string) string {
	if p.enh == nil || text == "" {
		return text
	}
	enhCtx, cancel := context.WithTimeout(ctx, enhancerTimeout)
	defer cancel()
	result, _ := p.enh.Enhance(enhCtx, text)
	return result
}
