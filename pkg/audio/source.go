package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

const (
	targetSampleRateHz = 16000
	prerollDurationMs  = 300
	handoffQueueDepth  = 10 // ~1s of 100ms frames
)

// Frame is one chunk of 16kHz mono 16-bit PCM handed to the pipeline,
// stamped with the sample offset of its first sample from stream start
// for diagnostics.
type Frame struct {
	Samples    []byte
	Offset     int64
	SampleRate int
}

// Source captures microphone audio and emits fixed-duration 16kHz mono
// frames, preceded on demand by whatever was captured in the preceding
// pre-roll window. It continuously captures regardless of Start/Stop so
// the ring buffer always holds the moments right before a hotkey press,
// the same role the teacher's pre-roll buffer plays ahead of VAD.
type Source struct {
	frameMs int

	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	resample *Resampler
	preroll  *PrerollBuffer
	chunker  *Chunker

	nativeRate int

	out     chan Frame
	dropped atomic.Int64

	mu        sync.Mutex
	streaming bool
	offset    int64

	closeOnce sync.Once
}

// NewSource opens the default capture device and starts continuous
// background capture into the pre-roll buffer. frameMs sizes the frames
// delivered once streaming starts (the recognizer's preferred chunk
// duration).
func NewSource(frameMs int) (*Source, error) {
	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("audio: init capture context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = 48000

	chunker := NewChunker(frameMs)

	s := &Source{
		frameMs:    frameMs,
		malgoCtx:   malgoCtx,
		preroll:    NewPrerollBuffer(targetSampleRateHz, prerollDurationMs, chunker.FrameBytes()),
		chunker:    chunker,
		nativeRate: int(deviceConfig.SampleRate),
		out:        make(chan Frame, handoffQueueDepth),
	}

	if s.nativeRate != targetSampleRateHz {
		resampler, err := NewResampler(s.nativeRate)
		if err != nil {
			malgoCtx.Uninit()
			malgoCtx.Free()
			return nil, fmt.Errorf("audio: init resampler: %w", err)
		}
		s.resample = resampler
	}

	callbacks := malgo.DeviceCallbacks{Data: s.onCapture}
	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		malgoCtx.Uninit()
		malgoCtx.Free()
		return nil, fmt.Errorf("audio: init capture device: %w", err)
	}
	s.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		malgoCtx.Uninit()
		malgoCtx.Free()
		return nil, fmt.Errorf("audio: start capture device: %w", err)
	}

	return s, nil
}

// onCapture runs on malgo's capture callback goroutine. It always feeds
// the pre-roll ring buffer; while streaming is active it also chunks and
// hands frames to the consumer, drop-oldest on backpressure.
func (s *Source) onCapture(_, pSample []byte, _ uint32) {
	pcm := pSample
	if s.resample != nil {
		resampled, err := s.resample.Convert(pSample)
		if err != nil {
			slog.Warn("audio: resample failed, dropping capture buffer", "error", err)
			return
		}
		pcm = resampled
	}

	s.preroll.Write(pcm)

	s.mu.Lock()
	streaming := s.streaming
	s.mu.Unlock()
	if !streaming {
		return
	}

	s.chunker.Write(pcm)
	for _, frame := range s.chunker.Frames() {
		s.emit(frame)
	}
}

func (s *Source) emit(samples []byte) {
	s.mu.Lock()
	offset := s.offset
	s.offset += int64(len(samples) / 2) // 16-bit mono: 2 bytes per sample
	s.mu.Unlock()

	frame := Frame{Samples: samples, Offset: offset, SampleRate: targetSampleRateHz}

	select {
	case s.out <- frame:
		return
	default:
	}

	// Queue full: drop the oldest frame to make room rather than block
	// the capture callback, which must never stall.
	select {
	case <-s.out:
		s.dropped.Add(1)
	default:
	}
	select {
	case s.out <- frame:
	default:
		s.dropped.Add(1)
	}
}

// Start transitions the source into streaming mode: subsequent captured
// audio is chunked and delivered via Chunks.
func (s *Source) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaming = true
	s.offset = 0
}

// Chunks returns the channel of streaming frames. Only meaningful after
// Start.
func (s *Source) Chunks() <-chan Frame {
	return s.out
}

// DrainPreroll returns the most recent pre-roll window of captured
// audio (on the initial connect, the moments immediately before Start),
// so the first word spoken while the hotkey is still being pressed isn't
// lost to capture latency. Once the window has filled, the returned
// buffer is a whole number of the recognizer's configured frame size;
// before that it holds whatever has been captured so far, which need
// not be a whole number of frames.
func (s *Source) DrainPreroll() []byte {
	return s.preroll.Window()
}

// Stop ends streaming mode. Capture continues in the background so the
// pre-roll buffer keeps filling for the next utterance.
func (s *Source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaming = false
	s.chunker.Flush()
}

// DroppedFrames reports how many frames were discarded because the
// handoff queue was full, for the pipeline's WarningEvent.
func (s *Source) DroppedFrames() int64 {
	return s.dropped.Load()
}

// Close releases the capture device and resampler. The Source is not
// usable afterward.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		if s.device != nil {
			s.device.Uninit()
		}
		if s.malgoCtx != nil {
			s.malgoCtx.Uninit()
			s.malgoCtx.Free()
		}
		if s.resample != nil {
			s.resample.Free()
		}
	})
	return nil
}
