package audio

import (
	"sync"
)

const (
	chunkerSampleRateHz  = 16000
	chunkerChannels      = 1
	chunkerBytesPerSample = 2
)

// Chunker accumulates arbitrary-sized PCM writes and emits fixed-size
// frames sized to a target frame duration, the same accumulate-then-
// emit-fixed-frame technique the teacher's AudioPacer uses to pace
// 20ms/48kHz playback frames — generalized here to an arbitrary frame
// duration at the recognizer's 16kHz mono input rate, since different
// ASR providers request different wire chunk sizes.
type Chunker struct {
	mu         sync.Mutex
	buffer     []byte
	frameBytes int
}

// NewChunker creates a Chunker that emits frames of frameMs duration at
// 16kHz mono 16-bit PCM.
func NewChunker(frameMs int) *Chunker {
	samplesPerFrame := chunkerSampleRateHz * frameMs / 1000
	frameBytes := samplesPerFrame * chunkerBytesPerSample * chunkerChannels

	return &Chunker{
		buffer:     make([]byte, 0, frameBytes*4),
		frameBytes: frameBytes,
	}
}

// Write appends already-resampled 16kHz mono PCM to the accumulator.
func (c *Chunker) Write(data []byte) {
	if len(data) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffer = append(c.buffer, data...)
}

// Frames drains every complete frame currently buffered, leaving any
// partial trailing frame in place for the next Write.
func (c *Chunker) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	var frames [][]byte
	for len(c.buffer) >= c.frameBytes {
		frame := make([]byte, c.frameBytes)
		copy(frame, c.buffer[:c.frameBytes])
		frames = append(frames, frame)
		c.buffer = c.buffer[c.frameBytes:]
	}
	return frames
}

// Flush returns whatever partial frame remains, padded with trailing
// silence to a full frame, and resets the accumulator. Source.Stop calls
// it and discards the result, so a partial trailing frame never carries
// over into the next utterance.
func (c *Chunker) Flush() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.buffer) == 0 {
		return nil
	}
	frame := make([]byte, c.frameBytes)
	copy(frame, c.buffer)
	c.buffer = c.buffer[:0]
	return frame
}

// FrameBytes reports the configured frame size.
func (c *Chunker) FrameBytes() int {
	return c.frameBytes
}
