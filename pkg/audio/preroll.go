package audio

import "sync"

// PrerollBuffer holds the most recent window of captured 16-bit mono PCM
// ahead of StartStreaming, continuously overwritten while the source
// captures in the background. Its capacity is rounded down to a whole
// number of the pipeline's configured frame size, so once the window has
// filled, Window hands back a whole number of frames — on the initial
// connect and on every auto-reconnect, where the pipeline flushes the
// current window into the freshly dialed Session before resuming live
// frames (see pkg/pipeline/session.go's connect). Before the window first
// fills, Window returns exactly what has been written so far, which need
// not be a whole number of frames.
type PrerollBuffer struct {
	data     []byte
	capacity int
	writePos int
	size     int
	mu       sync.Mutex
}

// NewPrerollBuffer sizes a buffer to hold roughly windowMs of audio at
// sampleRateHz (16-bit mono PCM), rounded down to the nearest whole
// multiple of frameBytes so a full window is a whole number of frames.
// A frameBytes of 0 or larger than the requested window disables
// alignment.
func NewPrerollBuffer(sampleRateHz, windowMs, frameBytes int) *PrerollBuffer {
	samples := sampleRateHz * windowMs / 1000
	capacity := samples * 2 // 16-bit mono: 2 bytes per sample

	if frameBytes > 0 && frameBytes <= capacity {
		capacity -= capacity % frameBytes
	}
	if capacity <= 0 {
		capacity = frameBytes
	}

	return &PrerollBuffer{
		data:     make([]byte, capacity),
		capacity: capacity,
	}
}

// Write appends newly captured PCM, overwriting the oldest bytes once
// the window is full.
func (b *PrerollBuffer) Write(pcm []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(pcm)
	if n == 0 {
		return
	}

	if n >= b.capacity {
		copy(b.data, pcm[n-b.capacity:])
		b.writePos = 0
		b.size = b.capacity
		return
	}

	spaceToEnd := b.capacity - b.writePos
	if n <= spaceToEnd {
		copy(b.data[b.writePos:], pcm)
		b.writePos += n
		if b.writePos == b.capacity {
			b.writePos = 0
		}
	} else {
		copy(b.data[b.writePos:], pcm[:spaceToEnd])
		copy(b.data, pcm[spaceToEnd:])
		b.writePos = n - spaceToEnd
	}

	b.size += n
	if b.size > b.capacity {
		b.size = b.capacity
	}
}

// Window returns the buffered window in chronological order without
// clearing it: the pre-roll window is always "the most recent N ms",
// not a one-shot queue, so repeated reconnects each see whatever
// capture has produced since the window was last overwritten.
func (b *PrerollBuffer) Window() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == 0 {
		return nil
	}

	out := make([]byte, b.size)
	if b.size < b.capacity {
		copy(out, b.data[:b.size])
		return out
	}

	firstPartLen := b.capacity - b.writePos
	copy(out[:firstPartLen], b.data[b.writePos:])
	copy(out[firstPartLen:], b.data[:b.writePos])
	return out
}

// Clear resets the buffer to empty, for tests that need a known
// starting state.
func (b *PrerollBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writePos = 0
	b.size = 0
}

// Size reports how much of the window is currently populated.
func (b *PrerollBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Capacity reports the frame-aligned window size in bytes.
func (b *PrerollBuffer) Capacity() int {
	return b.capacity
}
