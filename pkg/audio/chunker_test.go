package audio

import "testing"

func TestChunkerEmitsFixedSizeFrames(t *testing.T) {
	c := NewChunker(100) // 100ms @ 16kHz mono 16-bit = 3200 bytes
	if c.FrameBytes() != 3200 {
		t.Fatalf("frame bytes = %d, want 3200", c.FrameBytes())
	}

	c.Write(make([]byte, 5000))
	frames := c.Frames()
	if len(frames) != 1 {
		t.Fatalf("expected 1 complete frame, got %d", len(frames))
	}
	if len(frames[0]) != 3200 {
		t.Fatalf("frame size = %d, want 3200", len(frames[0]))
	}

	// 1800 bytes remain buffered as a partial frame.
	if got := c.Frames(); len(got) != 0 {
		t.Fatalf("expected no further complete frames, got %d", len(got))
	}
}

func TestChunkerFlushPadsPartialFrame(t *testing.T) {
	c := NewChunker(20) // 20ms @ 16kHz mono 16-bit = 640 bytes
	c.Write(make([]byte, 100))

	flushed := c.Flush()
	if len(flushed) != c.FrameBytes() {
		t.Fatalf("flushed frame size = %d, want %d", len(flushed), c.FrameBytes())
	}
	if c.Flush() != nil {
		t.Fatal("expected nil after buffer drained")
	}
}
