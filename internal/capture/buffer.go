package capture

import (
	"sync"
	"time"
)

// Buffer is the shared capture accumulator for one recording session:
// interleaved float32 samples at the device-native rate, append-only while
// the session lives. A single mutex guards samples and metadata together so
// readers never observe a torn frame.
type Buffer struct {
	mu      sync.Mutex
	samples []float32
	format  Format
}

// NewBuffer allocates an empty buffer for the given capture format.
func NewBuffer(format Format) *Buffer {
	return &Buffer{format: format}
}

// Format returns the device-native PCM layout of the stored samples.
func (b *Buffer) Format() Format {
	return b.format
}

// Append adds one frame of interleaved samples.
func (b *Buffer) Append(frame []float32) {
	if len(frame) == 0 {
		return
	}
	b.mu.Lock()
	b.samples = append(b.samples, frame...)
	b.mu.Unlock()
}

// Len returns the stored sample count (all channels interleaved).
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// Duration returns the audio length represented by the buffer contents.
func (b *Buffer) Duration() time.Duration {
	frames := b.Len() / b.format.Channels
	if b.format.Rate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(b.format.Rate)
}

// Snapshot returns a copy of the full buffer contents.
func (b *Buffer) Snapshot() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]float32, len(b.samples))
	copy(out, b.samples)
	return out
}

// Window returns a copy of the trailing d worth of samples, aligned to a
// frame boundary. Shorter buffers are returned whole. The buffer itself is
// never mutated.
func (b *Buffer) Window(d time.Duration) []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	want := int(d.Seconds()*float64(b.format.Rate)) * b.format.Channels
	start := 0
	if want > 0 && want < len(b.samples) {
		start = len(b.samples) - want
		// Align to the first sample of an interleaved frame.
		start -= start % b.format.Channels
	}

	out := make([]float32, len(b.samples)-start)
	copy(out, b.samples[start:])
	return out
}
