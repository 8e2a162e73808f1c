// Package capture accumulates device PCM into a session-owned buffer. The
// device callback only enqueues frames; a separate drain goroutine appends
// them to the buffer so the capture thread never contends on the buffer lock.
package capture

import (
	"context"
	"errors"
)

// ErrDeviceFailure indicates the capture device could not be opened or the
// audio server is unreachable.
var ErrDeviceFailure = errors.New("audio capture device unavailable")

// Format is the PCM layout a capture stream is opened with.
type Format struct {
	Rate     int
	Channels int
}

// Sink receives interleaved float32 sample frames from the device callback.
// Append must complete in bounded, small time: no blocking I/O and no
// transcription, or the device's real-time delivery thread stalls.
type Sink interface {
	Append(frame []float32)
}

// Handle is one active capture stream. End halts delivery and releases the
// device; it is safe to call more than once.
type Handle interface {
	End() error
}

// Device starts asynchronous sample delivery into a sink. Begin must not
// block beyond stream setup; frames arrive on the device's own thread until
// End is called on the returned handle.
type Device interface {
	Begin(ctx context.Context, format Format, sink Sink) (Handle, error)
}
