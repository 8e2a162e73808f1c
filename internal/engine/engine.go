// Package engine defines the speech-recognition backend contract shared by
// the recording pipeline and file transcription.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/acazau/voice-to-text/internal/dsp"
)

// Engine converts conditioned audio to text. Implementations may block for
// the backend's full inference latency; callers bound it with ctx.
type Engine interface {
	// Transcribe recognizes normalized 16 kHz mono float samples.
	Transcribe(ctx context.Context, samples []float32) (string, error)
}

// Func adapts a function to the Engine interface.
type Func func(ctx context.Context, samples []float32) (string, error)

func (f Func) Transcribe(ctx context.Context, samples []float32) (string, error) {
	return f(ctx, samples)
}

var (
	// ErrTooShort indicates the buffer is below the usable recognition length.
	ErrTooShort = errors.New("audio too short for transcription")
	// ErrTooQuiet indicates the buffer carries no usable signal.
	ErrTooQuiet = errors.New("audio too quiet for transcription")
)

// Error wraps a backend failure with the backend name so callers can treat
// engines uniformly.
type Error struct {
	Backend string
	Err     error
}

func (e *Error) Error() string {
	return "speech engine " + e.Backend + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap tags err with the backend name; nil passes through.
func Wrap(backend string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Backend: backend, Err: err}
}

// Precheck rejects buffers the backends cannot produce useful text from:
// too short (at 16 kHz mono) or with a peak below minAmplitude.
func Precheck(samples []float32, minDuration time.Duration, minAmplitude float64) error {
	minSamples := int(minDuration.Seconds() * dsp.TargetRate)
	if len(samples) < minSamples {
		return ErrTooShort
	}

	var peak float64
	for _, s := range samples {
		v := float64(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	if peak < minAmplitude {
		return ErrTooQuiet
	}
	return nil
}
