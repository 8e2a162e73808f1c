// Package dsp implements the pure audio transforms that prepare captured
// samples for speech recognition: channel downmix, linear resampling to the
// engine rate, and peak normalization.
package dsp

import (
	"errors"
	"fmt"
	"math"
)

// TargetRate is the sample rate expected by every speech engine backend.
const TargetRate = 16000

// ErrInvalidAudio rejects empty buffers and non-positive rate/channel params.
var ErrInvalidAudio = errors.New("invalid audio input")

// Downmix collapses interleaved multi-channel frames into mono by taking the
// arithmetic mean of each frame's channel values. Mono input is copied
// through unchanged. Trailing partial frames are dropped.
func Downmix(samples []float32, channels int) ([]float32, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("%w: channel count %d", ErrInvalidAudio, channels)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrInvalidAudio)
	}
	if channels == 1 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out, nil
	}

	frames := len(samples) / channels
	if frames == 0 {
		return nil, fmt.Errorf("%w: %d samples is less than one %d-channel frame", ErrInvalidAudio, len(samples), channels)
	}

	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += samples[i*channels+ch]
		}
		out[i] = sum / float32(channels)
	}
	return out, nil
}

// Resample converts mono samples from rate to TargetRate using linear
// interpolation. The conversion is deterministic and preserves duration to
// within one output sample period.
func Resample(samples []float32, rate int) ([]float32, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrInvalidAudio, rate)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrInvalidAudio)
	}
	if rate == TargetRate {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out, nil
	}

	outLen := int(math.Round(float64(len(samples)) * float64(TargetRate) / float64(rate)))
	if outLen < 1 {
		outLen = 1
	}

	step := float64(rate) / float64(TargetRate)
	out := make([]float32, outLen)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = samples[j] + (samples[j+1]-samples[j])*frac
	}
	return out, nil
}

// silenceFloor is the peak magnitude below which a buffer is treated as
// silence and left unscaled.
const silenceFloor = 1e-6

// Normalize scales samples by the reciprocal of the peak magnitude so output
// lies in [-1, 1]. Silent buffers are returned as-is rather than dividing by
// a near-zero peak.
func Normalize(samples []float32) []float32 {
	out := make([]float32, len(samples))
	copy(out, samples)

	peak := Peak(samples)
	if peak < silenceFloor || peak == 1.0 {
		return out
	}

	scale := float32(1.0 / peak)
	for i := range out {
		out[i] *= scale
	}
	return out
}

// Condition runs the full downmix, resample, normalize pipeline. It is a
// pure function of its inputs and never mutates the source slice.
func Condition(samples []float32, rate int, channels int) ([]float32, error) {
	mono, err := Downmix(samples, channels)
	if err != nil {
		return nil, err
	}
	resampled, err := Resample(mono, rate)
	if err != nil {
		return nil, err
	}
	return Normalize(resampled), nil
}

// Peak returns the maximum absolute sample value.
func Peak(samples []float32) float64 {
	var peak float64
	for _, s := range samples {
		if v := math.Abs(float64(s)); v > peak {
			peak = v
		}
	}
	return peak
}

// RMS returns the root-mean-square energy of the buffer, 0 for empty input.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
