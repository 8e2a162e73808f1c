package session

import (
	"context"
	"time"

	"github.com/acazau/voice-to-text/internal/dsp"
	"github.com/acazau/voice-to-text/internal/engine"
	"github.com/acazau/voice-to-text/internal/transcript"
	"github.com/acazau/voice-to-text/internal/wavio"
)

// TranscribeFile conditions a WAV file and runs the engine on it. It
// bypasses the recording state machine entirely: stateless, reentrant, and
// callable regardless of recording state.
func TranscribeFile(ctx context.Context, eng engine.Engine, path string) (Transcript, error) {
	samples, rate, channels, err := wavio.ReadFile(path)
	if err != nil {
		return Transcript{}, err
	}

	conditioned, err := dsp.Condition(samples, rate, channels)
	if err != nil {
		return Transcript{}, err
	}

	result := Transcript{
		Source:      SourceFile,
		SampleCount: len(conditioned),
		Duration:    time.Duration(len(conditioned)) * time.Second / dsp.TargetRate,
	}

	text, err := eng.Transcribe(ctx, conditioned)
	if err != nil {
		return result, err
	}
	result.Text = transcript.Clean(text)
	return result, nil
}
