// Package openai adapts the OpenAI audio transcription API (Whisper) to the
// engine contract. Samples are wrapped into an in-memory WAV upload.
package openai

import (
	"bytes"
	"context"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/acazau/voice-to-text/internal/engine"
	"github.com/acazau/voice-to-text/internal/wavio"
)

// Config controls API access and model selection. An empty APIKey falls back
// to the client's OPENAI_API_KEY environment default.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Engine is an OpenAI transcription backend.
type Engine struct {
	client openai.Client
	model  openai.AudioModel
}

// New builds a client; BaseURL permits self-hosted Whisper-compatible
// servers.
func New(cfg Config) *Engine {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := openai.AudioModelWhisper1
	if strings.TrimSpace(cfg.Model) != "" {
		model = openai.AudioModel(cfg.Model)
	}

	return &Engine{client: openai.NewClient(opts...), model: model}
}

// Transcribe posts the samples as a 16 kHz mono WAV and returns the
// recognized text.
func (e *Engine) Transcribe(ctx context.Context, samples []float32) (string, error) {
	var buf bytes.Buffer
	if err := wavio.WritePCM16(&buf, wavio.FloatToPCM16(samples), 16000, 1); err != nil {
		return "", engine.Wrap("openai", err)
	}

	transcription, err := e.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: e.model,
		File:  openai.File(&buf, "audio.wav", "audio/wav"),
	})
	if err != nil {
		return "", engine.Wrap("openai", err)
	}
	return strings.TrimSpace(transcription.Text), nil
}
