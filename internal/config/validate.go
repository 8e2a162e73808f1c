package config

import (
	"fmt"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	var warnings []Warning

	backend := strings.ToLower(strings.TrimSpace(cfg.Engine.Backend))
	if backend == "" {
		return nil, fmt.Errorf("engine.backend must not be empty")
	}
	if backend != "google" && backend != "openai" {
		return nil, fmt.Errorf("engine.backend must be one of: google, openai")
	}
	if backend == "google" && strings.TrimSpace(cfg.Engine.Recognizer) == "" {
		return nil, fmt.Errorf("engine.recognizer must be set when engine.backend=google")
	}
	if strings.TrimSpace(cfg.Engine.LanguageCode) == "" {
		return nil, fmt.Errorf("engine.language_code must not be empty")
	}

	if cfg.Capture.Rate <= 0 {
		return nil, fmt.Errorf("capture.rate must be > 0")
	}
	if cfg.Capture.Channels < 1 || cfg.Capture.Channels > 2 {
		return nil, fmt.Errorf("capture.channels must be 1 or 2")
	}
	if cfg.Capture.QueueDepth <= 0 {
		return nil, fmt.Errorf("capture.queue_depth must be > 0")
	}

	if cfg.Session.TimeoutMS <= 0 {
		return nil, fmt.Errorf("session.timeout_ms must be > 0")
	}
	if cfg.Session.SilenceTimeoutMS < 0 {
		return nil, fmt.Errorf("session.silence_timeout_ms must be >= 0")
	}
	if cfg.Session.DetectorTickMS <= 0 {
		return nil, fmt.Errorf("session.detector_tick_ms must be > 0")
	}
	if cfg.Session.DetectorWindowMS <= 0 {
		return nil, fmt.Errorf("session.detector_window_ms must be > 0")
	}
	if cfg.Session.MinDurationMS < 0 {
		return nil, fmt.Errorf("session.min_duration_ms must be >= 0")
	}
	if cfg.Session.MinAmplitude < 0 {
		return nil, fmt.Errorf("session.min_amplitude must be >= 0")
	}
	if cfg.Session.SilenceRMS < 0 {
		return nil, fmt.Errorf("session.silence_rms must be >= 0")
	}

	if cfg.Session.DetectorWindowMS < cfg.Session.DetectorTickMS {
		warnings = append(warnings, Warning{
			Message: "session.detector_window_ms is shorter than the detector tick; command phrases may be missed between ticks",
		})
	}

	if cfg.Session.VoiceCommands && phraseCount(cfg.Commands) == 0 {
		warnings = append(warnings, Warning{
			Message: "voice commands enabled but no trigger phrases configured; detector will be idle",
		})
	}

	return warnings, nil
}

func phraseCount(commands CommandsConfig) int {
	return len(commands.Start) + len(commands.Stop) + len(commands.Status) + len(commands.Toggle)
}
