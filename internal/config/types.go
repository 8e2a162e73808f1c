// Package config resolves, parses, validates, and defaults vtt runtime
// configuration.
package config

// Config is the fully materialized runtime configuration.
type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Capture  CaptureConfig  `yaml:"capture"`
	Session  SessionConfig  `yaml:"session"`
	Commands CommandsConfig `yaml:"commands"`
}

// EngineConfig selects and parameterizes the speech backend.
type EngineConfig struct {
	// Backend is one of: google, openai.
	Backend      string `yaml:"backend"`
	LanguageCode string `yaml:"language_code"`
	Model        string `yaml:"model"`
	// Recognizer is the Google recognizer resource path.
	Recognizer string `yaml:"recognizer"`
	// Endpoint dials a plaintext gRPC proxy instead of the public Google API.
	Endpoint string `yaml:"endpoint"`
	// BaseURL points the OpenAI backend at a Whisper-compatible server.
	BaseURL string `yaml:"base_url"`
}

// CaptureConfig controls the format the capture stream is opened with.
type CaptureConfig struct {
	Rate       int `yaml:"rate"`
	Channels   int `yaml:"channels"`
	QueueDepth int `yaml:"queue_depth"`
}

// SessionConfig controls session timing and the command detector.
type SessionConfig struct {
	TimeoutMS        int  `yaml:"timeout_ms"`
	SilenceTimeoutMS int  `yaml:"silence_timeout_ms"`
	DetectorTickMS   int  `yaml:"detector_tick_ms"`
	DetectorWindowMS int  `yaml:"detector_window_ms"`
	VoiceCommands    bool `yaml:"voice_commands"`
	IncludeCommands  bool `yaml:"include_commands"`

	MinDurationMS int     `yaml:"min_duration_ms"`
	MinAmplitude  float64 `yaml:"min_amplitude"`
	SilenceRMS    float64 `yaml:"silence_rms"`
}

// CommandsConfig is the per-category voice trigger phrase table.
type CommandsConfig struct {
	Start  []string `yaml:"start"`
	Stop   []string `yaml:"stop"`
	Status []string `yaml:"status"`
	Toggle []string `yaml:"toggle"`
}

// Warning is a non-fatal load/validation message.
type Warning struct {
	Message string
}
