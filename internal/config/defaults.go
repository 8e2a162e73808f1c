package config

// Default returns the canonical runtime configuration used when no file is
// present.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			Backend:      "openai",
			LanguageCode: "en-US",
			Recognizer:   "",
		},
		Capture: CaptureConfig{
			Rate:       44100,
			Channels:   1,
			QueueDepth: 64,
		},
		Session: SessionConfig{
			TimeoutMS:        30000,
			SilenceTimeoutMS: 2000,
			DetectorTickMS:   1500,
			DetectorWindowMS: 2000,
			VoiceCommands:    true,
			IncludeCommands:  false,
			MinDurationMS:    500,
			MinAmplitude:     0.001,
			SilenceRMS:       0.01,
		},
		Commands: CommandsConfig{
			Start:  []string{"start recording", "begin recording"},
			Stop:   []string{"stop recording", "stop listening", "end recording"},
			Status: []string{"recording status"},
			Toggle: []string{"toggle recording"},
		},
	}
}
