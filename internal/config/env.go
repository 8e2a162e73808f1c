package config

import (
	"os"
	"strings"
)

// Env var names for voice trigger phrase overrides. Each is a comma-separated
// phrase list; entries are trimmed and empties dropped.
const (
	EnvStartCommands  = "VOICE_START_COMMANDS"
	EnvStopCommands   = "VOICE_STOP_COMMANDS"
	EnvStatusCommands = "VOICE_STATUS_COMMANDS"
	EnvToggleCommands = "VOICE_TOGGLE_COMMANDS"
)

// applyEnv overlays environment phrase overrides onto cfg. A set but empty
// variable clears the category.
func applyEnv(cfg Config) Config {
	if phrases, ok := envPhrases(EnvStartCommands); ok {
		cfg.Commands.Start = phrases
	}
	if phrases, ok := envPhrases(EnvStopCommands); ok {
		cfg.Commands.Stop = phrases
	}
	if phrases, ok := envPhrases(EnvStatusCommands); ok {
		cfg.Commands.Status = phrases
	}
	if phrases, ok := envPhrases(EnvToggleCommands); ok {
		cfg.Commands.Toggle = phrases
	}
	return cfg
}

// envPhrases parses one comma-separated phrase variable. The second return
// reports whether the variable was set at all.
func envPhrases(name string) ([]string, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return nil, false
	}

	parts := strings.Split(raw, ",")
	phrases := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			phrases = append(phrases, trimmed)
		}
	}
	return phrases, true
}
