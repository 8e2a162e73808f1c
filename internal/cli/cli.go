// Package cli parses vtt command-line arguments.
package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Command string

const (
	CommandListen     Command = "listen"
	CommandStart      Command = "start"
	CommandToggle     Command = "toggle"
	CommandStop       Command = "stop"
	CommandStatus     Command = "status"
	CommandTranscribe Command = "transcribe"
	CommandVersion    Command = "version"
	CommandHelp       Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandListen:     {},
	CommandStart:      {},
	CommandToggle:     {},
	CommandStop:       {},
	CommandStatus:     {},
	CommandTranscribe: {},
	CommandVersion:    {},
	CommandHelp:       {},
}

// Parsed is the result of argument parsing. Duration overrides are in
// milliseconds; -1 means "not set".
type Parsed struct {
	Command         Command
	ConfigPath      string
	FilePath        string
	TimeoutMS       int
	SilenceMS       int
	NoVoiceCommands bool
	IncludeCommands bool
	ShowHelp        bool
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true, TimeoutMS: -1, SilenceMS: -1}
	commandSeen := false

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		case "--timeout":
			i++
			value, err := flagMillis(args, i, "--timeout", 1)
			if err != nil {
				return Parsed{}, err
			}
			parsed.TimeoutMS = value
		case "--silence":
			i++
			value, err := flagMillis(args, i, "--silence", 0)
			if err != nil {
				return Parsed{}, err
			}
			parsed.SilenceMS = value
		case "--no-voice-commands":
			parsed.NoVoiceCommands = true
		case "--include-commands":
			parsed.IncludeCommands = true
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			if commandSeen {
				if parsed.Command == CommandTranscribe && parsed.FilePath == "" {
					parsed.FilePath = arg
					continue
				}
				return Parsed{}, fmt.Errorf("unexpected argument: %q", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			commandSeen = true
			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
		}
	}

	if parsed.Command == CommandTranscribe && parsed.FilePath == "" {
		return Parsed{}, errors.New("transcribe requires a WAV file path")
	}

	return parsed, nil
}

func flagMillis(args []string, i int, name string, min int) (int, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("%s requires a value in milliseconds", name)
	}
	value, err := strconv.Atoi(args[i])
	if err != nil || value < min {
		return 0, fmt.Errorf("%s requires an integer >= %d, got %q", name, min, args[i])
	}
	return value, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [flags] <command>

Commands:
  listen           Record until stopped, then print the transcript
  start            Alias of toggle
  toggle           Start recording, or stop and print when already recording
  stop             Stop the active recording and print the transcript
  status           Print current session state
  transcribe FILE  Transcribe a WAV file and print the text
  version          Print version information
  help             Show this help

Flags:
  --config PATH         Config file path (default: $XDG_CONFIG_HOME/vtt/config.yaml)
  --timeout MS          Maximum recording duration in milliseconds
  --silence MS          Stop after this much trailing silence (0 disables)
  --no-voice-commands   Disable spoken command detection for this session
  --include-commands    Keep spoken command phrases in the transcript
  -h, --help            Show help
  --version             Show version
`, binaryName)
}
