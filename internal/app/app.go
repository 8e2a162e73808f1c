// Package app wires CLI commands to the session controller and the owner
// socket. The first process to run a session-owning command binds the socket
// and hosts the recording; later invocations forward their command to it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/acazau/voice-to-text/internal/capture"
	"github.com/acazau/voice-to-text/internal/cli"
	"github.com/acazau/voice-to-text/internal/config"
	"github.com/acazau/voice-to-text/internal/engine"
	"github.com/acazau/voice-to-text/internal/engine/google"
	"github.com/acazau/voice-to-text/internal/engine/openai"
	"github.com/acazau/voice-to-text/internal/fsm"
	"github.com/acazau/voice-to-text/internal/ipc"
	"github.com/acazau/voice-to-text/internal/logging"
	"github.com/acazau/voice-to-text/internal/session"
	"github.com/acazau/voice-to-text/internal/vcmd"
	"github.com/acazau/voice-to-text/internal/version"
)

const (
	// forwardTimeout bounds quick request/response commands (status, a
	// toggle that starts).
	forwardTimeout = 220 * time.Millisecond
	// stopForwardTimeout covers a forwarded stop, which blocks through the
	// final transcription before replying.
	stopForwardTimeout = 30 * time.Second
)

// Runner executes one CLI invocation. Logger, Device, and Engine are
// injectable for tests; nil selects the production implementations.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
	Device capture.Device
	Engine engine.Engine
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("vtt"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("vtt"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		fmt.Fprintf(r.Stderr, "warning: %s\n", w.Message)
		logger.Warn("config warning", "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandStop:
		return r.commandStop(ctx)
	case cli.CommandTranscribe:
		return r.commandTranscribe(ctx, parsed, cfgLoaded.Config, logger)
	case cli.CommandListen:
		return r.commandListen(ctx, parsed, cfgLoaded.Config, logger)
	case cli.CommandStart, cli.CommandToggle:
		return r.commandToggle(ctx, parsed, cfgLoaded.Config, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, "status")
	if handled {
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		if resp.State == "" {
			resp.State = "idle"
		}
		fmt.Fprintln(r.Stdout, resp.State)
		return 0
	}

	fmt.Fprintln(r.Stdout, "idle")
	return 0
}

func (r Runner) commandStop(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, "stop")
	if !handled {
		fmt.Fprintln(r.Stderr, "error: no active vtt session")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	r.printResponse(resp)
	return 0
}

func (r Runner) commandTranscribe(ctx context.Context, parsed cli.Parsed, cfg config.Config, logger *slog.Logger) int {
	eng, closeEngine, err := r.buildEngine(ctx, cfg.Engine)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer closeEngine()

	result, err := session.TranscribeFile(ctx, eng, parsed.FilePath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("file transcription failed", "path", parsed.FilePath, "error", err.Error())
		return 1
	}

	logger.Info("file transcribed",
		"path", parsed.FilePath,
		"samples", result.SampleCount,
		"duration_ms", result.Duration.Milliseconds(),
	)
	if result.Text != "" {
		fmt.Fprintln(r.Stdout, result.Text)
	}
	return 0
}

func (r Runner) commandListen(ctx context.Context, parsed cli.Parsed, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	return r.runOwner(ctx, listener, socketPath, parsed, cfg, logger)
}

func (r Runner) commandToggle(ctx context.Context, parsed cli.Parsed, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, "toggle")
	if handled {
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		r.printResponse(resp)
		return 0
	}

	// No owner: this process becomes the owner and hosts the session until
	// a later toggle or stop ends it.
	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			resp, _, forwardErr := tryForward(ctx, socketPath, "toggle")
			if forwardErr != nil {
				fmt.Fprintf(r.Stderr, "error: %v\n", forwardErr)
				return 1
			}
			r.printResponse(resp)
			return 0
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	return r.runOwner(ctx, listener, socketPath, parsed, cfg, logger)
}

// runOwner hosts one recording session: it serves the owner socket, runs the
// controller until the session returns to idle, and prints the final
// transcript.
func (r Runner) runOwner(ctx context.Context, listener net.Listener, socketPath string, parsed cli.Parsed, cfg config.Config, logger *slog.Logger) int {
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	eng, closeEngine, err := r.buildEngine(ctx, cfg.Engine)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer closeEngine()

	device := r.Device
	if device == nil {
		device = capture.NewPulseDevice()
	}

	opts := sessionOptions(parsed, cfg)
	controller := session.NewController(sessionConfig(cfg), logger, device, eng)

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, ownerHandler(controller, opts))
	}()

	result, err := controller.Listen(ctx, opts)
	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}

	logSessionResult(logger, result, err)

	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if result.Text != "" {
		fmt.Fprintln(r.Stdout, result.Text)
	}
	return 0
}

// ownerHandler maps forwarded IPC commands onto the live controller. Toggle
// forwarded to an owner always stops: the owner only exists while a session
// is active.
func ownerHandler(controller *session.Controller, opts session.Options) ipc.Handler {
	return ipc.HandlerFunc(func(ctx context.Context, req ipc.Request) ipc.Response {
		switch req.Command {
		case "status":
			status := controller.Status()
			return ipc.Response{OK: true, State: string(status.State)}
		case "stop":
			result, err := controller.Stop()
			if errors.Is(err, session.ErrNotRecording) {
				return ipc.Response{OK: false, State: string(fsm.StateIdle), Error: err.Error()}
			}
			if err != nil {
				return ipc.Response{OK: false, Error: err.Error()}
			}
			return ipc.Response{
				OK:         true,
				State:      string(fsm.StateIdle),
				Message:    "stopped (" + string(result.Reason) + ")",
				Transcript: result.Text,
			}
		case "toggle":
			outcome, err := controller.Toggle(ctx, opts)
			if err != nil {
				return ipc.Response{OK: false, Error: err.Error()}
			}
			if outcome.Started != nil {
				return ipc.Response{OK: true, State: string(fsm.StateRecording), Message: "recording started"}
			}
			return ipc.Response{
				OK:         true,
				State:      string(fsm.StateIdle),
				Message:    "stopped (" + string(outcome.Stopped.Reason) + ")",
				Transcript: outcome.Stopped.Text,
			}
		default:
			return ipc.Response{OK: false, Error: fmt.Sprintf("unsupported command %q", req.Command)}
		}
	})
}

func logSessionResult(logger *slog.Logger, result session.Transcript, err error) {
	if logger == nil {
		return
	}
	fields := []any{
		"session", result.SessionID,
		"reason", string(result.Reason),
		"duration_ms", result.Duration.Milliseconds(),
		"samples", result.SampleCount,
		"dropped_frames", result.DroppedFrames,
		"command_stripped", result.CommandStripped,
		"transcript_length", len(result.Text),
	}
	if err != nil {
		logger.Error("session failed", append(fields, "error", err.Error())...)
		return
	}
	logger.Info("session complete", fields...)
}

func (r Runner) buildEngine(ctx context.Context, cfg config.EngineConfig) (engine.Engine, func(), error) {
	if r.Engine != nil {
		return r.Engine, func() {}, nil
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "google":
		eng, err := google.New(ctx, google.Config{
			Recognizer:   cfg.Recognizer,
			LanguageCode: cfg.LanguageCode,
			Model:        cfg.Model,
			Endpoint:     cfg.Endpoint,
		})
		if err != nil {
			return nil, nil, err
		}
		return eng, func() { _ = eng.Close() }, nil
	case "openai":
		return openai.New(openai.Config{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		}), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported engine backend %q", cfg.Backend)
	}
}

func (r Runner) printResponse(resp ipc.Response) {
	if resp.Transcript != "" {
		fmt.Fprintln(r.Stdout, resp.Transcript)
		return
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
}

func sessionConfig(cfg config.Config) session.Config {
	return session.Config{
		Capture: capture.Format{
			Rate:     cfg.Capture.Rate,
			Channels: cfg.Capture.Channels,
		},
		QueueDepth:            cfg.Capture.QueueDepth,
		DefaultTimeout:        time.Duration(cfg.Session.TimeoutMS) * time.Millisecond,
		DefaultSilenceTimeout: time.Duration(cfg.Session.SilenceTimeoutMS) * time.Millisecond,
		DetectorInterval:      time.Duration(cfg.Session.DetectorTickMS) * time.Millisecond,
		DetectorWindow:        time.Duration(cfg.Session.DetectorWindowMS) * time.Millisecond,
		MinDuration:           time.Duration(cfg.Session.MinDurationMS) * time.Millisecond,
		MinAmplitude:          cfg.Session.MinAmplitude,
		SilenceRMS:            cfg.Session.SilenceRMS,
		Commands: vcmd.NewTable(
			cfg.Commands.Start,
			cfg.Commands.Stop,
			cfg.Commands.Status,
			cfg.Commands.Toggle,
		),
	}
}

func sessionOptions(parsed cli.Parsed, cfg config.Config) session.Options {
	opts := session.Options{
		VoiceCommands:      cfg.Session.VoiceCommands && !parsed.NoVoiceCommands,
		IncludeCommandText: cfg.Session.IncludeCommands || parsed.IncludeCommands,
	}
	if parsed.TimeoutMS > 0 {
		opts.Timeout = time.Duration(parsed.TimeoutMS) * time.Millisecond
	}
	switch {
	case parsed.SilenceMS == 0:
		opts.SilenceTimeout = -1
	case parsed.SilenceMS > 0:
		opts.SilenceTimeout = time.Duration(parsed.SilenceMS) * time.Millisecond
	}
	return opts
}

func tryForward(ctx context.Context, socketPath string, command string) (ipc.Response, bool, error) {
	timeout := forwardTimeout
	if command == "stop" || command == "toggle" {
		timeout = stopForwardTimeout
	}

	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Command: command}, timeout)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if isSocketMissing(err) || isConnectionRefused(err) {
		return ipc.Response{}, false, nil
	}
	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", command, err)
}

func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		strings.Contains(err.Error(), "no such file or directory")
}

func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
