// Package detector runs the periodic in-band voice-command scan over the
// trailing capture window.
package detector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/acazau/voice-to-text/internal/capture"
	"github.com/acazau/voice-to-text/internal/dsp"
	"github.com/acazau/voice-to-text/internal/engine"
	"github.com/acazau/voice-to-text/internal/vcmd"
)

// StopFunc is invoked at most once when a stop phrase is recognized. The
// epoch lets the receiver discard signals from a session that already ended.
type StopFunc func(epoch uint64, phrase string)

// EventFunc surfaces non-stop command matches for observability; the
// session state is unaffected.
type EventFunc func(action vcmd.Action, phrase string)

// Config controls tick cadence and window shape.
type Config struct {
	Interval time.Duration
	// Window is the trailing audio span evaluated each tick.
	Window time.Duration
	// MinDuration and MinAmplitude gate windows not worth sending to the
	// engine.
	MinDuration  time.Duration
	MinAmplitude float64
	// IncludeInTranscript keeps matched command utterances in the final
	// transcript instead of recording them for exclusion.
	IncludeInTranscript bool
}

// Loop is one session's command detector. Create with New, run with Run on
// its own goroutine, and stop with Halt.
type Loop struct {
	cfg     Config
	logger  *slog.Logger
	buf     *capture.Buffer
	eng     engine.Engine
	table   vcmd.Table
	epoch   uint64
	stop    StopFunc
	onEvent EventFunc

	mu       sync.Mutex
	excluded []string

	halt    chan struct{}
	haltOne sync.Once
	done    chan struct{}
}

// New wires a detector loop for the session identified by epoch.
func New(
	cfg Config,
	logger *slog.Logger,
	buf *capture.Buffer,
	eng engine.Engine,
	table vcmd.Table,
	epoch uint64,
	stop StopFunc,
	onEvent EventFunc,
) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = 1500 * time.Millisecond
	}
	if cfg.Window <= 0 {
		cfg.Window = 2 * cfg.Interval
	}
	return &Loop{
		cfg:     cfg,
		logger:  logger,
		buf:     buf,
		eng:     eng,
		table:   table,
		epoch:   epoch,
		stop:    stop,
		onEvent: onEvent,
		halt:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run ticks until a stop phrase matches, Halt is called, or ctx is
// cancelled. A failed tick is logged and skipped, never fatal.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.halt:
			return
		case <-ticker.C:
			if l.tick(ctx) {
				return
			}
		}
	}
}

// Halt stops the loop and waits for any in-flight tick to finish.
func (l *Loop) Halt() {
	l.haltOne.Do(func() { close(l.halt) })
	<-l.done
}

// ExcludedPhrases returns command utterances recorded for removal from the
// final transcript.
func (l *Loop) ExcludedPhrases() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.excluded))
	copy(out, l.excluded)
	return out
}

// tick evaluates one trailing window. Returns true when the loop should
// terminate because a stop phrase matched.
func (l *Loop) tick(ctx context.Context) bool {
	window := l.buf.Window(l.cfg.Window)
	format := l.buf.Format()

	samples, err := dsp.Condition(window, format.Rate, format.Channels)
	if err != nil {
		// Empty window early in the session; nothing to scan yet.
		return false
	}
	if err := engine.Precheck(samples, l.cfg.MinDuration, l.cfg.MinAmplitude); err != nil {
		return false
	}

	text, err := l.eng.Transcribe(ctx, samples)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		l.logWarn("detector tick failed", "error", err.Error())
		return false
	}

	action, phrase := vcmd.Match(text, l.table)
	switch action {
	case vcmd.ActionNone:
		return false
	case vcmd.ActionStop:
		l.recordExclusion(phrase)
		l.logInfo("stop phrase detected", "phrase", phrase)
		l.stop(l.epoch, phrase)
		return true
	default:
		// Already recording: start/status/toggle are state no-ops but still
		// worth surfacing.
		l.recordExclusion(phrase)
		l.logInfo("command phrase detected", "action", action.String(), "phrase", phrase)
		if l.onEvent != nil {
			l.onEvent(action, phrase)
		}
		return false
	}
}

func (l *Loop) recordExclusion(phrase string) {
	if l.cfg.IncludeInTranscript || phrase == "" {
		return
	}
	l.mu.Lock()
	l.excluded = append(l.excluded, phrase)
	l.mu.Unlock()
}

func (l *Loop) logWarn(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Warn(msg, args...)
	}
}

func (l *Loop) logInfo(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Info(msg, args...)
	}
}
