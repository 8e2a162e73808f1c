// Package session owns the recording state machine: one Idle/Recording/
// Stopping lifecycle at a time, the capture buffer it records into, and the
// detector and watchdog tasks that can end it.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acazau/voice-to-text/internal/capture"
	"github.com/acazau/voice-to-text/internal/detector"
	"github.com/acazau/voice-to-text/internal/dsp"
	"github.com/acazau/voice-to-text/internal/engine"
	"github.com/acazau/voice-to-text/internal/fsm"
	"github.com/acazau/voice-to-text/internal/transcript"
	"github.com/acazau/voice-to-text/internal/vcmd"
)

// Config fixes the per-process recording parameters; per-session knobs live
// in Options.
type Config struct {
	Capture    capture.Format
	QueueDepth int

	DefaultTimeout        time.Duration
	DefaultSilenceTimeout time.Duration

	DetectorInterval time.Duration
	DetectorWindow   time.Duration

	MinDuration  time.Duration
	MinAmplitude float64
	SilenceRMS   float64

	// FinalizeTimeout bounds the final engine call so a hung backend cannot
	// wedge the transition back to idle.
	FinalizeTimeout time.Duration

	Commands vcmd.Table
}

// Options configures one recording session.
type Options struct {
	// Timeout is the maximum session duration; 0 selects the default.
	Timeout time.Duration
	// SilenceTimeout stops the session after sustained trailing silence;
	// negative disables, 0 selects the default.
	SilenceTimeout time.Duration
	// VoiceCommands enables the in-band command detector.
	VoiceCommands bool
	// IncludeCommandText keeps matched command utterances in the final
	// transcript.
	IncludeCommandText bool
}

// Controller is the caller-facing state machine. All operations are safe for
// concurrent use; state and the active session are guarded by one mutex.
type Controller struct {
	cfg    Config
	logger *slog.Logger
	device capture.Device
	eng    engine.Engine

	mu          sync.Mutex
	state       fsm.State
	epoch       uint64
	cur         *active
	lastResult  *Transcript
	lastCommand string
}

// active is the mutable state of one recording session.
type active struct {
	id        string
	epoch     uint64
	opts      Options
	startedAt time.Time

	buf    *capture.Buffer
	queue  *capture.Queue
	handle capture.Handle
	det    *detector.Loop

	cancel    context.CancelFunc
	timer     *time.Timer
	drainDone chan struct{}

	reason StopReason

	// result and resultErr are written before done is closed and only read
	// after it, so waiters observe a complete transcript.
	result    Transcript
	resultErr error
	done      chan struct{}
}

// NewController wires a controller in the idle state.
func NewController(cfg Config, logger *slog.Logger, device capture.Device, eng engine.Engine) *Controller {
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = 20 * time.Second
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	return &Controller{
		cfg:    cfg,
		logger: logger,
		device: device,
		eng:    eng,
		state:  fsm.StateIdle,
	}
}

// State returns the current FSM state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status reports state, elapsed duration, and sample count; it never fails
// and never blocks beyond the state lock.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := Status{State: c.state, LastCommand: c.lastCommand}
	if c.cur != nil {
		status.SessionID = c.cur.id
		status.Elapsed = time.Since(c.cur.startedAt)
		status.SampleCount = c.cur.buf.Len()
	}
	return status
}

// LastTranscript returns the most recent completed session result, if any.
func (c *Controller) LastTranscript() (Transcript, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastResult == nil {
		return Transcript{}, false
	}
	return *c.lastResult, true
}

// Start begins a new session and returns immediately. It fails with
// ErrAlreadyRecording unless the controller is idle, and with a device error
// (wrapped capture.ErrDeviceFailure) when the capture stream cannot open, in
// which case the controller is left cleanly idle.
func (c *Controller) Start(ctx context.Context, opts Options) (StartOutcome, error) {
	outcome, _, err := c.start(ctx, opts)
	return outcome, err
}

// Listen begins a new session and blocks until it returns to idle via
// explicit stop, detected command, silence, or timeout, then returns the
// final transcript. Cancelling ctx stops the session.
func (c *Controller) Listen(ctx context.Context, opts Options) (Transcript, error) {
	_, sess, err := c.start(ctx, opts)
	if err != nil {
		return Transcript{}, err
	}

	select {
	case <-sess.done:
		return sess.result, sess.resultErr
	case <-ctx.Done():
		// Stop this session by epoch so a session started afterwards can
		// never be hit by this cancellation.
		c.autoStop(sess.epoch, StopReasonRequest)
		<-sess.done
		return sess.result, ctx.Err()
	}
}

// Stop ends the active session: halts capture and the detector, transcribes
// the full buffer, and returns the transcript. It fails with ErrNotRecording
// when idle. Engine failures degrade to an error alongside a valid (empty)
// transcript; the controller still returns to idle.
func (c *Controller) Stop() (Transcript, error) {
	c.mu.Lock()
	if c.state == fsm.StateIdle || c.cur == nil {
		c.mu.Unlock()
		return Transcript{}, ErrNotRecording
	}
	sess := c.cur
	if c.state == fsm.StateStopping {
		// An auto-stop is already finalizing; wait for its result.
		c.mu.Unlock()
		<-sess.done
		return sess.result, sess.resultErr
	}

	next, err := fsm.Transition(c.state, fsm.EventStop)
	if err != nil {
		c.mu.Unlock()
		return Transcript{}, err
	}
	c.state = next
	sess.reason = StopReasonRequest
	c.mu.Unlock()

	return c.finalize(sess)
}

// Toggle is start-when-idle, stop-when-active. It never blocks for the
// session duration, so polling callers keep working regardless of the
// blocking/non-blocking start split. Concurrent toggles race on the state
// snapshot; losing that race folds into the other branch, so Toggle never
// surfaces ErrAlreadyRecording or ErrNotRecording.
func (c *Controller) Toggle(ctx context.Context, opts Options) (ToggleOutcome, error) {
	for {
		c.mu.Lock()
		idle := c.state == fsm.StateIdle
		c.mu.Unlock()

		if idle {
			outcome, err := c.Start(ctx, opts)
			if errors.Is(err, ErrAlreadyRecording) {
				// Another caller started first; stop instead.
				continue
			}
			if err != nil {
				return ToggleOutcome{}, err
			}
			return ToggleOutcome{Started: &outcome}, nil
		}

		result, err := c.Stop()
		if errors.Is(err, ErrNotRecording) {
			// Another caller stopped first; start instead.
			continue
		}
		if err != nil {
			return ToggleOutcome{}, err
		}
		return ToggleOutcome{Stopped: &result}, nil
	}
}

// start performs the idle->recording transition and spawns the session
// tasks. The capture buffer is reset (recreated) before any frame arrives.
func (c *Controller) start(ctx context.Context, opts Options) (StartOutcome, *active, error) {
	opts = c.normalizeOptions(opts)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != fsm.StateIdle {
		return StartOutcome{}, nil, ErrAlreadyRecording
	}
	next, err := fsm.Transition(c.state, fsm.EventStart)
	if err != nil {
		return StartOutcome{}, nil, err
	}

	c.epoch++
	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	sess := &active{
		id:        uuid.NewString(),
		epoch:     c.epoch,
		opts:      opts,
		startedAt: time.Now(),
		buf:       capture.NewBuffer(c.cfg.Capture),
		queue:     capture.NewQueue(c.cfg.QueueDepth),
		cancel:    cancel,
		drainDone: make(chan struct{}),
		done:      make(chan struct{}),
	}

	handle, err := c.device.Begin(sessCtx, c.cfg.Capture, sess.queue)
	if err != nil {
		cancel()
		// Abort the transition: no partial state survives a device failure.
		return StartOutcome{}, nil, err
	}
	sess.handle = handle

	go func() {
		sess.queue.Drain(sess.buf)
		close(sess.drainDone)
	}()

	if opts.VoiceCommands && !c.cfg.Commands.Empty() {
		sess.det = detector.New(
			detector.Config{
				Interval:            c.cfg.DetectorInterval,
				Window:              c.cfg.DetectorWindow,
				MinDuration:         c.cfg.MinDuration,
				MinAmplitude:        c.cfg.MinAmplitude,
				IncludeInTranscript: opts.IncludeCommandText,
			},
			c.logger,
			sess.buf,
			c.eng,
			c.cfg.Commands,
			sess.epoch,
			func(epoch uint64, _ string) {
				c.noteCommand(vcmd.ActionStop)
				// Off the loop goroutine: finalize joins the detector, so a
				// synchronous autoStop here would deadlock in Halt.
				go c.autoStop(epoch, StopReasonCommand)
			},
			func(action vcmd.Action, _ string) {
				c.noteCommand(action)
			},
		)
		go sess.det.Run(sessCtx)
	}

	epoch := sess.epoch
	sess.timer = time.AfterFunc(opts.Timeout, func() {
		c.autoStop(epoch, StopReasonTimeout)
	})

	if opts.SilenceTimeout > 0 {
		go c.watchSilence(sessCtx, sess)
	}

	c.state = next
	c.cur = sess
	c.logInfo("recording started",
		"session", sess.id,
		"timeout_ms", opts.Timeout.Milliseconds(),
		"voice_commands", opts.VoiceCommands,
	)

	return StartOutcome{SessionID: sess.id, StartedAt: sess.startedAt, Done: sess.done}, sess, nil
}

// autoStop is the shared entry for command, timeout, and silence stops. The
// epoch check discards signals that outlived their session, so a detector
// tick started before an explicit stop can never kill a later session.
func (c *Controller) autoStop(epoch uint64, reason StopReason) {
	c.mu.Lock()
	if c.cur == nil || c.cur.epoch != epoch || c.state != fsm.StateRecording {
		c.mu.Unlock()
		return
	}
	sess := c.cur
	next, err := fsm.Transition(c.state, fsm.EventStop)
	if err != nil {
		c.mu.Unlock()
		return
	}
	c.state = next
	sess.reason = reason
	c.mu.Unlock()

	_, _ = c.finalize(sess)
}

// finalize tears the session down in order: watchdogs, detector, device,
// drain; then runs the final transcription and transitions stopping->idle.
// Exactly one caller runs finalize per session, the one that won the
// recording->stopping transition.
func (c *Controller) finalize(sess *active) (Transcript, error) {
	sess.timer.Stop()
	sess.cancel()
	if sess.det != nil {
		sess.det.Halt()
	}
	_ = sess.handle.End()
	sess.queue.Close()
	<-sess.drainDone

	samples := sess.buf.Snapshot()
	result := Transcript{
		SessionID:     sess.id,
		Source:        SourceLive,
		Reason:        sess.reason,
		Duration:      sess.buf.Duration(),
		SampleCount:   len(samples),
		DroppedFrames: sess.queue.Dropped(),
	}

	text, err := c.transcribeAll(samples)
	result.Text = text

	if !sess.opts.IncludeCommandText && sess.det != nil {
		if phrases := sess.det.ExcludedPhrases(); len(phrases) > 0 {
			result.Text = transcript.StripPhrases(result.Text, phrases)
			result.CommandStripped = true
		}
	}
	result.Text = transcript.Clean(result.Text)

	c.mu.Lock()
	if next, terr := fsm.Transition(c.state, fsm.EventFinalize); terr == nil {
		c.state = next
	}
	c.cur = nil
	c.lastResult = &result
	c.mu.Unlock()

	sess.result = result
	sess.resultErr = err
	close(sess.done)

	if err != nil {
		c.logWarn("final transcription failed", "session", sess.id, "error", err.Error())
	}
	c.logInfo("recording stopped",
		"session", sess.id,
		"reason", string(sess.reason),
		"duration_ms", result.Duration.Milliseconds(),
		"samples", result.SampleCount,
	)
	return result, err
}

// transcribeAll conditions the full session buffer and runs the engine once.
// Unusable audio (empty, too short, too quiet) yields an empty transcript
// without an error; only genuine engine failures propagate.
func (c *Controller) transcribeAll(samples []float32) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}

	conditioned, err := dsp.Condition(samples, c.cfg.Capture.Rate, c.cfg.Capture.Channels)
	if err != nil {
		return "", nil
	}
	if err := engine.Precheck(conditioned, c.cfg.MinDuration, c.cfg.MinAmplitude); err != nil {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.FinalizeTimeout)
	defer cancel()

	text, err := c.eng.Transcribe(ctx, conditioned)
	if err != nil {
		return "", err
	}
	return text, nil
}

// watchSilence stops the session after sustained trailing silence, once
// enough audio exists for the transcript to be worth keeping.
func (c *Controller) watchSilence(ctx context.Context, sess *active) {
	const probe = 100 * time.Millisecond

	ticker := time.NewTicker(probe)
	defer ticker.Stop()

	lastVoice := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if dsp.RMS(sess.buf.Window(probe)) >= c.cfg.SilenceRMS {
				lastVoice = time.Now()
				continue
			}
			if sess.buf.Duration() < c.cfg.MinDuration {
				continue
			}
			if time.Since(lastVoice) >= sess.opts.SilenceTimeout {
				c.autoStop(sess.epoch, StopReasonSilence)
				return
			}
		}
	}
}

func (c *Controller) normalizeOptions(opts Options) Options {
	if opts.Timeout <= 0 {
		opts.Timeout = c.cfg.DefaultTimeout
	}
	if opts.SilenceTimeout == 0 {
		opts.SilenceTimeout = c.cfg.DefaultSilenceTimeout
	}
	return opts
}

func (c *Controller) noteCommand(action vcmd.Action) {
	c.mu.Lock()
	c.lastCommand = action.String()
	c.mu.Unlock()
}

func (c *Controller) logInfo(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *Controller) logWarn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
