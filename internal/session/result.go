package session

import (
	"errors"
	"time"

	"github.com/acazau/voice-to-text/internal/fsm"
)

var (
	// ErrAlreadyRecording rejects start while a session is active.
	ErrAlreadyRecording = errors.New("recording already in progress")
	// ErrNotRecording rejects stop while no session is active.
	ErrNotRecording = errors.New("no recording in progress")
)

// StopReason identifies what ended a session. Timeout and silence are normal
// stop triggers, not errors, but stay distinguishable for observability.
type StopReason string

const (
	StopReasonRequest StopReason = "request"
	StopReasonCommand StopReason = "command"
	StopReasonTimeout StopReason = "timeout"
	StopReasonSilence StopReason = "silence"
)

// Source marks whether a transcript came from a live session or a file.
type Source string

const (
	SourceLive Source = "live"
	SourceFile Source = "file"
)

// Transcript is the final output of one session or file transcription.
type Transcript struct {
	SessionID       string
	Text            string
	Source          Source
	Reason          StopReason
	CommandStripped bool
	Duration        time.Duration
	SampleCount     int
	DroppedFrames   int64
}

// StartOutcome is returned by the non-blocking start. Done is closed when
// the session has fully returned to idle.
type StartOutcome struct {
	SessionID string
	StartedAt time.Time
	Done      <-chan struct{}
}

// Status is a point-in-time state snapshot; it never fails.
type Status struct {
	State       fsm.State
	SessionID   string
	Elapsed     time.Duration
	SampleCount int
	LastCommand string
}

// ToggleOutcome carries the result of whichever branch toggle took.
type ToggleOutcome struct {
	Started *StartOutcome
	Stopped *Transcript
}
