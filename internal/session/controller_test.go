package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acazau/voice-to-text/internal/capture"
	"github.com/acazau/voice-to-text/internal/engine"
	"github.com/acazau/voice-to-text/internal/fsm"
	"github.com/acazau/voice-to-text/internal/vcmd"
)

type fakeDevice struct {
	mu       sync.Mutex
	sink     capture.Sink
	beginErr error
	begins   atomic.Int32
	ends     atomic.Int32
}

func (d *fakeDevice) Begin(_ context.Context, _ capture.Format, sink capture.Sink) (capture.Handle, error) {
	if d.beginErr != nil {
		return nil, d.beginErr
	}
	d.mu.Lock()
	d.sink = sink
	d.mu.Unlock()
	d.begins.Add(1)
	return &fakeHandle{device: d}, nil
}

// feed delivers one frame the way a device callback would.
func (d *fakeDevice) feed(frame []float32) {
	d.mu.Lock()
	sink := d.sink
	d.mu.Unlock()
	if sink != nil {
		sink.Append(frame)
	}
}

type fakeHandle struct {
	device *fakeDevice
	once   sync.Once
}

func (h *fakeHandle) End() error {
	h.once.Do(func() { h.device.ends.Add(1) })
	return nil
}

func fixedEngine(text string) engine.Engine {
	return engine.Func(func(context.Context, []float32) (string, error) {
		return text, nil
	})
}

func testConfig() Config {
	return Config{
		Capture:          capture.Format{Rate: 16000, Channels: 1},
		QueueDepth:       32,
		DefaultTimeout:   5 * time.Second,
		DetectorInterval: 5 * time.Millisecond,
		DetectorWindow:   time.Second,
		MinDuration:      50 * time.Millisecond,
		MinAmplitude:     0.0001,
		SilenceRMS:       0.01,
		FinalizeTimeout:  2 * time.Second,
		Commands:         vcmd.NewTable(nil, []string{"stop"}, []string{"recording status"}, nil),
	}
}

// loudFrame is d worth of clearly audible mono samples.
func loudFrame(d time.Duration) []float32 {
	frame := make([]float32, int(d.Seconds()*16000))
	for i := range frame {
		frame[i] = 0.5
	}
	return frame
}

func waitForState(t *testing.T, c *Controller, want fsm.State) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("state never reached %s (now %s)", want, c.State())
}

func waitForSamples(t *testing.T, c *Controller, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if c.Status().SampleCount >= n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("buffer never reached %d samples (now %d)", n, c.Status().SampleCount)
}

func TestStartStopHappyPath(t *testing.T) {
	device := &fakeDevice{}
	c := NewController(testConfig(), nil, device, fixedEngine("hello world"))

	outcome, err := c.Start(context.Background(), Options{})
	require.NoError(t, err)
	require.NotEmpty(t, outcome.SessionID)
	require.Equal(t, fsm.StateRecording, c.State())

	device.feed(loudFrame(600 * time.Millisecond))
	waitForSamples(t, c, 9600)

	result, err := c.Stop()
	require.NoError(t, err)
	require.Equal(t, "hello world", result.Text)
	require.Equal(t, SourceLive, result.Source)
	require.Equal(t, StopReasonRequest, result.Reason)
	require.Equal(t, fsm.StateIdle, c.State())
	require.Equal(t, int32(1), device.ends.Load())
}

func TestStartWhileRecordingFailsWithoutSideEffects(t *testing.T) {
	device := &fakeDevice{}
	c := NewController(testConfig(), nil, device, fixedEngine(""))

	_, err := c.Start(context.Background(), Options{})
	require.NoError(t, err)

	_, err = c.Start(context.Background(), Options{})
	require.ErrorIs(t, err, ErrAlreadyRecording)
	require.Equal(t, int32(1), device.begins.Load())
	require.Equal(t, fsm.StateRecording, c.State())

	_, _ = c.Stop()
}

func TestStopWhileIdleFails(t *testing.T) {
	c := NewController(testConfig(), nil, &fakeDevice{}, fixedEngine(""))

	_, err := c.Stop()
	require.ErrorIs(t, err, ErrNotRecording)
	require.Equal(t, fsm.StateIdle, c.State())

	_, ok := c.LastTranscript()
	require.False(t, ok)
}

func TestConcurrentStartsExactlyOneWins(t *testing.T) {
	device := &fakeDevice{}
	c := NewController(testConfig(), nil, device, fixedEngine(""))

	const racers = 8
	var wins, rejections atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Start(context.Background(), Options{})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrAlreadyRecording):
				rejections.Add(1)
			default:
				t.Errorf("unexpected start error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), wins.Load())
	require.Equal(t, int32(racers-1), rejections.Load())
	_, _ = c.Stop()
}

func TestDeviceFailureAbortsStartCleanly(t *testing.T) {
	device := &fakeDevice{beginErr: capture.ErrDeviceFailure}
	c := NewController(testConfig(), nil, device, fixedEngine(""))

	_, err := c.Start(context.Background(), Options{})
	require.ErrorIs(t, err, capture.ErrDeviceFailure)
	require.Equal(t, fsm.StateIdle, c.State())

	// The controller must accept a start once the device recovers.
	device.beginErr = nil
	_, err = c.Start(context.Background(), Options{})
	require.NoError(t, err)
	_, _ = c.Stop()
}

func TestTimeoutStopsSession(t *testing.T) {
	device := &fakeDevice{}
	c := NewController(testConfig(), nil, device, fixedEngine("timed out speech"))

	outcome, err := c.Start(context.Background(), Options{Timeout: 100 * time.Millisecond})
	require.NoError(t, err)

	device.feed(loudFrame(200 * time.Millisecond))

	select {
	case <-outcome.Done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not time out")
	}

	require.Equal(t, fsm.StateIdle, c.State())
	result, ok := c.LastTranscript()
	require.True(t, ok)
	require.Equal(t, StopReasonTimeout, result.Reason)
	require.Equal(t, "timed out speech", result.Text)
}

func TestSilenceStopsSession(t *testing.T) {
	device := &fakeDevice{}
	c := NewController(testConfig(), nil, device, fixedEngine("spoken then quiet"))

	outcome, err := c.Start(context.Background(), Options{SilenceTimeout: 150 * time.Millisecond})
	require.NoError(t, err)

	device.feed(loudFrame(300 * time.Millisecond))
	device.feed(make([]float32, 16000)) // one second of silence

	select {
	case <-outcome.Done:
	case <-time.After(3 * time.Second):
		t.Fatal("session did not stop on silence")
	}

	result, ok := c.LastTranscript()
	require.True(t, ok)
	require.Equal(t, StopReasonSilence, result.Reason)
	require.Equal(t, fsm.StateIdle, c.State())
}

func TestVoiceCommandStopsSessionAndStripsPhrase(t *testing.T) {
	device := &fakeDevice{}
	c := NewController(testConfig(), nil, device, fixedEngine("hello world stop"))

	outcome, err := c.Start(context.Background(), Options{VoiceCommands: true})
	require.NoError(t, err)

	device.feed(loudFrame(600 * time.Millisecond))

	select {
	case <-outcome.Done:
	case <-time.After(3 * time.Second):
		t.Fatal("stop phrase never ended the session")
	}

	require.Equal(t, fsm.StateIdle, c.State())
	result, ok := c.LastTranscript()
	require.True(t, ok)
	require.Equal(t, StopReasonCommand, result.Reason)
	require.Equal(t, "hello world", result.Text)
	require.True(t, result.CommandStripped)
	require.Equal(t, "stop", c.Status().LastCommand)

	// The controller must be fully idle, not stuck finalizing.
	_, err = c.Stop()
	require.ErrorIs(t, err, ErrNotRecording)
}

func TestVoiceCommandIncludeTextKeepsPhrase(t *testing.T) {
	device := &fakeDevice{}
	c := NewController(testConfig(), nil, device, fixedEngine("hello world stop"))

	outcome, err := c.Start(context.Background(), Options{VoiceCommands: true, IncludeCommandText: true})
	require.NoError(t, err)

	device.feed(loudFrame(600 * time.Millisecond))
	<-outcome.Done

	result, ok := c.LastTranscript()
	require.True(t, ok)
	require.Equal(t, "hello world stop", result.Text)
	require.False(t, result.CommandStripped)
}

func TestStaleAutoStopCannotKillLaterSession(t *testing.T) {
	device := &fakeDevice{}
	c := NewController(testConfig(), nil, device, fixedEngine(""))

	_, err := c.Start(context.Background(), Options{})
	require.NoError(t, err)
	c.mu.Lock()
	staleEpoch := c.cur.epoch
	c.mu.Unlock()

	_, err = c.Stop()
	require.NoError(t, err)

	_, err = c.Start(context.Background(), Options{})
	require.NoError(t, err)

	// A detector signal from the previous session must be discarded.
	c.autoStop(staleEpoch, StopReasonCommand)
	require.Equal(t, fsm.StateRecording, c.State())

	_, _ = c.Stop()
}

func TestEngineFailureDegradesButReturnsToIdle(t *testing.T) {
	device := &fakeDevice{}
	failing := engine.Func(func(context.Context, []float32) (string, error) {
		return "", engine.Wrap("test", errors.New("inference crashed"))
	})
	c := NewController(testConfig(), nil, device, failing)

	_, err := c.Start(context.Background(), Options{})
	require.NoError(t, err)
	device.feed(loudFrame(600 * time.Millisecond))
	waitForSamples(t, c, 9600)

	result, err := c.Stop()
	require.Error(t, err)
	var engineErr *engine.Error
	require.ErrorAs(t, err, &engineErr)
	require.Empty(t, result.Text)
	require.Equal(t, fsm.StateIdle, c.State())
}

func TestListenBlocksUntilStop(t *testing.T) {
	device := &fakeDevice{}
	c := NewController(testConfig(), nil, device, fixedEngine("dictated text"))

	resultCh := make(chan Transcript, 1)
	go func() {
		result, err := c.Listen(context.Background(), Options{})
		require.NoError(t, err)
		resultCh <- result
	}()

	waitForState(t, c, fsm.StateRecording)
	device.feed(loudFrame(600 * time.Millisecond))
	waitForSamples(t, c, 9600)

	stopResult, err := c.Stop()
	require.NoError(t, err)

	select {
	case listenResult := <-resultCh:
		require.Equal(t, stopResult.Text, listenResult.Text)
		require.Equal(t, stopResult.SessionID, listenResult.SessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("listen did not return after stop")
	}
}

func TestListenCancelledContextStopsSession(t *testing.T) {
	device := &fakeDevice{}
	c := NewController(testConfig(), nil, device, fixedEngine(""))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Listen(ctx, Options{})
		errCh <- err
	}()

	waitForState(t, c, fsm.StateRecording)
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("listen did not observe cancellation")
	}
	require.Equal(t, fsm.StateIdle, c.State())
}

func TestToggleStartsThenStops(t *testing.T) {
	device := &fakeDevice{}
	c := NewController(testConfig(), nil, device, fixedEngine("toggled"))

	outcome, err := c.Toggle(context.Background(), Options{})
	require.NoError(t, err)
	require.NotNil(t, outcome.Started)
	require.Nil(t, outcome.Stopped)
	require.Equal(t, fsm.StateRecording, c.State())

	device.feed(loudFrame(600 * time.Millisecond))
	waitForSamples(t, c, 9600)

	outcome, err = c.Toggle(context.Background(), Options{})
	require.NoError(t, err)
	require.Nil(t, outcome.Started)
	require.NotNil(t, outcome.Stopped)
	require.Equal(t, "toggled", outcome.Stopped.Text)
	require.Equal(t, fsm.StateIdle, c.State())
}

func TestConcurrentTogglesNeverReportStateErrors(t *testing.T) {
	device := &fakeDevice{}
	c := NewController(testConfig(), nil, device, fixedEngine(""))

	const racers = 16
	var started, stopped atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := c.Toggle(context.Background(), Options{})
			if err != nil {
				t.Errorf("toggle failed: %v", err)
				return
			}
			switch {
			case outcome.Started != nil && outcome.Stopped == nil:
				started.Add(1)
			case outcome.Stopped != nil && outcome.Started == nil:
				stopped.Add(1)
			default:
				t.Error("toggle outcome must carry exactly one of started/stopped")
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(racers), started.Load()+stopped.Load())

	if c.State() == fsm.StateRecording {
		_, err := c.Stop()
		require.NoError(t, err)
	}
	require.Equal(t, fsm.StateIdle, c.State())
}

func TestStatusWhileRecording(t *testing.T) {
	device := &fakeDevice{}
	c := NewController(testConfig(), nil, device, fixedEngine(""))

	status := c.Status()
	require.Equal(t, fsm.StateIdle, status.State)
	require.Zero(t, status.SampleCount)

	outcome, err := c.Start(context.Background(), Options{})
	require.NoError(t, err)

	device.feed(loudFrame(100 * time.Millisecond))
	waitForSamples(t, c, 1600)

	status = c.Status()
	require.Equal(t, fsm.StateRecording, status.State)
	require.Equal(t, outcome.SessionID, status.SessionID)
	require.Greater(t, status.Elapsed, time.Duration(0))
	require.GreaterOrEqual(t, status.SampleCount, 1600)

	_, _ = c.Stop()
}

func TestNoConsecutiveStartSuccessesWithoutStop(t *testing.T) {
	device := &fakeDevice{}
	c := NewController(testConfig(), nil, device, fixedEngine(""))

	for i := 0; i < 5; i++ {
		_, err := c.Start(context.Background(), Options{})
		require.NoError(t, err)

		_, err = c.Start(context.Background(), Options{})
		require.ErrorIs(t, err, ErrAlreadyRecording)

		_, err = c.Stop()
		require.NoError(t, err)
	}
}
