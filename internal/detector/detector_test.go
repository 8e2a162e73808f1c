package detector

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acazau/voice-to-text/internal/capture"
	"github.com/acazau/voice-to-text/internal/engine"
	"github.com/acazau/voice-to-text/internal/vcmd"
)

func speechBuffer(t *testing.T) *capture.Buffer {
	t.Helper()
	buf := capture.NewBuffer(capture.Format{Rate: 16000, Channels: 1})
	frame := make([]float32, 16000)
	for i := range frame {
		frame[i] = 0.5
	}
	buf.Append(frame)
	return buf
}

func fastConfig() Config {
	return Config{
		Interval:     5 * time.Millisecond,
		Window:       time.Second,
		MinDuration:  100 * time.Millisecond,
		MinAmplitude: 0.001,
	}
}

func TestLoopSignalsStopOnce(t *testing.T) {
	buf := speechBuffer(t)
	eng := engine.Func(func(context.Context, []float32) (string, error) {
		return "hello world stop", nil
	})
	table := vcmd.NewTable(nil, []string{"stop"}, nil, nil)

	var stops atomic.Int32
	var gotEpoch atomic.Uint64
	loop := New(fastConfig(), nil, buf, eng, table, 7, func(epoch uint64, phrase string) {
		stops.Add(1)
		gotEpoch.Store(epoch)
		require.Equal(t, "stop", phrase)
	}, nil)

	done := make(chan struct{})
	go func() {
		loop.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not terminate after stop match")
	}

	require.Equal(t, int32(1), stops.Load())
	require.Equal(t, uint64(7), gotEpoch.Load())
	require.Equal(t, []string{"stop"}, loop.ExcludedPhrases())
}

func TestLoopSkipsFailedTicks(t *testing.T) {
	buf := speechBuffer(t)

	var calls atomic.Int32
	eng := engine.Func(func(context.Context, []float32) (string, error) {
		if calls.Add(1) < 3 {
			return "", errors.New("engine busy")
		}
		return "please stop", nil
	})
	table := vcmd.NewTable(nil, []string{"stop"}, nil, nil)

	var stops atomic.Int32
	loop := New(fastConfig(), nil, buf, eng, table, 1, func(uint64, string) {
		stops.Add(1)
	}, nil)

	done := make(chan struct{})
	go func() {
		loop.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not survive failed ticks")
	}

	require.GreaterOrEqual(t, calls.Load(), int32(3))
	require.Equal(t, int32(1), stops.Load())
}

func TestLoopSurfacesNonStopMatches(t *testing.T) {
	buf := speechBuffer(t)
	eng := engine.Func(func(context.Context, []float32) (string, error) {
		return "recording status", nil
	})
	table := vcmd.NewTable(nil, []string{"stop"}, []string{"recording status"}, nil)

	events := make(chan vcmd.Action, 1)
	loop := New(fastConfig(), nil, buf, eng, table, 1,
		func(uint64, string) { t.Error("status phrase must not stop the session") },
		func(action vcmd.Action, _ string) {
			select {
			case events <- action:
			default:
			}
		})

	go loop.Run(context.Background())
	defer loop.Halt()

	select {
	case action := <-events:
		require.Equal(t, vcmd.ActionStatus, action)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a status event")
	}
}

func TestLoopHaltStopsWithoutSignal(t *testing.T) {
	buf := speechBuffer(t)
	eng := engine.Func(func(context.Context, []float32) (string, error) {
		return "nothing interesting", nil
	})
	table := vcmd.NewTable(nil, []string{"stop"}, nil, nil)

	var stops atomic.Int32
	loop := New(fastConfig(), nil, buf, eng, table, 1, func(uint64, string) {
		stops.Add(1)
	}, nil)

	go loop.Run(context.Background())
	time.Sleep(30 * time.Millisecond)
	loop.Halt()

	require.Zero(t, stops.Load())
}

func TestLoopIncludeFlagSuppressesExclusion(t *testing.T) {
	buf := speechBuffer(t)
	eng := engine.Func(func(context.Context, []float32) (string, error) {
		return "stop", nil
	})
	table := vcmd.NewTable(nil, []string{"stop"}, nil, nil)

	cfg := fastConfig()
	cfg.IncludeInTranscript = true
	loop := New(cfg, nil, buf, eng, table, 1, func(uint64, string) {}, nil)

	done := make(chan struct{})
	go func() {
		loop.Run(context.Background())
		close(done)
	}()
	<-done

	require.Empty(t, loop.ExcludedPhrases())
}

func TestLoopEmptyBufferTicksAreSkipped(t *testing.T) {
	buf := capture.NewBuffer(capture.Format{Rate: 16000, Channels: 1})

	var calls atomic.Int32
	eng := engine.Func(func(context.Context, []float32) (string, error) {
		calls.Add(1)
		return "stop", nil
	})
	table := vcmd.NewTable(nil, []string{"stop"}, nil, nil)

	loop := New(fastConfig(), nil, buf, eng, table, 1, func(uint64, string) {}, nil)
	go loop.Run(context.Background())
	time.Sleep(30 * time.Millisecond)
	loop.Halt()

	require.Zero(t, calls.Load())
}
