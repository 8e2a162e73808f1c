package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// PulseDevice captures from the default Pulse input source. Device
// enumeration and selection are deliberately not offered; callers that need
// a different source reroute it at the audio server.
type PulseDevice struct {
	appName string
}

// NewPulseDevice returns a Device backed by the system Pulse server.
func NewPulseDevice() *PulseDevice {
	return &PulseDevice{appName: "vtt"}
}

// Begin opens a float32 record stream on the default source at the requested
// format and delivers frames to sink until End is called on the handle.
func (d *PulseDevice) Begin(ctx context.Context, format Format, sink Sink) (Handle, error) {
	if format.Rate <= 0 || format.Channels < 1 || format.Channels > 2 {
		return nil, fmt.Errorf("%w: unsupported capture format %d Hz / %d ch", ErrDeviceFailure, format.Rate, format.Channels)
	}

	client, err := pulse.NewClient(
		pulse.ClientApplicationName(d.appName),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: connect pulse server: %v", ErrDeviceFailure, err)
	}

	source, err := client.DefaultSource()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: resolve default source: %v", ErrDeviceFailure, err)
	}

	handle := &pulseHandle{client: client, sink: sink, stopCh: make(chan struct{})}

	opts := []pulse.RecordOption{
		pulse.RecordSource(source),
		pulse.RecordSampleRate(format.Rate),
		pulse.RecordMediaName("vtt recording"),
	}
	if format.Channels == 2 {
		opts = append(opts, pulse.RecordStereo)
	} else {
		opts = append(opts, pulse.RecordMono)
	}

	writer := pulse.NewWriter(writerFunc(handle.onPCM), pulseproto.FormatFloat32LE)
	stream, err := client.NewRecord(writer, opts...)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: create pulse record stream: %v", ErrDeviceFailure, err)
	}

	handle.stream = stream
	stream.Start()

	go func() {
		<-ctx.Done()
		_ = handle.End()
	}()

	return handle, nil
}

// pulseHandle owns one record stream lifecycle.
type pulseHandle struct {
	client *pulse.Client
	stream *pulse.RecordStream
	sink   Sink

	mu      sync.Mutex
	stopped bool
	stopCh  chan struct{}
}

// End stops the stream and closes the client exactly once.
func (h *pulseHandle) End() error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.stopped = true
	close(h.stopCh)
	h.mu.Unlock()

	if h.stream != nil {
		h.stream.Stop()
		h.stream.Close()
	}
	if h.client != nil {
		h.client.Close()
	}
	return nil
}

// onPCM decodes little-endian float32 bytes from Pulse and forwards one
// frame slice to the sink. Runs on the Pulse delivery goroutine, so it only
// decodes and enqueues.
func (h *pulseHandle) onPCM(buffer []byte) (int, error) {
	select {
	case <-h.stopCh:
		return 0, io.EOF
	default:
	}

	if len(buffer) < 4 {
		return len(buffer), nil
	}

	frame := make([]float32, len(buffer)/4)
	for i := range frame {
		bits := binary.LittleEndian.Uint32(buffer[i*4:])
		frame[i] = math.Float32frombits(bits)
	}
	h.sink.Append(frame)

	return len(frame) * 4, nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
