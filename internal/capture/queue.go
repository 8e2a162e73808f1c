package capture

import (
	"sync"
	"sync/atomic"
)

// Queue bridges the device callback to the session buffer. The callback side
// copies the frame and enqueues without blocking (frames are dropped when
// the queue is full, counted in Dropped); the drain side appends to the
// buffer under its lock.
type Queue struct {
	frames  chan []float32
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

// NewQueue creates a queue with the given frame depth. Depth is the overrun
// budget between the capture thread and the drain goroutine.
func NewQueue(depth int) *Queue {
	if depth <= 0 {
		depth = 64
	}
	return &Queue{
		frames: make(chan []float32, depth),
		done:   make(chan struct{}),
	}
}

// Append implements Sink. It copies the frame and enqueues it, dropping the
// frame when the queue is full so the device thread is never stalled.
func (q *Queue) Append(frame []float32) {
	if len(frame) == 0 {
		return
	}
	copied := make([]float32, len(frame))
	copy(copied, frame)

	select {
	case q.frames <- copied:
	default:
		q.dropped.Add(1)
	}
}

// Drain appends queued frames to buf until Close is called, then flushes any
// remaining frames and returns. Intended to run on its own goroutine.
func (q *Queue) Drain(buf *Buffer) {
	for {
		select {
		case frame := <-q.frames:
			buf.Append(frame)
		case <-q.done:
			for {
				select {
				case frame := <-q.frames:
					buf.Append(frame)
				default:
					return
				}
			}
		}
	}
}

// Close releases the drain loop. Call only after the device handle has been
// ended; frames enqueued afterwards are dropped.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.done) })
}

// Dropped reports how many frames were discarded due to queue overrun.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}
