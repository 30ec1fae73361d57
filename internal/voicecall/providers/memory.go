package providers

import (
	"context"
	"errors"
	"sync"
)

var ErrTransportClosed = errors.New("transport closed")

// MemoryTransport is an in-process MediaTransport used for tests and as the
// degraded fallback when no live transport arrives in time. It records every
// outbound frame and accepts injected inbound frames.
type MemoryTransport struct {
	in     chan []byte
	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		in: make(chan []byte, 256),
	}
}

// InjectAudio delivers an inbound frame as if it came off the wire. A full
// buffer drops the frame, like the live transport; the send must never block
// while the mutex is held or Close could deadlock behind it.
func (t *MemoryTransport) InjectAudio(chunk []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return &TransportError{Op: "receive", Err: ErrTransportClosed}
	}
	select {
	case t.in <- chunk:
	default:
	}
	return nil
}

func (t *MemoryTransport) IncomingAudio() <-chan []byte {
	return t.in
}

func (t *MemoryTransport) SendAudio(ctx context.Context, chunk []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return &TransportError{Op: "send", Err: ErrTransportClosed}
	}
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	t.sent = append(t.sent, buf)
	return nil
}

// SentFrames returns a copy of all frames written so far.
func (t *MemoryTransport) SentFrames() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	frames := make([][]byte, len(t.sent))
	copy(frames, t.sent)
	return frames
}

// Close ends the inbound stream. Safe to call more than once.
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.in)
	return nil
}
