package rendezvous

import (
	"context"
	"fmt"
	"sync"
	"time"

	"outcall-server/internal/observability"
	"outcall-server/internal/voicecall/providers"
)

// Registry matches asynchronously-arriving media transports to the call that
// is waiting for them. It is the only process-wide mutable state in the call
// path; every entry must be released exactly once, on every exit path.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	logger  *observability.Logger
}

type entry struct {
	transport providers.MediaTransport
	ready     chan struct{}
}

func NewRegistry(logger *observability.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// Register resolves a pending waiter for callID, or stores the transport for
// later pickup. If two registrations race for the same id the last writer
// wins; the earlier transport is not closed.
func (r *Registry) Register(callID string, transport providers.MediaTransport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[callID]
	if !ok {
		e = &entry{ready: make(chan struct{})}
		r.entries[callID] = e
	}

	alreadyResolved := e.transport != nil
	e.transport = transport
	if !alreadyResolved {
		close(e.ready)
	}
}

// WaitFor blocks until a transport is registered for callID or the timeout
// elapses. On timeout (or context cancellation) it returns an in-memory
// transport so the call proceeds in degraded mode instead of hanging; the
// second return reports whether the transport is the live one.
func (r *Registry) WaitFor(ctx context.Context, callID string, timeout time.Duration) (providers.MediaTransport, bool) {
	r.mu.Lock()
	e, ok := r.entries[callID]
	if !ok {
		e = &entry{ready: make(chan struct{})}
		r.entries[callID] = e
	}
	if e.transport != nil {
		t := e.transport
		r.mu.Unlock()
		return t, true
	}
	r.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-e.ready:
		r.mu.Lock()
		t := e.transport
		r.mu.Unlock()
		return t, true
	case <-timer.C:
		r.logger.Warn(ctx, fmt.Sprintf("no transport registered for call %s within %s, falling back to in-memory transport", callID, timeout))
		return providers.NewMemoryTransport(), false
	case <-ctx.Done():
		return providers.NewMemoryTransport(), false
	}
}

// Release removes the entry for callID. Callers must invoke it exactly once
// per call on every exit path to keep the registry bounded.
func (r *Registry) Release(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, callID)
}

// Len reports the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
