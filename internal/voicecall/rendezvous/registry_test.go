package rendezvous

import (
	"context"
	"testing"
	"time"

	"outcall-server/internal/observability"
	"outcall-server/internal/voicecall/providers"
)

func TestRegistry_RegisterThenWait(t *testing.T) {
	registry := NewRegistry(observability.NewLogger())
	transport := providers.NewMemoryTransport()

	registry.Register("call-1", transport)

	got, live := registry.WaitFor(context.Background(), "call-1", time.Second)
	if !live {
		t.Fatal("WaitFor() reported fallback for a registered transport")
	}
	if got != providers.MediaTransport(transport) {
		t.Error("WaitFor() returned a different transport than registered")
	}

	registry.Release("call-1")
	if registry.Len() != 0 {
		t.Errorf("Len() = %d after Release, want 0", registry.Len())
	}
}

func TestRegistry_WaitThenRegister(t *testing.T) {
	registry := NewRegistry(observability.NewLogger())
	transport := providers.NewMemoryTransport()

	done := make(chan providers.MediaTransport, 1)
	go func() {
		got, _ := registry.WaitFor(context.Background(), "call-2", 2*time.Second)
		done <- got
	}()

	// Give the waiter a moment to park.
	time.Sleep(20 * time.Millisecond)
	registry.Register("call-2", transport)

	select {
	case got := <-done:
		if got != providers.MediaTransport(transport) {
			t.Error("waiter received a different transport than registered")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never resolved after Register")
	}
	registry.Release("call-2")
}

func TestRegistry_TimeoutReturnsMemoryFallback(t *testing.T) {
	registry := NewRegistry(observability.NewLogger())

	got, live := registry.WaitFor(context.Background(), "call-3", 50*time.Millisecond)
	if live {
		t.Fatal("WaitFor() reported live transport with no registration")
	}
	if _, ok := got.(*providers.MemoryTransport); !ok {
		t.Errorf("WaitFor() fallback = %T, want *providers.MemoryTransport", got)
	}
	registry.Release("call-3")
}

func TestRegistry_LastWriterWins(t *testing.T) {
	registry := NewRegistry(observability.NewLogger())
	first := providers.NewMemoryTransport()
	second := providers.NewMemoryTransport()

	registry.Register("call-4", first)
	registry.Register("call-4", second)

	got, live := registry.WaitFor(context.Background(), "call-4", time.Second)
	if !live {
		t.Fatal("WaitFor() reported fallback for a registered transport")
	}
	if got != providers.MediaTransport(second) {
		t.Error("WaitFor() should return the most recently registered transport")
	}
	registry.Release("call-4")
}
