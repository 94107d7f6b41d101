package connection

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeSource struct {
	events chan Event
	errs   chan error
}

func newFakeSource() *fakeSource {
	return &fakeSource{events: make(chan Event, 16), errs: make(chan error, 16)}
}

func (f *fakeSource) Events() <-chan Event                { return f.events }
func (f *fakeSource) Errors() <-chan error                { return f.errs }
func (f *fakeSource) Reconnect(ctx context.Context) error { return nil }
func (f *fakeSource) Close() error                        { return nil }

type recordingListener struct {
	mu   sync.Mutex
	seen []string
}

func (l *recordingListener) OnConnected(instanceIndex string, replicas int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, "connected:"+instanceIndex)
}

func TestOrchestratorDispatchesToMatchingListener(t *testing.T) {
	source := newFakeSource()
	o := New(source, zerolog.Nop())
	listener := &recordingListener{}
	o.AddListener(listener)

	ctx, cancel := context.WithCancel(context.Background())
	go o.Run(ctx)

	source.events <- Event{Kind: EventConnected, InstanceIndex: "1:ps-mpa-1", Replicas: 1}

	deadline := time.After(time.Second)
	for {
		listener.mu.Lock()
		n := len(listener.seen)
		listener.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for dispatch")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	o.Stop()

	listener.mu.Lock()
	defer listener.mu.Unlock()
	if len(listener.seen) != 1 || listener.seen[0] != "connected:1:ps-mpa-1" {
		t.Fatalf("unexpected dispatch record: %v", listener.seen)
	}
}

func TestWaitSynchronizedResolvesAfterBothSyncEvents(t *testing.T) {
	source := newFakeSource()
	o := New(source, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	source.events <- Event{Kind: EventPositionsSynchronized, InstanceIndex: "1:ps-mpa-1"}

	done := make(chan error, 1)
	go func() {
		done <- o.WaitSynchronized("1:ps-mpa-1", 200*time.Millisecond)
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected WaitSynchronized to still be blocked on the orders sync")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("WaitSynchronized goroutine never returned")
	}

	source.events <- Event{Kind: EventPendingOrdersSynchronized, InstanceIndex: "1:ps-mpa-1"}
	if err := o.WaitSynchronized("1:ps-mpa-1", time.Second); err != nil {
		t.Fatalf("expected WaitSynchronized to resolve once both events arrived, got %v", err)
	}
}
