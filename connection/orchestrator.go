package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventSource delivers inbound synchronization events and reports
// when its underlying stream has closed for good. Events must be
// closed by the source when the connection ends; Errors carries
// transport-level failures (a malformed frame, a dropped socket) that
// do not themselves close Events.
type EventSource interface {
	Events() <-chan Event
	Errors() <-chan error
	Reconnect(ctx context.Context) error
	Close() error
}

// Orchestrator owns the inbound event channel and fans each event out
// to every registered listener, in registration order, awaiting each
// listener's completion before moving to the next event. This mirrors
// the single dispatch entry point a FIX application object exposes to
// its underlying session library, generalized here to an arbitrary
// number of independently-registered listeners instead of one
// hardwired handler.
type Orchestrator struct {
	source EventSource
	log    zerolog.Logger

	mu        sync.Mutex
	listeners []interface{}

	synchronizedMu sync.Mutex
	synchronizedCh map[string][]chan struct{}
	synchronized   map[string]bool
	positionsDone  map[string]bool
	ordersDone     map[string]bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an Orchestrator reading from source. Call Run to start
// the dispatch loop.
func New(source EventSource, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		source:         source,
		log:            log.With().Str("component", "orchestrator").Logger(),
		synchronizedCh: make(map[string][]chan struct{}),
		synchronized:   make(map[string]bool),
		positionsDone:  make(map[string]bool),
		ordersDone:     make(map[string]bool),
		done:           make(chan struct{}),
	}
}

// AddListener registers l. l is checked against each capability
// interface at dispatch time, so registering something that
// implements none of them is legal but inert.
func (o *Orchestrator) AddListener(l interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, l)
}

// RemoveListener deregisters l if present.
func (o *Orchestrator) RemoveListener(l interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, existing := range o.listeners {
		if existing == l {
			o.listeners = append(o.listeners[:i], o.listeners[i+1:]...)
			return
		}
	}
}

// Run starts the dispatch loop and blocks until ctx is cancelled or
// the event source closes. It is the cooperative single-task-runner
// loop every event passes through sequentially: one event is fully
// dispatched to every listener before the next is read.
func (o *Orchestrator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	defer close(o.done)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-o.source.Errors():
			if !ok {
				continue
			}
			o.log.Error().Err(err).Msg("transport error")
		case event, ok := <-o.source.Events():
			if !ok {
				return nil
			}
			o.dispatch(event)
		}
	}
}

// Stop cancels the dispatch loop started by Run and waits for it to
// return.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	<-o.done
}

// Reconnect delegates to the underlying event source. The replica's
// own state is left untouched; OnDisconnected/OnConnected events
// arriving afterward bring it back in sync the same way a transient
// network blip does.
func (o *Orchestrator) Reconnect(ctx context.Context) error {
	return o.source.Reconnect(ctx)
}

// WaitSynchronized blocks until instanceIndex reports a completed
// position and order sync, or timeout elapses.
func (o *Orchestrator) WaitSynchronized(instanceIndex string, timeout time.Duration) error {
	o.synchronizedMu.Lock()
	if o.synchronized[instanceIndex] {
		o.synchronizedMu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	o.synchronizedCh[instanceIndex] = append(o.synchronizedCh[instanceIndex], ch)
	o.synchronizedMu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return nil
	case <-timer.C:
		return fmt.Errorf("connection: timed out waiting for %s to synchronize", instanceIndex)
	}
}

func (o *Orchestrator) dispatch(event Event) {
	o.mu.Lock()
	listeners := append([]interface{}(nil), o.listeners...)
	o.mu.Unlock()

	for _, l := range listeners {
		o.dispatchOne(l, event)
	}

	switch event.Kind {
	case EventPositionsSynchronized:
		o.markSynchronized(event.InstanceIndex, true, false)
	case EventPendingOrdersSynchronized:
		o.markSynchronized(event.InstanceIndex, false, true)
	}
}

// dispatchOne type-asserts l against the capability interface matching
// event.Kind and invokes it if present. A listener implementing none
// of the relevant interfaces is silently skipped, the contract
// "implement only what you care about" promises.
func (o *Orchestrator) dispatchOne(l interface{}, event Event) {
	switch event.Kind {
	case EventConnected:
		if v, ok := l.(ConnectedListener); ok {
			v.OnConnected(event.InstanceIndex, event.Replicas)
		}
	case EventDisconnected:
		if v, ok := l.(DisconnectedListener); ok {
			v.OnDisconnected(event.InstanceIndex)
		}
	case EventBrokerConnectionStatusChanged:
		if v, ok := l.(BrokerConnectionStatusListener); ok {
			v.OnBrokerConnectionStatusChanged(event.InstanceIndex, event.Connected)
		}
	case EventSynchronizationStarted:
		if v, ok := l.(SynchronizationStartedListener); ok {
			v.OnSynchronizationStarted(event.InstanceIndex, event.SpecificationsUpdated, event.PositionsUpdated, event.OrdersUpdated)
		}
	case EventAccountInformationUpdated:
		if v, ok := l.(AccountInformationListener); ok {
			v.OnAccountInformationUpdated(event.InstanceIndex, event.AccountInformation)
		}
	case EventPositionsReplaced:
		if v, ok := l.(PositionsReplacedListener); ok {
			v.OnPositionsReplaced(event.InstanceIndex, event.Positions)
		}
	case EventPositionsSynchronized:
		if v, ok := l.(PositionsSynchronizedListener); ok {
			v.OnPositionsSynchronized(event.InstanceIndex, event.SynchronizationID)
		}
	case EventPositionUpdated:
		if v, ok := l.(PositionUpdatedListener); ok {
			v.OnPositionUpdated(event.InstanceIndex, event.Position)
		}
	case EventPositionRemoved:
		if v, ok := l.(PositionRemovedListener); ok {
			v.OnPositionRemoved(event.InstanceIndex, event.PositionID)
		}
	case EventPendingOrdersReplaced:
		if v, ok := l.(PendingOrdersReplacedListener); ok {
			v.OnPendingOrdersReplaced(event.InstanceIndex, event.Orders)
		}
	case EventPendingOrdersSynchronized:
		if v, ok := l.(PendingOrdersSynchronizedListener); ok {
			v.OnPendingOrdersSynchronized(event.InstanceIndex, event.SynchronizationID)
		}
	case EventPendingOrderUpdated:
		if v, ok := l.(PendingOrderUpdatedListener); ok {
			v.OnPendingOrderUpdated(event.InstanceIndex, event.Order)
		}
	case EventPendingOrderCompleted:
		if v, ok := l.(PendingOrderCompletedListener); ok {
			v.OnPendingOrderCompleted(event.InstanceIndex, event.OrderID)
		}
	case EventSymbolSpecificationsUpdated:
		if v, ok := l.(SymbolSpecificationsUpdatedListener); ok {
			v.OnSymbolSpecificationsUpdated(event.InstanceIndex, event.Specifications, event.RemovedSymbols)
		}
	case EventSymbolPricesUpdated:
		if v, ok := l.(SymbolPricesUpdatedListener); ok {
			v.OnSymbolPricesUpdated(event.InstanceIndex, event.Prices, event.PriceExtras)
		}
	case EventStreamClosed:
		if v, ok := l.(StreamClosedListener); ok {
			v.OnStreamClosed(event.InstanceIndex)
		}
	default:
		o.log.Warn().Str("kind", string(event.Kind)).Msg("unrecognized event kind")
	}
}

// markSynchronized records that the positions and/or orders sync
// completed for instanceIndex, and releases every WaitSynchronized
// caller once both have.
func (o *Orchestrator) markSynchronized(instanceIndex string, positions, orders bool) {
	o.synchronizedMu.Lock()
	defer o.synchronizedMu.Unlock()
	if positions {
		o.positionsDone[instanceIndex] = true
	}
	if orders {
		o.ordersDone[instanceIndex] = true
	}
	if !o.positionsDone[instanceIndex] || !o.ordersDone[instanceIndex] {
		return
	}
	o.synchronized[instanceIndex] = true
	for _, ch := range o.synchronizedCh[instanceIndex] {
		close(ch)
	}
	delete(o.synchronizedCh, instanceIndex)
}
