package connection

import "prime-tradestate-go/terminalstate"

// Listener capability interfaces. A listener implements only the
// events it cares about; the orchestrator type-asserts each listener
// against the interface matching the event kind before dispatching
// (see design notes: "a capability set" rather than one fat interface
// with stub methods).

type ConnectedListener interface {
	OnConnected(instanceIndex string, replicas int)
}

type DisconnectedListener interface {
	OnDisconnected(instanceIndex string)
}

type BrokerConnectionStatusListener interface {
	OnBrokerConnectionStatusChanged(instanceIndex string, connected bool)
}

type SynchronizationStartedListener interface {
	OnSynchronizationStarted(instanceIndex string, specificationsUpdated, positionsUpdated, ordersUpdated bool)
}

type AccountInformationListener interface {
	OnAccountInformationUpdated(instanceIndex string, accountInformation terminalstate.AccountInformation)
}

type PositionsReplacedListener interface {
	OnPositionsReplaced(instanceIndex string, positions []terminalstate.Position)
}

type PositionsSynchronizedListener interface {
	OnPositionsSynchronized(instanceIndex string, synchronizationID string)
}

type PositionUpdatedListener interface {
	OnPositionUpdated(instanceIndex string, position terminalstate.Position)
}

type PositionRemovedListener interface {
	OnPositionRemoved(instanceIndex string, positionID string)
}

type PendingOrdersReplacedListener interface {
	OnPendingOrdersReplaced(instanceIndex string, orders []terminalstate.Order)
}

type PendingOrdersSynchronizedListener interface {
	OnPendingOrdersSynchronized(instanceIndex string, synchronizationID string)
}

type PendingOrderUpdatedListener interface {
	OnPendingOrderUpdated(instanceIndex string, order terminalstate.Order)
}

type PendingOrderCompletedListener interface {
	OnPendingOrderCompleted(instanceIndex string, orderID string)
}

type SymbolSpecificationsUpdatedListener interface {
	OnSymbolSpecificationsUpdated(instanceIndex string, updated []terminalstate.Specification, removed []string)
}

type SymbolPricesUpdatedListener interface {
	OnSymbolPricesUpdated(instanceIndex string, prices []terminalstate.Price, extras terminalstate.PriceUpdateExtras)
}

type StreamClosedListener interface {
	OnStreamClosed(instanceIndex string)
}
