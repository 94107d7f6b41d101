// Package health tracks whether a connection's terminal-state replica
// is actually usable: connected, synchronized, and receiving quotes on
// a schedule consistent with the symbols' broker quote sessions.
package health

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"prime-tradestate-go/reservoir"
	"prime-tradestate-go/terminalstate"
)

// minQuoteInterval is how long a subscribed symbol can go without a
// price update, while inside its quote session, before streaming is
// considered unhealthy.
const minQuoteInterval = 60 * time.Second

// uptimeReservoirCapacity and uptimeReservoirWindow size the rolling
// uptime sample: one sample per second for a week, reservoir-sampled
// down to 24*7 retained points.
const (
	uptimeReservoirCapacity = 24 * 7
	uptimeReservoirWindowMs = 7 * 24 * 60 * 60 * 1000
)

// StateReader is the slice of a terminal-state replica the monitor
// needs: connection flags and per-symbol specifications, without
// depending on the rest of the replica's read surface.
type StateReader interface {
	Connected() bool
	ConnectedToBroker() bool
	Specification(symbol string) *terminalstate.Specification
}

// Status is the point-in-time health snapshot.
type Status struct {
	Connected             bool
	ConnectedToBroker     bool
	QuoteStreamingHealthy bool
	Synchronized          bool
	Healthy               bool
	Message               string
}

// Monitor tracks connection health status for one account connection,
// running two independent 1Hz jobs: one recomputes whether quotes are
// streaming on schedule, the other samples uptime into a rolling
// weekly reservoir.
type Monitor struct {
	state             StateReader
	synchronized      func() bool
	subscribedSymbols func() []string

	mu             sync.Mutex
	quotesHealthy  bool
	offset         time.Duration
	priceUpdatedAt time.Time

	uptime *reservoir.Reservoir
}

// New creates a Monitor. synchronized and subscribedSymbols are
// callbacks rather than fields so the monitor always reads the
// connection's current state instead of a snapshot taken at
// construction time.
func New(state StateReader, synchronized func() bool, subscribedSymbols func() []string) *Monitor {
	return &Monitor{
		state:             state,
		synchronized:      synchronized,
		subscribedSymbols: subscribedSymbols,
		uptime:            reservoir.New(uptimeReservoirCapacity, uptimeReservoirWindowMs),
	}
}

// Run starts both 1Hz jobs and blocks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.updateQuoteHealthStatus()
			m.measureUptime()
		}
	}
}

// OnSymbolPriceUpdated records that a price arrived, and how far the
// broker's own clock has drifted from local wall time, so
// updateQuoteHealthStatus can reason about the broker's current
// time-of-day without a live price on hand.
func (m *Monitor) OnSymbolPriceUpdated(price terminalstate.Price) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.priceUpdatedAt = now
	m.offset = now.Sub(price.BrokerTime)
}

// Status returns the current health snapshot.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	quotesHealthy := m.quotesHealthy
	m.mu.Unlock()

	s := Status{
		Connected:             m.state.Connected(),
		ConnectedToBroker:     m.state.ConnectedToBroker(),
		QuoteStreamingHealthy: quotesHealthy,
		Synchronized:          m.synchronized(),
	}
	s.Healthy = s.Connected && s.ConnectedToBroker && s.QuoteStreamingHealthy && s.Synchronized

	if s.Healthy {
		s.Message = "Connection to broker is stable. No health issues detected."
		return s
	}

	var reasons []string
	if !s.Connected {
		reasons = append(reasons, "connection to API server is not established or lost")
	}
	if !s.ConnectedToBroker {
		reasons = append(reasons, "connection to broker is not established or lost")
	}
	if !s.Synchronized {
		reasons = append(reasons, "local terminal state is not synchronized to broker")
	}
	if !s.QuoteStreamingHealthy {
		reasons = append(reasons, "quotes are not streamed from the broker properly")
	}
	s.Message = fmt.Sprintf("Connection is not healthy because %s.", strings.Join(reasons, " and "))
	return s
}

// Uptime returns the fraction of the past week, in percent, the
// connection spent fully healthy.
func (m *Monitor) Uptime() float64 {
	return m.uptime.GetStatistics().Average
}

func (m *Monitor) measureUptime() {
	value := 0.0
	if m.state.Connected() && m.state.ConnectedToBroker() && m.synchronized() {
		m.mu.Lock()
		healthy := m.quotesHealthy
		m.mu.Unlock()
		if healthy {
			value = 100
		}
	}
	m.uptime.Push(value)
}

var daysOfWeek = [...]string{"", "MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY", "SATURDAY", "SUNDAY"}

// updateQuoteHealthStatus recomputes whether streaming is healthy:
// either no symbols are subscribed, none of them are currently inside
// a broker quote session, or a price has arrived recently enough that
// the session being open doesn't matter yet.
func (m *Monitor) updateQuoteHealthStatus() {
	m.mu.Lock()
	offset := m.offset
	priceUpdatedAt := m.priceUpdatedAt
	m.mu.Unlock()

	serverNow := time.Now().Add(-offset)
	serverTime := serverNow.Format("15:04:05.000000")
	isoWeekday := int(serverNow.Weekday())
	if isoWeekday == 0 {
		isoWeekday = 7
	}
	dayName := daysOfWeek[isoWeekday]

	symbols := m.subscribedSymbols()
	inQuoteSession := false
	for _, symbol := range symbols {
		spec := m.state.Specification(symbol)
		if spec == nil {
			continue
		}
		for _, session := range spec.QuoteSessions[dayName] {
			if session.From <= serverTime && serverTime <= session.To {
				inQuoteSession = true
			}
		}
	}

	healthy := len(symbols) == 0 || !inQuoteSession || (!priceUpdatedAt.IsZero() && time.Since(priceUpdatedAt) < minQuoteInterval)

	m.mu.Lock()
	m.quotesHealthy = healthy
	m.mu.Unlock()
}
