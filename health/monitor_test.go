package health

import (
	"testing"
	"time"

	"prime-tradestate-go/terminalstate"
)

type fakeState struct {
	connected         bool
	connectedToBroker bool
	specs             map[string]*terminalstate.Specification
}

func (s *fakeState) Connected() bool         { return s.connected }
func (s *fakeState) ConnectedToBroker() bool { return s.connectedToBroker }
func (s *fakeState) Specification(symbol string) *terminalstate.Specification {
	return s.specs[symbol]
}

func TestStatusComposesHealthyMessageWhenAllFlagsGood(t *testing.T) {
	state := &fakeState{connected: true, connectedToBroker: true}
	m := New(state, func() bool { return true }, func() []string { return nil })
	m.mu.Lock()
	m.quotesHealthy = true
	m.mu.Unlock()

	s := m.Status()
	if !s.Healthy {
		t.Fatalf("expected healthy status, got %+v", s)
	}
	if s.Message != "Connection to broker is stable. No health issues detected." {
		t.Errorf("unexpected message: %q", s.Message)
	}
}

func TestStatusComposesMultiReasonMessageWhenUnhealthy(t *testing.T) {
	state := &fakeState{connected: true, connectedToBroker: false}
	m := New(state, func() bool { return false }, func() []string { return nil })
	m.mu.Lock()
	m.quotesHealthy = true
	m.mu.Unlock()

	s := m.Status()
	if s.Healthy {
		t.Fatal("expected unhealthy status")
	}
	want := "Connection is not healthy because connection to broker is not established or lost and local terminal state is not synchronized to broker."
	if s.Message != want {
		t.Errorf("unexpected message:\n got: %q\nwant: %q", s.Message, want)
	}
}

func TestQuoteHealthyWhenNoSymbolsSubscribed(t *testing.T) {
	state := &fakeState{connected: true, connectedToBroker: true}
	m := New(state, func() bool { return true }, func() []string { return nil })

	m.updateQuoteHealthStatus()

	m.mu.Lock()
	healthy := m.quotesHealthy
	m.mu.Unlock()
	if !healthy {
		t.Fatal("expected quote streaming to be healthy with no subscribed symbols")
	}
}

func TestQuoteUnhealthyInsideSessionWithoutRecentPrice(t *testing.T) {
	now := time.Now()
	isoWeekday := int(now.Weekday())
	if isoWeekday == 0 {
		isoWeekday = 7
	}
	day := daysOfWeek[isoWeekday]

	state := &fakeState{
		connected:         true,
		connectedToBroker: true,
		specs: map[string]*terminalstate.Specification{
			"EURUSD": {
				Symbol: "EURUSD",
				QuoteSessions: map[string][]terminalstate.QuoteSession{
					day: {{From: "00:00:00.000000", To: "23:59:59.999999"}},
				},
			},
		},
	}
	m := New(state, func() bool { return true }, func() []string { return []string{"EURUSD"} })

	m.updateQuoteHealthStatus()

	m.mu.Lock()
	healthy := m.quotesHealthy
	m.mu.Unlock()
	if healthy {
		t.Fatal("expected quote streaming unhealthy: in-session symbol with no price ever received")
	}
}

func TestQuoteHealthyInsideSessionWithRecentPrice(t *testing.T) {
	now := time.Now()
	isoWeekday := int(now.Weekday())
	if isoWeekday == 0 {
		isoWeekday = 7
	}
	day := daysOfWeek[isoWeekday]

	state := &fakeState{
		connected:         true,
		connectedToBroker: true,
		specs: map[string]*terminalstate.Specification{
			"EURUSD": {
				Symbol: "EURUSD",
				QuoteSessions: map[string][]terminalstate.QuoteSession{
					day: {{From: "00:00:00.000000", To: "23:59:59.999999"}},
				},
			},
		},
	}
	m := New(state, func() bool { return true }, func() []string { return []string{"EURUSD"} })
	m.OnSymbolPriceUpdated(terminalstate.Price{Symbol: "EURUSD", BrokerTime: now})

	m.updateQuoteHealthStatus()

	m.mu.Lock()
	healthy := m.quotesHealthy
	m.mu.Unlock()
	if !healthy {
		t.Fatal("expected quote streaming healthy: price just arrived inside the session")
	}
}

func TestUptimeAveragesPushedSamples(t *testing.T) {
	state := &fakeState{connected: true, connectedToBroker: true}
	m := New(state, func() bool { return true }, func() []string { return nil })
	m.mu.Lock()
	m.quotesHealthy = true
	m.mu.Unlock()

	m.measureUptime()
	m.measureUptime()

	if got := m.Uptime(); got != 100 {
		t.Errorf("expected 100%% uptime after two healthy samples, got %v", got)
	}
}
