package terminalstate

import (
	"sync"

	"github.com/rs/zerolog"
)

// Replica owns every per-instance snapshot of one trading account and
// reduces inbound synchronization events into them. Replica implements
// the connection package's per-event listener capability interfaces
// structurally (see connection/listener.go) without importing that
// package, avoiding an import cycle between the orchestrator and the
// state it drives.
type Replica struct {
	mu                sync.RWMutex
	byInstanceIndex   map[string]*Snapshot
	waitForPriceWaiters map[string][]chan Price

	log zerolog.Logger
}

// New creates an empty replica.
func New(log zerolog.Logger) *Replica {
	return &Replica{
		byInstanceIndex:     make(map[string]*Snapshot),
		waitForPriceWaiters: make(map[string][]chan Price),
		log:                 log.With().Str("component", "terminalstate").Logger(),
	}
}

// getOrCreate returns the snapshot for instanceIndex, creating it
// lazily if this is the first event seen for that instance. Callers
// must hold r.mu for writing.
func (r *Replica) getOrCreate(instanceIndex string) *Snapshot {
	s, ok := r.byInstanceIndex[instanceIndex]
	if !ok {
		s = newSnapshot(instanceIndex)
		r.byInstanceIndex[instanceIndex] = s
	}
	return s
}

// safeguard recovers from a panicking reducer step so one malformed
// event can never take down the dispatch loop; it logs the failure
// with the instance index per the error-handling design's best-effort
// liveness policy and leaves the snapshot as the panicking step left
// it, with no rollback (Go's panic/recover runs after partial mutation
// already applied up to the panic point, which is accepted here the
// same way the reference implementation accepts an exception leaving
// a partially-applied reducer step — both prioritize liveness over
// atomicity of a single malformed event).
func (r *Replica) safeguard(instanceIndex, event string) {
	if rec := recover(); rec != nil {
		r.log.Error().
			Str("instanceIndex", instanceIndex).
			Str("event", event).
			Interface("panic", rec).
			Msg("reducer step failed; snapshot left as-is")
	}
}

// Connected reports whether any instance is connected.
func (r *Replica) Connected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.byInstanceIndex {
		if s.Connected {
			return true
		}
	}
	return false
}

// ConnectedToBroker reports whether any instance is connected to the
// broker.
func (r *Replica) ConnectedToBroker() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.byInstanceIndex {
		if s.ConnectedToBroker {
			return true
		}
	}
	return false
}

// AccountInformation returns the best-state account information, or
// nil if none is known yet.
func (r *Replica) AccountInformation() *AccountInformation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	best := r.bestState(nil, "")
	if best.AccountInformation == nil {
		return nil
	}
	c := *best.AccountInformation
	return &c
}

// Positions returns a defensive copy of the best-state open positions.
func (r *Replica) Positions() []Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	best := r.bestState(nil, "")
	out := make([]Position, len(best.Positions))
	copy(out, best.Positions)
	return out
}

// Orders returns a defensive copy of the best-state pending orders.
func (r *Replica) Orders() []Order {
	r.mu.RLock()
	defer r.mu.RUnlock()
	best := r.bestState(nil, "")
	out := make([]Order, len(best.Orders))
	copy(out, best.Orders)
	return out
}

// Specifications returns a defensive copy of all best-state symbol
// specifications.
func (r *Replica) Specifications() []Specification {
	r.mu.RLock()
	defer r.mu.RUnlock()
	best := r.bestState(nil, "")
	out := make([]Specification, 0, len(best.SpecificationsBySymbol))
	for _, spec := range best.SpecificationsBySymbol {
		out = append(out, spec)
	}
	return out
}

// Specification returns the specification for symbol, selected from
// whichever instance actually has it, or nil if none does.
func (r *Replica) Specification(symbol string) *Specification {
	r.mu.RLock()
	defer r.mu.RUnlock()
	best := r.bestState(&symbol, "specification")
	if spec, ok := best.SpecificationsBySymbol[symbol]; ok {
		c := spec
		return &c
	}
	return nil
}

// Price returns the last known price for symbol, selected from
// whichever instance actually has it, or nil if none does.
func (r *Replica) Price(symbol string) *Price {
	r.mu.RLock()
	defer r.mu.RUnlock()
	best := r.bestState(&symbol, "price")
	if p, ok := best.PricesBySymbol[symbol]; ok {
		c := p
		return &c
	}
	return nil
}

// bestState selects the snapshot with the highest (initializationCounter,
// tiebreak) lexicographic key, optionally restricted to instances that
// carry symbol in the sub-map named by mode ("specification" or
// "price"). Callers must hold r.mu for reading.
func (r *Replica) bestState(symbol *string, mode string) *Snapshot {
	var result *Snapshot
	maxUpdateTime := -1.0
	maxInitCounter := -1
	maxSpecCount := -1

	for _, s := range r.byInstanceIndex {
		qualifies := s.InitializationCounter > maxInitCounter ||
			(s.InitializationCounter == maxInitCounter && maxInitCounter == 3 && s.LastUpdateTime > maxUpdateTime) ||
			(s.InitializationCounter == maxInitCounter && maxInitCounter == 0 && s.SpecificationCount > maxSpecCount)
		if !qualifies {
			continue
		}
		if symbol != nil {
			switch mode {
			case "specification":
				if _, ok := s.SpecificationsBySymbol[*symbol]; !ok {
					continue
				}
			case "price":
				if _, ok := s.PricesBySymbol[*symbol]; !ok {
					continue
				}
			}
		}
		maxUpdateTime = s.LastUpdateTime
		maxInitCounter = s.InitializationCounter
		maxSpecCount = s.SpecificationCount
		result = s
	}

	if result == nil {
		return newSnapshot("")
	}
	return result
}
