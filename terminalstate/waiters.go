package terminalstate

import (
	"context"
	"fmt"
	"time"
)

// WaitForPrice blocks until a price for symbol is observed, the
// context is cancelled, or timeout elapses, whichever comes first. It
// is the synchronous counterpart to subscribing a listener just to
// catch one tick, used by callers that need a price before placing an
// order and would otherwise have to thread a listener through to get
// one value.
func (r *Replica) WaitForPrice(ctx context.Context, symbol string, timeout time.Duration) (Price, error) {
	r.mu.Lock()
	if p, ok := r.currentPrice(symbol); ok {
		r.mu.Unlock()
		return p, nil
	}
	ch := make(chan Price, 1)
	r.waitForPriceWaiters[symbol] = append(r.waitForPriceWaiters[symbol], ch)
	r.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case p := <-ch:
		return p, nil
	case <-timer.C:
		r.dropWaiter(symbol, ch)
		return Price{}, fmt.Errorf("terminalstate: timed out waiting for a price update for %s", symbol)
	case <-ctx.Done():
		r.dropWaiter(symbol, ch)
		return Price{}, ctx.Err()
	}
}

// currentPrice returns the best-state price for symbol, if any.
// Callers must hold r.mu.
func (r *Replica) currentPrice(symbol string) (Price, bool) {
	best := r.bestState(&symbol, "price")
	p, ok := best.PricesBySymbol[symbol]
	return p, ok
}

// resolvePriceWaiters delivers price to every waiter registered for
// symbol and clears the list. Callers must hold r.mu for writing.
func (r *Replica) resolvePriceWaiters(symbol string, price Price) {
	waiters := r.waitForPriceWaiters[symbol]
	if len(waiters) == 0 {
		return
	}
	for _, ch := range waiters {
		ch <- price
	}
	delete(r.waitForPriceWaiters, symbol)
}

func (r *Replica) dropWaiter(symbol string, target chan Price) {
	r.mu.Lock()
	defer r.mu.Unlock()
	waiters := r.waitForPriceWaiters[symbol]
	for i, ch := range waiters {
		if ch == target {
			r.waitForPriceWaiters[symbol] = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(r.waitForPriceWaiters[symbol]) == 0 {
		delete(r.waitForPriceWaiters, symbol)
	}
}
