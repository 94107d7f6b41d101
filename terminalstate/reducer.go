package terminalstate

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"prime-tradestate-go/hashing"
)

// OnConnected marks instanceIndex as connected, creating its snapshot
// if this is the first event seen for it. Synchronization progress
// (the initialization counter and the *Initialized flags) is left as
// it was.
func (r *Replica) OnConnected(instanceIndex string, replicas int) {
	defer r.safeguard(instanceIndex, "connected")
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.getOrCreate(instanceIndex)
	s.Connected = true
}

// OnDisconnected marks instanceIndex as disconnected. Positions,
// orders and account information are left untouched; only Connected
// and the broker-connection flag change, so reads keep serving the
// last known state during a brief reconnect.
func (r *Replica) OnDisconnected(instanceIndex string) {
	defer r.safeguard(instanceIndex, "disconnected")
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.getOrCreate(instanceIndex)
	s.Connected = false
	s.ConnectedToBroker = false
}

func (r *Replica) OnBrokerConnectionStatusChanged(instanceIndex string, connected bool) {
	defer r.safeguard(instanceIndex, "brokerConnectionStatusChanged")
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.getOrCreate(instanceIndex)
	s.ConnectedToBroker = connected
}

// OnSynchronizationStarted clears the account information and price
// cache unconditionally, and drops whichever of positions/orders/
// specifications the caller says is about to be resynchronized from
// scratch, so stale entries from before the sync can't survive it. The
// initialization counter is untouched here: it only ever advances
// forward, driven by OnAccountInformationUpdated/
// OnPositionsSynchronized/OnPendingOrdersSynchronized, never reset by
// the start of a new sync.
func (r *Replica) OnSynchronizationStarted(instanceIndex string, specificationsUpdated, positionsUpdated, ordersUpdated bool) {
	defer r.safeguard(instanceIndex, "synchronizationStarted")
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.getOrCreate(instanceIndex)
	s.AccountInformation = nil
	s.PricesBySymbol = make(map[string]Price)
	if positionsUpdated {
		s.Positions = nil
		s.RemovedPositions = make(map[string]int64)
		s.PositionsInitialized = false
	}
	if ordersUpdated {
		s.Orders = nil
		s.CompletedOrders = make(map[string]int64)
		s.OrdersInitialized = false
	}
	if specificationsUpdated {
		s.SpecificationsBySymbol = make(map[string]Specification)
	}
}

// OnAccountInformationUpdated installs the latest account information
// and ensures the initialization counter reflects that at least the
// first synchronization stage (account info) has been seen.
func (r *Replica) OnAccountInformationUpdated(instanceIndex string, info AccountInformation) {
	defer r.safeguard(instanceIndex, "accountInformationUpdated")
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.getOrCreate(instanceIndex)
	c := info
	s.AccountInformation = &c
	if s.InitializationCounter < 1 {
		s.InitializationCounter = 1
	}
}

// OnPositionsReplaced installs a full position snapshot. It does not
// itself mark positions as initialized or advance the initialization
// counter - that only happens once OnPositionsSynchronized confirms
// the replace was the full, final batch for this sync.
func (r *Replica) OnPositionsReplaced(instanceIndex string, positions []Position) {
	defer r.safeguard(instanceIndex, "positionsReplaced")
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.getOrCreate(instanceIndex)
	s.Positions = cloneSlice(positions)
}

// OnPositionsSynchronized marks the position side of the sync as
// complete: any tombstones recorded before this point no longer matter
// since the replace that just landed is authoritative, and the
// initialization counter advances to stage 2.
func (r *Replica) OnPositionsSynchronized(instanceIndex string, synchronizationID string) {
	defer r.safeguard(instanceIndex, "positionsSynchronized")
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.getOrCreate(instanceIndex)
	s.RemovedPositions = make(map[string]int64)
	s.PositionsInitialized = true
	s.InitializationCounter = 2
}

// OnPositionUpdated upserts a single position by ID, the incremental
// counterpart to OnPositionsReplaced's full replace. A late update
// arriving for an ID already tombstoned in RemovedPositions is dropped
// rather than resurrecting a position the replica has already closed.
func (r *Replica) OnPositionUpdated(instanceIndex string, position Position) {
	defer r.safeguard(instanceIndex, "positionUpdated")
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.getOrCreate(instanceIndex)
	for i := range s.Positions {
		if s.Positions[i].ID == position.ID {
			s.Positions[i] = position
			return
		}
	}
	if _, tombstoned := s.RemovedPositions[position.ID]; !tombstoned {
		s.Positions = append(s.Positions, position)
	}
}

// OnPositionRemoved drops the position and tombstones its ID so a
// late-arriving update for the same ID is ignored rather than
// resurrecting a closed position (see Snapshot.RemovedPositions).
func (r *Replica) OnPositionRemoved(instanceIndex string, positionID string) {
	defer r.safeguard(instanceIndex, "positionRemoved")
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.getOrCreate(instanceIndex)
	for i := range s.Positions {
		if s.Positions[i].ID == positionID {
			s.Positions = append(s.Positions[:i], s.Positions[i+1:]...)
			break
		}
	}
	s.RemovedPositions[positionID] = time.Now().Unix()
	purgeExpired(s.RemovedPositions)
}

// OnPendingOrdersReplaced installs a full pending-order snapshot. As
// with OnPositionsReplaced, it does not mark orders initialized or
// touch the counter on its own.
func (r *Replica) OnPendingOrdersReplaced(instanceIndex string, orders []Order) {
	defer r.safeguard(instanceIndex, "pendingOrdersReplaced")
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.getOrCreate(instanceIndex)
	s.Orders = cloneSlice(orders)
}

// OnPendingOrdersSynchronized marks the pending-order side of the sync
// as complete, clearing stale tombstones and advancing the
// initialization counter to its final stage.
func (r *Replica) OnPendingOrdersSynchronized(instanceIndex string, synchronizationID string) {
	defer r.safeguard(instanceIndex, "pendingOrdersSynchronized")
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.getOrCreate(instanceIndex)
	s.CompletedOrders = make(map[string]int64)
	s.OrdersInitialized = true
	s.InitializationCounter = 3
}

// OnPendingOrderUpdated upserts a single order by ID, dropping a late
// update for an order already tombstoned in CompletedOrders the same
// way OnPositionUpdated does for removed positions.
func (r *Replica) OnPendingOrderUpdated(instanceIndex string, order Order) {
	defer r.safeguard(instanceIndex, "pendingOrderUpdated")
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.getOrCreate(instanceIndex)
	for i := range s.Orders {
		if s.Orders[i].ID == order.ID {
			s.Orders[i] = order
			return
		}
	}
	if _, tombstoned := s.CompletedOrders[order.ID]; !tombstoned {
		s.Orders = append(s.Orders, order)
	}
}

// OnPendingOrderCompleted drops the order and tombstones its ID, same
// treatment as OnPositionRemoved but for the pending-order side.
func (r *Replica) OnPendingOrderCompleted(instanceIndex string, orderID string) {
	defer r.safeguard(instanceIndex, "pendingOrderCompleted")
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.getOrCreate(instanceIndex)
	for i := range s.Orders {
		if s.Orders[i].ID == orderID {
			s.Orders = append(s.Orders[:i], s.Orders[i+1:]...)
			break
		}
	}
	s.CompletedOrders[orderID] = time.Now().Unix()
	purgeExpired(s.CompletedOrders)
}

// OnSymbolSpecificationsUpdated upserts updated specifications and
// drops removed ones, tracking how many symbols the instance currently
// holds a specification for so the initialization-counter-0 tiebreak in bestState can
// prefer the instance with the broadest specification coverage.
func (r *Replica) OnSymbolSpecificationsUpdated(instanceIndex string, updated []Specification, removed []string) {
	defer r.safeguard(instanceIndex, "symbolSpecificationsUpdated")
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.getOrCreate(instanceIndex)
	for _, spec := range updated {
		s.SpecificationsBySymbol[spec.Symbol] = spec
	}
	for _, symbol := range removed {
		delete(s.SpecificationsBySymbol, symbol)
	}
	s.SpecificationCount = len(s.SpecificationsBySymbol)
}

// OnSymbolPricesUpdated applies new ticks, marks every pending order
// against the correct side of book, recomputes every open position's
// profit against the new prices, recomputes client-side equity once
// the replica is far enough along to trust it, and folds in whichever
// account-summary fields extras actually supplied.
//
// The margin_level field is deliberately coupled to freeMargin rather
// than applied on its own: marginLevel only changes when this update
// also carries freeMargin, even if marginLevel's own pointer is set.
// The upstream terminal sends the two together in practice, but
// nothing enforces that pairing upstream either - mirrored here rather
// than "fixed", per spec.md §9 Open Question.
func (r *Replica) OnSymbolPricesUpdated(instanceIndex string, prices []Price, extras PriceUpdateExtras) {
	defer r.safeguard(instanceIndex, "symbolPricesUpdated")
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.getOrCreate(instanceIndex)

	if len(prices) > 0 {
		maxTime := prices[0].Time
		for _, p := range prices[1:] {
			if p.Time.After(maxTime) {
				maxTime = p.Time
			}
		}
		s.LastUpdateTime = float64(maxTime.Unix())
	} else {
		s.LastUpdateTime = 0
	}

	for _, p := range prices {
		s.PricesBySymbol[p.Symbol] = p
		r.resolvePriceWaiters(p.Symbol, p)

		for i := range s.Orders {
			if s.Orders[i].Symbol != p.Symbol {
				continue
			}
			if s.Orders[i].Type.isBuyFamily() {
				s.Orders[i].CurrentPrice = p.Ask
			} else {
				s.Orders[i].CurrentPrice = p.Bid
			}
		}
	}

	s.recomputePositionProfits()

	pricesInitialized := len(prices) > 0
	if pricesInitialized {
		for _, pos := range s.Positions {
			if _, ok := s.PricesBySymbol[pos.Symbol]; !ok {
				pricesInitialized = false
				break
			}
		}
	}
	s.recomputeEquity(extras.Equity, pricesInitialized)

	if s.AccountInformation != nil {
		if extras.Margin != nil {
			s.AccountInformation.Margin = *extras.Margin
		}
		if extras.FreeMargin != nil {
			s.AccountInformation.FreeMargin = *extras.FreeMargin
			if extras.MarginLevel != nil {
				s.AccountInformation.MarginLevel = *extras.MarginLevel
			} else {
				s.AccountInformation.MarginLevel = 0
			}
		}
		if extras.AccountCurrencyExchangeRate != nil {
			for i := range s.Positions {
				s.Positions[i].AccountCurrencyExchangeRate = *extras.AccountCurrencyExchangeRate
			}
		}
	}
}

func (r *Replica) OnStreamClosed(instanceIndex string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byInstanceIndex, instanceIndex)
}

// recomputeEquity implements the client-side equity fallback: once the
// position side of the sync has completed and every open position has
// a known price, equity is derived from balance plus the rounded sum
// of each position's swap (and, on mt4, commission) and unrealized
// profit - the same contribution rule the terminal itself applies.
// Before that point, or whenever the caller supplies an explicit
// equity value, the supplied or previously-known value is kept instead
// of being overwritten by a computation the replica can't yet trust.
func (s *Snapshot) recomputeEquity(suppliedEquity *float64, pricesInitialized bool) {
	info := s.AccountInformation
	if info == nil {
		return
	}
	if !s.PositionsInitialized || !pricesInitialized {
		if suppliedEquity != nil {
			info.Equity = *suppliedEquity
		}
		return
	}
	if suppliedEquity != nil {
		info.Equity = *suppliedEquity
		return
	}
	sum := decimal.Zero
	for _, p := range s.Positions {
		sum = sum.Add(decimal.NewFromFloat(p.Swap).Round(2))
		if info.Platform == PlatformMT4 {
			sum = sum.Add(decimal.NewFromFloat(p.Commission).Round(2))
		}
		sum = sum.Add(decimal.NewFromFloat(p.UnrealizedProfit).Round(2))
	}
	equity := decimal.NewFromFloat(info.Balance).Add(sum).Round(2)
	info.Equity, _ = equity.Float64()
}

// recomputePositionProfits recalculates CurrentPrice, CurrentTickValue,
// UnrealizedProfit and Profit for every open position with a known
// price and specification. The current tick value is selected by
// profitability - a buy sitting below its open price marks against
// LossTickValue just as much as a sell underwater would - not by
// trade direction.
//
// The first time a position is recomputed after being installed by a
// replace or update event (HasUnrealizedProfit or HasRealizedProfit
// still false; JSON decoding never sets either flag, so this holds for
// every freshly installed position), the realized component
// is derived once from whatever profit the position already reported
// and the price/tickValue it already carried, then held fixed across
// every later recompute: profit = unrealizedProfit + realizedProfit,
// with only unrealizedProfit moving as prices move.
//
// Figures are carried through shopspring/decimal rather than plain
// float64: ticks/tickValue/volume multiply together across several
// orders of magnitude, and decimal avoids the accumulated
// binary-rounding drift a long-running replica would otherwise bake
// into a position's displayed P&L over thousands of price updates.
// Results are rounded to the symbol's digits, matching the precision
// the server itself reports at.
func (s *Snapshot) recomputePositionProfits() {
	for i := range s.Positions {
		pos := &s.Positions[i]
		price, hasPrice := s.PricesBySymbol[pos.Symbol]
		if !hasPrice {
			continue
		}
		spec, hasSpec := s.SpecificationsBySymbol[pos.Symbol]
		if !hasSpec || spec.TickSize == 0 {
			continue
		}

		isBuy := pos.Type == PositionTypeBuy
		direction := decimal.NewFromInt(1)
		if !isBuy {
			direction = decimal.NewFromInt(-1)
		}
		openPrice := decimal.NewFromFloat(pos.OpenPrice)
		tickSize := decimal.NewFromFloat(spec.TickSize)
		volume := decimal.NewFromFloat(pos.Volume)
		digits := int32(spec.Digits)

		if !pos.HasUnrealizedProfit || !pos.HasRealizedProfit {
			priorDiff := decimal.NewFromFloat(pos.CurrentPrice).Sub(openPrice)
			priorTickValue := decimal.NewFromFloat(pos.CurrentTickValue)
			bootstrapUnrealized := direction.Mul(priorDiff).Mul(priorTickValue).Mul(volume).Div(tickSize).Round(digits)
			pos.UnrealizedProfit, _ = bootstrapUnrealized.Float64()
			realized := decimal.NewFromFloat(pos.Profit).Round(digits).Sub(bootstrapUnrealized)
			pos.RealizedProfit, _ = realized.Float64()
			pos.HasUnrealizedProfit = true
			pos.HasRealizedProfit = true
		}

		var newPrice float64
		if isBuy {
			newPrice = price.Bid
		} else {
			newPrice = price.Ask
		}
		newPriceDec := decimal.NewFromFloat(newPrice)
		diff := newPriceDec.Sub(openPrice)
		tickValue := price.LossTickValue
		if direction.Mul(diff).Sign() > 0 {
			tickValue = price.ProfitTickValue
		}

		unrealized := direction.Mul(diff).Mul(decimal.NewFromFloat(tickValue)).Mul(volume).Div(tickSize).Round(digits)
		pos.UnrealizedProfit, _ = unrealized.Float64()
		profit := unrealized.Add(decimal.NewFromFloat(pos.RealizedProfit)).Round(digits)
		pos.Profit, _ = profit.Float64()
		pos.CurrentPrice = newPrice
		pos.CurrentTickValue = tickValue
	}
}

func cloneSlice[T any](in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	return out
}

// purgeExpired drops tombstones older than tombstoneTTL so the maps
// used to ignore late-arriving updates for removed entities don't grow
// without bound.
func purgeExpired(tombstones map[string]int64) {
	cutoff := time.Now().Unix() - tombstoneTTL
	for id, at := range tombstones {
		if at < cutoff {
			delete(tombstones, id)
		}
	}
}

// GetHashes computes the MD5 content digests used for incremental
// resync, normalizing fields the registry marks as ignored for the
// given generation before hashing. accountType selects which
// normalization rules apply ("cloud-g1" or "cloud-g2"); any other
// value is treated as g2. A set of volatile fields (profit,
// currentPrice, currentTickValue, comment and similar per-tick or
// purely-local metadata) is stripped unconditionally regardless of
// what the registry says, since hashing them would change the digest
// on every tick and defeat incremental resync entirely; cloud-g1
// additionally strips description/time/updateTime and promotes
// non-excluded int fields to a float encoding, matching that
// generation's reference hasher.
func (r *Replica) GetHashes(accountType string, ignored hashing.FieldLists) Hashes {
	r.mu.RLock()
	defer r.mu.RUnlock()

	best := r.bestState(nil, "")
	gen := hashing.GenerationG2
	if accountType == "cloud-g1" {
		gen = hashing.GenerationG1
	}

	specs := make([]map[string]interface{}, 0, len(best.SpecificationsBySymbol))
	symbols := make([]string, 0, len(best.SpecificationsBySymbol))
	for sym := range best.SpecificationsBySymbol {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	for _, sym := range symbols {
		specs = append(specs, normalizeSpecification(best.SpecificationsBySymbol[sym], ignored.Specification, gen))
	}

	positions := make([]map[string]interface{}, 0, len(best.Positions))
	sortedPositions := append([]Position(nil), best.Positions...)
	sort.Slice(sortedPositions, func(i, j int) bool { return sortedPositions[i].ID < sortedPositions[j].ID })
	for _, p := range sortedPositions {
		positions = append(positions, normalizePosition(p, ignored.Position, gen))
	}

	orders := make([]map[string]interface{}, 0, len(best.Orders))
	sortedOrders := append([]Order(nil), best.Orders...)
	sort.Slice(sortedOrders, func(i, j int) bool { return sortedOrders[i].ID < sortedOrders[j].ID })
	for _, o := range sortedOrders {
		orders = append(orders, normalizeOrder(o, ignored.Order, gen))
	}

	return Hashes{
		SpecificationsMd5: hashOf(specs),
		PositionsMd5:      hashOf(positions),
		OrdersMd5:         hashOf(orders),
	}
}

// g1Float renders an integer-valued field promoted to float the way
// cloud-g1's reference hasher renders a promoted integer: with an
// explicit decimal point even when the value is whole. encoding/json's
// default float64 marshaling strips a trailing ".0" (5 rather than
// 5.0), which would silently change the g1 digest relative to the
// reference hasher it has to match.
type g1Float float64

func (f g1Float) MarshalJSON() ([]byte, error) {
	if f == g1Float(int64(f)) {
		return []byte(strconv.FormatInt(int64(f), 10) + ".0"), nil
	}
	return json.Marshal(float64(f))
}

// promoteInts converts every int-valued field in m, other than
// excludeKey, to g1Float so cloud-g1 hashing encodes it the way that
// generation's reference hasher does. excludeKey names the one field
// (digits for specifications, magic for positions/orders) that stays a
// plain integer under g1.
func promoteInts(m map[string]interface{}, excludeKey string) {
	for k, v := range m {
		if k == excludeKey {
			continue
		}
		if n, ok := v.(int); ok {
			m[k] = g1Float(n)
		}
	}
}

// normalizeSpecification, normalizePosition and normalizeOrder build
// the map that gets hashed for each entity, omitting the fields that
// must never participate in the digest (per-tick profit/price data for
// positions and orders) before the registry's own ignore list is
// applied on top. gen selects the cloud-g1-specific additional strips
// and int-to-float promotion.
func normalizeSpecification(s Specification, ignore []string, gen hashing.Generation) map[string]interface{} {
	m := map[string]interface{}{
		"symbol":        s.Symbol,
		"digits":        s.Digits,
		"tickSize":      s.TickSize,
		"description":   s.Description,
		"quoteSessions": s.QuoteSessions,
	}
	if gen == hashing.GenerationG1 {
		delete(m, "description")
		promoteInts(m, "digits")
	}
	stripIgnored(m, ignore)
	return m
}

func normalizePosition(p Position, ignore []string, gen hashing.Generation) map[string]interface{} {
	m := map[string]interface{}{
		"id":         p.ID,
		"symbol":     p.Symbol,
		"type":       string(p.Type),
		"openPrice":  p.OpenPrice,
		"volume":     p.Volume,
		"swap":       p.Swap,
		"commission": p.Commission,
		"magic":      p.Magic,
		"time":       p.Time.UTC().Format(time.RFC3339Nano),
		"updateTime": p.UpdateTime.UTC().Format(time.RFC3339Nano),
	}
	if gen == hashing.GenerationG1 {
		delete(m, "time")
		delete(m, "updateTime")
		promoteInts(m, "magic")
	}
	stripIgnored(m, ignore)
	return m
}

func normalizeOrder(o Order, ignore []string, gen hashing.Generation) map[string]interface{} {
	m := map[string]interface{}{
		"id":        o.ID,
		"symbol":    o.Symbol,
		"type":      string(o.Type),
		"openPrice": o.OpenPrice,
		"volume":    o.Volume,
		"magic":     o.Magic,
		"time":      o.Time.UTC().Format(time.RFC3339Nano),
	}
	if gen == hashing.GenerationG1 {
		delete(m, "time")
		promoteInts(m, "magic")
	}
	stripIgnored(m, ignore)
	return m
}

func stripIgnored(m map[string]interface{}, ignore []string) {
	for _, field := range ignore {
		delete(m, field)
	}
}

func hashOf(v interface{}) string {
	raw, _ := json.Marshal(v)
	sum := md5.Sum(raw)
	return hex.EncodeToString(sum[:])
}
