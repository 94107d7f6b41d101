// Package terminalstate implements the local in-process replica of a
// remote trading terminal: per-instance snapshots, the event reducer
// that keeps them consistent, best-replica selection at read time, and
// content hashing for incremental resync.
package terminalstate

import "time"

// Platform identifies the terminal flavor an account runs on; the
// equity contribution rule (see Snapshot.recomputeEquity) differs
// between the two.
type Platform string

const (
	PlatformMT4 Platform = "mt4"
	PlatformMT5 Platform = "mt5"
)

// PositionType is the direction of an open position.
type PositionType string

const (
	PositionTypeBuy  PositionType = "POSITION_TYPE_BUY"
	PositionTypeSell PositionType = "POSITION_TYPE_SELL"
)

// OrderType enumerates every pending-order flavor the replica tracks.
type OrderType string

const (
	OrderTypeBuy            OrderType = "ORDER_TYPE_BUY"
	OrderTypeSell           OrderType = "ORDER_TYPE_SELL"
	OrderTypeBuyLimit       OrderType = "ORDER_TYPE_BUY_LIMIT"
	OrderTypeSellLimit      OrderType = "ORDER_TYPE_SELL_LIMIT"
	OrderTypeBuyStop        OrderType = "ORDER_TYPE_BUY_STOP"
	OrderTypeSellStop       OrderType = "ORDER_TYPE_SELL_STOP"
	OrderTypeBuyStopLimit   OrderType = "ORDER_TYPE_BUY_STOP_LIMIT"
	OrderTypeSellStopLimit  OrderType = "ORDER_TYPE_SELL_STOP_LIMIT"
)

// isBuyFamily reports whether an order type resolves its current price
// against the ask side, the way BUY-family orders do.
func (t OrderType) isBuyFamily() bool {
	switch t {
	case OrderTypeBuy, OrderTypeBuyLimit, OrderTypeBuyStop, OrderTypeBuyStopLimit:
		return true
	default:
		return false
	}
}

// AccountInformation mirrors the remote account's balance sheet.
type AccountInformation struct {
	Platform    Platform `json:"platform"`
	Broker      string   `json:"broker,omitempty"`
	Currency    string   `json:"currency,omitempty"`
	Balance     float64  `json:"balance"`
	Equity      float64  `json:"equity"`
	Margin      float64  `json:"margin"`
	FreeMargin  float64  `json:"freeMargin"`
	MarginLevel float64  `json:"marginLevel"`
}

// Position is an open MetaTrader-style position.
type Position struct {
	ID                          string       `json:"id"`
	Symbol                      string       `json:"symbol"`
	Type                        PositionType `json:"type"`
	OpenPrice                   float64      `json:"openPrice"`
	Volume                      float64      `json:"volume"`
	CurrentPrice                float64      `json:"currentPrice"`
	CurrentTickValue            float64      `json:"currentTickValue"`
	Profit                      float64      `json:"profit"`
	UnrealizedProfit            float64      `json:"unrealizedProfit,omitempty"`
	HasUnrealizedProfit         bool         `json:"-"`
	RealizedProfit              float64      `json:"realizedProfit,omitempty"`
	HasRealizedProfit           bool         `json:"-"`
	Swap                        float64      `json:"swap"`
	Commission                  float64      `json:"commission"`
	Magic                       int          `json:"magic"`
	Time                        time.Time    `json:"time"`
	UpdateTime                  time.Time    `json:"updateTime"`
	Comment                     string       `json:"comment,omitempty"`
	OriginalComment             string       `json:"originalComment,omitempty"`
	ClientID                    string       `json:"clientId,omitempty"`
	UpdateSequenceNumber        int64        `json:"updateSequenceNumber,omitempty"`
	AccountCurrencyExchangeRate float64      `json:"accountCurrencyExchangeRate,omitempty"`
}

// Clone returns a value copy of the position, safe for callers to
// mutate without affecting the replica's internal state.
func (p *Position) Clone() Position {
	c := *p
	return c
}

// Order is a pending order.
type Order struct {
	ID                          string    `json:"id"`
	Symbol                      string    `json:"symbol"`
	Type                        OrderType `json:"type"`
	OpenPrice                   float64   `json:"openPrice"`
	CurrentPrice                float64   `json:"currentPrice"`
	Volume                      float64   `json:"volume"`
	Magic                       int       `json:"magic"`
	Time                        time.Time `json:"time"`
	Comment                     string    `json:"comment,omitempty"`
	OriginalComment             string    `json:"originalComment,omitempty"`
	ClientID                    string    `json:"clientId,omitempty"`
	UpdateSequenceNumber        int64     `json:"updateSequenceNumber,omitempty"`
	AccountCurrencyExchangeRate float64   `json:"accountCurrencyExchangeRate,omitempty"`
}

// Clone returns a value copy of the order.
func (o *Order) Clone() Order {
	c := *o
	return c
}

// QuoteSession is a broker-specified window, within a day, during
// which quotes are expected for a symbol.
type QuoteSession struct {
	From string `json:"from"` // HH:MM:SS.ffffff
	To   string `json:"to"`   // HH:MM:SS.ffffff
}

// Specification describes a tradable symbol's tick/quote-session
// metadata.
type Specification struct {
	Symbol        string                    `json:"symbol"`
	Digits        int                       `json:"digits"`
	TickSize      float64                   `json:"tickSize"`
	Description   string                    `json:"description,omitempty"`
	QuoteSessions map[string][]QuoteSession `json:"quoteSessions,omitempty"`
}

// Price is a streaming tick for one symbol.
type Price struct {
	Symbol          string    `json:"symbol"`
	Bid             float64   `json:"bid"`
	Ask             float64   `json:"ask"`
	ProfitTickValue float64   `json:"profitTickValue"`
	LossTickValue   float64   `json:"lossTickValue"`
	Time            time.Time `json:"time"`
	BrokerTime      time.Time `json:"brokerTime"`
}

// Snapshot is the per-replica-instance state the reducer maintains.
type Snapshot struct {
	InstanceIndex      string
	Connected          bool
	ConnectedToBroker  bool
	AccountInformation *AccountInformation
	Positions          []Position
	Orders             []Order
	SpecificationsBySymbol map[string]Specification
	PricesBySymbol         map[string]Price
	CompletedOrders        map[string]int64 // orderId -> epoch seconds tombstoned
	RemovedPositions       map[string]int64 // positionId -> epoch seconds tombstoned
	OrdersInitialized      bool
	PositionsInitialized   bool
	LastUpdateTime         float64 // max price time seen, epoch seconds
	InitializationCounter  int
	SpecificationCount     int
}

func newSnapshot(instanceIndex string) *Snapshot {
	return &Snapshot{
		InstanceIndex:          instanceIndex,
		SpecificationsBySymbol: make(map[string]Specification),
		PricesBySymbol:         make(map[string]Price),
		CompletedOrders:        make(map[string]int64),
		RemovedPositions:       make(map[string]int64),
	}
}

// PriceUpdateExtras carries the optional account-summary fields that
// may ride along with a symbol-prices-updated event. A nil pointer
// means "not supplied" and must not overwrite the previously known
// value — see the reducer's OnSymbolPricesUpdated for the exact
// propagation rule, including the pinned margin_level/free_margin
// quirk.
type PriceUpdateExtras struct {
	Equity                      *float64
	Margin                      *float64
	FreeMargin                  *float64
	MarginLevel                 *float64
	AccountCurrencyExchangeRate *float64
}

// Hashes are the three content digests used for incremental resync.
type Hashes struct {
	SpecificationsMd5 string
	PositionsMd5      string
	OrdersMd5         string
}

const tombstoneTTL = 5 * 60 // seconds
