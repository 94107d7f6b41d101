// Package trade exposes the order-management surface consumers drive
// against a connected account: market/pending order creation, position
// and order modification, and closing, each correlated with an RPC ID
// and sent through a pluggable Sender.
package trade

import (
	"context"

	"github.com/google/uuid"
)

// Response is the result of a trade request.
type Response struct {
	NumericCode        int    `json:"numericCode"`
	StringCode         string `json:"stringCode"`
	Message            string `json:"message"`
	OrderID            string `json:"orderId,omitempty"`
	PositionID         string `json:"positionId,omitempty"`
	TradeCorrelationID string `json:"-"`
}

// StopOptions expresses a stop loss or take profit either as a bare
// price or as a distance expressed in broker-defined units
// (ABSOLUTE_PRICE, RELATIVE_PRICE, RELATIVE_POINTS, etc.). It is the
// unit-relative half of StopLevel below, which accepts either shape.
type StopOptions struct {
	Value float64
	Units string
}

// StopLevel is the stop-loss/take-profit parameter shape every
// order-creation method accepts: either a bare price (Bare set,
// Options nil) or unit-relative options.
type StopLevel struct {
	Bare    *float64
	Options *StopOptions
}

// Price builds a bare-price StopLevel.
func Price(value float64) StopLevel { return StopLevel{Bare: &value} }

// Units builds a unit-relative StopLevel.
func Units(value float64, units string) StopLevel {
	return StopLevel{Options: &StopOptions{Value: value, Units: units}}
}

// Sender issues a trade or reconnect RPC for an account and returns
// its result. It is the seam a transport-backed client implements,
// letting the facade be tested without a live socket.
type Sender interface {
	SendTrade(ctx context.Context, accountID string, correlationID string, params map[string]interface{}) (Response, error)
	SendReconnect(ctx context.Context, accountID string) error
}

// Facade is the order-management API for one account.
type Facade struct {
	sender    Sender
	accountID string
}

// New creates a Facade that issues every request against accountID
// through sender.
func New(sender Sender, accountID string) *Facade {
	return &Facade{sender: sender, accountID: accountID}
}

func (f *Facade) send(ctx context.Context, params map[string]interface{}, options map[string]interface{}) (Response, error) {
	for k, v := range options {
		params[k] = v
	}
	correlationID := uuid.NewString()
	resp, err := f.sender.SendTrade(ctx, f.accountID, correlationID, params)
	resp.TradeCorrelationID = correlationID
	return resp, err
}

func applyStops(params map[string]interface{}, stopLoss, takeProfit *StopLevel) {
	applyStop(params, "stopLoss", "stopLossUnits", stopLoss)
	applyStop(params, "takeProfit", "takeProfitUnits", takeProfit)
}

func applyStop(params map[string]interface{}, priceKey, unitsKey string, level *StopLevel) {
	if level == nil {
		return
	}
	if level.Bare != nil {
		params[priceKey] = *level.Bare
		return
	}
	if level.Options != nil {
		params[priceKey] = level.Options.Value
		params[unitsKey] = level.Options.Units
	}
}

// CreateMarketBuyOrder opens a market buy position.
func (f *Facade) CreateMarketBuyOrder(ctx context.Context, symbol string, volume float64, stopLoss, takeProfit *StopLevel, options map[string]interface{}) (Response, error) {
	params := map[string]interface{}{"actionType": "ORDER_TYPE_BUY", "symbol": symbol, "volume": volume}
	applyStops(params, stopLoss, takeProfit)
	return f.send(ctx, params, options)
}

// CreateMarketSellOrder opens a market sell position.
func (f *Facade) CreateMarketSellOrder(ctx context.Context, symbol string, volume float64, stopLoss, takeProfit *StopLevel, options map[string]interface{}) (Response, error) {
	params := map[string]interface{}{"actionType": "ORDER_TYPE_SELL", "symbol": symbol, "volume": volume}
	applyStops(params, stopLoss, takeProfit)
	return f.send(ctx, params, options)
}

// CreateLimitBuyOrder places a buy-limit pending order.
func (f *Facade) CreateLimitBuyOrder(ctx context.Context, symbol string, volume, openPrice float64, stopLoss, takeProfit *StopLevel, options map[string]interface{}) (Response, error) {
	params := map[string]interface{}{"actionType": "ORDER_TYPE_BUY_LIMIT", "symbol": symbol, "volume": volume, "openPrice": openPrice}
	applyStops(params, stopLoss, takeProfit)
	return f.send(ctx, params, options)
}

// CreateLimitSellOrder places a sell-limit pending order.
func (f *Facade) CreateLimitSellOrder(ctx context.Context, symbol string, volume, openPrice float64, stopLoss, takeProfit *StopLevel, options map[string]interface{}) (Response, error) {
	params := map[string]interface{}{"actionType": "ORDER_TYPE_SELL_LIMIT", "symbol": symbol, "volume": volume, "openPrice": openPrice}
	applyStops(params, stopLoss, takeProfit)
	return f.send(ctx, params, options)
}

// CreateStopBuyOrder places a buy-stop pending order.
func (f *Facade) CreateStopBuyOrder(ctx context.Context, symbol string, volume, openPrice float64, stopLoss, takeProfit *StopLevel, options map[string]interface{}) (Response, error) {
	params := map[string]interface{}{"actionType": "ORDER_TYPE_BUY_STOP", "symbol": symbol, "volume": volume, "openPrice": openPrice}
	applyStops(params, stopLoss, takeProfit)
	return f.send(ctx, params, options)
}

// CreateStopSellOrder places a sell-stop pending order.
func (f *Facade) CreateStopSellOrder(ctx context.Context, symbol string, volume, openPrice float64, stopLoss, takeProfit *StopLevel, options map[string]interface{}) (Response, error) {
	params := map[string]interface{}{"actionType": "ORDER_TYPE_SELL_STOP", "symbol": symbol, "volume": volume, "openPrice": openPrice}
	applyStops(params, stopLoss, takeProfit)
	return f.send(ctx, params, options)
}

// CreateStopLimitBuyOrder places a buy-stop-limit pending order.
func (f *Facade) CreateStopLimitBuyOrder(ctx context.Context, symbol string, volume, openPrice, stopLimitPrice float64, stopLoss, takeProfit *StopLevel, options map[string]interface{}) (Response, error) {
	params := map[string]interface{}{
		"actionType": "ORDER_TYPE_BUY_STOP_LIMIT", "symbol": symbol, "volume": volume,
		"openPrice": openPrice, "stopLimitPrice": stopLimitPrice,
	}
	applyStops(params, stopLoss, takeProfit)
	return f.send(ctx, params, options)
}

// CreateStopLimitSellOrder places a sell-stop-limit pending order.
func (f *Facade) CreateStopLimitSellOrder(ctx context.Context, symbol string, volume, openPrice, stopLimitPrice float64, stopLoss, takeProfit *StopLevel, options map[string]interface{}) (Response, error) {
	params := map[string]interface{}{
		"actionType": "ORDER_TYPE_SELL_STOP_LIMIT", "symbol": symbol, "volume": volume,
		"openPrice": openPrice, "stopLimitPrice": stopLimitPrice,
	}
	applyStops(params, stopLoss, takeProfit)
	return f.send(ctx, params, options)
}

// ModifyPosition changes an open position's stop loss and/or take
// profit.
func (f *Facade) ModifyPosition(ctx context.Context, positionID string, stopLoss, takeProfit *StopLevel) (Response, error) {
	params := map[string]interface{}{"actionType": "POSITION_MODIFY", "positionId": positionID}
	applyStops(params, stopLoss, takeProfit)
	return f.send(ctx, params, nil)
}

// ClosePositionPartially closes part of an open position's volume.
func (f *Facade) ClosePositionPartially(ctx context.Context, positionID string, volume float64, options map[string]interface{}) (Response, error) {
	params := map[string]interface{}{"actionType": "POSITION_PARTIAL", "positionId": positionID, "volume": volume}
	return f.send(ctx, params, options)
}

// ClosePosition fully closes an open position.
func (f *Facade) ClosePosition(ctx context.Context, positionID string, options map[string]interface{}) (Response, error) {
	params := map[string]interface{}{"actionType": "POSITION_CLOSE_ID", "positionId": positionID}
	return f.send(ctx, params, options)
}

// CloseBy closes a position against an opposite one.
func (f *Facade) CloseBy(ctx context.Context, positionID, oppositePositionID string, options map[string]interface{}) (Response, error) {
	params := map[string]interface{}{"actionType": "POSITION_CLOSE_BY", "positionId": positionID, "closeByPositionId": oppositePositionID}
	return f.send(ctx, params, options)
}

// ClosePositionsBySymbol closes every open position on symbol.
func (f *Facade) ClosePositionsBySymbol(ctx context.Context, symbol string, options map[string]interface{}) (Response, error) {
	params := map[string]interface{}{"actionType": "POSITIONS_CLOSE_SYMBOL", "symbol": symbol}
	return f.send(ctx, params, options)
}

// ModifyOrder changes a pending order's price and stop levels.
func (f *Facade) ModifyOrder(ctx context.Context, orderID string, openPrice float64, stopLoss, takeProfit *StopLevel) (Response, error) {
	params := map[string]interface{}{"actionType": "ORDER_MODIFY", "orderId": orderID, "openPrice": openPrice}
	applyStops(params, stopLoss, takeProfit)
	return f.send(ctx, params, nil)
}

// CancelOrder cancels a pending order.
func (f *Facade) CancelOrder(ctx context.Context, orderID string) (Response, error) {
	return f.send(ctx, map[string]interface{}{"actionType": "ORDER_CANCEL", "orderId": orderID}, nil)
}

// Reconnect asks the transport to reconnect this account's stream.
func (f *Facade) Reconnect(ctx context.Context) error {
	return f.sender.SendReconnect(ctx, f.accountID)
}
