package trade

import (
	"context"
	"testing"
)

type recordingSender struct {
	accountID     string
	correlationID string
	params        map[string]interface{}
	reconnected   bool
}

func (s *recordingSender) SendTrade(ctx context.Context, accountID, correlationID string, params map[string]interface{}) (Response, error) {
	s.accountID = accountID
	s.correlationID = correlationID
	s.params = params
	return Response{NumericCode: 0, StringCode: "TRADE_RETCODE_DONE", OrderID: "42"}, nil
}

func (s *recordingSender) SendReconnect(ctx context.Context, accountID string) error {
	s.reconnected = true
	return nil
}

func TestCreateMarketBuyOrderWithBareStop(t *testing.T) {
	sender := &recordingSender{}
	f := New(sender, "acc-1")

	stopLoss := Price(1.0950)
	resp, err := f.CreateMarketBuyOrder(context.Background(), "EURUSD", 1, &stopLoss, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.OrderID != "42" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if sender.params["actionType"] != "ORDER_TYPE_BUY" || sender.params["symbol"] != "EURUSD" {
		t.Fatalf("unexpected params: %+v", sender.params)
	}
	if sender.params["stopLoss"] != 1.0950 {
		t.Errorf("expected bare stopLoss price, got %v", sender.params["stopLoss"])
	}
	if _, hasUnits := sender.params["stopLossUnits"]; hasUnits {
		t.Error("bare stop should not set stopLossUnits")
	}
	if sender.correlationID == "" {
		t.Error("expected a non-empty RPC correlation id")
	}
}

func TestCreateLimitBuyOrderWithUnitsStop(t *testing.T) {
	sender := &recordingSender{}
	f := New(sender, "acc-1")

	takeProfit := Units(50, "RELATIVE_POINTS")
	_, err := f.CreateLimitBuyOrder(context.Background(), "EURUSD", 1, 1.0900, nil, &takeProfit, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sender.params["takeProfit"] != 50.0 || sender.params["takeProfitUnits"] != "RELATIVE_POINTS" {
		t.Fatalf("unexpected unit-relative stop encoding: %+v", sender.params)
	}
}

func TestOptionsShallowMergeIntoParams(t *testing.T) {
	sender := &recordingSender{}
	f := New(sender, "acc-1")

	_, err := f.ClosePosition(context.Background(), "pos-1", map[string]interface{}{"comment": "manual close"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sender.params["comment"] != "manual close" {
		t.Fatalf("expected options to merge into params, got %+v", sender.params)
	}
	if sender.params["positionId"] != "pos-1" {
		t.Fatalf("expected positionId to survive the merge, got %+v", sender.params)
	}
}

func TestReconnectDelegatesToSender(t *testing.T) {
	sender := &recordingSender{}
	f := New(sender, "acc-1")
	if err := f.Reconnect(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sender.reconnected {
		t.Fatal("expected Reconnect to delegate to the sender")
	}
}
