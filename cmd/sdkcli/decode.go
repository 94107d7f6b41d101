package main

import (
	"encoding/json"
	"fmt"

	"prime-tradestate-go/connection"
	"prime-tradestate-go/terminalstate"
)

// decodeWireEvent converts one connection.WireEvent frame into the
// flat connection.Event the orchestrator dispatches, unmarshaling the
// raw JSON sub-payloads into their terminalstate types.
func decodeWireEvent(frame connection.WireEvent) (connection.Event, error) {
	event := connection.Event{
		Kind:                  frame.Kind,
		InstanceIndex:         frame.InstanceIndex,
		SynchronizationID:     frame.SynchronizationID,
		Replicas:              frame.Replicas,
		Connected:             frame.Connected,
		SpecificationsUpdated: frame.SpecificationsUpdated,
		PositionsUpdated:      frame.PositionsUpdated,
		OrdersUpdated:         frame.OrdersUpdated,
		PositionID:            frame.PositionID,
		OrderID:               frame.OrderID,
		RemovedSymbols:        frame.RemovedSymbols,
	}

	if frame.AccountInformation != nil {
		raw, err := json.Marshal(frame.AccountInformation)
		if err != nil {
			return event, fmt.Errorf("sdkcli: marshal accountInformation: %w", err)
		}
		if err := json.Unmarshal(raw, &event.AccountInformation); err != nil {
			return event, fmt.Errorf("sdkcli: decode accountInformation: %w", err)
		}
	}
	if err := unmarshalIfPresent(frame.Positions, &event.Positions); err != nil {
		return event, err
	}
	if err := unmarshalIfPresent(frame.Position, &event.Position); err != nil {
		return event, err
	}
	if err := unmarshalIfPresent(frame.Orders, &event.Orders); err != nil {
		return event, err
	}
	if err := unmarshalIfPresent(frame.Order, &event.Order); err != nil {
		return event, err
	}
	if err := unmarshalIfPresent(frame.Specifications, &event.Specifications); err != nil {
		return event, err
	}
	if err := unmarshalIfPresent(frame.Prices, &event.Prices); err != nil {
		return event, err
	}
	if len(frame.PriceExtras) > 0 {
		var extras terminalstate.PriceUpdateExtras
		if err := json.Unmarshal(frame.PriceExtras, &extras); err != nil {
			return event, fmt.Errorf("sdkcli: decode priceExtras: %w", err)
		}
		event.PriceExtras = extras
	}

	return event, nil
}

func unmarshalIfPresent(raw json.RawMessage, target interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("sdkcli: decode payload: %w", err)
	}
	return nil
}
