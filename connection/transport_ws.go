package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WireEvent is the over-the-wire JSON shape for one synchronization
// event. It mirrors Event field-for-field; keeping it a distinct type
// means a change to Event's internal field layout doesn't silently
// change the wire contract.
type WireEvent struct {
	Kind                  EventKind       `json:"type"`
	InstanceIndex         string          `json:"instanceIndex"`
	SynchronizationID     string          `json:"synchronizationId,omitempty"`
	Replicas              int             `json:"replicas,omitempty"`
	Connected             bool            `json:"connected,omitempty"`
	SpecificationsUpdated bool            `json:"specificationsUpdated,omitempty"`
	PositionsUpdated      bool            `json:"positionsUpdated,omitempty"`
	OrdersUpdated         bool            `json:"ordersUpdated,omitempty"`
	AccountInformation    interface{}     `json:"accountInformation,omitempty"`
	Positions             json.RawMessage `json:"positions,omitempty"`
	Position              json.RawMessage `json:"position,omitempty"`
	PositionID            string          `json:"positionId,omitempty"`
	Orders                json.RawMessage `json:"orders,omitempty"`
	Order                 json.RawMessage `json:"order,omitempty"`
	OrderID               string          `json:"orderId,omitempty"`
	Specifications        json.RawMessage `json:"specifications,omitempty"`
	RemovedSymbols        []string        `json:"removedSymbols,omitempty"`
	Prices                json.RawMessage `json:"prices,omitempty"`
	PriceExtras           json.RawMessage `json:"priceExtras,omitempty"`
}

// WebsocketSource is the default EventSource, reading one JSON event
// per websocket message off a gorilla/websocket connection. Decoding a
// frame into the flat Event struct is left to the caller-supplied
// decode function so this type stays agnostic of the exact terminal
// state payload shapes living in the terminalstate package (avoiding
// an import of terminalstate from within connection's transport).
type WebsocketSource struct {
	url    string
	decode func(WireEvent) (Event, error)
	log    zerolog.Logger

	mu   sync.Mutex
	conn *websocket.Conn

	events chan Event
	errs   chan error
	closed chan struct{}
}

// NewWebsocketSource dials url and begins reading frames in a
// background goroutine. decode converts one wire frame into the flat
// Event the orchestrator dispatches.
func NewWebsocketSource(ctx context.Context, url string, decode func(WireEvent) (Event, error), log zerolog.Logger) (*WebsocketSource, error) {
	s := &WebsocketSource{
		url:    url,
		decode: decode,
		log:    log.With().Str("component", "websocketSource").Logger(),
		events: make(chan Event, 256),
		errs:   make(chan error, 16),
		closed: make(chan struct{}),
	}
	if err := s.dial(ctx); err != nil {
		return nil, err
	}
	go s.readLoop()
	return s, nil
}

func (s *WebsocketSource) dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("connection: dial %s: %w", s.url, err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return nil
}

func (s *WebsocketSource) readLoop() {
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}

		var frame WireEvent
		if err := conn.ReadJSON(&frame); err != nil {
			select {
			case s.errs <- fmt.Errorf("connection: read: %w", err):
			default:
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				close(s.events)
				close(s.closed)
				return
			}
			continue
		}

		event, err := s.decode(frame)
		if err != nil {
			select {
			case s.errs <- fmt.Errorf("connection: decode: %w", err):
			default:
			}
			continue
		}
		s.events <- event
	}
}

func (s *WebsocketSource) Events() <-chan Event { return s.events }
func (s *WebsocketSource) Errors() <-chan error { return s.errs }

// Reconnect closes the current socket and redials, with a short
// backoff so a flapping server can't spin this into a tight loop.
func (s *WebsocketSource) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.mu.Unlock()

	select {
	case <-time.After(time.Second):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := s.dial(ctx); err != nil {
		return err
	}
	go s.readLoop()
	return nil
}

func (s *WebsocketSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
