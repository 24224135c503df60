package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// QuoteStream keeps the latest orderbook per subscribed instrument, fed by
// the broker's streaming API. It is a lower-latency alternative to polling
// Client.Orderbook: callers check Latest first and fall back to REST for
// instruments that have not produced an event yet.
type QuoteStream struct {
	Endpoint string
	Token    string
	Dialer   *websocket.Dialer
	Log      *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	figis  map[string]bool
	latest map[string]Orderbook
}

func NewQuoteStream(endpoint, token string, log *zap.Logger) *QuoteStream {
	if log == nil {
		log = zap.NewNop()
	}
	return &QuoteStream{
		Endpoint: endpoint,
		Token:    token,
		Dialer:   websocket.DefaultDialer,
		Log:      log,
		figis:    make(map[string]bool),
		latest:   make(map[string]Orderbook),
	}
}

type streamEvent struct {
	Event   string    `json:"event"`
	Payload Orderbook `json:"payload"`
}

type subscribeRequest struct {
	Event string `json:"event"`
	FIGI  string `json:"figi"`
	Depth int    `json:"depth"`
}

// Subscribe registers figi for orderbook events. If the stream is connected
// the subscription is sent immediately; otherwise it is queued for the next
// Run.
func (s *QuoteStream) Subscribe(figi string) error {
	if figi == "" {
		return fmt.Errorf("figi required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.figis[figi] {
		return nil
	}
	s.figis[figi] = true
	if s.conn != nil {
		return s.sendSubscribeLocked(figi)
	}
	return nil
}

func (s *QuoteStream) sendSubscribeLocked(figi string) error {
	req := subscribeRequest{Event: "orderbook:subscribe", FIGI: figi, Depth: 1}
	if err := s.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("subscribe %s: %w", figi, err)
	}
	return nil
}

// Latest returns the most recent book seen for figi, if any.
func (s *QuoteStream) Latest(figi string) (Orderbook, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ob, ok := s.latest[figi]
	return ob, ok
}

// Run dials the streaming endpoint, replays all queued subscriptions and
// caches incoming orderbook events until ctx is done or the connection
// drops. Reconnect policy belongs to the caller.
func (s *QuoteStream) Run(ctx context.Context) error {
	header := map[string][]string{"Authorization": {"Bearer " + s.Token}}
	conn, _, err := s.Dialer.Dial(s.Endpoint, header)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}
	defer conn.Close()

	s.mu.Lock()
	s.conn = conn
	for figi := range s.figis {
		if err := s.sendSubscribeLocked(figi); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		var ev streamEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			s.Log.Warn("stream: bad event", zap.Error(err))
			continue
		}
		if ev.Event != "orderbook" {
			continue
		}
		s.mu.Lock()
		s.latest[ev.Payload.FIGI] = ev.Payload
		s.mu.Unlock()
	}
}
