package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// streamServer upgrades connections, records subscriptions and pushes one
// orderbook event per subscribed instrument.
func streamServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer stream-token" {
			t.Errorf("auth header = %q", got)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			var req subscribeRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if req.Event != "orderbook:subscribe" {
				continue
			}
			ev := streamEvent{
				Event: "orderbook",
				Payload: Orderbook{
					FIGI:              req.FIGI,
					Bids:              []Level{{Price: 100, Quantity: 1}},
					Asks:              []Level{{Price: 101, Quantity: 1}},
					LastPrice:         100.5,
					ClosePrice:        102,
					MinPriceIncrement: 0.5,
				},
			}
			raw, _ := json.Marshal(ev)
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		}
	}))
}

func TestQuoteStreamCachesEvents(t *testing.T) {
	srv := streamServer(t)
	defer srv.Close()
	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http")

	s := NewQuoteStream(endpoint, "stream-token", nil)
	if err := s.Subscribe("BBG1"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		if ob, ok := s.Latest("BBG1"); ok {
			if ob.LastPrice != 100.5 || ob.Bids[0].Price != 100 {
				t.Fatalf("unexpected cached book: %+v", ob)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("no orderbook event cached in time")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Dynamic subscription while connected works too.
	if err := s.Subscribe("BBG2"); err != nil {
		t.Fatalf("subscribe live: %v", err)
	}
	deadline = time.After(2 * time.Second)
	for {
		if _, ok := s.Latest("BBG2"); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("live subscription produced no event")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop on cancel")
	}
}

func TestQuoteStreamReconnectsWithoutGoroutineGrowth(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close() // drop every connection straight away
	}))
	defer srv.Close()
	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewQuoteStream(endpoint, "stream-token", nil)
	before := runtime.NumGoroutine()
	for i := 0; i < 50; i++ {
		if err := s.Run(ctx); err == nil {
			t.Fatal("Run must report the dropped connection")
		}
	}

	// The per-connection watcher must exit with Run; allow a little slack
	// for the runtime to reap them.
	deadline := time.After(2 * time.Second)
	for {
		if runtime.NumGoroutine() <= before+5 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("goroutines grew from %d to %d over 50 reconnects", before, runtime.NumGoroutine())
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestQuoteStreamRequiresFIGI(t *testing.T) {
	s := NewQuoteStream("ws://unused", "", nil)
	if err := s.Subscribe(""); err == nil {
		t.Fatal("empty figi must be rejected")
	}
}
