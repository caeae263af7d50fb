package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"kalmanarb-go/internal/signal"
)

func TestFeedRunEmitsObservations(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := NewFeed(ProviderStub, "ethusdt", "BTCUSDT", zerolog.Nop(), WithSampleInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewFeed: %v", err)
	}
	out := make(chan signal.Observation, 4)
	go func() {
		_ = feed.Run(ctx, out)
	}()

	var prev time.Time
	for i := 0; i < 3; i++ {
		select {
		case obs := <-out:
			if obs.PriceY <= 0 || obs.PriceX <= 0 {
				t.Fatalf("non-positive prices: %+v", obs)
			}
			if !obs.Ts.After(prev) {
				t.Fatalf("timestamps must increase: %s then %s", prev, obs.Ts)
			}
			prev = obs.Ts
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for observation")
		}
	}
	cancel()
}

func TestNewFeedValidation(t *testing.T) {
	if _, err := NewFeed("kraken", "A", "B", zerolog.Nop()); err == nil {
		t.Fatalf("expected unknown provider error")
	}
	if _, err := NewFeed(ProviderStub, "A", "a", zerolog.Nop()); err == nil {
		t.Fatalf("expected error for identical legs")
	}
	if _, err := NewFeed(ProviderStub, "", "B", zerolog.Nop()); err == nil {
		t.Fatalf("expected error for missing leg")
	}
	feed, err := NewFeed("", "ethusdt", "btcusdt", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFeed: %v", err)
	}
	if y, x := feed.Symbols(); y != "ETHUSDT" || x != "BTCUSDT" {
		t.Fatalf("unexpected symbols %s %s", y, x)
	}
}

func TestParseBinanceSymbol(t *testing.T) {
	cases := map[string]string{
		"btcusdt@trade":    "BTCUSDT",
		"ethusdt@aggTrade": "ETHUSDT",
		"dogeusdt":         "DOGEUSDT",
		"":                 "",
	}
	for stream, expected := range cases {
		if got := parseBinanceSymbol(stream); got != expected {
			t.Fatalf("expected %s got %s", expected, got)
		}
	}
}

func TestRunBinancePairsLastTrades(t *testing.T) {
	messages := []string{
		`{"stream":"ethusdt@trade","data":{"p":"not-a-price","q":"1","T":1700000000000}}`,
		`{"stream":"ethusdt@trade","data":{"p":"2000.5","q":"0.1","T":1700000000001}}`,
		`{"stream":"btcusdt@trade","data":{"p":"35000","q":"0.01","T":1700000000002}}`,
	}
	upgrader := websocket.Upgrader{}
	queries := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case queries <- r.URL.RawQuery:
		default:
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, m := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		// hold the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := NewFeed(ProviderBinance, "ETHUSDT", "BTCUSDT", zerolog.Nop(),
		WithBinanceURL("ws"+strings.TrimPrefix(server.URL, "http")),
		WithSampleInterval(20*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("NewFeed: %v", err)
	}

	started := time.Now()
	out := make(chan signal.Observation, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- feed.Run(ctx, out)
	}()

	select {
	case obs := <-out:
		if obs.PriceY != 2000.5 || obs.PriceX != 35000 {
			t.Fatalf("unexpected observation %+v", obs)
		}
		// stamped by the sampler, not by the 2023 trade times in the messages
		if obs.Ts.Before(started.Add(-time.Second)) {
			t.Fatalf("observation stamped %s, expected sampling time after %s", obs.Ts, started)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for observation")
	}
	if q := <-queries; q != "streams=ethusdt@trade/btcusdt@trade" {
		t.Fatalf("unexpected stream query %q", q)
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("feed did not stop after cancel")
	}
}
