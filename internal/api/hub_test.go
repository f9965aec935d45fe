package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atmx/ledger-engine/internal/api"
	"github.com/atmx/ledger-engine/internal/model"
)

func dialHub(t *testing.T) (*api.Hub, *websocket.Conn) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := api.NewHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return hub, conn
}

func readMessage(t *testing.T, conn *websocket.Conn) api.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg api.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return msg
}

func TestHub_PublishEntry(t *testing.T) {
	hub, conn := dialHub(t)

	hub.PublishEntry(model.LedgerEntry{Serial: 7, Kind: model.KindTransfer, Team: 1, CounterTeam: 2, Amount: 300})

	msg := readMessage(t, conn)
	if msg.Type != api.MsgLedgerEntry {
		t.Fatalf("expected %s, got %s", api.MsgLedgerEntry, msg.Type)
	}
	if msg.Entry == nil || msg.Entry.Serial != 7 || msg.Entry.CounterTeam != 2 {
		t.Errorf("unexpected entry: %+v", msg.Entry)
	}
}

func TestHub_PublishMarket(t *testing.T) {
	hub, conn := dialHub(t)

	hub.PublishMarket(model.MarketSnapshot{
		Quotes: []model.StockQuote{{Index: 0, Name: "TSMC", Symbol: "2330"}},
		Round:  model.RoundState{Round: 2, InRound: true},
	})

	msg := readMessage(t, conn)
	if msg.Type != api.MsgMarketTick {
		t.Fatalf("expected %s, got %s", api.MsgMarketTick, msg.Type)
	}
	if msg.Market == nil || len(msg.Market.Quotes) != 1 || msg.Market.Round.Round != 2 {
		t.Errorf("unexpected market: %+v", msg.Market)
	}
}

func TestHub_ClientsAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := api.NewHub()
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	if n := hub.Clients(); n != 0 {
		t.Errorf("expected 0 clients after shutdown, got %d", n)
	}
}
