package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"stonevault.gg/internal/auction"
	"stonevault.gg/internal/econ"
	"stonevault.gg/internal/protocol"
	"stonevault.gg/internal/sim/world"
)

func startTestServer(t *testing.T) (*httptest.Server, *world.World, context.CancelFunc) {
	t.Helper()
	cat, err := econ.NewCatalog([]econ.CurrencyDef{
		{ID: "COIN", Symbol: "g", Name: "Gold Coins", Primary: true, Start: decimal.NewFromInt(250)},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	ledger := econ.NewLedger(cat, 100)
	market := auction.NewEngine(auction.Config{}, ledger, nil)

	logger := log.New(io.Discard, "", 0)
	w := world.New(world.Config{ID: "test", TickRateHz: 100}, ledger, market, logger)
	market.SetCourier(w.Courier())

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()

	srv := httptest.NewServer(NewServer(w, logger).Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(cancel)
	return srv, w, cancel
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readMsg(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return b
}

func TestHandshakeAndBalance(t *testing.T) {
	srv, _, _ := startTestServer(t)
	conn := dial(t, srv)

	send(t, conn, protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      "alice",
	})

	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(readMsg(t, conn), &welcome); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	if welcome.Type != protocol.TypeWelcome || welcome.PlayerID != "alice" || welcome.WorldID != "test" {
		t.Fatalf("welcome: %+v", welcome)
	}
	if len(welcome.Currencies) != 1 || welcome.Currencies[0].ID != "COIN" || !welcome.Currencies[0].Primary {
		t.Fatalf("currencies: %+v", welcome.Currencies)
	}

	send(t, conn, protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Instants:        []protocol.InstantReq{{ID: "I1", Type: protocol.InstBalance}},
	})

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		var ev protocol.Event
		if err := json.Unmarshal(readMsg(t, conn), &ev); err != nil {
			continue
		}
		if ev["type"] != "BALANCE" {
			continue
		}
		balances := ev["balances"].(map[string]any)
		if balances["COIN"] != "250" {
			t.Fatalf("balance: %v", balances)
		}
		return
	}
	t.Fatalf("no BALANCE event before deadline")
}

func TestHandshakeRejectsWrongFirstMessage(t *testing.T) {
	srv, _, _ := startTestServer(t)
	conn := dial(t, srv)

	send(t, conn, protocol.ActMsg{Type: protocol.TypeAct, ProtocolVersion: protocol.Version})

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected close after non-HELLO first message")
	}
}

func TestHandshakeRejectsBadVersion(t *testing.T) {
	srv, _, _ := startTestServer(t)
	conn := dial(t, srv)

	send(t, conn, protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: "0.9",
		PlayerName:      "alice",
	})

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected close on protocol version mismatch")
	}
}

func TestPayBetweenTwoSessions(t *testing.T) {
	srv, w, _ := startTestServer(t)

	alice := dial(t, srv)
	send(t, alice, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, PlayerName: "alice"})
	readMsg(t, alice) // WELCOME

	bob := dial(t, srv)
	send(t, bob, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, PlayerName: "bob"})
	readMsg(t, bob) // WELCOME

	send(t, alice, protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Instants: []protocol.InstantReq{{
			ID:     "I1",
			Type:   protocol.InstPay,
			To:     "bob",
			Amount: "120.50",
		}},
	})

	var payment protocol.Event
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		var ev protocol.Event
		if err := json.Unmarshal(readMsg(t, bob), &ev); err != nil {
			continue
		}
		if ev["type"] == "PAYMENT" {
			payment = ev
			break
		}
	}
	if payment == nil {
		t.Fatalf("bob never saw the PAYMENT event")
	}
	// Amounts come back in canonical decimal form, zeros trimmed.
	if payment["from"] != "alice" || payment["amount"] != "120.5" {
		t.Fatalf("payment: %v", payment)
	}

	if got := w.Ledger().Balance("bob", "COIN"); !got.Equal(decimal.RequireFromString("370.50")) {
		t.Fatalf("bob balance: %s", got)
	}
}
