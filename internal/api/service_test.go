package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/atmx/ledger-engine/internal/api"
	"github.com/atmx/ledger-engine/internal/catalog"
	"github.com/atmx/ledger-engine/internal/ledger"
	"github.com/atmx/ledger-engine/internal/model"
	"github.com/atmx/ledger-engine/internal/pricing"
	"github.com/atmx/ledger-engine/internal/session"
	"github.com/atmx/ledger-engine/internal/store"
	"github.com/atmx/ledger-engine/internal/valuation"
)

// China Steel opens at 2.75, so one lot costs 2750.
const chinaSteel = 7

type testEnv struct {
	router chi.Router
	ledger *ledger.Ledger
	engine *pricing.Engine
	locks  *session.Locks
}

// newTestEnv wires a Service over an in-memory store with 3 teams of 10000
// plus the testing team.
func newTestEnv(t *testing.T, policy ledger.Policy) *testEnv {
	t.Helper()
	ctx := context.Background()
	ms := store.NewMemoryStore()

	cat, err := catalog.Parse(catalog.DefaultDefs())
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	engine, err := pricing.NewEngine(cat, ms, pricing.Config{Seed: 1, TicksPerRound: 10, FinalRound: 5}, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := engine.EnsureMarket(ctx); err != nil {
		t.Fatalf("ensure market: %v", err)
	}

	l := ledger.New(ms, ledger.WithPolicy(policy))
	if err := l.Reset(ctx, 3, 10000); err != nil {
		t.Fatalf("reset: %v", err)
	}

	locks := session.NewLocks()
	svc := api.NewService(l, engine, locks, api.Game{Teams: 3, StarterCash: 10000, Currency: "TWD"})

	r := chi.NewRouter()
	r.Route("/api/v1", svc.Routes)
	return &testEnv{router: r, ledger: l, engine: engine, locks: locks}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		data, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) startRound(t *testing.T) {
	t.Helper()
	if _, err := e.engine.StartRound(context.Background()); err != nil {
		t.Fatalf("start round: %v", err)
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

// --- Team tests ---

func TestListTeams(t *testing.T) {
	env := newTestEnv(t, ledger.PolicyStrict)

	w := env.do(t, "GET", "/api/v1/teams", nil)
	expectStatus(t, w, http.StatusOK)

	var accounts []model.TeamAccount
	decode(t, w, &accounts)
	if len(accounts) != 4 {
		t.Fatalf("expected 3 teams plus the testing team, got %d", len(accounts))
	}
	for _, a := range accounts {
		if a.Deposit != 10000 {
			t.Errorf("team %d deposit = %d, want 10000", a.Team, a.Deposit)
		}
	}
}

func TestGetTeam(t *testing.T) {
	env := newTestEnv(t, ledger.PolicyStrict)

	w := env.do(t, "GET", "/api/v1/teams/2", nil)
	expectStatus(t, w, http.StatusOK)

	var sum valuation.Summary
	decode(t, w, &sum)
	if sum.Team != 2 || sum.Deposit != 10000 || sum.NetWorth != 10000 {
		t.Errorf("unexpected summary: %+v", sum)
	}

	expectStatus(t, env.do(t, "GET", "/api/v1/teams/99", nil), http.StatusNotFound)
	expectStatus(t, env.do(t, "GET", "/api/v1/teams/abc", nil), http.StatusBadRequest)
}

func TestAdjustDeposit(t *testing.T) {
	env := newTestEnv(t, ledger.PolicyStrict)

	w := env.do(t, "POST", "/api/v1/teams/1/deposit", api.DepositRequest{Mode: "increase", Amount: 500})
	expectStatus(t, w, http.StatusOK)

	var resp api.DepositResponse
	decode(t, w, &resp)
	if resp.Before != 10000 || resp.After != 10500 {
		t.Errorf("expected 10000 -> 10500, got %d -> %d", resp.Before, resp.After)
	}

	entries, err := env.ledger.TeamLog(context.Background(), 1)
	if err != nil {
		t.Fatalf("team log: %v", err)
	}
	if len(entries) != 1 || entries[0].Actor != "facilitator" {
		t.Errorf("expected one entry by the facilitator, got %+v", entries)
	}
}

func TestAdjustDeposit_Errors(t *testing.T) {
	env := newTestEnv(t, ledger.PolicyStrict)

	tests := []struct {
		name string
		path string
		body interface{}
		want int
	}{
		{"bad mode", "/api/v1/teams/1/deposit", api.DepositRequest{Mode: "double", Amount: 5}, http.StatusBadRequest},
		{"zero amount", "/api/v1/teams/1/deposit", api.DepositRequest{Mode: "increase", Amount: 0}, http.StatusBadRequest},
		{"overdraft", "/api/v1/teams/1/deposit", api.DepositRequest{Mode: "decrease", Amount: 20000}, http.StatusConflict},
		{"unknown team", "/api/v1/teams/42/deposit", api.DepositRequest{Mode: "increase", Amount: 5}, http.StatusNotFound},
		{"bad body", "/api/v1/teams/1/deposit", "not an object", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectStatus(t, env.do(t, "POST", tt.path, tt.body), tt.want)
		})
	}
}

func TestTransfer(t *testing.T) {
	env := newTestEnv(t, ledger.PolicyStrict)

	w := env.do(t, "POST", "/api/v1/transfers", api.TransferRequest{From: 1, To: 2, Amount: 3000, Actor: "banker"})
	expectStatus(t, w, http.StatusOK)

	var resp api.TransferResponse
	decode(t, w, &resp)
	if resp.Source.After != 7000 || resp.Receiver.After != 13000 {
		t.Errorf("unexpected transfer result: %+v", resp)
	}

	expectStatus(t, env.do(t, "POST", "/api/v1/transfers", api.TransferRequest{From: 1, To: 1, Amount: 10}), http.StatusBadRequest)
	expectStatus(t, env.do(t, "POST", "/api/v1/transfers", api.TransferRequest{From: 1, To: 2, Amount: 99999}), http.StatusConflict)
}

// --- Trade tests ---

func TestTradeStock_BuyAndSell(t *testing.T) {
	env := newTestEnv(t, ledger.PolicyStrict)
	env.startRound(t)

	w := env.do(t, "POST", "/api/v1/teams/1/trades", api.TradeRequest{Side: "buy", Stock: chinaSteel, Lots: 2, Actor: "alice"})
	expectStatus(t, w, http.StatusOK)

	var resp api.TradeResponse
	decode(t, w, &resp)
	if resp.Value != 5500 {
		t.Errorf("buy cost = %d, want 5500", resp.Value)
	}
	if resp.Account.Deposit != 4500 {
		t.Errorf("deposit after buy = %d, want 4500", resp.Account.Deposit)
	}
	if len(resp.Account.Positions) != 1 || resp.Account.Positions[0].Lots != 2 {
		t.Errorf("unexpected positions: %+v", resp.Account.Positions)
	}

	w = env.do(t, "POST", "/api/v1/teams/1/trades", api.TradeRequest{Side: "SELL", Stock: chinaSteel, Lots: 1, Actor: "alice"})
	expectStatus(t, w, http.StatusOK)

	if env.locks.IsLocked("alice") {
		t.Error("trade session should be released after the trade")
	}
}

func TestTradeStock_RoundClosed(t *testing.T) {
	env := newTestEnv(t, ledger.PolicyStrict)

	w := env.do(t, "POST", "/api/v1/teams/1/trades", api.TradeRequest{Side: "BUY", Stock: chinaSteel, Lots: 1, Actor: "alice"})
	expectStatus(t, w, http.StatusConflict)
}

func TestTradeStock_SessionBusy(t *testing.T) {
	env := newTestEnv(t, ledger.PolicyStrict)
	env.startRound(t)

	env.locks.Lock("alice")
	w := env.do(t, "POST", "/api/v1/teams/1/trades", api.TradeRequest{Side: "BUY", Stock: chinaSteel, Lots: 1, Actor: "alice"})
	expectStatus(t, w, http.StatusConflict)

	w = env.do(t, "POST", "/api/v1/teams/1/trades", api.TradeRequest{Side: "BUY", Stock: chinaSteel, Lots: 1, Actor: "bob"})
	expectStatus(t, w, http.StatusOK)
}

func TestTradeStock_Validation(t *testing.T) {
	env := newTestEnv(t, ledger.PolicyStrict)
	env.startRound(t)

	tests := []struct {
		name string
		req  api.TradeRequest
		want int
	}{
		{"missing actor", api.TradeRequest{Side: "BUY", Stock: chinaSteel, Lots: 1}, http.StatusBadRequest},
		{"bad side", api.TradeRequest{Side: "HOLD", Stock: chinaSteel, Lots: 1, Actor: "a"}, http.StatusBadRequest},
		{"zero lots", api.TradeRequest{Side: "BUY", Stock: chinaSteel, Lots: 0, Actor: "a"}, http.StatusBadRequest},
		{"unknown stock", api.TradeRequest{Side: "BUY", Stock: 99, Lots: 1, Actor: "a"}, http.StatusNotFound},
		{"insufficient funds", api.TradeRequest{Side: "BUY", Stock: chinaSteel, Lots: 4, Actor: "a"}, http.StatusConflict},
		{"insufficient holdings", api.TradeRequest{Side: "SELL", Stock: chinaSteel, Lots: 1, Actor: "a"}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectStatus(t, env.do(t, "POST", "/api/v1/teams/1/trades", tt.req), tt.want)
		})
	}
}

// --- Market and round tests ---

func TestMarketAndQuote(t *testing.T) {
	env := newTestEnv(t, ledger.PolicyStrict)

	w := env.do(t, "GET", "/api/v1/market", nil)
	expectStatus(t, w, http.StatusOK)
	var snap model.MarketSnapshot
	decode(t, w, &snap)
	if len(snap.Quotes) != 10 {
		t.Fatalf("expected 10 quotes, got %d", len(snap.Quotes))
	}

	w = env.do(t, "GET", "/api/v1/market/0", nil)
	expectStatus(t, w, http.StatusOK)
	var q model.StockQuote
	decode(t, w, &q)
	if q.Symbol != "2330" || q.Price.String() != "58.5" {
		t.Errorf("unexpected quote: %s %s", q.Symbol, q.Price)
	}

	expectStatus(t, env.do(t, "GET", "/api/v1/market/77", nil), http.StatusNotFound)
	expectStatus(t, env.do(t, "GET", "/api/v1/market/x", nil), http.StatusBadRequest)
}

func TestRoundLifecycle(t *testing.T) {
	env := newTestEnv(t, ledger.PolicyStrict)

	expectStatus(t, env.do(t, "POST", "/api/v1/round/end", nil), http.StatusConflict)

	w := env.do(t, "POST", "/api/v1/round/start", nil)
	expectStatus(t, w, http.StatusOK)
	var state model.RoundState
	decode(t, w, &state)
	if state.Round != 1 || !state.InRound {
		t.Errorf("unexpected round state: %+v", state)
	}

	expectStatus(t, env.do(t, "POST", "/api/v1/round/start", nil), http.StatusConflict)
	expectStatus(t, env.do(t, "POST", "/api/v1/round/end", nil), http.StatusOK)

	w = env.do(t, "GET", "/api/v1/round", nil)
	expectStatus(t, w, http.StatusOK)
	decode(t, w, &state)
	if state.Round != 1 || state.InRound {
		t.Errorf("unexpected round state after end: %+v", state)
	}
}

// --- Game-wide tests ---

func TestRanking(t *testing.T) {
	env := newTestEnv(t, ledger.PolicyStrict)
	ctx := context.Background()
	if _, err := env.ledger.AdjustDeposit(ctx, 3, ledger.Increase, 700, "facilitator", false); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	w := env.do(t, "GET", "/api/v1/ranking", nil)
	expectStatus(t, w, http.StatusOK)

	var ranks []valuation.RankEntry
	decode(t, w, &ranks)
	if len(ranks) != 4 {
		t.Fatalf("expected 4 ranks, got %d", len(ranks))
	}
	if ranks[0].Team != 3 || ranks[0].Rank != 1 || ranks[0].Revenue != 700 {
		t.Errorf("unexpected leader: %+v", ranks[0])
	}
	if ranks[1].Rank != 2 || ranks[3].Rank != 2 {
		t.Errorf("tied teams should share rank 2: %+v", ranks)
	}
}

func TestRecentLogAndClear(t *testing.T) {
	env := newTestEnv(t, ledger.PolicyStrict)
	for i := 0; i < 3; i++ {
		expectStatus(t, env.do(t, "POST", "/api/v1/teams/1/deposit", api.DepositRequest{Mode: "increase", Amount: 10}), http.StatusOK)
	}

	w := env.do(t, "GET", "/api/v1/log?n=2", nil)
	expectStatus(t, w, http.StatusOK)
	var entries []model.LedgerEntry
	decode(t, w, &entries)
	if len(entries) != 2 || entries[0].Serial != 1 || entries[1].Serial != 2 {
		t.Errorf("expected serials 1 and 2, got %+v", entries)
	}

	expectStatus(t, env.do(t, "GET", "/api/v1/log?n=-1", nil), http.StatusBadRequest)
	expectStatus(t, env.do(t, "DELETE", "/api/v1/log", nil), http.StatusNoContent)

	w = env.do(t, "GET", "/api/v1/log", nil)
	expectStatus(t, w, http.StatusOK)
	decode(t, w, &entries)
	if len(entries) != 0 {
		t.Errorf("expected empty log, got %d entries", len(entries))
	}
}

func TestResetGame(t *testing.T) {
	env := newTestEnv(t, ledger.PolicyStrict)
	env.startRound(t)
	expectStatus(t, env.do(t, "POST", "/api/v1/teams/1/deposit", api.DepositRequest{Mode: "set", Amount: 1}), http.StatusOK)

	w := env.do(t, "POST", "/api/v1/game/reset", api.ResetRequest{Teams: 5, StarterCash: 2000, ClearLog: true})
	expectStatus(t, w, http.StatusOK)

	var accounts []model.TeamAccount
	decode(t, w, &accounts)
	if len(accounts) != 6 {
		t.Fatalf("expected 6 accounts, got %d", len(accounts))
	}
	if accounts[0].Deposit != 2000 {
		t.Errorf("deposit after reset = %d, want 2000", accounts[0].Deposit)
	}

	round, err := env.engine.Round(context.Background())
	if err != nil {
		t.Fatalf("round: %v", err)
	}
	if round.Round != 0 || round.InRound {
		t.Errorf("market should be back at round 0, got %+v", round)
	}

	entries, err := env.ledger.RecentLog(context.Background(), 0)
	if err != nil {
		t.Fatalf("recent log: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected cleared log, got %d entries", len(entries))
	}
}

func TestResetGame_Defaults(t *testing.T) {
	env := newTestEnv(t, ledger.PolicyStrict)

	w := env.do(t, "POST", "/api/v1/game/reset", nil)
	expectStatus(t, w, http.StatusOK)

	var accounts []model.TeamAccount
	decode(t, w, &accounts)
	if len(accounts) != 4 || accounts[3].Deposit != 10000 {
		t.Errorf("unexpected accounts after default reset: %+v", accounts)
	}
}
