// Package api provides the facilitator and team HTTP surface over the ledger
// and the market: balance adjustments, transfers, trades, round control and
// read-only views, plus a WebSocket stream of committed entries and ticks.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/atmx/ledger-engine/internal/ledger"
	"github.com/atmx/ledger-engine/internal/model"
	"github.com/atmx/ledger-engine/internal/pricing"
	"github.com/atmx/ledger-engine/internal/session"
	"github.com/atmx/ledger-engine/internal/valuation"
)

// Market is the price engine as seen by the handlers.
type Market interface {
	Snapshot(ctx context.Context) (model.MarketSnapshot, error)
	Round(ctx context.Context) (model.RoundState, error)
	StartRound(ctx context.Context) (model.RoundState, error)
	EndRound(ctx context.Context) (model.RoundState, error)
	ResetMarket(ctx context.Context) error
}

// Game holds the settings a reset and the views need.
type Game struct {
	Teams       int
	StarterCash int64
	Currency    string
}

// Service wires HTTP handlers to the ledger and the market.
type Service struct {
	ledger *ledger.Ledger
	market Market
	locks  *session.Locks
	game   Game
}

// NewService creates the handler set.
func NewService(l *ledger.Ledger, m Market, locks *session.Locks, game Game) *Service {
	if locks == nil {
		locks = session.NewLocks()
	}
	return &Service{ledger: l, market: m, locks: locks, game: game}
}

// Routes mounts every handler on r. The caller decides the prefix.
func (s *Service) Routes(r chi.Router) {
	r.Get("/teams", s.ListTeams)
	r.Get("/teams/{team}", s.GetTeam)
	r.Get("/teams/{team}/log", s.TeamLog)
	r.Post("/teams/{team}/deposit", s.AdjustDeposit)
	r.Post("/teams/{team}/trades", s.TradeStock)
	r.Post("/transfers", s.Transfer)

	r.Get("/market", s.GetMarket)
	r.Get("/market/{stock}", s.GetQuote)

	r.Get("/round", s.GetRound)
	r.Post("/round/start", s.StartRound)
	r.Post("/round/end", s.EndRound)

	r.Get("/ranking", s.Ranking)
	r.Get("/log", s.RecentLog)
	r.Delete("/log", s.ClearLog)
	r.Post("/game/reset", s.ResetGame)
}

// --- Request/Response types ---

// DepositRequest is the JSON body for POST /teams/{team}/deposit.
type DepositRequest struct {
	Mode        string `json:"mode"` // increase, decrease or set
	Amount      int64  `json:"amount"`
	Actor       string `json:"actor"`
	Liquidation bool   `json:"liquidation"`
}

// DepositResponse reports the deposit change.
type DepositResponse struct {
	Team   int   `json:"team"`
	Before int64 `json:"before"`
	After  int64 `json:"after"`
}

// TransferRequest is the JSON body for POST /transfers.
type TransferRequest struct {
	From   int    `json:"from"`
	To     int    `json:"to"`
	Amount int64  `json:"amount"`
	Actor  string `json:"actor"`
}

// TransferResponse reports both sides of a transfer.
type TransferResponse struct {
	From     int           `json:"from"`
	To       int           `json:"to"`
	Amount   int64         `json:"amount"`
	Source   ledger.Change `json:"source"`
	Receiver ledger.Change `json:"receiver"`
}

// TradeRequest is the JSON body for POST /teams/{team}/trades.
type TradeRequest struct {
	Side  string `json:"side"` // BUY or SELL
	Stock int    `json:"stock"`
	Lots  int    `json:"lots"`
	Actor string `json:"actor"` // user placing the order; holds the trade session
}

// TradeResponse is the trade result with the team's updated positions.
type TradeResponse struct {
	Team    int               `json:"team"`
	Side    model.Side        `json:"side"`
	Stock   int               `json:"stock"`
	Lots    int               `json:"lots"`
	Value   int64             `json:"value"` // cost for a buy, realized gain or loss for a sell
	Account valuation.Summary `json:"account"`
}

// ResetRequest is the JSON body for POST /game/reset. Zero values fall back
// to the configured game settings.
type ResetRequest struct {
	Teams       int   `json:"teams"`
	StarterCash int64 `json:"starter_cash"`
	ClearLog    bool  `json:"clear_log"`
}

// --- Team handlers ---

// ListTeams handles GET /api/v1/teams
func (s *Service) ListTeams(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.ledger.Accounts(r.Context())
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if accounts == nil {
		accounts = []model.TeamAccount{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

// GetTeam handles GET /api/v1/teams/{team}
// Returns the account with every position valued at current prices.
func (s *Service) GetTeam(w http.ResponseWriter, r *http.Request) {
	team, ok := teamParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	acct, err := s.ledger.Account(ctx, team)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	snap, err := s.market.Snapshot(ctx)
	if err != nil {
		writeError(w, "failed to load market", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, valuation.Summarize(*acct, snap.Quotes, s.game.Currency))
}

// TeamLog handles GET /api/v1/teams/{team}/log
func (s *Service) TeamLog(w http.ResponseWriter, r *http.Request) {
	team, ok := teamParam(w, r)
	if !ok {
		return
	}
	entries, err := s.ledger.TeamLog(r.Context(), team)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// AdjustDeposit handles POST /api/v1/teams/{team}/deposit
func (s *Service) AdjustDeposit(w http.ResponseWriter, r *http.Request) {
	team, ok := teamParam(w, r)
	if !ok {
		return
	}
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	mode, err := ledger.ParseMode(req.Mode)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	change, err := s.ledger.AdjustDeposit(r.Context(), team, mode, req.Amount, actorOr(req.Actor), req.Liquidation)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DepositResponse{Team: team, Before: change.Before, After: change.After})
}

// Transfer handles POST /api/v1/transfers
func (s *Service) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	src, dst, err := s.ledger.Transfer(r.Context(), req.From, req.To, req.Amount, actorOr(req.Actor))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TransferResponse{
		From:     req.From,
		To:       req.To,
		Amount:   req.Amount,
		Source:   src,
		Receiver: dst,
	})
}

// TradeStock handles POST /api/v1/teams/{team}/trades
// Trading requires an open round, and one user may only run one trade at a
// time.
func (s *Service) TradeStock(w http.ResponseWriter, r *http.Request) {
	team, ok := teamParam(w, r)
	if !ok {
		return
	}
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// --- Input validation ---
	if req.Actor == "" {
		writeError(w, "actor is required", http.StatusBadRequest)
		return
	}
	side := model.Side(strings.ToUpper(strings.TrimSpace(req.Side)))
	if side != model.Buy && side != model.Sell {
		writeError(w, "side must be BUY or SELL", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	round, err := s.market.Round(ctx)
	if err != nil {
		writeError(w, "failed to load round state", http.StatusServiceUnavailable)
		return
	}
	if !round.TradingOpen() {
		writeError(w, "trading is closed between rounds", http.StatusConflict)
		return
	}

	if !s.locks.Lock(req.Actor) {
		writeError(w, "a trade for this user is already in progress", http.StatusConflict)
		return
	}
	defer s.locks.Unlock(req.Actor)

	value, err := s.ledger.TradeStock(ctx, team, side, req.Stock, req.Lots, req.Actor)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	resp := TradeResponse{Team: team, Side: side, Stock: req.Stock, Lots: req.Lots, Value: value}
	if acct, err := s.ledger.Account(ctx, team); err == nil {
		if snap, err := s.market.Snapshot(ctx); err == nil {
			resp.Account = valuation.Summarize(*acct, snap.Quotes, s.game.Currency)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Market handlers ---

// GetMarket handles GET /api/v1/market
func (s *Service) GetMarket(w http.ResponseWriter, r *http.Request) {
	snap, err := s.market.Snapshot(r.Context())
	if err != nil {
		writeError(w, "failed to load market", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetQuote handles GET /api/v1/market/{stock}
func (s *Service) GetQuote(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "stock"))
	if err != nil {
		writeError(w, "stock must be an integer index", http.StatusBadRequest)
		return
	}
	snap, err := s.market.Snapshot(r.Context())
	if err != nil {
		writeError(w, "failed to load market", http.StatusServiceUnavailable)
		return
	}
	for _, q := range snap.Quotes {
		if q.Index == idx {
			writeJSON(w, http.StatusOK, q)
			return
		}
	}
	writeError(w, "stock not found", http.StatusNotFound)
}

// GetRound handles GET /api/v1/round
func (s *Service) GetRound(w http.ResponseWriter, r *http.Request) {
	round, err := s.market.Round(r.Context())
	if err != nil {
		writeError(w, "failed to load round state", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

// StartRound handles POST /api/v1/round/start
func (s *Service) StartRound(w http.ResponseWriter, r *http.Request) {
	round, err := s.market.StartRound(r.Context())
	if err != nil {
		writeRoundError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

// EndRound handles POST /api/v1/round/end
func (s *Service) EndRound(w http.ResponseWriter, r *http.Request) {
	round, err := s.market.EndRound(r.Context())
	if err != nil {
		writeRoundError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

// --- Game-wide handlers ---

// Ranking handles GET /api/v1/ranking
func (s *Service) Ranking(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.ledger.Accounts(r.Context())
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, valuation.RevenueRanking(accounts))
}

// RecentLog handles GET /api/v1/log?n=20
func (s *Service) RecentLog(w http.ResponseWriter, r *http.Request) {
	n := 20
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeError(w, "n must be a non-negative integer", http.StatusBadRequest)
			return
		}
		n = parsed
	}
	entries, err := s.ledger.RecentLog(r.Context(), n)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// ClearLog handles DELETE /api/v1/log
func (s *Service) ClearLog(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.ClearLog(r.Context()); err != nil {
		writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResetGame handles POST /api/v1/game/reset
// Recreates every account, resets the market and optionally clears the log.
func (s *Service) ResetGame(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}
	if req.Teams == 0 {
		req.Teams = s.game.Teams
	}
	if req.StarterCash == 0 {
		req.StarterCash = s.game.StarterCash
	}

	ctx := r.Context()
	if err := s.ledger.Reset(ctx, req.Teams, req.StarterCash); err != nil {
		writeLedgerError(w, err)
		return
	}
	if err := s.market.ResetMarket(ctx); err != nil {
		slog.Error("market reset failed", "err", err)
		writeError(w, "failed to reset market", http.StatusServiceUnavailable)
		return
	}
	if req.ClearLog {
		if err := s.ledger.ClearLog(ctx); err != nil {
			writeLedgerError(w, err)
			return
		}
	}

	slog.Info("game reset", "teams", req.Teams, "starter_cash", req.StarterCash, "clear_log", req.ClearLog)
	accounts, err := s.ledger.Accounts(ctx)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

// --- Helpers ---

func teamParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	team, err := strconv.Atoi(chi.URLParam(r, "team"))
	if err != nil {
		writeError(w, "team must be an integer", http.StatusBadRequest)
		return 0, false
	}
	return team, true
}

func actorOr(actor string) string {
	if actor == "" {
		return "facilitator"
	}
	return actor
}

// writeLedgerError maps ledger failures onto HTTP status codes.
func writeLedgerError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidTransfer),
		errors.Is(err, ledger.ErrInvalidMode),
		errors.Is(err, ledger.ErrInvalidSide):
		status = http.StatusBadRequest
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInsufficientHoldings):
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status >= 500 {
		slog.Error("ledger request failed", "status", status, "err", err)
	}
	writeError(w, err.Error(), status)
}

func writeRoundError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pricing.ErrRoundOpen),
		errors.Is(err, pricing.ErrRoundClosed),
		errors.Is(err, pricing.ErrGameOver):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		slog.Error("round change failed", "err", err)
		writeError(w, "failed to change round", http.StatusServiceUnavailable)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
