// Package pricing moves the simulated market: it opens and closes rounds and
// applies a drift to every stock price on each tick. A given seed and call
// sequence always produces the same prices.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/ledger-engine/internal/catalog"
	"github.com/atmx/ledger-engine/internal/metrics"
	"github.com/atmx/ledger-engine/internal/model"
	"github.com/atmx/ledger-engine/internal/store"
)

var (
	ErrRoundOpen   = errors.New("pricing: round already in progress")
	ErrRoundClosed = errors.New("pricing: no round in progress")
	ErrGameOver    = errors.New("pricing: final round already played")
)

// MinPrice is the lowest price drift can push a stock to.
var MinPrice = decimal.New(1, -model.PriceScale)

// Config holds engine parameters.
type Config struct {
	Seed          uint64
	TicksPerRound int
	FinalRound    int
}

// Engine owns quote and round state writes.
type Engine struct {
	catalog *catalog.Catalog
	store   store.Store
	cfg     Config
	now     func() time.Time
	onTick  func(model.MarketSnapshot)

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine creates a price engine. onTick, if non-nil, receives the market
// after every applied tick and round change; it must not block.
func NewEngine(cat *catalog.Catalog, st store.Store, cfg Config, onTick func(model.MarketSnapshot)) (*Engine, error) {
	if cfg.TicksPerRound <= 0 {
		return nil, fmt.Errorf("pricing: ticks per round must be positive, got %d", cfg.TicksPerRound)
	}
	if cfg.FinalRound <= 0 {
		return nil, fmt.Errorf("pricing: final round must be positive, got %d", cfg.FinalRound)
	}
	return &Engine{
		catalog: cat,
		store:   st,
		cfg:     cfg,
		now:     time.Now,
		onTick:  onTick,
		rng:     newRand(cfg.Seed),
	}, nil
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Snapshot returns the current quotes and round state.
func (e *Engine) Snapshot(ctx context.Context) (model.MarketSnapshot, error) {
	quotes, err := e.store.ListQuotes(ctx)
	if err != nil {
		return model.MarketSnapshot{}, fmt.Errorf("list quotes: %w", err)
	}
	round, err := e.store.GetRound(ctx)
	if err != nil {
		return model.MarketSnapshot{}, fmt.Errorf("get round: %w", err)
	}
	if quotes == nil {
		quotes = []model.StockQuote{}
	}
	return model.MarketSnapshot{Quotes: quotes, Round: *round}, nil
}

// Round returns the current round state.
func (e *Engine) Round(ctx context.Context) (model.RoundState, error) {
	r, err := e.store.GetRound(ctx)
	if err != nil {
		return model.RoundState{}, err
	}
	return *r, nil
}

// ResetMarket puts every price back at its first opening price, returns the
// game to round 0 and restarts the random sequence from the seed.
func (e *Engine) ResetMarket(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	quotes := e.catalog.InitialQuotes()
	if err := e.store.SaveQuotes(ctx, quotes); err != nil {
		return fmt.Errorf("save quotes: %w", err)
	}
	state := model.RoundState{Round: 0, InRound: false, UpdatedAt: e.now().UTC()}
	if err := e.store.SaveRound(ctx, &state); err != nil {
		return fmt.Errorf("save round: %w", err)
	}
	e.rng = newRand(e.cfg.Seed)

	metrics.CurrentRound.Set(0)
	slog.Info("market reset", "stocks", len(quotes))
	e.publish(quotes, state)
	return nil
}

// EnsureMarket seeds the quotes from the catalog when the store has none.
func (e *Engine) EnsureMarket(ctx context.Context) error {
	quotes, err := e.store.ListQuotes(ctx)
	if err != nil {
		return fmt.Errorf("list quotes: %w", err)
	}
	if len(quotes) > 0 {
		return nil
	}
	return e.ResetMarket(ctx)
}

// StartRound advances to the next round: each closing price is set to the
// current price and the round's quarterly figures are loaded.
func (e *Engine) StartRound(ctx context.Context) (model.RoundState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.store.GetRound(ctx)
	if err != nil {
		return model.RoundState{}, fmt.Errorf("get round: %w", err)
	}
	if state.InRound {
		return *state, ErrRoundOpen
	}
	if state.Round >= e.cfg.FinalRound {
		return *state, ErrGameOver
	}

	quotes, err := e.store.ListQuotes(ctx)
	if err != nil {
		return model.RoundState{}, fmt.Errorf("list quotes: %w", err)
	}
	if len(quotes) == 0 {
		quotes = e.catalog.InitialQuotes()
	}

	next := state.Round + 1
	for i := range quotes {
		quotes[i].Close = quotes[i].Price
		q, ok := e.catalog.Quarter(quotes[i].Index, next)
		if !ok {
			q = catalog.Quarter{}
		}
		quotes[i].EPSQoQ = q.EPSQoQ
		quotes[i].AdjustRatio = q.AdjustRatio
		quotes[i].RandomRatio = q.RandomRatio
	}
	if err := e.store.SaveQuotes(ctx, quotes); err != nil {
		return model.RoundState{}, fmt.Errorf("save quotes: %w", err)
	}

	newState := model.RoundState{Round: next, InRound: true, UpdatedAt: e.now().UTC()}
	if err := e.store.SaveRound(ctx, &newState); err != nil {
		return model.RoundState{}, fmt.Errorf("save round: %w", err)
	}

	metrics.CurrentRound.Set(float64(next))
	slog.Info("round started", "round", next)
	e.publish(quotes, newState)
	return newState, nil
}

// EndRound closes trading for the current round.
func (e *Engine) EndRound(ctx context.Context) (model.RoundState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.store.GetRound(ctx)
	if err != nil {
		return model.RoundState{}, fmt.Errorf("get round: %w", err)
	}
	if !state.InRound {
		return *state, ErrRoundClosed
	}

	newState := model.RoundState{Round: state.Round, InRound: false, UpdatedAt: e.now().UTC()}
	if err := e.store.SaveRound(ctx, &newState); err != nil {
		return model.RoundState{}, fmt.Errorf("save round: %w", err)
	}

	slog.Info("round ended", "round", state.Round, "final", state.Round >= e.cfg.FinalRound)
	if quotes, err := e.store.ListQuotes(ctx); err == nil {
		e.publish(quotes, newState)
	}
	return newState, nil
}

// Tick applies one drift step to every price. Outside a round it returns
// ErrRoundClosed and changes nothing.
//
// Each price moves by price * (eps_qoq * adjust_ratio / ticks_per_round +
// u * random_ratio) with u uniform in [-1, 1), rounded to cents and floored
// at MinPrice.
func (e *Engine) Tick(ctx context.Context) ([]model.StockQuote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.store.GetRound(ctx)
	if err != nil {
		return nil, fmt.Errorf("get round: %w", err)
	}
	if !state.InRound {
		return nil, ErrRoundClosed
	}

	quotes, err := e.store.ListQuotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}

	ticks := decimal.NewFromInt(int64(e.cfg.TicksPerRound))
	for i := range quotes {
		q := &quotes[i]
		trend := q.EPSQoQ.Mul(q.AdjustRatio).Div(ticks)
		noise := decimal.NewFromFloat(e.rng.Float64()*2 - 1).Mul(q.RandomRatio)
		price := q.Price.Add(q.Price.Mul(trend.Add(noise))).Round(model.PriceScale)
		if price.LessThan(MinPrice) {
			price = MinPrice
		}
		q.Price = price
	}

	if err := e.store.SaveQuotes(ctx, quotes); err != nil {
		return nil, fmt.Errorf("save quotes: %w", err)
	}

	metrics.PriceTicks.Inc()
	slog.Debug("market tick", "round", state.Round, "stocks", len(quotes))
	e.publish(quotes, *state)
	return quotes, nil
}

func (e *Engine) publish(quotes []model.StockQuote, state model.RoundState) {
	if e.onTick == nil {
		return
	}
	e.onTick(model.MarketSnapshot{
		Quotes: append([]model.StockQuote(nil), quotes...),
		Round:  state,
	})
}
