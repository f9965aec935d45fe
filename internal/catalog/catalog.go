// Package catalog holds the fixed set of simulated companies: their display
// identity, first opening price and the quarterly financial figures that
// drive price drift in each round.
package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/atmx/ledger-engine/internal/model"
)

// Supported sectors.
const (
	SectorSemiconductor = "SEMICONDUCTOR"
	SectorElectronics   = "ELECTRONICS"
	SectorFinance       = "FINANCE"
	SectorShipping      = "SHIPPING"
	SectorTelecom       = "TELECOM"
	SectorMaterials     = "MATERIALS"
	SectorConsumer      = "CONSUMER"
)

var validSectors = map[string]bool{
	SectorSemiconductor: true,
	SectorElectronics:   true,
	SectorFinance:       true,
	SectorShipping:      true,
	SectorTelecom:       true,
	SectorMaterials:     true,
	SectorConsumer:      true,
}

// symbolRegex matches exchange codes like 2330 or 00878 or AAPL.
var symbolRegex = regexp.MustCompile(`^[0-9A-Z]{2,6}$`)

var (
	ErrInvalidSymbol = errors.New("catalog: invalid stock symbol")
	ErrInvalidSector = errors.New("catalog: unsupported sector")
	ErrInvalidStock  = errors.New("catalog: invalid stock definition")
	ErrEmpty         = errors.New("catalog: no stocks defined")
)

// QuarterDef is the YAML form of one quarter's financial figures. Numbers are
// strings so they parse exactly into decimals.
type QuarterDef struct {
	EPSQoQ      string `yaml:"eps_qoq"`
	AdjustRatio string `yaml:"adjust_ratio"`
	RandomRatio string `yaml:"random_ratio"`
}

// StockDef is the YAML form of one company.
type StockDef struct {
	Name      string       `yaml:"name"`
	Symbol    string       `yaml:"symbol"`
	Sector    string       `yaml:"sector"`
	FirstOpen string       `yaml:"first_open"`
	Quarters  []QuarterDef `yaml:"quarters"`
}

// Quarter is a parsed quarter. Round r of the game uses quarter r-1.
type Quarter struct {
	EPSQoQ      decimal.Decimal `json:"eps_qoq"`
	AdjustRatio decimal.Decimal `json:"adjust_ratio"`
	RandomRatio decimal.Decimal `json:"random_ratio"`
}

// Stock is a validated company definition.
type Stock struct {
	Name      string          `json:"name"`
	Symbol    string          `json:"symbol"`
	Sector    string          `json:"sector"`
	FirstOpen decimal.Decimal `json:"first_open"`
	Quarters  []Quarter       `json:"quarters"`
}

// Catalog is the ordered stock list; a stock's position is its index.
type Catalog struct {
	Stocks []Stock
}

// Parse validates stock definitions and builds a Catalog.
func Parse(defs []StockDef) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, ErrEmpty
	}

	seen := make(map[string]bool, len(defs))
	stocks := make([]Stock, 0, len(defs))
	for i, def := range defs {
		s, err := parseStock(def)
		if err != nil {
			return nil, fmt.Errorf("stock %d: %w", i, err)
		}
		if seen[s.Symbol] {
			return nil, fmt.Errorf("%w: duplicate symbol %s", ErrInvalidStock, s.Symbol)
		}
		seen[s.Symbol] = true
		stocks = append(stocks, s)
	}
	return &Catalog{Stocks: stocks}, nil
}

func parseStock(def StockDef) (Stock, error) {
	symbol := strings.ToUpper(strings.TrimSpace(def.Symbol))
	if !symbolRegex.MatchString(symbol) {
		return Stock{}, fmt.Errorf("%w: %q", ErrInvalidSymbol, def.Symbol)
	}
	sector := strings.ToUpper(strings.TrimSpace(def.Sector))
	if !validSectors[sector] {
		return Stock{}, fmt.Errorf("%w: %s", ErrInvalidSector, def.Sector)
	}
	if strings.TrimSpace(def.Name) == "" {
		return Stock{}, fmt.Errorf("%w: %s has no name", ErrInvalidStock, symbol)
	}

	open, err := decimal.NewFromString(def.FirstOpen)
	if err != nil || !open.IsPositive() {
		return Stock{}, fmt.Errorf("%w: %s first_open %q must be a positive number",
			ErrInvalidStock, symbol, def.FirstOpen)
	}

	quarters := make([]Quarter, 0, len(def.Quarters))
	for qi, qd := range def.Quarters {
		q, err := parseQuarter(qd)
		if err != nil {
			return Stock{}, fmt.Errorf("%w: %s quarter %d: %v", ErrInvalidStock, symbol, qi+1, err)
		}
		quarters = append(quarters, q)
	}

	return Stock{
		Name:      strings.TrimSpace(def.Name),
		Symbol:    symbol,
		Sector:    sector,
		FirstOpen: open.Round(model.PriceScale),
		Quarters:  quarters,
	}, nil
}

func parseQuarter(qd QuarterDef) (Quarter, error) {
	var q Quarter
	var err error
	if q.EPSQoQ, err = decimalOrZero(qd.EPSQoQ); err != nil {
		return q, fmt.Errorf("eps_qoq: %w", err)
	}
	if q.AdjustRatio, err = decimalOrZero(qd.AdjustRatio); err != nil {
		return q, fmt.Errorf("adjust_ratio: %w", err)
	}
	if q.RandomRatio, err = decimalOrZero(qd.RandomRatio); err != nil {
		return q, fmt.Errorf("random_ratio: %w", err)
	}
	if q.RandomRatio.IsNegative() {
		return q, errors.New("random_ratio must not be negative")
	}
	return q, nil
}

func decimalOrZero(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(strings.TrimSpace(s))
}

// Len returns the number of stocks.
func (c *Catalog) Len() int {
	return len(c.Stocks)
}

// Quarter returns the financial figures a stock uses in the given round
// (1-based). ok is false when the catalog has no data for that round.
func (c *Catalog) Quarter(stock, round int) (Quarter, bool) {
	if stock < 0 || stock >= len(c.Stocks) || round < 1 {
		return Quarter{}, false
	}
	qs := c.Stocks[stock].Quarters
	if round > len(qs) {
		return Quarter{}, false
	}
	return qs[round-1], true
}

// InitialQuotes builds the opening market snapshot: every price and close at
// the first opening price, no drift figures loaded.
func (c *Catalog) InitialQuotes() []model.StockQuote {
	quotes := make([]model.StockQuote, len(c.Stocks))
	for i, s := range c.Stocks {
		quotes[i] = model.StockQuote{
			Index:  i,
			Name:   s.Name,
			Symbol: s.Symbol,
			Price:  s.FirstOpen,
			Close:  s.FirstOpen,
		}
	}
	return quotes
}
