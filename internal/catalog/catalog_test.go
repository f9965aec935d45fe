package catalog

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Default(t *testing.T) {
	c, err := Parse(DefaultDefs())
	require.NoError(t, err)
	assert.Equal(t, 10, c.Len())

	tsmc := c.Stocks[0]
	assert.Equal(t, "2330", tsmc.Symbol)
	assert.True(t, tsmc.FirstOpen.Equal(decimal.RequireFromString("58.5")))
	assert.Len(t, tsmc.Quarters, 5)
}

func TestParse_NormalizesSymbolAndSector(t *testing.T) {
	c, err := Parse([]StockDef{
		{Name: " Apple ", Symbol: " aapl", Sector: "electronics", FirstOpen: "190.456"},
	})
	require.NoError(t, err)

	s := c.Stocks[0]
	assert.Equal(t, "Apple", s.Name)
	assert.Equal(t, "AAPL", s.Symbol)
	assert.Equal(t, SectorElectronics, s.Sector)
	assert.Equal(t, "190.46", s.FirstOpen.StringFixed(2))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		defs []StockDef
		want error
	}{
		{"empty", nil, ErrEmpty},
		{"bad symbol", []StockDef{{Name: "X", Symbol: "2-330", Sector: SectorFinance, FirstOpen: "1"}}, ErrInvalidSymbol},
		{"bad sector", []StockDef{{Name: "X", Symbol: "2330", Sector: "CASINO", FirstOpen: "1"}}, ErrInvalidSector},
		{"no name", []StockDef{{Symbol: "2330", Sector: SectorFinance, FirstOpen: "1"}}, ErrInvalidStock},
		{"zero open", []StockDef{{Name: "X", Symbol: "2330", Sector: SectorFinance, FirstOpen: "0"}}, ErrInvalidStock},
		{"bad open", []StockDef{{Name: "X", Symbol: "2330", Sector: SectorFinance, FirstOpen: "abc"}}, ErrInvalidStock},
		{"bad quarter", []StockDef{{Name: "X", Symbol: "2330", Sector: SectorFinance, FirstOpen: "1",
			Quarters: []QuarterDef{{EPSQoQ: "x"}}}}, ErrInvalidStock},
		{"negative random", []StockDef{{Name: "X", Symbol: "2330", Sector: SectorFinance, FirstOpen: "1",
			Quarters: []QuarterDef{{RandomRatio: "-0.1"}}}}, ErrInvalidStock},
		{"duplicate", []StockDef{
			{Name: "X", Symbol: "2330", Sector: SectorFinance, FirstOpen: "1"},
			{Name: "Y", Symbol: "2330", Sector: SectorFinance, FirstOpen: "2"},
		}, ErrInvalidStock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.defs)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestQuarter_ByRound(t *testing.T) {
	c, err := Parse(DefaultDefs())
	require.NoError(t, err)

	q, ok := c.Quarter(0, 1)
	require.True(t, ok)
	assert.Equal(t, "0.12", q.EPSQoQ.String())

	_, ok = c.Quarter(0, 0)
	assert.False(t, ok, "round 0 is preparation")
	_, ok = c.Quarter(0, 6)
	assert.False(t, ok)
	_, ok = c.Quarter(99, 1)
	assert.False(t, ok)
}

func TestInitialQuotes(t *testing.T) {
	c, err := Parse(DefaultDefs())
	require.NoError(t, err)

	quotes := c.InitialQuotes()
	require.Len(t, quotes, 10)
	for i, q := range quotes {
		assert.Equal(t, i, q.Index)
		assert.True(t, q.Price.Equal(c.Stocks[i].FirstOpen))
		assert.True(t, q.Close.Equal(q.Price))
	}
	assert.Equal(t, "TSMC 2330", quotes[0].Label())
}
