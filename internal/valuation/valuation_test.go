package valuation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/ledger-engine/internal/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAverageCost(t *testing.T) {
	tests := []struct {
		name  string
		costs []int64
		want  string
	}{
		{"none", nil, "0"},
		{"single lot", []int64{50000}, "50"},
		{"mixed", []int64{50000, 55000}, "52.5"},
		{"rounds to cents", []int64{10001, 10002, 10002}, "10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AverageCost(tt.costs)
			assert.True(t, got.Equal(d(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestUnrealizedGainLoss(t *testing.T) {
	assert.Equal(t, int64(5000), UnrealizedGainLoss([]int64{50000}, d("55.00")))
	assert.Equal(t, int64(-10000), UnrealizedGainLoss([]int64{50000, 50000}, d("45")))
	assert.Equal(t, int64(0), UnrealizedGainLoss(nil, d("45")))

	// Price is rounded to cents before comparison: 52.499 -> 52.50.
	assert.Equal(t, int64(0), UnrealizedGainLoss([]int64{50000, 55000}, d("52.499")))
}

func TestTotalUnrealized(t *testing.T) {
	acct := model.NewTeamAccount(1, 0)
	acct.Holdings[0] = []int64{50000}
	acct.Holdings[2] = []int64{10000, 10000}
	acct.Holdings[7] = []int64{1000}

	quotes := []model.StockQuote{
		{Index: 0, Price: d("51")},
		{Index: 2, Price: d("9.5")},
	}
	assert.Equal(t, int64(1000-1000), TotalUnrealized(acct, quotes))
}

func TestRevenueRanking(t *testing.T) {
	accounts := []model.TeamAccount{
		{Team: 4, Revenue: 100},
		{Team: 1, Revenue: 300},
		{Team: 3, Revenue: 100},
		{Team: 2, Revenue: 0},
	}
	ranking := RevenueRanking(accounts)

	require.Len(t, ranking, 4)
	assert.Equal(t, []RankEntry{
		{Rank: 1, Team: 1, Revenue: 300},
		{Rank: 2, Team: 3, Revenue: 100},
		{Rank: 2, Team: 4, Revenue: 100},
		{Rank: 4, Team: 2, Revenue: 0},
	}, ranking)
	assert.Equal(t, 4, accounts[0].Team, "input order untouched")
}

func TestSummarize(t *testing.T) {
	acct := model.NewTeamAccount(3, 10000)
	acct.Revenue = 5000
	acct.Holdings[0] = []int64{50000, 50000}
	acct.Holdings[5] = []int64{12000}

	quotes := []model.StockQuote{
		{Index: 0, Name: "TSMC", Symbol: "2330", Price: d("55.004")},
	}
	s := Summarize(acct, quotes, "USD")

	assert.Equal(t, 3, s.Team)
	assert.Equal(t, "$10,000.00", s.DepositDisplay)
	require.Len(t, s.Positions, 2)

	p := s.Positions[0]
	assert.Equal(t, "TSMC 2330", p.Label)
	assert.Equal(t, 2, p.Lots)
	assert.True(t, p.Price.Equal(d("55")))
	assert.Equal(t, int64(110000), p.MarketValue)
	assert.Equal(t, int64(10000), p.Unrealized)

	unquoted := s.Positions[1]
	assert.Equal(t, 5, unquoted.Stock)
	assert.Zero(t, unquoted.MarketValue)

	assert.Equal(t, int64(110000), s.MarketValue)
	assert.Equal(t, int64(10000), s.TotalUnrealized)
	assert.Equal(t, int64(120000), s.NetWorth)
}

func TestFormatCash_UnknownCurrency(t *testing.T) {
	assert.Equal(t, "-250", FormatCash(-250, "XYZ"))
}
