// Package valuation derives display figures from ledger and market state:
// average cost, unrealized gain/loss and the revenue ranking. Every function
// is pure; nothing here writes to the store.
package valuation

import (
	"sort"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/atmx/ledger-engine/internal/model"
)

var lotSize = decimal.NewFromInt(model.LotSize)

// AverageCost is the mean per-share acquisition cost of the given lots,
// rounded to cents. No lots means zero.
func AverageCost(costs []int64) decimal.Decimal {
	if len(costs) == 0 {
		return decimal.Zero
	}
	var sum int64
	for _, c := range costs {
		sum += c
	}
	shares := decimal.NewFromInt(int64(len(costs))).Mul(lotSize)
	return decimal.NewFromInt(sum).Div(shares).Round(model.PriceScale)
}

// UnrealizedGainLoss is the paper result of the lots held against price:
// (price rounded to cents - average cost) per share, over every share held.
func UnrealizedGainLoss(costs []int64, price decimal.Decimal) int64 {
	if len(costs) == 0 {
		return 0
	}
	perShare := price.Round(model.PriceScale).Sub(AverageCost(costs))
	shares := decimal.NewFromInt(int64(len(costs))).Mul(lotSize)
	return perShare.Mul(shares).Round(0).IntPart()
}

// TotalUnrealized sums UnrealizedGainLoss over every stock the account holds.
// Stocks without a quote are skipped.
func TotalUnrealized(acct model.TeamAccount, quotes []model.StockQuote) int64 {
	prices := priceIndex(quotes)
	var total int64
	for _, stock := range acct.HeldStocks() {
		price, ok := prices[stock]
		if !ok {
			continue
		}
		total += UnrealizedGainLoss(acct.Holdings[stock], price)
	}
	return total
}

// RankEntry is one line of the revenue ranking.
type RankEntry struct {
	Rank    int   `json:"rank"`
	Team    int   `json:"team"`
	Revenue int64 `json:"revenue"`
}

// RevenueRanking orders teams by revenue, highest first, breaking ties by
// team number. Teams with equal revenue share a rank.
func RevenueRanking(accounts []model.TeamAccount) []RankEntry {
	sorted := make([]model.TeamAccount, len(accounts))
	copy(sorted, accounts)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Revenue != sorted[j].Revenue {
			return sorted[i].Revenue > sorted[j].Revenue
		}
		return sorted[i].Team < sorted[j].Team
	})

	ranking := make([]RankEntry, len(sorted))
	for i, a := range sorted {
		rank := i + 1
		if i > 0 && a.Revenue == sorted[i-1].Revenue {
			rank = ranking[i-1].Rank
		}
		ranking[i] = RankEntry{Rank: rank, Team: a.Team, Revenue: a.Revenue}
	}
	return ranking
}

// Position is the valuation of one held stock.
type Position struct {
	Stock       int             `json:"stock"`
	Label       string          `json:"label"`
	Lots        int             `json:"lots"`
	AverageCost decimal.Decimal `json:"average_cost"`
	Price       decimal.Decimal `json:"price"`
	MarketValue int64           `json:"market_value"`
	Unrealized  int64           `json:"unrealized"`
}

// Summary is a team's account with its positions valued at current prices.
type Summary struct {
	Team            int        `json:"team"`
	Deposit         int64      `json:"deposit"`
	DepositDisplay  string     `json:"deposit_display"`
	Revenue         int64      `json:"revenue"`
	Positions       []Position `json:"positions"`
	MarketValue     int64      `json:"market_value"`
	TotalUnrealized int64      `json:"total_unrealized"`
	NetWorth        int64      `json:"net_worth"`
}

// Summarize values every held position of acct. Stocks without a quote are
// listed with a zero price and no market value.
func Summarize(acct model.TeamAccount, quotes []model.StockQuote, currency string) Summary {
	byIndex := make(map[int]model.StockQuote, len(quotes))
	for _, q := range quotes {
		byIndex[q.Index] = q
	}

	s := Summary{
		Team:           acct.Team,
		Deposit:        acct.Deposit,
		DepositDisplay: FormatCash(acct.Deposit, currency),
		Revenue:        acct.Revenue,
		Positions:      []Position{},
	}
	for _, stock := range acct.HeldStocks() {
		costs := acct.Holdings[stock]
		p := Position{
			Stock:       stock,
			Lots:        len(costs),
			AverageCost: AverageCost(costs),
		}
		if q, ok := byIndex[stock]; ok {
			p.Label = q.Label()
			p.Price = q.Price.Round(model.PriceScale)
			p.MarketValue = q.UnitCost() * int64(len(costs))
			p.Unrealized = UnrealizedGainLoss(costs, q.Price)
		}
		s.MarketValue += p.MarketValue
		s.TotalUnrealized += p.Unrealized
		s.Positions = append(s.Positions, p)
	}
	s.NetWorth = s.Deposit + s.MarketValue
	return s
}

// FormatCash renders a whole-unit cash amount in the given ISO currency,
// e.g. "NT$10,000.00". Unknown currencies fall back to a bare number.
func FormatCash(amount int64, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return decimal.NewFromInt(amount).String()
	}
	minor := decimal.NewFromInt(amount).Shift(int32(cur.Fraction))
	return money.New(minor.IntPart(), currency).Display()
}

func priceIndex(quotes []model.StockQuote) map[int]decimal.Decimal {
	prices := make(map[int]decimal.Decimal, len(quotes))
	for _, q := range quotes {
		prices[q.Index] = q.Price
	}
	return prices
}
