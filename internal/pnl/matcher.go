package pnl

import (
	"sort"

	"github.com/shopspring/decimal"
)

// lotEpsilon is the quantity at or below which a buy lot is considered
// fully consumed. It absorbs floating-point residue, not real inventory.
var lotEpsilon = decimal.NewFromFloat(1e-8)

// buyLot is one unit of unconsumed buy inventory. Lots for a symbol form
// a queue in chronological fill order; the oldest lot is consumed first.
type buyLot struct {
	remaining decimal.Decimal
	price     decimal.Decimal
}

// RealizedMatch aggregates the outcome of one FIFO matching run.
// Quantities and prices carry 4 decimal places, currency amounts 2.
type RealizedMatch struct {
	RealizedQuantity float64 `json:"realized_quantity"`
	CostBasis        float64 `json:"cost_basis"`
	Proceeds         float64 `json:"proceeds"`
	RealizedPnL      float64 `json:"realized_pnl"`
	OpenQuantity     float64 `json:"open_quantity"`
	AvgEntry         float64 `json:"avg_entry"`
	AvgExit          float64 `json:"avg_exit"`
}

// Match runs FIFO lot matching over the fills of a single symbol and
// returns realized P&L on the matched (sold) quantity. The input is
// sorted chronologically before matching, so caller ordering is
// irrelevant to the result. Sell quantity with no covering buy lot is
// short activity and stays unmatched.
func Match(fills []Fill) (*RealizedMatch, error) {
	if err := validateFills(fills); err != nil {
		return nil, err
	}

	// FIFO correctness depends on chronological order; never trust the
	// caller's ordering. The sort is stable so equal timestamps keep
	// their original relative order.
	sorted := make([]Fill, len(fills))
	copy(sorted, fills)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TransactionTime.Before(sorted[j].TransactionTime)
	})

	var (
		lots        []*buyLot
		realizedQty = decimal.Zero
		costBasis   = decimal.Zero
		proceeds    = decimal.Zero
	)

	for _, f := range sorted {
		qty := decimal.NewFromFloat(f.Quantity)
		price := decimal.NewFromFloat(f.Price)

		if normalizeSide(f.Side) == SideBuy {
			lots = append(lots, &buyLot{remaining: qty, price: price})
			continue
		}

		remaining := qty
		for remaining.IsPositive() && len(lots) > 0 {
			head := lots[0]
			matched := decimal.Min(head.remaining, remaining)

			realizedQty = realizedQty.Add(matched)
			costBasis = costBasis.Add(matched.Mul(head.price))
			proceeds = proceeds.Add(matched.Mul(price))

			head.remaining = head.remaining.Sub(matched)
			remaining = remaining.Sub(matched)

			if head.remaining.LessThanOrEqual(lotEpsilon) {
				lots = lots[1:]
			}
		}
	}

	openQty := decimal.Zero
	for _, lot := range lots {
		openQty = openQty.Add(lot.remaining)
	}

	result := &RealizedMatch{
		RealizedQuantity: round4(realizedQty),
		CostBasis:        round2(costBasis),
		Proceeds:         round2(proceeds),
		RealizedPnL:      round2(proceeds.Sub(costBasis)),
		OpenQuantity:     round4(openQty),
	}
	if realizedQty.IsPositive() {
		result.AvgEntry = round4(costBasis.Div(realizedQty))
		result.AvgExit = round4(proceeds.Div(realizedQty))
	}
	return result, nil
}
