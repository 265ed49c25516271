package pnl

import (
	"math"

	"github.com/shopspring/decimal"
)

// Tolerance is the maximum acceptable imbalance between total bought and
// total sold quantity for a trade to count as closed.
type Tolerance float64

const (
	// ToleranceLoose absorbs small execution-quantity drift, e.g. from
	// fractional-share rounding at the brokerage.
	ToleranceLoose Tolerance = 0.01
	// ToleranceStrict rejects anything beyond floating-point noise.
	ToleranceStrict Tolerance = 1e-6
)

// ClosedTradeResult is the net outcome of one fully closed round trip.
type ClosedTradeResult struct {
	Symbol      string  `json:"symbol"`
	Quantity    float64 `json:"quantity"`
	BuyCost     float64 `json:"buy_cost"`
	SellValue   float64 `json:"sell_value"`
	RealizedPnL float64 `json:"realized_pnl"`
}

// ValidateClosed treats the fill set as exactly one closed round trip and
// returns its net P&L. Unlike Match it is a single-pass aggregator: no
// chronological sort and no lot-level attribution, which is the right
// tool when the caller already knows the fills form one closed position.
// It returns an UnclosedPositionError when bought and sold quantity
// differ by more than the tolerance.
func ValidateClosed(fills []Fill, tol Tolerance) (*ClosedTradeResult, error) {
	if err := validateFills(fills); err != nil {
		return nil, err
	}

	var (
		buyQty    = decimal.Zero
		sellQty   = decimal.Zero
		buyCost   = decimal.Zero
		sellValue = decimal.Zero
	)
	for _, f := range fills {
		qty := decimal.NewFromFloat(f.Quantity)
		notional := qty.Mul(decimal.NewFromFloat(f.Price))
		if normalizeSide(f.Side) == SideBuy {
			buyQty = buyQty.Add(qty)
			buyCost = buyCost.Add(notional)
		} else {
			sellQty = sellQty.Add(qty)
			sellValue = sellValue.Add(notional)
		}
	}

	bought := round4(buyQty)
	sold := round4(sellQty)
	if math.Abs(bought-sold) > float64(tol) {
		return nil, &UnclosedPositionError{BuyQuantity: bought, SellQuantity: sold}
	}

	// The smaller side is the side that is fully accounted for, so the
	// closed quantity is clamped to it rather than averaged.
	return &ClosedTradeResult{
		Symbol:      fills[0].Symbol,
		Quantity:    math.Min(bought, sold),
		BuyCost:     round2(buyCost),
		SellValue:   round2(sellValue),
		RealizedPnL: round2(sellValue.Sub(buyCost)),
	}, nil
}
