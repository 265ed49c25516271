// Package pnl computes realized profit-and-loss for brokerage account
// activity. It contains three independent calculators: a FIFO lot matcher
// over fill streams, a closed-trade validator for single round trips, and
// an equity-curve extractor that separates trading gains from external
// capital movements. All of them are pure functions over in-memory
// records: no I/O, no persistence, no shared state.
package pnl

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Fill sides as delivered by the brokerage activity feed.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Fill is one brokerage execution. Fills are immutable inputs; the
// calculators never modify them.
type Fill struct {
	Symbol          string    `json:"symbol"`
	Side            string    `json:"side"`
	Quantity        float64   `json:"quantity"`
	Price           float64   `json:"price"`
	TransactionTime time.Time `json:"transaction_time"`
}

// ErrNoFills is returned when a fill-based calculation receives an empty
// fill list.
var ErrNoFills = errors.New("no fills provided")

// InvalidFillError reports a malformed fill rejected before any matching
// takes place.
type InvalidFillError struct {
	Index  int
	Reason string
}

func (e *InvalidFillError) Error() string {
	return fmt.Sprintf("invalid fill at index %d: %s", e.Index, e.Reason)
}

// UnclosedPositionError reports a quantity imbalance exceeding the chosen
// tolerance in the closed-trade validator.
type UnclosedPositionError struct {
	BuyQuantity  float64
	SellQuantity float64
}

func (e *UnclosedPositionError) Error() string {
	return fmt.Sprintf("trade not closed: buyQty=%v, sellQty=%v", e.BuyQuantity, e.SellQuantity)
}

// validateFills rejects empty input and malformed fills. Quantity and
// price must both be positive and the side must be buy or sell.
func validateFills(fills []Fill) error {
	if len(fills) == 0 {
		return ErrNoFills
	}
	for i, f := range fills {
		if f.Quantity <= 0 {
			return &InvalidFillError{Index: i, Reason: "non-positive quantity"}
		}
		if f.Price <= 0 {
			return &InvalidFillError{Index: i, Reason: "non-positive price"}
		}
		switch normalizeSide(f.Side) {
		case SideBuy, SideSell:
		default:
			return &InvalidFillError{Index: i, Reason: fmt.Sprintf("unknown side %q", f.Side)}
		}
	}
	return nil
}

func normalizeSide(side string) string {
	return strings.ToLower(strings.TrimSpace(side))
}

// round2 and round4 convert accumulated decimals to the output precision:
// 2 places for currency amounts, 4 for quantities and prices.
func round2(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func round4(d decimal.Decimal) float64 {
	return d.Round(4).InexactFloat64()
}
