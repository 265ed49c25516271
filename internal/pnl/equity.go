package pnl

import (
	"math"
	"time"
)

// DefaultDepositJumpThreshold is the minimum absolute equity increase
// between consecutive samples treated as an inferred deposit when no
// cashflow channel is present. It is a heuristic, not a derived value:
// a large single-session trading gain above it will be misclassified as
// a deposit, which is accepted in the absence of authoritative cashflow
// data.
const DefaultDepositJumpThreshold = 5000.0

// EquitySample is one point of an account equity time series. Equity can
// be exactly 0 before the account is first funded; those samples mean
// "no position yet", not a loss. ProfitLoss, when present, is cumulative
// against BaseValue, not a per-sample delta.
type EquitySample struct {
	Timestamp  time.Time `json:"timestamp"`
	Equity     float64   `json:"equity"`
	ProfitLoss *float64  `json:"profit_loss,omitempty"`
	Cashflow   *Cashflow `json:"cashflow,omitempty"`
	BaseValue  float64   `json:"base_value,omitempty"`
}

// TradingPnLResult attributes an account's growth to trading decisions
// rather than funding events.
type TradingPnLResult struct {
	TradingPnL    float64 `json:"trading_pnl"`
	BaseValue     float64 `json:"base_value"`
	EndingEquity  float64 `json:"ending_equity"`
	GrowthPercent float64 `json:"growth_percent"`
}

// Extractor separates trading-driven gains from externally-injected
// capital in an account equity series. The zero value uses
// DefaultDepositJumpThreshold.
type Extractor struct {
	DepositJumpThreshold float64
}

// Extract computes trading P&L and growth over a chronological equity
// series. It never fails: equity history is best-effort telemetry, so
// missing or partial data degrades to zero-valued results.
//
// The extraction strategy is fixed, in decreasing order of trust in the
// source data:
//  1. a supplied cumulative profit_loss series, read at its last value
//  2. equity delta corrected by an explicit cashflow channel
//  3. equity delta corrected by jump-inferred deposits
func (x Extractor) Extract(series []EquitySample) TradingPnLResult {
	if len(series) == 0 {
		return TradingPnLResult{}
	}

	// Locate the funding origin: samples before the first positive
	// equity are a pre-funding void, not a drawdown from zero.
	firstFunded := -1
	for i, s := range series {
		if s.Equity > 0 {
			firstFunded = i
			break
		}
	}
	if firstFunded < 0 {
		return TradingPnLResult{}
	}

	ending := series[len(series)-1].Equity
	base := explicitBaseValue(series)
	if base <= 0 {
		// Raw starting equity absorbs any deposit that landed exactly at
		// the first sample; it is only a fallback when the source gives
		// no true base value.
		base = series[firstFunded].Equity
	}

	equityDelta := ending - base
	cumulative, supplied := lastCumulativePnL(series)
	deposits, hasChannel := explicitDeposits(series)

	var tradingPnL float64
	switch {
	case supplied && trustworthy(cumulative, equityDelta):
		tradingPnL = cumulative
	case hasChannel:
		tradingPnL = equityDelta
		if deposits > 0 {
			tradingPnL = equityDelta - deposits
		}
	case supplied:
		// A cumulative series exists but looks stale or mismatched, and
		// there is no cashflow channel to correct with. The raw delta is
		// the conservative attribution.
		tradingPnL = equityDelta
	default:
		tradingPnL = ending - x.inferredDeposits(series, firstFunded)
	}

	result := TradingPnLResult{
		TradingPnL:   roundTo2(tradingPnL),
		BaseValue:    base,
		EndingEquity: ending,
	}
	if base > 0 {
		result.GrowthPercent = roundTo2(tradingPnL / base * 100)
	}
	return result
}

// lastCumulativePnL reads the last value of a supplied cumulative
// profit_loss series. The values are cumulative against the base value,
// so summing them would double-count; only the last one matters.
func lastCumulativePnL(series []EquitySample) (float64, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if series[i].ProfitLoss != nil {
			return *series[i].ProfitLoss, true
		}
	}
	return 0, false
}

// trustworthy rejects a cumulative P&L value that is sharply smaller
// than the observed equity delta, which indicates a stale or mismatched
// series.
func trustworthy(cumulative, equityDelta float64) bool {
	return math.Abs(cumulative) >= math.Abs(equityDelta)/2
}

// explicitDeposits sums deposits from the cashflow channel, reporting
// whether any sample carried one at all.
func explicitDeposits(series []EquitySample) (float64, bool) {
	hasChannel := false
	var deposits float64
	for _, s := range series {
		if s.Cashflow != nil {
			hasChannel = true
			deposits += s.Cashflow.Deposits()
		}
	}
	return deposits, hasChannel
}

// inferredDeposits approximates total deposits without a cashflow
// channel. The first funded sample's equity is the initial funding, and
// any later jump between consecutive samples above the threshold is
// counted as a deposit.
func (x Extractor) inferredDeposits(series []EquitySample, firstFunded int) float64 {
	threshold := x.DepositJumpThreshold
	if threshold <= 0 {
		threshold = DefaultDepositJumpThreshold
	}

	deposits := series[firstFunded].Equity
	for i := firstFunded + 1; i < len(series); i++ {
		jump := series[i].Equity - series[i-1].Equity
		if jump > threshold {
			deposits += jump
		}
	}
	return deposits
}

func explicitBaseValue(series []EquitySample) float64 {
	for _, s := range series {
		if s.BaseValue > 0 {
			return s.BaseValue
		}
	}
	return 0
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}
