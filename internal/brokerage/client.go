// Package brokerage is the REST client for the upstream brokerage API:
// the source of account activities (fills) and portfolio equity history
// that the P&L calculators consume. It speaks the Alpaca-compatible wire
// format, including its habit of sending quantities and prices as JSON
// strings.
package brokerage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/foliopulse/pnl-api/internal/pnl"
)

const (
	activityTypeFill = "FILL"

	requestTimeout = 10 * time.Second

	// Retry policy for the upstream API. The brokerage rate-limits per
	// key pair, and the background sync hits it for every active account,
	// so 429s are an expected operating condition rather than a failure.
	maxRequestAttempts = 3
	retryBaseDelay     = 500 * time.Millisecond
	retryMaxDelay      = 8 * time.Second
)

// Credentials are one account's brokerage API key pair, decrypted in
// memory only.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Fill is one execution from the activity feed, carrying the brokerage
// identifiers the trade journal needs alongside the matching fields.
type Fill struct {
	FillID          string
	OrderID         string
	Symbol          string
	Side            string
	Quantity        float64
	Price           float64
	TransactionTime time.Time
}

// Client talks to the brokerage REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retryDelay time.Duration
}

// NewClient creates a brokerage client against the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		retryDelay: retryBaseDelay,
	}
}

// activity is the wire shape of one account activity record.
type activity struct {
	ID              string `json:"id"`
	ActivityType    string `json:"activity_type"`
	TransactionTime string `json:"transaction_time"`
	Symbol          string `json:"symbol"`
	Side            string `json:"side"`
	Qty             string `json:"qty"`
	Price           string `json:"price"`
	OrderID         string `json:"order_id"`
}

// GetFills fetches the account's activity feed filtered to FILL records,
// optionally restricted to one symbol.
func (c *Client) GetFills(ctx context.Context, creds Credentials, symbol string) ([]Fill, error) {
	query := url.Values{"activity_type": {activityTypeFill}}
	if symbol != "" {
		query.Set("symbol", symbol)
	}

	var activities []activity
	if err := c.get(ctx, creds, "/v2/account/activities", query, &activities); err != nil {
		return nil, fmt.Errorf("failed to fetch account activities: %w", err)
	}

	fills := make([]Fill, 0, len(activities))
	for _, a := range activities {
		if a.ActivityType != activityTypeFill {
			continue
		}
		f, err := a.toFill()
		if err != nil {
			log.Warn().
				Str("activity_id", a.ID).
				Err(err).
				Msg("skipping unparseable fill activity")
			continue
		}
		fills = append(fills, f)
	}
	return fills, nil
}

func (a activity) toFill() (Fill, error) {
	qty, err := strconv.ParseFloat(a.Qty, 64)
	if err != nil {
		return Fill{}, fmt.Errorf("bad qty %q: %w", a.Qty, err)
	}
	price, err := strconv.ParseFloat(a.Price, 64)
	if err != nil {
		return Fill{}, fmt.Errorf("bad price %q: %w", a.Price, err)
	}
	ts, err := time.Parse(time.RFC3339, a.TransactionTime)
	if err != nil {
		return Fill{}, fmt.Errorf("bad transaction_time %q: %w", a.TransactionTime, err)
	}
	return Fill{
		FillID:          a.ID,
		OrderID:         a.OrderID,
		Symbol:          a.Symbol,
		Side:            a.Side,
		Quantity:        qty,
		Price:           price,
		TransactionTime: ts,
	}, nil
}

// portfolioHistory is the wire shape of the daily equity history
// endpoint: parallel arrays indexed by timestamp, plus an optional
// cashflow channel in one of three shapes.
type portfolioHistory struct {
	Timestamp  []int64         `json:"timestamp"`
	Equity     []float64       `json:"equity"`
	ProfitLoss []*float64      `json:"profit_loss"`
	BaseValue  float64         `json:"base_value"`
	Cashflow   json.RawMessage `json:"cashflow"`
}

// GetEquityHistory fetches the account's daily portfolio history and
// joins the parallel series into equity samples.
func (c *Client) GetEquityHistory(ctx context.Context, creds Credentials) ([]pnl.EquitySample, error) {
	query := url.Values{
		"period":    {"all"},
		"timeframe": {"1D"},
	}

	var history portfolioHistory
	if err := c.get(ctx, creds, "/v2/account/portfolio/history", query, &history); err != nil {
		return nil, fmt.Errorf("failed to fetch portfolio history: %w", err)
	}
	return history.toSamples()
}

func (h portfolioHistory) toSamples() ([]pnl.EquitySample, error) {
	if len(h.Timestamp) != len(h.Equity) {
		return nil, fmt.Errorf("mismatched history series: %d timestamps, %d equity values",
			len(h.Timestamp), len(h.Equity))
	}

	cashflows, err := decodeCashflowSeries(h.Cashflow, len(h.Equity))
	if err != nil {
		return nil, err
	}

	samples := make([]pnl.EquitySample, len(h.Equity))
	for i := range h.Equity {
		samples[i] = pnl.EquitySample{
			Timestamp: time.Unix(h.Timestamp[i], 0).UTC(),
			Equity:    h.Equity[i],
			BaseValue: h.BaseValue,
		}
		if i < len(h.ProfitLoss) {
			samples[i].ProfitLoss = h.ProfitLoss[i]
		}
		if cashflows != nil {
			samples[i].Cashflow = cashflows[i]
		}
	}
	return samples, nil
}

// decodeCashflowSeries handles the three series-level cashflow shapes:
// a numeric array, an array of tagged records, or a map from movement
// type to per-sample amounts. Absent or null input yields nil, which
// keeps the extractor on its no-channel fallback.
func decodeCashflowSeries(raw json.RawMessage, n int) ([]*pnl.Cashflow, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var perSample []json.RawMessage
	if err := json.Unmarshal(raw, &perSample); err == nil {
		if len(perSample) != n {
			return nil, fmt.Errorf("cashflow series has %d entries, want %d", len(perSample), n)
		}
		cashflows := make([]*pnl.Cashflow, n)
		for i, entry := range perSample {
			var cf pnl.Cashflow
			if err := json.Unmarshal(entry, &cf); err != nil {
				return nil, fmt.Errorf("bad cashflow entry at index %d: %w", i, err)
			}
			cashflows[i] = &cf
		}
		return cashflows, nil
	}

	var keyed map[string][]float64
	if err := json.Unmarshal(raw, &keyed); err != nil {
		return nil, fmt.Errorf("unsupported cashflow series shape: %w", err)
	}
	cashflows := make([]*pnl.Cashflow, n)
	for i := range cashflows {
		cashflows[i] = &pnl.Cashflow{}
	}
	for movementType, amounts := range keyed {
		if len(amounts) != n {
			return nil, fmt.Errorf("cashflow series %q has %d entries, want %d", movementType, len(amounts), n)
		}
		for i, amount := range amounts {
			if amount != 0 {
				cashflows[i].Add(movementType, amount)
			}
		}
	}
	return cashflows, nil
}

// get performs an authenticated GET against the brokerage API and
// decodes the JSON body into out. Rate-limited (429) and server-side
// (5xx) failures are retried with exponential backoff; other client
// errors fail immediately.
func (c *Client) get(ctx context.Context, creds Credentials, path string, query url.Values, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt < maxRequestAttempts; attempt++ {
		if attempt > 0 {
			if err := c.waitBackoff(ctx, attempt); err != nil {
				return err
			}
			log.Warn().
				Str("path", path).
				Int("attempt", attempt+1).
				Err(lastErr).
				Msg("retrying brokerage request")
		}

		retryable, err := c.doGet(ctx, creds, path, query, out)
		if err == nil {
			return nil
		}
		if !retryable {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (c *Client) doGet(ctx context.Context, creds Credentials, path string, query url.Values, out interface{}) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, err
	}
	req.URL.RawQuery = query.Encode()
	req.Header.Set("APCA-API-KEY-ID", creds.APIKey)
	req.Header.Set("APCA-API-SECRET-KEY", creds.APISecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport failures (timeouts, connection resets) are transient.
		return true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		retryable := resp.StatusCode == http.StatusTooManyRequests ||
			resp.StatusCode >= http.StatusInternalServerError
		return retryable, fmt.Errorf("brokerage returned %d: %s", resp.StatusCode, string(body))
	}
	return false, json.NewDecoder(resp.Body).Decode(out)
}

// waitBackoff sleeps for an exponentially growing, jittered delay before
// the given attempt, honoring context cancellation. Full jitter keeps
// concurrent account syncs from retrying in lockstep.
func (c *Client) waitBackoff(ctx context.Context, attempt int) error {
	base := c.retryDelay
	if base <= 0 {
		base = retryBaseDelay
	}
	delay := base << (attempt - 1)
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	delay = time.Duration(rand.Int63n(int64(delay))) + time.Millisecond

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
