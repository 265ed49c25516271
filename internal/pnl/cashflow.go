package pnl

import (
	"encoding/json"
	"fmt"
)

// Movement types that appear in brokerage cashflow channels. Fees are
// excluded from deposit detection: they are not investable capital.
const (
	MovementFee     = "FEE"
	MovementJournal = "JNLC"
	MovementDeposit = "DEP"
	movementUntyped = ""
)

// CashflowEntry is one externally-caused capital movement at a sample,
// positive for money entering the account.
type CashflowEntry struct {
	Type   string  `json:"activity_type"`
	Amount float64 `json:"amount"`
}

// Cashflow is the cashflow side channel of one equity sample. Brokerage
// feeds deliver it in three wire shapes: a flat number, a tagged
// {activity_type, amount} record, or a map keyed by movement type. All
// three decode into the same entry list.
type Cashflow struct {
	entries []CashflowEntry
}

// Add appends a movement, for callers building samples programmatically.
func (c *Cashflow) Add(movementType string, amount float64) {
	c.entries = append(c.entries, CashflowEntry{Type: movementType, Amount: amount})
}

// Entries returns the decoded movements.
func (c *Cashflow) Entries() []CashflowEntry {
	return c.entries
}

// Deposits sums the positive, non-fee movements: the externally-injected
// capital that must not be attributed to trading.
func (c *Cashflow) Deposits() float64 {
	if c == nil {
		return 0
	}
	var total float64
	for _, e := range c.entries {
		if e.Type == MovementFee {
			continue
		}
		if e.Amount > 0 {
			total += e.Amount
		}
	}
	return total
}

// UnmarshalJSON accepts the three wire shapes documented on Cashflow.
func (c *Cashflow) UnmarshalJSON(data []byte) error {
	c.entries = nil

	var flat float64
	if err := json.Unmarshal(data, &flat); err == nil {
		if flat != 0 {
			c.entries = []CashflowEntry{{Type: movementUntyped, Amount: flat}}
		}
		return nil
	}

	var tagged CashflowEntry
	if err := json.Unmarshal(data, &tagged); err == nil && tagged.Type != "" {
		c.entries = []CashflowEntry{tagged}
		return nil
	}

	var keyed map[string]float64
	if err := json.Unmarshal(data, &keyed); err == nil {
		for movementType, amount := range keyed {
			if amount == 0 {
				continue
			}
			c.entries = append(c.entries, CashflowEntry{Type: movementType, Amount: amount})
		}
		return nil
	}

	return fmt.Errorf("unsupported cashflow shape: %s", string(data))
}

// MarshalJSON always writes the tagged-record shape.
func (c Cashflow) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.entries)
}
