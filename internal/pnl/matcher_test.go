package pnl

import (
	"errors"
	"math"
	"testing"
	"time"
)

var matchEpoch = time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

// fill builds a test fill n minutes after the epoch.
func fill(side string, qty, price float64, minutes int) Fill {
	return Fill{
		Symbol:          "AAPL",
		Side:            side,
		Quantity:        qty,
		Price:           price,
		TransactionTime: matchEpoch.Add(time.Duration(minutes) * time.Minute),
	}
}

func TestMatch(t *testing.T) {
	testCases := []struct {
		name  string
		fills []Fill
		want  RealizedMatch
	}{
		{
			name: "full round trip",
			fills: []Fill{
				fill(SideBuy, 10, 100, 0),
				fill(SideSell, 10, 110, 1),
			},
			want: RealizedMatch{
				RealizedQuantity: 10,
				CostBasis:        1000,
				Proceeds:         1100,
				RealizedPnL:      100,
				OpenQuantity:     0,
				AvgEntry:         100,
				AvgExit:          110,
			},
		},
		{
			name: "partial close leaves open quantity",
			fills: []Fill{
				fill(SideBuy, 10, 100, 0),
				fill(SideSell, 4, 110, 1),
			},
			want: RealizedMatch{
				RealizedQuantity: 4,
				CostBasis:        400,
				Proceeds:         440,
				RealizedPnL:      40,
				OpenQuantity:     6,
				AvgEntry:         100,
				AvgExit:          110,
			},
		},
		{
			name: "sell spans multiple lots oldest first",
			fills: []Fill{
				fill(SideBuy, 5, 100, 0),
				fill(SideBuy, 5, 120, 1),
				fill(SideSell, 8, 130, 2),
			},
			want: RealizedMatch{
				RealizedQuantity: 8,
				CostBasis:        5*100 + 3*120, // 860
				Proceeds:         8 * 130,       // 1040
				RealizedPnL:      180,
				OpenQuantity:     2,
				AvgEntry:         107.5,
				AvgExit:          130,
			},
		},
		{
			name: "only buys realize nothing",
			fills: []Fill{
				fill(SideBuy, 3, 50, 0),
				fill(SideBuy, 2, 55, 1),
			},
			want: RealizedMatch{OpenQuantity: 5},
		},
		{
			name: "only sells are unmatched short activity",
			fills: []Fill{
				fill(SideSell, 3, 50, 0),
				fill(SideSell, 2, 55, 1),
			},
			want: RealizedMatch{},
		},
		{
			name: "sell excess beyond inventory stays unmatched",
			fills: []Fill{
				fill(SideBuy, 5, 100, 0),
				fill(SideSell, 8, 110, 1),
			},
			want: RealizedMatch{
				RealizedQuantity: 5,
				CostBasis:        500,
				Proceeds:         550,
				RealizedPnL:      50,
				OpenQuantity:     0,
				AvgEntry:         100,
				AvgExit:          110,
			},
		},
		{
			name: "fractional quantities round to four places",
			fills: []Fill{
				fill(SideBuy, 0.3333, 300, 0),
				fill(SideSell, 0.1111, 330, 1),
			},
			want: RealizedMatch{
				RealizedQuantity: 0.1111,
				CostBasis:        33.33,
				Proceeds:         36.66,
				RealizedPnL:      3.33,
				OpenQuantity:     0.2222,
				AvgEntry:         300,
				AvgExit:          330,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Match(tc.fills)
			if err != nil {
				t.Fatalf("Match() error = %v", err)
			}
			if *got != tc.want {
				t.Errorf("Match() = %+v, want %+v", *got, tc.want)
			}
		})
	}
}

func TestMatchEmptyInput(t *testing.T) {
	if _, err := Match(nil); !errors.Is(err, ErrNoFills) {
		t.Errorf("Match(nil) error = %v, want ErrNoFills", err)
	}
}

func TestMatchRejectsMalformedFills(t *testing.T) {
	testCases := []struct {
		name  string
		fills []Fill
	}{
		{"zero quantity", []Fill{fill(SideBuy, 0, 100, 0)}},
		{"negative quantity", []Fill{fill(SideBuy, -1, 100, 0)}},
		{"zero price", []Fill{fill(SideBuy, 1, 0, 0)}},
		{"unknown side", []Fill{fill("hold", 1, 100, 0)}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Match(tc.fills)
			var invalid *InvalidFillError
			if !errors.As(err, &invalid) {
				t.Errorf("Match() error = %v, want InvalidFillError", err)
			}
		})
	}
}

// Re-ordering the input while keeping transaction times must not change
// the result: the matcher sorts internally.
func TestMatchOrderingInvariant(t *testing.T) {
	ordered := []Fill{
		fill(SideBuy, 5, 100, 0),
		fill(SideBuy, 5, 120, 1),
		fill(SideSell, 8, 130, 2),
		fill(SideBuy, 2, 125, 3),
		fill(SideSell, 3, 140, 4),
	}
	shuffled := []Fill{ordered[4], ordered[2], ordered[0], ordered[3], ordered[1]}

	want, err := Match(ordered)
	if err != nil {
		t.Fatalf("Match(ordered) error = %v", err)
	}
	got, err := Match(shuffled)
	if err != nil {
		t.Fatalf("Match(shuffled) error = %v", err)
	}
	if *got != *want {
		t.Errorf("Match(shuffled) = %+v, want %+v", *got, *want)
	}
}

// realized + open must account for every bought share that found a
// matching sell, within 1e-4.
func TestMatchConservation(t *testing.T) {
	fills := []Fill{
		fill(SideBuy, 10.5, 100, 0),
		fill(SideSell, 3.2, 105, 1),
		fill(SideBuy, 4.3, 102, 2),
		fill(SideSell, 6.1, 108, 3),
		fill(SideSell, 9, 110, 4), // exceeds remaining inventory
	}
	got, err := Match(fills)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}

	totalBought := 10.5 + 4.3
	if diff := math.Abs(got.RealizedQuantity + got.OpenQuantity - totalBought); diff > 1e-4 {
		t.Errorf("realized %v + open %v does not conserve bought quantity %v",
			got.RealizedQuantity, got.OpenQuantity, totalBought)
	}
}

func TestMatchDoesNotMutateInput(t *testing.T) {
	fills := []Fill{
		fill(SideBuy, 10, 100, 0),
		fill(SideSell, 4, 110, 1),
	}
	first, err := Match(fills)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	second, err := Match(fills)
	if err != nil {
		t.Fatalf("Match() second run error = %v", err)
	}
	if *first != *second {
		t.Errorf("repeated Match() diverged: %+v then %+v", *first, *second)
	}
	if fills[0].Quantity != 10 || fills[1].Quantity != 4 {
		t.Errorf("Match() mutated its input: %+v", fills)
	}
}
