package types

import (
	"time"

	"gorm.io/gorm"
)

// Account is a linked brokerage account. Brokerage API credentials are
// encrypted at rest; plaintext keys never touch the database.
type Account struct {
	gorm.Model         `json:"-"`
	AccountID          string    `gorm:"uniqueIndex" json:"account_id"`
	Name               string    `json:"name"`
	Email              string    `json:"email,omitempty"`
	EncryptedAPIKey    string    `json:"-"`
	EncryptedAPISecret string    `json:"-"`
	IsActive           bool      `gorm:"index" json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TradeFill is one journaled brokerage execution, synced from the
// account activity feed. FillID is the brokerage's activity ID, which
// makes re-syncs idempotent.
type TradeFill struct {
	gorm.Model      `json:"-"`
	FillID          string    `gorm:"uniqueIndex" json:"fill_id"`
	AccountID       string    `gorm:"index" json:"account_id"`
	OrderID         string    `gorm:"index" json:"order_id"`
	Symbol          string    `gorm:"index" json:"symbol"`
	Side            string    `json:"side"` // buy or sell
	Quantity        float64   `json:"quantity"`
	Price           float64   `json:"price"`
	TransactionTime time.Time `json:"transaction_time"`
	CreatedAt       time.Time `json:"created_at"`
}
