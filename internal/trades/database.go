package trades

import (
	"errors"

	"github.com/foliopulse/pnl-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// UpsertFill journals a fill if its brokerage fill ID has not been seen
// before. Returns true when a new row was written.
func (d *Database) UpsertFill(fill *types.TradeFill) (bool, error) {
	var existing types.TradeFill
	err := d.db.Where("fill_id = ?", fill.FillID).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}
	if err := d.db.Create(fill).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (d *Database) GetFillsBySymbol(accountID, symbol string) ([]types.TradeFill, error) {
	var fills []types.TradeFill
	err := d.db.
		Where("account_id = ? AND symbol = ?", accountID, symbol).
		Order("transaction_time").
		Find(&fills).Error
	if err != nil {
		return nil, err
	}
	return fills, nil
}

// GetSymbols lists the distinct symbols with journaled fills for an
// account.
func (d *Database) GetSymbols(accountID string) ([]string, error) {
	var symbols []string
	err := d.db.Model(&types.TradeFill{}).
		Where("account_id = ?", accountID).
		Distinct().
		Order("symbol").
		Pluck("symbol", &symbols).Error
	if err != nil {
		return nil, err
	}
	return symbols, nil
}

func (d *Database) GetFillsByOrder(accountID, orderID string) ([]types.TradeFill, error) {
	var fills []types.TradeFill
	err := d.db.
		Where("account_id = ? AND order_id = ?", accountID, orderID).
		Order("transaction_time").
		Find(&fills).Error
	if err != nil {
		return nil, err
	}
	return fills, nil
}
