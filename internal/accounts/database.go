package accounts

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

func (d *Database) CreateAccount(account *types.Account) error {
	return d.db.Create(account).Error
}

func (d *Database) GetAccount(accountID string) (*types.Account, error) {
	var account types.Account
	if err := d.db.Where("account_id = ?", accountID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (d *Database) ListAccounts(activeOnly bool) ([]types.Account, error) {
	var accounts []types.Account
	query := d.db.Order("created_at")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (d *Database) UpdateAccount(account *types.Account) error {
	return d.db.Save(account).Error
}

func (d *Database) DeactivateAccount(accountID string) error {
	result := d.db.Model(&types.Account{}).
		Where("account_id = ?", accountID).
		Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
