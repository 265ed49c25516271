// Package database initializes the relational store.
package database

import (
	"github.com/foliopulse/pnl-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase opens the sqlite store at the given path and migrates the
// schema.
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&types.Account{},
		&types.TradeFill{},
	); err != nil {
		return nil, err
	}

	return db, nil
}
