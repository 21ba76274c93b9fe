// Package database owns the embedded single-writer relational store.
package database

import (
	"fmt"
	"sync"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"cryptostrategist/internal/config"
	"cryptostrategist/internal/models"
)

// Store wraps the gorm handle with the single-writer lock described in
// spec.md §5: all writes pass through a narrow writer with a short-lived
// transaction per logical action. Readers use gorm's own snapshot
// isolation and never take the lock.
type Store struct {
	db         *gorm.DB
	writerLock sync.Mutex
}

// New opens (and migrates) the embedded store.
func New(cfg *config.Database) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// AutoMigrate creates/updates tables for every model. Additive only: the
// trade ledger and run logs are append-only and must survive restarts, so
// (unlike the teacher) this never drops tables first.
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Strategy{},
		&models.Position{},
		&models.Trade{},
		&models.Signal{},
		&models.RunLog{},
		&models.TraceStep{},
		&models.WatchedInstrument{},
		&models.PriceBar{},
		&models.Account{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}

// DB returns the underlying gorm handle for read-only queries. Callers
// performing writes must go through Write instead.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Write serializes fn under the store's single writer lock and runs it in
// a transaction, matching the "short-lived transaction per logical action"
// contract of spec.md §5.
func (s *Store) Write(fn func(tx *gorm.DB) error) error {
	s.writerLock.Lock()
	defer s.writerLock.Unlock()

	return s.db.Transaction(fn)
}

// EnsureAccount creates the singleton Account row with the configured
// initial cash if it doesn't already exist.
func (s *Store) EnsureAccount(initialCash float64) error {
	return s.Write(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Account{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		acct := models.Account{
			Cash:                initialCash,
			EquityHighWaterMark: initialCash,
		}
		return tx.Create(&acct).Error
	})
}
