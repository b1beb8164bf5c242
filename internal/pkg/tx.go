package pkg

import (
	"context"

	"gorm.io/gorm"
)

// WithTx runs fn inside a transaction bound to ctx. It commits when fn
// returns nil and rolls back on error or panic; a panic is re-raised after
// the rollback.
func WithTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
