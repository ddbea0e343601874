package repos

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// lockForUpdate adds a row lock on dialects that support it. SQLite has no
// FOR UPDATE syntax and serializes writers on its own.
func lockForUpdate(tx *gorm.DB, options string) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE", Options: options})
	}
	return tx
}
