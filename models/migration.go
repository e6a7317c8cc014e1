package models

import (
	"gorm.io/gorm"
)

func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(
		&Item{},
		&Location{},
		&StockBalance{},
		&IssueRequest{},
		&User{},
	)
}
