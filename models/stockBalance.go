package models

import "time"

// StockBalance is the ledger row for one (item, location) pair. An absent row means zero.
type StockBalance struct {
	ItemId     int       `gorm:"primaryKey;autoIncrement:false" json:"item_id"`
	LocationId int       `gorm:"primaryKey;autoIncrement:false;index" json:"location_id"`
	Quantity   int       `gorm:"not null;default:0;check:chk_stock_balances_quantity,quantity >= 0" json:"quantity"`
	Version    int       `gorm:"not null;default:0" json:"version"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type BalanceFilter struct {
	ItemId     *int
	LocationId *int
}
