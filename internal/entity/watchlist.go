package entity

import (
	"time"

	"github.com/guregu/null/v5"
)

type WatchlistItem struct {
	ID        string      `db:"id" json:"id"`
	UserID    string      `db:"user_id" json:"user_id"`
	Code      string      `db:"code" json:"code"`
	Note      null.String `db:"note" json:"note"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}

func (WatchlistItem) TableName() string {
	return "watchlist_items"
}
