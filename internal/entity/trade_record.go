package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type TradeSide string

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

type TradeRecord struct {
	ID            string          `db:"id" json:"id"`
	UserID        string          `db:"user_id" json:"user_id"`
	Code          string          `db:"code" json:"code"`
	Side          TradeSide       `db:"side" json:"side"`
	Price         decimal.Decimal `db:"price" json:"price"`
	Quantity      decimal.Decimal `db:"quantity" json:"quantity"`
	Fee           decimal.Decimal `db:"fee" json:"fee"`
	TradedAt      time.Time       `db:"traded_at" json:"traded_at"`
	ImportBatchID string          `db:"import_batch_id" json:"import_batch_id"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

func (TradeRecord) TableName() string {
	return "trade_records"
}
