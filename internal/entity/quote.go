package entity

import (
	"time"

	"github.com/guregu/null/v5"
	"github.com/shopspring/decimal"
)

// FeedType is the kind of live data feed requested for an instrument.
// The same code subscribed on two feed types counts as two gateway
// subscriptions.
type FeedType string

const (
	FeedTypeQuote FeedType = "QUOTE"
	FeedTypeRTBar FeedType = "RT_BAR"
)

// Snapshot is one market snapshot row as returned by the quote gateway.
type Snapshot struct {
	Code         string          `db:"code" json:"code"`
	Name         string          `db:"name" json:"name"`
	LastPrice    decimal.Decimal `db:"last_price" json:"last_price"`
	PrevClose    decimal.Decimal `db:"prev_close" json:"prev_close"`
	Volume       int64           `db:"volume" json:"volume"`
	Turnover     decimal.Decimal `db:"turnover" json:"turnover"`
	TurnoverRate decimal.Decimal `db:"turnover_rate" json:"turnover_rate"`
	VolumeRatio  decimal.Decimal `db:"volume_ratio" json:"volume_ratio"`
	PERatio      null.Float      `db:"pe_ratio" json:"pe_ratio"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

func (Snapshot) TableName() string {
	return "market_snapshots"
}

// ChangeRatio is the percentage move against the previous close, zero when
// the previous close is missing or non-positive.
func (s Snapshot) ChangeRatio() decimal.Decimal {
	if !s.PrevClose.IsPositive() {
		return decimal.Zero
	}
	return s.LastPrice.Sub(s.PrevClose).Div(s.PrevClose).Mul(decimal.NewFromInt(100))
}

// PlateRankingRow is one entry of a gateway plate ranking query.
type PlateRankingRow struct {
	Code string `json:"code"`
	Name string `json:"name"`
}
