package entity

import (
	"time"

	"github.com/guregu/null/v5"
	"github.com/shopspring/decimal"
)

type RankingEntry struct {
	Rank         int             `json:"rank"`
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	ChangeRatio  decimal.Decimal `json:"change_ratio"`
	Volume       int64           `json:"volume"`
	Turnover     decimal.Decimal `json:"turnover"`
	VolumeRatio  decimal.Decimal `json:"volume_ratio"`
	TurnoverRate decimal.Decimal `json:"turnover_rate"`
	PERatio      null.Float      `json:"pe_ratio"`
}

// RankingBoard holds the three ranking lists produced for one market: the
// top movers by change rate, the top by turnover, and the codes present on
// both lists.
type RankingBoard struct {
	Market       string         `json:"market"`
	TopChange    []RankingEntry `json:"top_change"`
	TopTurnover  []RankingEntry `json:"top_turnover"`
	Intersection []RankingEntry `json:"intersection"`
	GeneratedAt  time.Time      `json:"generated_at"`
}

// MarketRanking is the persisted form of a RankingBoard.
type MarketRanking struct {
	ID          string    `db:"id" json:"id"`
	Market      string    `db:"market" json:"market"`
	Payload     []byte    `db:"payload" json:"payload"`
	GeneratedAt time.Time `db:"generated_at" json:"generated_at"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

func (MarketRanking) TableName() string {
	return "market_rankings"
}
