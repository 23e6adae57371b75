package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/quotepulse/stock-tracker/internal/entity"
)

type MarketRankingRepository struct {
	db *sqlx.DB
}

func NewMarketRankingRepository(db *sqlx.DB) *MarketRankingRepository {
	return &MarketRankingRepository{db: db}
}

func (r *MarketRankingRepository) Create(ctx context.Context, ranking *entity.MarketRanking) error {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(ranking.TableName()).
		Columns(
			"id",
			"market",
			"payload",
			"generated_at",
			"created_at",
		).
		Values(
			ranking.ID,
			ranking.Market,
			ranking.Payload,
			ranking.GeneratedAt,
			ranking.CreatedAt,
		)

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *MarketRankingRepository) GetLatestByMarket(ctx context.Context, market string) (*entity.MarketRanking, error) {
	var ranking entity.MarketRanking
	err := r.db.GetContext(ctx, &ranking, "SELECT * FROM market_rankings WHERE market = $1 order by generated_at desc limit 1", market)
	if err != nil {
		return nil, err
	}
	return &ranking, nil
}
