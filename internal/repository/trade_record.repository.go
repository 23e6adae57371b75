package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/quotepulse/stock-tracker/internal/entity"
)

type TradeRecordRepository struct {
	db *sqlx.DB
}

func NewTradeRecordRepository(db *sqlx.DB) *TradeRecordRepository {
	return &TradeRecordRepository{db: db}
}

func (r *TradeRecordRepository) CreateBatch(ctx context.Context, records []entity.TradeRecord) error {
	if len(records) == 0 {
		return nil
	}

	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(entity.TradeRecord{}.TableName()).
		Columns(
			"id",
			"user_id",
			"code",
			"side",
			"price",
			"quantity",
			"fee",
			"traded_at",
			"import_batch_id",
			"created_at",
		)

	for _, record := range records {
		queryBuilder = queryBuilder.Values(
			record.ID,
			record.UserID,
			record.Code,
			record.Side,
			record.Price,
			record.Quantity,
			record.Fee,
			record.TradedAt,
			record.ImportBatchID,
			record.CreatedAt,
		)
	}

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *TradeRecordRepository) GetByUserID(ctx context.Context, userID string) ([]entity.TradeRecord, error) {
	var records []entity.TradeRecord
	err := r.db.SelectContext(ctx, &records, "SELECT * FROM trade_records WHERE user_id = $1 order by traded_at desc", userID)
	return records, err
}

func (r *TradeRecordRepository) GetByImportBatchID(ctx context.Context, batchID string) ([]entity.TradeRecord, error) {
	var records []entity.TradeRecord
	err := r.db.SelectContext(ctx, &records, "SELECT * FROM trade_records WHERE import_batch_id = $1 order by traded_at asc", batchID)
	return records, err
}
