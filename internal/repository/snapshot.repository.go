package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/quotepulse/stock-tracker/internal/entity"
)

type SnapshotRepository struct {
	db *sqlx.DB
}

func NewSnapshotRepository(db *sqlx.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

func (r *SnapshotRepository) UpsertBatch(ctx context.Context, snapshots []entity.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(entity.Snapshot{}.TableName()).
		Columns(
			"code",
			"name",
			"last_price",
			"prev_close",
			"volume",
			"turnover",
			"turnover_rate",
			"volume_ratio",
			"pe_ratio",
			"updated_at",
		)

	for _, snapshot := range snapshots {
		queryBuilder = queryBuilder.Values(
			snapshot.Code,
			snapshot.Name,
			snapshot.LastPrice,
			snapshot.PrevClose,
			snapshot.Volume,
			snapshot.Turnover,
			snapshot.TurnoverRate,
			snapshot.VolumeRatio,
			snapshot.PERatio,
			snapshot.UpdatedAt,
		)
	}

	queryBuilder = queryBuilder.Suffix(`ON CONFLICT (code)
DO UPDATE SET
	name = EXCLUDED.name,
	last_price = EXCLUDED.last_price,
	prev_close = EXCLUDED.prev_close,
	volume = EXCLUDED.volume,
	turnover = EXCLUDED.turnover,
	turnover_rate = EXCLUDED.turnover_rate,
	volume_ratio = EXCLUDED.volume_ratio,
	pe_ratio = EXCLUDED.pe_ratio,
	updated_at = EXCLUDED.updated_at`)

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *SnapshotRepository) GetByCodes(ctx context.Context, codes []string) ([]entity.Snapshot, error) {
	if len(codes) == 0 {
		return []entity.Snapshot{}, nil
	}

	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("*").
		From(entity.Snapshot{}.TableName()).
		Where(sq.Eq{"code": codes}).
		OrderBy("code asc")

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, err
	}

	var snapshots []entity.Snapshot
	err = r.db.SelectContext(ctx, &snapshots, query, args...)
	if err != nil {
		return nil, err
	}

	return snapshots, nil
}
