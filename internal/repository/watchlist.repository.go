package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/quotepulse/stock-tracker/internal/entity"
)

type WatchlistRepository struct {
	db *sqlx.DB
}

func NewWatchlistRepository(db *sqlx.DB) *WatchlistRepository {
	return &WatchlistRepository{db: db}
}

func (r *WatchlistRepository) Create(ctx context.Context, item *entity.WatchlistItem) error {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(item.TableName()).
		Columns(
			"id",
			"user_id",
			"code",
			"note",
			"created_at",
			"updated_at",
		).
		Values(
			item.ID,
			item.UserID,
			item.Code,
			item.Note,
			item.CreatedAt,
			item.UpdatedAt,
		).
		Suffix(`ON CONFLICT (user_id, code)
DO UPDATE SET
	note = EXCLUDED.note,
	updated_at = EXCLUDED.updated_at`)

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *WatchlistRepository) GetByUserID(ctx context.Context, userID string) ([]entity.WatchlistItem, error) {
	var items []entity.WatchlistItem
	err := r.db.SelectContext(ctx, &items, "SELECT * FROM watchlist_items WHERE user_id = $1 order by created_at desc", userID)
	return items, err
}

func (r *WatchlistRepository) Delete(ctx context.Context, userID, id string) (int64, error) {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Delete(entity.WatchlistItem{}.TableName()).
		Where(sq.Eq{"user_id": userID, "id": id})

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return 0, err
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

func (r *WatchlistRepository) ListCodes(ctx context.Context) ([]string, error) {
	var codes []string
	err := r.db.SelectContext(ctx, &codes, "SELECT DISTINCT code FROM watchlist_items order by code asc")
	return codes, err
}

func (r *WatchlistRepository) ListCodesByUserID(ctx context.Context, userID string) ([]string, error) {
	var codes []string
	err := r.db.SelectContext(ctx, &codes, "SELECT code FROM watchlist_items WHERE user_id = $1 order by code asc", userID)
	return codes, err
}
