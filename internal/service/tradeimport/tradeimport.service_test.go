package tradeimport

import (
	"context"
	"testing"
	"time"

	"github.com/quotepulse/stock-tracker/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTradeRepo struct {
	created []entity.TradeRecord
	err     error
}

func (f *fakeTradeRepo) CreateBatch(_ context.Context, records []entity.TradeRecord) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, records...)
	return nil
}

func (f *fakeTradeRepo) GetByUserID(_ context.Context, userID string) ([]entity.TradeRecord, error) {
	var out []entity.TradeRecord
	for _, record := range f.created {
		if record.UserID == userID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (f *fakeTradeRepo) GetByImportBatchID(_ context.Context, batchID string) ([]entity.TradeRecord, error) {
	var out []entity.TradeRecord
	for _, record := range f.created {
		if record.ImportBatchID == batchID {
			out = append(out, record)
		}
	}
	return out, nil
}

func validRow() ImportRow {
	return ImportRow{
		Code:     "SH.600000",
		Side:     entity.TradeSideBuy,
		Price:    "10.50",
		Quantity: "200",
		Fee:      "1.25",
		TradedAt: time.Date(2026, 2, 9, 10, 15, 0, 0, time.UTC),
	}
}

func TestServiceImport(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns ids and a shared batch id", func(t *testing.T) {
		repo := &fakeTradeRepo{}
		svc := NewService(repo)

		sellRow := validRow()
		sellRow.Side = entity.TradeSideSell

		batchID, records, err := svc.Import(ctx, "user-1", []ImportRow{validRow(), sellRow})
		require.NoError(t, err)
		assert.NotEmpty(t, batchID)
		require.Len(t, records, 2)

		assert.NotEqual(t, records[0].ID, records[1].ID)
		assert.Equal(t, batchID, records[0].ImportBatchID)
		assert.Equal(t, batchID, records[1].ImportBatchID)
		assert.Equal(t, "user-1", records[0].UserID)
		assert.False(t, records[0].CreatedAt.IsZero())
		assert.Len(t, repo.created, 2)
	})

	t.Run("empty batch is rejected", func(t *testing.T) {
		svc := NewService(&fakeTradeRepo{})

		_, _, err := svc.Import(ctx, "user-1", nil)
		require.Error(t, err)
	})

	t.Run("bad row fails the whole batch with its position", func(t *testing.T) {
		repo := &fakeTradeRepo{}
		svc := NewService(repo)

		badRow := validRow()
		badRow.Side = "HOLD"

		_, _, err := svc.Import(ctx, "user-1", []ImportRow{validRow(), badRow})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "row 2")
		assert.Empty(t, repo.created)
	})

	t.Run("validation failures", func(t *testing.T) {
		svc := NewService(&fakeTradeRepo{})

		tests := []struct {
			name   string
			mutate func(*ImportRow)
		}{
			{"blank code", func(r *ImportRow) { r.Code = " " }},
			{"zero price", func(r *ImportRow) { r.Price = "0" }},
			{"negative price", func(r *ImportRow) { r.Price = "-1" }},
			{"garbage price", func(r *ImportRow) { r.Price = "ten" }},
			{"zero quantity", func(r *ImportRow) { r.Quantity = "0" }},
			{"negative fee", func(r *ImportRow) { r.Fee = "-0.5" }},
			{"missing traded_at", func(r *ImportRow) { r.TradedAt = time.Time{} }},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				row := validRow()
				tc.mutate(&row)

				_, _, err := svc.Import(ctx, "user-1", []ImportRow{row})
				require.Error(t, err)
			})
		}
	})

	t.Run("missing fee defaults to zero", func(t *testing.T) {
		svc := NewService(&fakeTradeRepo{})

		row := validRow()
		row.Fee = ""

		_, records, err := svc.Import(ctx, "user-1", []ImportRow{row})
		require.NoError(t, err)
		assert.True(t, records[0].Fee.IsZero())
	})
}

func TestServiceList(t *testing.T) {
	ctx := context.Background()
	repo := &fakeTradeRepo{}
	svc := NewService(repo)

	batchID, _, err := svc.Import(ctx, "user-1", []ImportRow{validRow()})
	require.NoError(t, err)
	_, _, err = svc.Import(ctx, "user-2", []ImportRow{validRow()})
	require.NoError(t, err)

	records, err := svc.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "user-1", records[0].UserID)

	batch, err := svc.ListBatch(ctx, batchID)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, batchID, batch[0].ImportBatchID)
}
