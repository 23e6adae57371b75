package tradeimport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quotepulse/stock-tracker/internal/entity"
	"github.com/shopspring/decimal"
)

type TradeRecordRepository interface {
	CreateBatch(ctx context.Context, records []entity.TradeRecord) error
	GetByUserID(ctx context.Context, userID string) ([]entity.TradeRecord, error)
	GetByImportBatchID(ctx context.Context, batchID string) ([]entity.TradeRecord, error)
}

// ImportRow is one trade as supplied by the caller, before ids and
// bookkeeping fields are assigned.
type ImportRow struct {
	Code     string           `json:"code"`
	Side     entity.TradeSide `json:"side"`
	Price    string           `json:"price"`
	Quantity string           `json:"quantity"`
	Fee      string           `json:"fee"`
	TradedAt time.Time        `json:"traded_at"`
}

type Service struct {
	tradeRepo TradeRecordRepository
	now       func() time.Time
}

func NewService(tradeRepo TradeRecordRepository) *Service {
	return &Service{
		tradeRepo: tradeRepo,
		now:       time.Now,
	}
}

// Import validates and stores a batch of trades for a user. The whole batch
// shares one import batch id so a bad upload can be traced back later.
func (s *Service) Import(ctx context.Context, userID string, rows []ImportRow) (string, []entity.TradeRecord, error) {
	if len(rows) == 0 {
		return "", nil, fmt.Errorf("no trades to import")
	}

	batchID := uuid.New().String()
	now := s.now().UTC()

	records := make([]entity.TradeRecord, 0, len(rows))
	for i, row := range rows {
		record, err := buildRecord(userID, batchID, now, row)
		if err != nil {
			return "", nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		records = append(records, record)
	}

	if err := s.tradeRepo.CreateBatch(ctx, records); err != nil {
		return "", nil, err
	}

	return batchID, records, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]entity.TradeRecord, error) {
	return s.tradeRepo.GetByUserID(ctx, userID)
}

func (s *Service) ListBatch(ctx context.Context, batchID string) ([]entity.TradeRecord, error) {
	return s.tradeRepo.GetByImportBatchID(ctx, batchID)
}

func buildRecord(userID, batchID string, now time.Time, row ImportRow) (entity.TradeRecord, error) {
	code := strings.TrimSpace(row.Code)
	if code == "" {
		return entity.TradeRecord{}, fmt.Errorf("code is required")
	}

	switch row.Side {
	case entity.TradeSideBuy, entity.TradeSideSell:
	default:
		return entity.TradeRecord{}, fmt.Errorf("side must be %s or %s", entity.TradeSideBuy, entity.TradeSideSell)
	}

	price, err := parsePositiveDecimal(row.Price, "price")
	if err != nil {
		return entity.TradeRecord{}, err
	}

	quantity, err := parsePositiveDecimal(row.Quantity, "quantity")
	if err != nil {
		return entity.TradeRecord{}, err
	}

	fee, err := parseNonNegativeDecimal(row.Fee, "fee")
	if err != nil {
		return entity.TradeRecord{}, err
	}

	if row.TradedAt.IsZero() {
		return entity.TradeRecord{}, fmt.Errorf("traded_at is required")
	}

	return entity.TradeRecord{
		ID:            uuid.New().String(),
		UserID:        userID,
		Code:          code,
		Side:          row.Side,
		Price:         price,
		Quantity:      quantity,
		Fee:           fee,
		TradedAt:      row.TradedAt.UTC(),
		ImportBatchID: batchID,
		CreatedAt:     now,
	}, nil
}

func parsePositiveDecimal(raw, field string) (decimal.Decimal, error) {
	value, err := parseNonNegativeDecimal(raw, field)
	if err != nil {
		return decimal.Zero, err
	}
	if !value.IsPositive() {
		return decimal.Zero, fmt.Errorf("%s must be positive", field)
	}
	return value, nil
}

func parseNonNegativeDecimal(raw, field string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}

	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s is not a valid number", field)
	}
	if value.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", field)
	}
	return value, nil
}
