package watchlist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"
	"github.com/quotepulse/stock-tracker/internal/entity"
	"github.com/quotepulse/stock-tracker/internal/service/quote"
	"github.com/sirupsen/logrus"
)

// QuoteSource is the slice of the gateway manager the watchlist flow needs.
type QuoteSource interface {
	EnsureSubscribed(ctx context.Context, codes []string, feed entity.FeedType) error
	GetSnapshots(ctx context.Context, codes []string) ([]entity.Snapshot, error)
	Reset()
}

type WatchlistRepository interface {
	Create(ctx context.Context, item *entity.WatchlistItem) error
	GetByUserID(ctx context.Context, userID string) ([]entity.WatchlistItem, error)
	Delete(ctx context.Context, userID, id string) (int64, error)
	ListCodes(ctx context.Context) ([]string, error)
	ListCodesByUserID(ctx context.Context, userID string) ([]string, error)
}

type SnapshotRepository interface {
	UpsertBatch(ctx context.Context, snapshots []entity.Snapshot) error
	GetByCodes(ctx context.Context, codes []string) ([]entity.Snapshot, error)
}

type Service struct {
	quotes        QuoteSource
	watchlistRepo WatchlistRepository
	snapshotRepo  SnapshotRepository
	now           func() time.Time
}

func NewService(quotes QuoteSource, watchlistRepo WatchlistRepository, snapshotRepo SnapshotRepository) *Service {
	return &Service{
		quotes:        quotes,
		watchlistRepo: watchlistRepo,
		snapshotRepo:  snapshotRepo,
		now:           time.Now,
	}
}

func (s *Service) Add(ctx context.Context, userID, code string, note null.String) (*entity.WatchlistItem, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("code is required")
	}

	now := s.now().UTC()
	item := &entity.WatchlistItem{
		ID:        uuid.New().String(),
		UserID:    userID,
		Code:      code,
		Note:      note,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.watchlistRepo.Create(ctx, item); err != nil {
		return nil, err
	}

	return item, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]entity.WatchlistItem, error) {
	return s.watchlistRepo.GetByUserID(ctx, userID)
}

func (s *Service) Remove(ctx context.Context, userID, id string) (bool, error) {
	affected, err := s.watchlistRepo.Delete(ctx, userID, id)
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Refresh subscribes a user's watchlist on the quote feed, pulls fresh
// snapshots and persists them, returning the snapshots in code order.
func (s *Service) Refresh(ctx context.Context, userID string) ([]entity.Snapshot, error) {
	codes, err := s.watchlistRepo.ListCodesByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	return s.refreshCodes(ctx, codes)
}

// RefreshAll refreshes snapshots for every watched code across all users,
// used by the background collector.
func (s *Service) RefreshAll(ctx context.Context) ([]entity.Snapshot, error) {
	codes, err := s.watchlistRepo.ListCodes(ctx)
	if err != nil {
		return nil, err
	}

	return s.refreshCodes(ctx, codes)
}

// Snapshots serves the last persisted snapshots for the given codes without
// touching the gateway.
func (s *Service) Snapshots(ctx context.Context, codes []string) ([]entity.Snapshot, error) {
	return s.snapshotRepo.GetByCodes(ctx, codes)
}

func (s *Service) refreshCodes(ctx context.Context, codes []string) ([]entity.Snapshot, error) {
	if len(codes) == 0 {
		return []entity.Snapshot{}, nil
	}

	var snapshots []entity.Snapshot
	err := s.withGatewayRetry(func() error {
		if innerErr := s.quotes.EnsureSubscribed(ctx, codes, entity.FeedTypeQuote); innerErr != nil {
			return innerErr
		}
		var innerErr error
		snapshots, innerErr = s.quotes.GetSnapshots(ctx, codes)
		return innerErr
	})
	if err != nil {
		return nil, err
	}

	if err := s.snapshotRepo.UpsertBatch(ctx, snapshots); err != nil {
		return nil, fmt.Errorf("persist watchlist snapshots: %w", err)
	}

	return snapshots, nil
}

// withGatewayRetry runs fn, and on a connection error resets the shared
// session and retries exactly once.
func (s *Service) withGatewayRetry(fn func() error) error {
	err := fn()
	if err == nil || !quote.IsConnectionError(err) {
		return err
	}

	logrus.WithError(err).Warn("gateway call failed, resetting session and retrying")
	s.quotes.Reset()

	return fn()
}
