package collector

import (
	"context"
	"time"

	"github.com/quotepulse/stock-tracker/internal/config"
	"github.com/quotepulse/stock-tracker/internal/entity"
	"github.com/sirupsen/logrus"
)

const defaultCollectInterval = time.Hour

type RankingRefresher interface {
	RefreshMarket(ctx context.Context, market config.MarketConfig) (*entity.RankingBoard, error)
}

type WatchlistRefresher interface {
	RefreshAll(ctx context.Context) ([]entity.Snapshot, error)
}

// Service periodically rebuilds every configured market's ranking board and
// refreshes snapshots for all watched codes.
type Service struct {
	rankings        RankingRefresher
	watchlists      WatchlistRefresher
	markets         []config.MarketConfig
	collectInterval time.Duration
}

func NewService(rankings RankingRefresher, watchlists WatchlistRefresher, markets []config.MarketConfig, collectInterval time.Duration) *Service {
	if collectInterval <= 0 {
		collectInterval = defaultCollectInterval
	}

	return &Service{
		rankings:        rankings,
		watchlists:      watchlists,
		markets:         markets,
		collectInterval: collectInterval,
	}
}

func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.collectInterval)
	defer ticker.Stop()

	s.Collect(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Collect(ctx)
		}
	}
}

// Collect runs one full collection round. A failing market does not stop
// the remaining markets or the watchlist refresh.
func (s *Service) Collect(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	started := time.Now()

	for _, market := range s.markets {
		if ctx.Err() != nil {
			return
		}

		board, err := s.rankings.RefreshMarket(ctx, market)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"market": market.Name,
				"plate":  market.PlateCode,
			}).WithError(err).Error("failed to refresh market ranking")
			continue
		}

		logrus.WithFields(logrus.Fields{
			"market":       market.Name,
			"intersection": len(board.Intersection),
		}).Debug("market ranking collected")
	}

	snapshots, err := s.watchlists.RefreshAll(ctx)
	if err != nil {
		logrus.WithError(err).Error("failed to refresh watchlist snapshots")
	} else {
		logrus.WithField("snapshots", len(snapshots)).Debug("watchlist snapshots collected")
	}

	logrus.WithFields(logrus.Fields{
		"markets":     len(s.markets),
		"duration_ms": time.Since(started).Milliseconds(),
	}).Info("collection round finished")
}
