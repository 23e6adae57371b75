package ranking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/quotepulse/stock-tracker/internal/config"
	"github.com/quotepulse/stock-tracker/internal/constant"
	"github.com/quotepulse/stock-tracker/internal/entity"
	"github.com/quotepulse/stock-tracker/internal/service/quote"
	"github.com/quotepulse/stock-tracker/internal/util"
	"github.com/sirupsen/logrus"
)

const defaultTopN = 50

// QuoteSource is the slice of the gateway manager the ranking flow needs.
type QuoteSource interface {
	EnsureSubscribed(ctx context.Context, codes []string, feed entity.FeedType) error
	GetSnapshots(ctx context.Context, codes []string) ([]entity.Snapshot, error)
	GetPlateRanking(ctx context.Context, plate, sortField string, limit int) ([]entity.PlateRankingRow, error)
	Reset()
}

type RankingRepository interface {
	Create(ctx context.Context, ranking *entity.MarketRanking) error
	GetLatestByMarket(ctx context.Context, market string) (*entity.MarketRanking, error)
}

type SnapshotRepository interface {
	UpsertBatch(ctx context.Context, snapshots []entity.Snapshot) error
}

type Service struct {
	quotes       QuoteSource
	rankingRepo  RankingRepository
	snapshotRepo SnapshotRepository
	boardStore   BoardStore
	js           util.JetstreamPublisher
	topN         int
	now          func() time.Time
}

func NewService(quotes QuoteSource, rankingRepo RankingRepository, snapshotRepo SnapshotRepository, boardStore BoardStore, js util.JetstreamPublisher, topN int) *Service {
	if topN <= 0 {
		topN = defaultTopN
	}

	return &Service{
		quotes:       quotes,
		rankingRepo:  rankingRepo,
		snapshotRepo: snapshotRepo,
		boardStore:   boardStore,
		js:           js,
		topN:         topN,
		now:          time.Now,
	}
}

// JetstreamEventInit creates or updates the ranking event stream. Called
// once at startup before anything publishes to it.
func JetstreamEventInit(ctx context.Context, js nats.JetStreamContext) error {
	streamConfig := &nats.StreamConfig{
		Name:      constant.RankingStreamName,
		Subjects:  []string{constant.RankingStreamSubjectAll},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Replicas:  1,
	}

	stream, err := js.StreamInfo(constant.RankingStreamName)
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		logrus.Error(err)
		return err
	}

	if stream == nil {
		logrus.Infof("creating stream: %s", constant.RankingStreamName)
		_, err = js.AddStream(streamConfig, nats.Context(ctx))
		return err
	}

	logrus.Infof("updating stream: %s", constant.RankingStreamName)
	_, err = js.UpdateStream(streamConfig, nats.Context(ctx))
	if err != nil {
		logrus.Error(err)
		return err
	}

	logrus.Infof("stream %s is ready", constant.RankingStreamName)

	return nil
}

// RefreshMarket rebuilds the ranking board for one market: the plate's top
// movers by change rate and by turnover, enriched with live snapshots, plus
// the codes present on both lists. The result is persisted, cached and
// announced on JetStream.
func (s *Service) RefreshMarket(ctx context.Context, market config.MarketConfig) (*entity.RankingBoard, error) {
	var changeRows, turnoverRows []entity.PlateRankingRow

	err := s.withGatewayRetry(func() error {
		var innerErr error
		changeRows, innerErr = s.quotes.GetPlateRanking(ctx, market.PlateCode, constant.SortFieldChangeRate, s.topN)
		if innerErr != nil {
			return innerErr
		}
		turnoverRows, innerErr = s.quotes.GetPlateRanking(ctx, market.PlateCode, constant.SortFieldTurnover, s.topN)
		return innerErr
	})
	if err != nil {
		return nil, fmt.Errorf("query plate rankings for %s: %w", market.Name, err)
	}

	codes := unionCodes(changeRows, turnoverRows)
	if len(codes) == 0 {
		return nil, fmt.Errorf("plate %s returned no constituents", market.PlateCode)
	}

	var snapshots []entity.Snapshot
	err = s.withGatewayRetry(func() error {
		if innerErr := s.quotes.EnsureSubscribed(ctx, codes, entity.FeedTypeQuote); innerErr != nil {
			return innerErr
		}
		var innerErr error
		snapshots, innerErr = s.quotes.GetSnapshots(ctx, codes)
		return innerErr
	})
	if err != nil {
		return nil, fmt.Errorf("fetch snapshots for %s: %w", market.Name, err)
	}

	byCode := make(map[string]entity.Snapshot, len(snapshots))
	for _, snapshot := range snapshots {
		byCode[snapshot.Code] = snapshot
	}

	board := &entity.RankingBoard{
		Market:      market.Name,
		TopChange:   buildEntries(changeRows, byCode),
		TopTurnover: buildEntries(turnoverRows, byCode),
		GeneratedAt: s.now().UTC(),
	}
	board.Intersection = intersect(board.TopChange, board.TopTurnover)

	if err := s.snapshotRepo.UpsertBatch(ctx, snapshots); err != nil {
		return nil, fmt.Errorf("persist snapshots for %s: %w", market.Name, err)
	}

	if err := s.persistBoard(ctx, board); err != nil {
		return nil, err
	}

	if err := s.boardStore.Save(ctx, board); err != nil {
		logrus.WithError(err).WithField("market", market.Name).Warn("failed to cache ranking board")
	}

	if err := util.PublishEvent(s.js, constant.RankingStreamSubjectUpdated, entity.RankingUpdatedEvent{Data: *board}); err != nil {
		logrus.WithError(err).WithField("market", market.Name).Error("failed to publish ranking updated event")
	}

	logrus.WithFields(logrus.Fields{
		"market":       market.Name,
		"top_change":   len(board.TopChange),
		"top_turnover": len(board.TopTurnover),
		"intersection": len(board.Intersection),
	}).Info("ranking board refreshed")

	return board, nil
}

// Latest returns the most recent board for a market, preferring the cache
// and falling back to the database. A nil board with nil error means no
// ranking has ever been generated for the market.
func (s *Service) Latest(ctx context.Context, market string) (*entity.RankingBoard, error) {
	board, found, err := s.boardStore.Load(ctx, market)
	if err != nil {
		logrus.WithError(err).Warn("ranking cache read failed, falling back to database")
	} else if found {
		return board, nil
	}

	stored, err := s.rankingRepo.GetLatestByMarket(ctx, market)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	var decoded entity.RankingBoard
	if err := json.Unmarshal(stored.Payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode stored ranking board: %w", err)
	}

	if err := s.boardStore.Save(ctx, &decoded); err != nil {
		logrus.WithError(err).WithField("market", market).Warn("failed to backfill ranking cache")
	}

	return &decoded, nil
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

func (s *Service) persistBoard(ctx context.Context, board *entity.RankingBoard) error {
	payload, err := json.Marshal(board)
	if err != nil {
		return fmt.Errorf("encode ranking board: %w", err)
	}

	record := &entity.MarketRanking{
		ID:          uuid.New().String(),
		Market:      board.Market,
		Payload:     payload,
		GeneratedAt: board.GeneratedAt,
		CreatedAt:   s.now().UTC(),
	}

	if err := s.rankingRepo.Create(ctx, record); err != nil {
		return fmt.Errorf("persist ranking board: %w", err)
	}

	return nil
}

func unionCodes(lists ...[]entity.PlateRankingRow) []string {
	seen := make(map[string]struct{})
	var codes []string
	for _, list := range lists {
		for _, row := range list {
			if _, ok := seen[row.Code]; ok {
				continue
			}
			seen[row.Code] = struct{}{}
			codes = append(codes, row.Code)
		}
	}
	return codes
}

// buildEntries keeps the gateway's ranking order and enriches each row with
// its live snapshot. Rows without a snapshot keep their place with zero
// valued fields rather than shifting everyone below them.
func buildEntries(rows []entity.PlateRankingRow, byCode map[string]entity.Snapshot) []entity.RankingEntry {
	entries := make([]entity.RankingEntry, 0, len(rows))
	for i, row := range rows {
		entry := entity.RankingEntry{
			Rank: i + 1,
			Code: row.Code,
			Name: row.Name,
		}
		if snapshot, ok := byCode[row.Code]; ok {
			entry.ChangeRatio = snapshot.ChangeRatio()
			entry.Volume = snapshot.Volume
			entry.Turnover = snapshot.Turnover
			entry.VolumeRatio = snapshot.VolumeRatio
			entry.TurnoverRate = snapshot.TurnoverRate
			entry.PERatio = snapshot.PERatio
			if entry.Name == "" {
				entry.Name = snapshot.Name
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

// intersect returns the change-rate entries whose codes also appear on the
// turnover list, keeping change-rate order.
func intersect(topChange, topTurnover []entity.RankingEntry) []entity.RankingEntry {
	onTurnover := make(map[string]struct{}, len(topTurnover))
	for _, entry := range topTurnover {
		onTurnover[entry.Code] = struct{}{}
	}

	var out []entity.RankingEntry
	for _, entry := range topChange {
		if _, ok := onTurnover[entry.Code]; ok {
			out = append(out, entry)
		}
	}
	return out
}
