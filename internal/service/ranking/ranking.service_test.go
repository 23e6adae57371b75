package ranking

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/quotepulse/stock-tracker/internal/config"
	"github.com/quotepulse/stock-tracker/internal/entity"
	"github.com/quotepulse/stock-tracker/internal/service/quote"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuoteSource struct {
	rankings  map[string][]entity.PlateRankingRow // keyed by sort field
	snapshots []entity.Snapshot

	rankingErr    error
	rankingErrs   int // how many calls fail before succeeding
	subscribeErr  error
	subscribed    [][]string
	resets        int
	rankingCalls  int
	snapshotCalls int
}

func (f *fakeQuoteSource) EnsureSubscribed(_ context.Context, codes []string, _ entity.FeedType) error {
	f.subscribed = append(f.subscribed, append([]string(nil), codes...))
	return f.subscribeErr
}

func (f *fakeQuoteSource) GetSnapshots(_ context.Context, _ []string) ([]entity.Snapshot, error) {
	f.snapshotCalls++
	return f.snapshots, nil
}

func (f *fakeQuoteSource) GetPlateRanking(_ context.Context, _, sortField string, _ int) ([]entity.PlateRankingRow, error) {
	f.rankingCalls++
	if f.rankingErr != nil && f.rankingCalls <= f.rankingErrs {
		return nil, f.rankingErr
	}
	return f.rankings[sortField], nil
}

func (f *fakeQuoteSource) Reset() {
	f.resets++
}

type fakeRankingRepo struct {
	created []entity.MarketRanking
	latest  *entity.MarketRanking
	err     error
}

func (f *fakeRankingRepo) Create(_ context.Context, ranking *entity.MarketRanking) error {
	f.created = append(f.created, *ranking)
	return f.err
}

func (f *fakeRankingRepo) GetLatestByMarket(_ context.Context, _ string) (*entity.MarketRanking, error) {
	if f.latest == nil {
		return nil, sql.ErrNoRows
	}
	return f.latest, nil
}

type fakeSnapshotRepo struct {
	upserted []entity.Snapshot
	err      error
}

func (f *fakeSnapshotRepo) UpsertBatch(_ context.Context, snapshots []entity.Snapshot) error {
	f.upserted = append(f.upserted, snapshots...)
	return f.err
}

type fakeBoardStore struct {
	boards map[string]*entity.RankingBoard
	err    error
}

func newFakeBoardStore() *fakeBoardStore {
	return &fakeBoardStore{boards: make(map[string]*entity.RankingBoard)}
}

func (f *fakeBoardStore) Load(_ context.Context, market string) (*entity.RankingBoard, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	board, ok := f.boards[market]
	return board, ok, nil
}

func (f *fakeBoardStore) Save(_ context.Context, board *entity.RankingBoard) error {
	if f.err != nil {
		return f.err
	}
	f.boards[board.Market] = board
	return nil
}

type fakePublisher struct {
	subjects []string
	payloads [][]byte
}

func (f *fakePublisher) Publish(subj string, data []byte, _ ...nats.PubOpt) (*nats.PubAck, error) {
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return &nats.PubAck{}, nil
}

func snapshotFor(code string, lastPrice, prevClose float64) entity.Snapshot {
	return entity.Snapshot{
		Code:      code,
		Name:      code + " Inc",
		LastPrice: decimal.NewFromFloat(lastPrice),
		PrevClose: decimal.NewFromFloat(prevClose),
		Volume:    1000,
		Turnover:  decimal.NewFromInt(5000),
		UpdatedAt: time.Now().UTC(),
	}
}

func TestServiceRefreshMarket(t *testing.T) {
	ctx := context.Background()
	market := config.MarketConfig{Name: "cn", PlateCode: "SH.LIST0600"}

	t.Run("builds board with intersection in change order", func(t *testing.T) {
		quotes := &fakeQuoteSource{
			rankings: map[string][]entity.PlateRankingRow{
				"CHANGE_RATE": {{Code: "A"}, {Code: "B"}, {Code: "C"}},
				"TURNOVER":    {{Code: "C"}, {Code: "D"}, {Code: "A"}},
			},
			snapshots: []entity.Snapshot{
				snapshotFor("A", 11, 10),
				snapshotFor("B", 10.5, 10),
				snapshotFor("C", 10.2, 10),
				snapshotFor("D", 10, 10),
			},
		}
		rankingRepo := &fakeRankingRepo{}
		snapshotRepo := &fakeSnapshotRepo{}
		store := newFakeBoardStore()
		publisher := &fakePublisher{}

		svc := NewService(quotes, rankingRepo, snapshotRepo, store, publisher, 50)

		board, err := svc.RefreshMarket(ctx, market)
		require.NoError(t, err)

		require.Len(t, board.TopChange, 3)
		assert.Equal(t, 1, board.TopChange[0].Rank)
		assert.Equal(t, "A", board.TopChange[0].Code)
		assert.True(t, board.TopChange[0].ChangeRatio.Equal(decimal.NewFromInt(10)))

		// A and C are on both lists, in change-rate order.
		require.Len(t, board.Intersection, 2)
		assert.Equal(t, "A", board.Intersection[0].Code)
		assert.Equal(t, "C", board.Intersection[1].Code)

		// Union of both lists was subscribed once, without duplicates.
		require.Len(t, quotes.subscribed, 1)
		assert.ElementsMatch(t, []string{"A", "B", "C", "D"}, quotes.subscribed[0])

		assert.Len(t, snapshotRepo.upserted, 4)
		require.Len(t, rankingRepo.created, 1)
		assert.Equal(t, "cn", rankingRepo.created[0].Market)

		cached, ok := store.boards["cn"]
		require.True(t, ok)
		assert.Equal(t, board.GeneratedAt, cached.GeneratedAt)

		require.Len(t, publisher.subjects, 1)
		assert.Equal(t, "market_ranking.updated", publisher.subjects[0])

		var event entity.RankingUpdatedEvent
		require.NoError(t, json.Unmarshal(publisher.payloads[0], &event))
		assert.Equal(t, "cn", event.Data.Market)
	})

	t.Run("connection error triggers one reset and retry", func(t *testing.T) {
		quotes := &fakeQuoteSource{
			rankings: map[string][]entity.PlateRankingRow{
				"CHANGE_RATE": {{Code: "A"}},
				"TURNOVER":    {{Code: "A"}},
			},
			snapshots:   []entity.Snapshot{snapshotFor("A", 11, 10)},
			rankingErr:  &quote.ConnectionError{Op: "plate_ranking", Err: errors.New("broken pipe")},
			rankingErrs: 1,
		}
		svc := NewService(quotes, &fakeRankingRepo{}, &fakeSnapshotRepo{}, newFakeBoardStore(), &fakePublisher{}, 50)

		board, err := svc.RefreshMarket(ctx, market)
		require.NoError(t, err)
		assert.Equal(t, 1, quotes.resets)
		assert.Len(t, board.TopChange, 1)
	})

	t.Run("persistent connection error fails after one retry", func(t *testing.T) {
		quotes := &fakeQuoteSource{
			rankingErr:  &quote.ConnectionError{Op: "plate_ranking", Err: errors.New("broken pipe")},
			rankingErrs: 10,
		}
		svc := NewService(quotes, &fakeRankingRepo{}, &fakeSnapshotRepo{}, newFakeBoardStore(), &fakePublisher{}, 50)

		_, err := svc.RefreshMarket(ctx, market)
		require.Error(t, err)
		assert.True(t, quote.IsConnectionError(err))
		assert.Equal(t, 1, quotes.resets)
	})

	t.Run("admission rejection is not retried", func(t *testing.T) {
		quotes := &fakeQuoteSource{
			rankings: map[string][]entity.PlateRankingRow{
				"CHANGE_RATE": {{Code: "A"}},
				"TURNOVER":    {{Code: "A"}},
			},
			subscribeErr: &quote.AdmissionError{Feed: entity.FeedTypeQuote, Codes: []string{"A"}, Err: errors.New("rejected")},
		}
		svc := NewService(quotes, &fakeRankingRepo{}, &fakeSnapshotRepo{}, newFakeBoardStore(), &fakePublisher{}, 50)

		_, err := svc.RefreshMarket(ctx, market)
		require.Error(t, err)
		assert.Zero(t, quotes.resets)
		assert.Len(t, quotes.subscribed, 1)
	})

	t.Run("empty plate is an error", func(t *testing.T) {
		quotes := &fakeQuoteSource{rankings: map[string][]entity.PlateRankingRow{}}
		svc := NewService(quotes, &fakeRankingRepo{}, &fakeSnapshotRepo{}, newFakeBoardStore(), &fakePublisher{}, 50)

		_, err := svc.RefreshMarket(ctx, market)
		require.Error(t, err)
	})
}

func TestServiceLatest(t *testing.T) {
	ctx := context.Background()

	t.Run("serves from cache when present", func(t *testing.T) {
		store := newFakeBoardStore()
		store.boards["cn"] = &entity.RankingBoard{Market: "cn"}
		svc := NewService(&fakeQuoteSource{}, &fakeRankingRepo{}, &fakeSnapshotRepo{}, store, &fakePublisher{}, 50)

		board, err := svc.Latest(ctx, "cn")
		require.NoError(t, err)
		require.NotNil(t, board)
		assert.Equal(t, "cn", board.Market)
	})

	t.Run("falls back to database and backfills cache", func(t *testing.T) {
		payload, err := json.Marshal(entity.RankingBoard{Market: "hk"})
		require.NoError(t, err)

		store := newFakeBoardStore()
		repo := &fakeRankingRepo{latest: &entity.MarketRanking{Market: "hk", Payload: payload}}
		svc := NewService(&fakeQuoteSource{}, repo, &fakeSnapshotRepo{}, store, &fakePublisher{}, 50)

		board, err := svc.Latest(ctx, "hk")
		require.NoError(t, err)
		require.NotNil(t, board)
		assert.Equal(t, "hk", board.Market)

		_, cached := store.boards["hk"]
		assert.True(t, cached)
	})

	t.Run("no ranking yet returns nil without error", func(t *testing.T) {
		svc := NewService(&fakeQuoteSource{}, &fakeRankingRepo{}, &fakeSnapshotRepo{}, newFakeBoardStore(), &fakePublisher{}, 50)

		board, err := svc.Latest(ctx, "cn")
		require.NoError(t, err)
		assert.Nil(t, board)
	})
}

func TestBuildEntries(t *testing.T) {
	rows := []entity.PlateRankingRow{{Code: "A", Name: "Alpha"}, {Code: "B"}}
	byCode := map[string]entity.Snapshot{
		"B": snapshotFor("B", 12, 10),
	}

	entries := buildEntries(rows, byCode)
	require.Len(t, entries, 2)

	// A has no snapshot but keeps its rank.
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "Alpha", entries[0].Name)
	assert.True(t, entries[0].ChangeRatio.IsZero())

	assert.Equal(t, 2, entries[1].Rank)
	assert.Equal(t, "B Inc", entries[1].Name)
	assert.True(t, entries[1].ChangeRatio.Equal(decimal.NewFromInt(20)))
}
