package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/quotepulse/stock-tracker/internal/config"
	"github.com/quotepulse/stock-tracker/internal/entity"
	"github.com/stretchr/testify/assert"
)

type fakeRankingRefresher struct {
	refreshed []string
	failFor   map[string]error
}

func (f *fakeRankingRefresher) RefreshMarket(_ context.Context, market config.MarketConfig) (*entity.RankingBoard, error) {
	f.refreshed = append(f.refreshed, market.Name)
	if err, ok := f.failFor[market.Name]; ok {
		return nil, err
	}
	return &entity.RankingBoard{Market: market.Name}, nil
}

type fakeWatchlistRefresher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeWatchlistRefresher) RefreshAll(_ context.Context) ([]entity.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil, f.err
}

func (f *fakeWatchlistRefresher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testMarkets() []config.MarketConfig {
	return []config.MarketConfig{
		{Name: "cn", PlateCode: "SH.LIST0600"},
		{Name: "hk", PlateCode: "HK.LIST1600"},
	}
}

func TestServiceCollect(t *testing.T) {
	t.Run("refreshes every market and the watchlists", func(t *testing.T) {
		rankings := &fakeRankingRefresher{}
		watchlists := &fakeWatchlistRefresher{}
		svc := NewService(rankings, watchlists, testMarkets(), time.Hour)

		svc.Collect(context.Background())

		assert.Equal(t, []string{"cn", "hk"}, rankings.refreshed)
		assert.Equal(t, 1, watchlists.calls)
	})

	t.Run("a failing market does not stop the round", func(t *testing.T) {
		rankings := &fakeRankingRefresher{failFor: map[string]error{"cn": errors.New("gateway down")}}
		watchlists := &fakeWatchlistRefresher{}
		svc := NewService(rankings, watchlists, testMarkets(), time.Hour)

		svc.Collect(context.Background())

		assert.Equal(t, []string{"cn", "hk"}, rankings.refreshed)
		assert.Equal(t, 1, watchlists.calls)
	})

	t.Run("cancelled context stops the round early", func(t *testing.T) {
		rankings := &fakeRankingRefresher{}
		watchlists := &fakeWatchlistRefresher{}
		svc := NewService(rankings, watchlists, testMarkets(), time.Hour)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		svc.Collect(ctx)

		assert.Empty(t, rankings.refreshed)
		assert.Zero(t, watchlists.calls)
	})
}

func TestServiceRun(t *testing.T) {
	rankings := &fakeRankingRefresher{}
	watchlists := &fakeWatchlistRefresher{}
	svc := NewService(rankings, watchlists, testMarkets(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	// The initial round runs before the first tick.
	assert.Eventually(t, func() bool { return watchlists.callCount() >= 1 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
