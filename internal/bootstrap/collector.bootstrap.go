package bootstrap

import (
	"context"

	"github.com/quotepulse/stock-tracker/internal/config"
	"github.com/quotepulse/stock-tracker/internal/infrastructure"
	"github.com/quotepulse/stock-tracker/internal/repository"
	"github.com/quotepulse/stock-tracker/internal/service/collector"
	"github.com/quotepulse/stock-tracker/internal/service/notify"
	"github.com/quotepulse/stock-tracker/internal/service/quote"
	"github.com/quotepulse/stock-tracker/internal/service/ranking"
	"github.com/quotepulse/stock-tracker/internal/service/watchlist"
	"github.com/quotepulse/stock-tracker/internal/util"
	"github.com/spf13/cobra"
)

func StartCollector(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := infrastructure.NewPostgresConnection(ctx, config.Env.Database["stocktrack"])
	util.ContinueOrFatal(err)
	infrastructure.StartPostgresHealthCheck(ctx, db, config.Env.Database["stocktrack"].PingInterval)

	redisClient, err := infrastructure.NewRedisClient(ctx, config.Env.Redis["cache"])
	util.ContinueOrFatal(err)

	nc, js, err := infrastructure.NewJetstream()
	util.ContinueOrFatal(err)

	err = ranking.JetstreamEventInit(ctx, js)
	util.ContinueOrFatal(err)

	snapshotRepo := repository.NewSnapshotRepository(db)
	watchlistRepo := repository.NewWatchlistRepository(db)
	marketRankingRepo := repository.NewMarketRankingRepository(db)

	gatewayCfg := config.Env.QuoteGateway
	quoteManager := quote.NewManager(
		quote.ConfigFromEnv(gatewayCfg),
		quote.DialGateway(gatewayCfg.DialTimeout, gatewayCfg.CallTimeout),
	)

	boardStore := ranking.NewRedisBoardStore(redisClient)
	rankingService := ranking.NewService(quoteManager, marketRankingRepo, snapshotRepo, boardStore, js, config.Env.Collector.TopN)
	watchlistService := watchlist.NewService(quoteManager, watchlistRepo, snapshotRepo)

	notifyService := notify.NewService(js, config.Env.Notifier)
	err = notifyService.JetstreamEventSubscribe(ctx)
	util.ContinueOrFatal(err)

	collectorService := collector.NewService(
		rankingService,
		watchlistService,
		config.Env.Collector.Markets,
		config.Env.Collector.Interval,
	)
	go collectorService.Run(ctx)

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, map[string]operation{
		"database": func(ctx context.Context) error {
			cancel()
			return db.Close()
		},
		"redis": func(ctx context.Context) error {
			return redisClient.Close()
		},
		"quote gateway session": func(ctx context.Context) error {
			return quoteManager.Teardown()
		},
		"nats connection": func(ctx context.Context) error {
			return infrastructure.CloseJetstream(nc)
		},
	})

	<-wait
}
