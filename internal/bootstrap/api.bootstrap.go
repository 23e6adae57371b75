package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/quotepulse/stock-tracker/internal/config"
	httpHandler "github.com/quotepulse/stock-tracker/internal/handler/stocktracker/http"
	"github.com/quotepulse/stock-tracker/internal/infrastructure"
	"github.com/quotepulse/stock-tracker/internal/repository"
	"github.com/quotepulse/stock-tracker/internal/service/quote"
	"github.com/quotepulse/stock-tracker/internal/service/ranking"
	"github.com/quotepulse/stock-tracker/internal/service/tradeimport"
	"github.com/quotepulse/stock-tracker/internal/service/watchlist"
	"github.com/quotepulse/stock-tracker/internal/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func StartAPI(cmd *cobra.Command, args []string) {
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
	tradeRecordRepo := repository.NewTradeRecordRepository(db)
	marketRankingRepo := repository.NewMarketRankingRepository(db)

	gatewayCfg := config.Env.QuoteGateway
	quoteManager := quote.NewManager(
		quote.ConfigFromEnv(gatewayCfg),
		quote.DialGateway(gatewayCfg.DialTimeout, gatewayCfg.CallTimeout),
	)

	boardStore := ranking.NewRedisBoardStore(redisClient)
	rankingService := ranking.NewService(quoteManager, marketRankingRepo, snapshotRepo, boardStore, js, config.Env.Collector.TopN)
	watchlistService := watchlist.NewService(quoteManager, watchlistRepo, snapshotRepo)
	tradeImportService := tradeimport.NewService(tradeRecordRepo)

	handler := httpHandler.NewStockTrackerHTTPHandler(watchlistService, rankingService, tradeImportService)
	httpMux := http.NewServeMux()
	handler.Register(httpMux)

	httpPort := fmt.Sprintf(":%s", config.Env.Port["api_http"])
	httpServer := infrastructure.NewHTTPServerWithConfig(infrastructure.HTTPServerConfig{
		Addr:            httpPort,
		ShutdownTimeout: config.Env.GracefulShutdownTimeout,
	}, httpMux)

	go func() {
		err := httpServer.Start()
		if err != nil {
			logrus.Error(err)
		}
	}()
	logrus.Info(fmt.Sprintf("http server started on %s", httpPort))

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, map[string]operation{
		"database": func(ctx context.Context) error {
			cancel()
			return db.Close()
		},
		"redis": func(ctx context.Context) error {
			return redisClient.Close()
		},
		"http": func(ctx context.Context) error {
			return httpServer.Shutdown(ctx)
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
