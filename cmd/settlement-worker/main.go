package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radieske/bet-ledger/internal/games"
	"github.com/radieske/bet-ledger/internal/leaderboard"
	lbcache "github.com/radieske/bet-ledger/internal/leaderboard/cache"
	"github.com/radieske/bet-ledger/internal/ledger"
	"github.com/radieske/bet-ledger/internal/settlement"
	"github.com/radieske/bet-ledger/internal/settlement/consumer"
	"github.com/radieske/bet-ledger/internal/settlement/producer"
	sharedcache "github.com/radieske/bet-ledger/internal/shared/cache"
	"github.com/radieske/bet-ledger/internal/shared/config"
	"github.com/radieske/bet-ledger/internal/shared/db"
	"github.com/radieske/bet-ledger/internal/shared/kafka"
	"github.com/radieske/bet-ledger/internal/shared/logger"
	"github.com/radieske/bet-ledger/internal/shared/metrics"
	"github.com/radieske/bet-ledger/internal/wallet"
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "settlement-worker"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN, db.PoolOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	if err := db.Migrate(ctx, pg); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	m := metrics.NewCollectors(prometheus.DefaultRegisterer)

	wallets := wallet.NewService(pg, log, wallet.Hooks{
		OnEntry:  func(k ledger.Kind) { m.LedgerEntries.WithLabelValues(string(k)).Inc() },
		OnReplay: func(k ledger.Kind) { m.IdempotentReplays.WithLabelValues(string(k)).Inc() },
	})

	// Destino das apostas liquidadas: ranking no mesmo processo ou tópico bet_settled
	var sink settlement.Sink
	switch cfg.SettlementSink {
	case "inline":
		rdb, err := sharedcache.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatal("redis connect", zap.Error(err))
		}
		defer rdb.Close()
		sink = leaderboard.NewAggregator(pg, lbcache.NewRedisCache(rdb, cfg.LeaderboardCacheTTL), log, leaderboard.Hooks{
			OnApplied: func(result string) { m.LeaderboardApplied.WithLabelValues(result).Inc() },
		})
	default:
		writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetSettled)
		defer writer.Close()
		sink = producer.NewKafkaPublisher(writer)
	}

	engine := settlement.NewEngine(pg, wallets, games.ScoreResolver{}, sink, log, settlement.Hooks{
		OnBetSettled:  func(status string) { m.BetsSettled.WithLabelValues(status).Inc() },
		OnGameSettled: func() { m.GamesSettled.Inc() },
		OnError:       func(stage string) { m.SettlementErrors.WithLabelValues(stage).Inc() },
		OnSinkFailure: func() { m.SinkFailures.Inc() },
	})

	// Consumer game_resolved: liquidação imediata; a varredura cobre o que escapar
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicGameResolved, cfg.ServiceName)
	defer reader.Close()

	proc := &consumer.Processor{
		Log:     log,
		Reader:  reader,
		Settler: engine,
		OnError: func(stage string) { m.SettlementErrors.WithLabelValues("consumer_" + stage).Inc() },
	}

	srv, srvErr := metrics.StartMetricsServer(cfg.MetricsPort, prometheus.DefaultGatherer, pg.PingContext)
	log.Info("metrics/health listening", zap.String("port", cfg.MetricsPort))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return proc.Run(gctx) })
	g.Go(func() error { return engine.RunSweeper(gctx, cfg.SettlementInterval, cfg.SettlementBatchSize) })
	g.Go(func() error {
		select {
		case err, ok := <-srvErr:
			if ok {
				return err
			}
			return nil
		case <-gctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		}
	})

	log.Info("settlement-worker started",
		zap.String("sink", cfg.SettlementSink),
		zap.Duration("sweep_interval", cfg.SettlementInterval))
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Fatal("settlement-worker stopped with error", zap.Error(err))
	}
	log.Info("settlement-worker stopped")
}
