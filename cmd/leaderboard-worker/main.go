package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radieske/bet-ledger/internal/leaderboard"
	lbcache "github.com/radieske/bet-ledger/internal/leaderboard/cache"
	"github.com/radieske/bet-ledger/internal/leaderboard/consumer"
	sharedcache "github.com/radieske/bet-ledger/internal/shared/cache"
	"github.com/radieske/bet-ledger/internal/shared/config"
	"github.com/radieske/bet-ledger/internal/shared/db"
	"github.com/radieske/bet-ledger/internal/shared/kafka"
	"github.com/radieske/bet-ledger/internal/shared/logger"
	"github.com/radieske/bet-ledger/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "leaderboard-worker"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Inicializa dependências: Postgres e Redis
	pg, err := db.ConnectPostgres(cfg.PostgresDSN, db.PoolOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	rdb, err := sharedcache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	m := metrics.NewCollectors(prometheus.DefaultRegisterer)
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "leaderboard_messages_consumed_total", Help: "mensagens bet_settled consumidas"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "leaderboard_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, errorsBy)

	agg := leaderboard.NewAggregator(pg, lbcache.NewRedisCache(rdb, cfg.LeaderboardCacheTTL), log, leaderboard.Hooks{
		OnApplied: func(result string) { m.LeaderboardApplied.WithLabelValues(result).Inc() },
	})

	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicBetSettled, cfg.ServiceName)
	defer reader.Close()

	proc := &consumer.Processor{
		Log:        log,
		Reader:     reader,
		Scores:     agg,
		OnConsumed: func() { consumed.Inc() },
		OnError:    func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	health := func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return err
		}
		return rdb.Ping(ctx).Err()
	}
	srv, srvErr := metrics.StartMetricsServer(cfg.MetricsPort, prometheus.DefaultGatherer, health)
	log.Info("metrics/health listening", zap.String("port", cfg.MetricsPort))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return proc.Run(gctx) })
	// Aquece o cache do top N do mês corrente
	g.Go(func() error {
		ticker := time.NewTicker(cfg.LeaderboardCacheTTL)
		defer ticker.Stop()
		for {
			period := leaderboard.PeriodKey(time.Now())
			if _, err := agg.Top(gctx, period, cfg.LeaderboardTopN); err != nil && gctx.Err() == nil {
				log.Warn("leaderboard warmup failed", zap.String("period_key", period), zap.Error(err))
			}
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
			}
		}
	})
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

	log.Info("leaderboard-worker started")
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Fatal("leaderboard-worker stopped with error", zap.Error(err))
	}
	log.Info("leaderboard-worker stopped")
}
