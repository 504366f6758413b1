package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/bet-ledger/internal/betting"
	betproducer "github.com/radieske/bet-ledger/internal/betting/producer"
	"github.com/radieske/bet-ledger/internal/games"
	gameproducer "github.com/radieske/bet-ledger/internal/games/producer"
	"github.com/radieske/bet-ledger/internal/ledger"
	"github.com/radieske/bet-ledger/internal/shared/config"
	"github.com/radieske/bet-ledger/internal/shared/db"
	"github.com/radieske/bet-ledger/internal/shared/kafka"
	"github.com/radieske/bet-ledger/internal/shared/logger"
	"github.com/radieske/bet-ledger/internal/shared/metrics"
	"github.com/radieske/bet-ledger/internal/wallet"
	"github.com/radieske/bet-ledger/pkg/contracts/events"
)

// Catálogo fixo de partidas simuladas
type fixture struct {
	id       int64
	home     string
	away     string
	betsLeft int
}

var catalog = []fixture{
	{id: 1001, home: "Flamengo", away: "Palmeiras"},
	{id: 1002, home: "Grêmio", away: "Internacional"},
	{id: 1003, home: "Corinthians", away: "Santos"},
	{id: 1004, home: "São Paulo", away: "Vasco"},
}

const seedBalance = 1000

func main() {
	bettors := flag.Int("bettors", 20, "quantidade de apostadores simulados")
	interval := flag.Duration("interval", 500*time.Millisecond, "intervalo entre apostas")
	betsPerGame := flag.Int("bets-per-game", 25, "apostas antes de encerrar cada jogo")
	flag.Parse()

	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "bet-simulator"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN, db.PoolOptions{MaxOpenConns: 8})
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

	placedWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetPlaced)
	defer placedWriter.Close()
	resolvedWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicGameResolved)
	defer resolvedWriter.Close()

	manager := betting.NewManager(pg, wallets, betproducer.NewKafkaPublisher(placedWriter), log, betting.Hooks{
		OnPlaced: func() { m.BetsPlaced.Inc() },
	})
	feed := games.NewFeed(pg)
	resolved := gameproducer.NewKafkaPublisher(resolvedWriter)

	srv, _ := metrics.StartMetricsServer(cfg.MetricsPort, prometheus.DefaultGatherer, pg.PingContext)
	defer srv.Close()

	// Saldo inicial idempotente: rodar o simulador de novo não credita duas vezes
	owners := make([]string, *bettors)
	for i := range owners {
		owners[i] = fmt.Sprintf("sim-user-%03d", i+1)
		w, err := wallets.GetOrCreate(ctx, owners[i])
		if err != nil {
			log.Fatal("create wallet", zap.String("owner_id", owners[i]), zap.Error(err))
		}
		if _, err := wallets.Credit(ctx, wallet.Movement{
			WalletID:  w.ID,
			Amount:    seedBalance,
			Kind:      ledger.KindDeposit,
			Reference: "sim-seed:" + owners[i],
			Note:      "simulator seed",
		}); err != nil {
			log.Fatal("seed wallet", zap.String("owner_id", owners[i]), zap.Error(err))
		}
	}

	fixtures := make([]fixture, len(catalog))
	copy(fixtures, catalog)
	for i := range fixtures {
		fixtures[i].betsLeft = *betsPerGame
		if err := openGame(ctx, feed, fixtures[i].id); err != nil {
			log.Fatal("open game", zap.Error(err))
		}
	}

	log.Info("bet-simulator started", zap.Int("bettors", *bettors), zap.Duration("interval", *interval))
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("bet-simulator stopped")
			return
		case <-ticker.C:
		}

		f := &fixtures[rand.Intn(len(fixtures))]
		if err := placeRandomBet(ctx, manager, owners[rand.Intn(len(owners))], f.id); err != nil {
			log.Warn("place bet failed", zap.Int64("game_id", f.id), zap.Error(err))
			continue
		}

		f.betsLeft--
		if f.betsLeft > 0 {
			continue
		}

		// Encerra o jogo, avisa a liquidação e abre a próxima rodada com novo id
		home, away := rand.Intn(4), rand.Intn(4)
		if err := feed.Upsert(ctx, games.Game{ID: f.id, Status: games.StatusFinal, HomeScore: &home, AwayScore: &away}); err != nil {
			log.Warn("finish game failed", zap.Int64("game_id", f.id), zap.Error(err))
			continue
		}
		if err := resolved.PublishGameResolved(ctx, events.GameResolved{GameID: f.id, ResolvedAt: time.Now().UTC()}); err != nil {
			log.Warn("publish game_resolved failed", zap.Int64("game_id", f.id), zap.Error(err))
		}
		log.Info("game finished",
			zap.Int64("game_id", f.id),
			zap.String("match", fmt.Sprintf("%s %d x %d %s", f.home, home, away, f.away)))

		f.id += int64(len(fixtures)) * 1000
		f.betsLeft = *betsPerGame
		if err := openGame(ctx, feed, f.id); err != nil {
			log.Warn("open game failed", zap.Int64("game_id", f.id), zap.Error(err))
		}
	}
}

func openGame(ctx context.Context, feed *games.Feed, id int64) error {
	start := time.Now().UTC().Add(time.Hour)
	return feed.Upsert(ctx, games.Game{ID: id, Status: games.StatusScheduled, StartTime: &start})
}

func placeRandomBet(ctx context.Context, manager *betting.Manager, owner string, gameID int64) error {
	pick := betting.PickHome
	if rand.Intn(2) == 1 {
		pick = betting.PickAway
	}
	odds, err := betting.ParseOdds(fmt.Sprintf("%.2f", 1.1+rand.Float64()*2.4))
	if err != nil {
		return err
	}

	_, err = manager.PlaceBet(ctx, betting.PlaceBetRequest{
		BettorID: owner,
		GameID:   gameID,
		Pick:     pick,
		Stake:    int64(10 + rand.Intn(91)),
		Odds:     odds,
	})
	// sem saldo é esperado na simulação
	if errors.Is(err, wallet.ErrInsufficientBalance) {
		return nil
	}
	return err
}
