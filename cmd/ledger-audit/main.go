package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radieske/bet-ledger/internal/shared/config"
	"github.com/radieske/bet-ledger/internal/shared/db"
	"github.com/radieske/bet-ledger/internal/shared/logger"
	"github.com/radieske/bet-ledger/internal/shared/metrics"
	"github.com/radieske/bet-ledger/internal/wallet"
)

func main() {
	once := flag.Bool("once", false, "roda uma auditoria e sai (exit 1 se houver divergência)")
	unfreeze := flag.String("unfreeze", "", "descongela a carteira informada se o saldo já bate com o ledger")
	flag.Parse()

	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "ledger-audit"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN, db.PoolOptions{MaxOpenConns: 4})
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	m := metrics.NewCollectors(prometheus.DefaultRegisterer)
	auditor := wallet.NewAuditor(pg, log)
	auditor.OnMismatch = func(wallet.Discrepancy) { m.AuditMismatches.Inc() }

	// Reconciliação manual: só libera a carteira depois do ajuste (kind=adjust)
	if *unfreeze != "" {
		if err := auditor.Unfreeze(ctx, *unfreeze); err != nil {
			log.Fatal("unfreeze failed", zap.String("wallet_id", *unfreeze), zap.Error(err))
		}
		log.Info("wallet unfrozen", zap.String("wallet_id", *unfreeze))
		return
	}

	if *once {
		rep, err := auditor.AuditAll(ctx)
		if err != nil {
			log.Fatal("audit failed", zap.Error(err))
		}
		log.Info("audit finished", zap.Int("checked", rep.Checked), zap.Int("discrepancies", len(rep.Discrepancies)))
		if len(rep.Discrepancies) > 0 {
			log.Sync()
			os.Exit(1)
		}
		return
	}

	srv, srvErr := metrics.StartMetricsServer(cfg.MetricsPort, prometheus.DefaultGatherer, pg.PingContext)
	log.Info("metrics/health listening", zap.String("port", cfg.MetricsPort))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(cfg.AuditInterval)
		defer ticker.Stop()
		for {
			rep, err := auditor.AuditAll(gctx)
			switch {
			case err != nil && gctx.Err() != nil:
				return gctx.Err()
			case err != nil:
				log.Error("audit failed", zap.Error(err))
			default:
				log.Info("audit finished", zap.Int("checked", rep.Checked), zap.Int("discrepancies", len(rep.Discrepancies)))
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

	log.Info("ledger-audit started", zap.Duration("interval", cfg.AuditInterval))
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Fatal("ledger-audit stopped with error", zap.Error(err))
	}
	log.Info("ledger-audit stopped")
}
