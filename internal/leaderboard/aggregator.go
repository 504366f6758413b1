package leaderboard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/bet-ledger/internal/shared/db"
	"github.com/radieske/bet-ledger/pkg/contracts/events"
)

// Aggregator mantém monthly_scores a partir das apostas liquidadas.
// Cada aposta é aplicada no máximo uma vez (marca em monthly_score_applied).
type Aggregator struct {
	db    *sql.DB
	cache Cache
	log   *zap.Logger
	hooks Hooks
	now   func() time.Time

	// gerações por período: Apply incrementa ao invalidar, Top só grava
	// no cache se a geração não mudou durante a consulta
	mu   sync.Mutex
	gens map[string]uint64
}

// NewAggregator: cache pode ser nil
func NewAggregator(conn *sql.DB, cache Cache, log *zap.Logger, hooks Hooks) *Aggregator {
	return &Aggregator{db: conn, cache: cache, log: log, hooks: hooks, now: time.Now, gens: map[string]uint64{}}
}

// Apply grava a marca da aposta e soma o delta no placar na mesma transação.
// Retorna false quando a aposta já tinha sido aplicada.
func (a *Aggregator) Apply(ctx context.Context, d Delta) (bool, error) {
	if err := d.validate(); err != nil {
		return false, err
	}

	now := a.now().UTC()
	applied := false
	err := db.WithTx(ctx, a.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO monthly_score_applied (bet_id, bettor_id, period_key, applied_at)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (bet_id) DO NOTHING`, d.BetID, d.BettorID, d.PeriodKey, now)
		if err != nil {
			return fmt.Errorf("mark bet applied: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		wins, losses, volume, profit := d.increments()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO monthly_scores (bettor_id, period_key, wins, losses, volume, profit, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (bettor_id, period_key) DO UPDATE SET
				wins = monthly_scores.wins + EXCLUDED.wins,
				losses = monthly_scores.losses + EXCLUDED.losses,
				volume = monthly_scores.volume + EXCLUDED.volume,
				profit = monthly_scores.profit + EXCLUDED.profit,
				updated_at = EXCLUDED.updated_at`,
			d.BettorID, d.PeriodKey, wins, losses, volume, profit, now); err != nil {
			return fmt.Errorf("upsert monthly score: %w", err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if !applied {
		a.log.Debug("leaderboard delta already applied", zap.String("bet_id", d.BetID))
		a.observe("duplicate")
		return false, nil
	}

	a.observe("applied")
	if a.cache != nil {
		a.bump(d.PeriodKey)
		if err := a.cache.Invalidate(ctx, d.PeriodKey); err != nil {
			a.log.Warn("leaderboard cache invalidate failed", zap.String("period_key", d.PeriodKey), zap.Error(err))
		}
	}
	return true, nil
}

// Record adapta o evento de liquidação para Apply.
// Apostas void não entram no ranking.
func (a *Aggregator) Record(ctx context.Context, e events.BetSettled) error {
	if e.Status == StatusVoid {
		return nil
	}
	_, err := a.Apply(ctx, DeltaFromEvent(e))
	return err
}

// Top retorna o ranking do período: lucro, vitórias, volume e id do apostador
func (a *Aggregator) Top(ctx context.Context, periodKey string, limit int) ([]Score, error) {
	if limit <= 0 {
		limit = 10
	}
	gen := a.generation(periodKey)
	if a.cache != nil {
		scores, ok, err := a.cache.GetTop(ctx, periodKey, limit)
		if err != nil {
			a.log.Warn("leaderboard cache read failed", zap.String("period_key", periodKey), zap.Error(err))
		} else if ok {
			return scores, nil
		}
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT bettor_id, period_key, wins, losses, volume, profit, updated_at
		FROM monthly_scores
		WHERE period_key=$1
		ORDER BY profit DESC, wins DESC, volume DESC, bettor_id ASC
		LIMIT $2`, periodKey, limit)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	scores := []Score{}
	for rows.Next() {
		var s Score
		if err := rows.Scan(&s.BettorID, &s.PeriodKey, &s.Wins, &s.Losses, &s.Volume, &s.Profit, &s.UpdatedAt); err != nil {
			return nil, err
		}
		scores = append(scores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Apply no meio da consulta: não regrava linhas velhas. Workers em outros
	// processos ainda podem regravar; o TTL limita essa janela.
	if a.cache != nil && a.generation(periodKey) == gen {
		if err := a.cache.SetTop(ctx, periodKey, limit, scores); err != nil {
			a.log.Warn("leaderboard cache write failed", zap.String("period_key", periodKey), zap.Error(err))
		}
	}
	return scores, nil
}

// Get retorna o placar de um apostador no período
func (a *Aggregator) Get(ctx context.Context, bettorID, periodKey string) (*Score, error) {
	var s Score
	err := a.db.QueryRowContext(ctx, `
		SELECT bettor_id, period_key, wins, losses, volume, profit, updated_at
		FROM monthly_scores
		WHERE bettor_id=$1 AND period_key=$2`, bettorID, periodKey).
		Scan(&s.BettorID, &s.PeriodKey, &s.Wins, &s.Losses, &s.Volume, &s.Profit, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get score: %w", err)
	}
	return &s, nil
}

func (a *Aggregator) generation(period string) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gens[period]
}

func (a *Aggregator) bump(period string) {
	a.mu.Lock()
	a.gens[period]++
	a.mu.Unlock()
}

func (a *Aggregator) observe(result string) {
	if a.hooks.OnApplied != nil {
		a.hooks.OnApplied(result)
	}
}
