package settlement

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// SettlePending varre jogos com resultado e liquidação pendente.
// Jogos que falham ficam para a próxima varredura.
func (e *Engine) SettlePending(ctx context.Context, limit int) (Summary, error) {
	var sum Summary
	ids, err := e.games.ListSettleable(ctx, limit)
	if err != nil {
		e.fail("list_games")
		return sum, err
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.GamesChecked++

		res, err := e.SettleGame(ctx, id)
		if errors.Is(err, ErrNotResolved) {
			continue
		}
		if err != nil {
			sum.Failed++
			continue
		}
		sum.add(res)
	}
	return sum, nil
}

// RunSweeper executa SettlePending a cada intervalo até o contexto encerrar
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration, limit int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		sum, err := e.SettlePending(ctx, limit)
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			e.log.Warn("settlement sweep failed", zap.Error(err))
		case sum.GamesChecked > 0:
			e.log.Info("settlement sweep",
				zap.Int("games_checked", sum.GamesChecked),
				zap.Int("games_settled", sum.GamesSettled),
				zap.Int("settled_bets", sum.SettledBets),
				zap.Int("skipped", sum.Skipped),
				zap.Int("failed", sum.Failed))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
