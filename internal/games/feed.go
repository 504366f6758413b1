package games

import (
	"context"
	"fmt"

	"github.com/radieske/bet-ledger/internal/shared/db"
)

// Feed grava o estado dos jogos do lado do provedor de placares.
// Nunca toca em settlement_status/settled_at, que pertencem à liquidação.
type Feed struct{ q db.DBTX }

func NewFeed(q db.DBTX) *Feed { return &Feed{q: q} }

// Upsert cria ou atualiza o jogo com o estado informado
func (f *Feed) Upsert(ctx context.Context, g Game) error {
	_, err := f.q.ExecContext(ctx, `
		INSERT INTO games (id, status, home_score, away_score, winner, start_time)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			home_score = EXCLUDED.home_score,
			away_score = EXCLUDED.away_score,
			winner = EXCLUDED.winner,
			start_time = COALESCE(EXCLUDED.start_time, games.start_time)`,
		g.ID, string(g.Status), g.HomeScore, g.AwayScore, g.Winner, g.StartTime)
	if err != nil {
		return fmt.Errorf("upsert game %d: %w", g.ID, err)
	}
	return nil
}
