package games

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/radieske/bet-ledger/internal/shared/db"
)

var ErrGameNotFound = errors.New("game not found")

const gameColumns = `id, status, home_score, away_score, winner, start_time, settlement_status, settled_at`

// Repo lê jogos e grava apenas a marca de liquidação
type Repo struct{ q db.DBTX }

func NewRepo(q db.DBTX) *Repo { return &Repo{q: q} }

func (r *Repo) WithTx(tx *sql.Tx) *Repo { return &Repo{q: tx} }

func (r *Repo) Get(ctx context.Context, id int64) (*Game, error) {
	return r.get(ctx, `SELECT `+gameColumns+` FROM games WHERE id=$1`, id)
}

// LockForSettlement trava o jogo com exclusividade: tentativas concorrentes
// de liquidar o mesmo jogo ficam em fila aqui.
func (r *Repo) LockForSettlement(ctx context.Context, id int64) (*Game, error) {
	return r.get(ctx, `SELECT `+gameColumns+` FROM games WHERE id=$1 FOR UPDATE`, id)
}

// LockForWager trava o jogo em modo compartilhado durante a aposta, para que
// ela não cruze com a liquidação (mesma ordem de locks: jogo -> carteira).
func (r *Repo) LockForWager(ctx context.Context, id int64) (*Game, error) {
	return r.get(ctx, `SELECT `+gameColumns+` FROM games WHERE id=$1 FOR SHARE`, id)
}

// MarkSettled grava o estado terminal da liquidação do jogo
func (r *Repo) MarkSettled(ctx context.Context, id int64, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE games SET settlement_status='settled', settled_at=$2
		WHERE id=$1 AND settlement_status='pending'`, id, at)
	if err != nil {
		return fmt.Errorf("mark game settled: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("mark game settled: game %d not pending", id)
	}
	return nil
}

// ListSettleable retorna jogos com resultado e liquidação pendente,
// mais antigos primeiro.
func (r *Repo) ListSettleable(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id FROM games
		WHERE status IN ('final','canceled') AND settlement_status='pending'
		ORDER BY start_time NULLS LAST, id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list settleable games: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repo) get(ctx context.Context, query string, id int64) (*Game, error) {
	var (
		g                    Game
		status, settlement   string
		home, away           sql.NullInt64
		startTime, settledAt sql.NullTime
	)
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&g.ID, &status, &home, &away, &g.Winner, &startTime, &settlement, &settledAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load game: %w", err)
	}

	g.Status = Status(status)
	g.SettlementStatus = SettlementStatus(settlement)
	if home.Valid {
		v := int(home.Int64)
		g.HomeScore = &v
	}
	if away.Valid {
		v := int(away.Int64)
		g.AwayScore = &v
	}
	if startTime.Valid {
		g.StartTime = &startTime.Time
	}
	if settledAt.Valid {
		g.SettledAt = &settledAt.Time
	}
	return &g, nil
}
