package betting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/radieske/bet-ledger/internal/shared/db"
)

const betColumns = `id, bettor_id, wallet_id, game_id, pick, stake, odds, status, payout, created_at, settled_at`

// Repo implementa a persistência de apostas
type Repo struct{ q db.DBTX }

func NewRepo(q db.DBTX) *Repo { return &Repo{q: q} }

func (r *Repo) WithTx(tx *sql.Tx) *Repo { return &Repo{q: tx} }

// Insert cria a aposta como open. Retorna false se o id já existia.
func (r *Repo) Insert(ctx context.Context, b *Bet) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO bets (id, bettor_id, wallet_id, game_id, pick, stake, odds, status, payout, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'open',0,$8)
		ON CONFLICT (id) DO NOTHING`,
		b.ID, b.BettorID, b.WalletID, b.GameID, string(b.Pick), b.Stake, b.Odds, b.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert bet: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Get retorna a aposta pelo id
func (r *Repo) Get(ctx context.Context, id string) (*Bet, error) {
	b, err := scanBet(r.q.QueryRowContext(ctx, `SELECT `+betColumns+` FROM bets WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bet: %w", err)
	}
	return b, nil
}

// ListByWallet retorna as apostas da carteira, mais recentes primeiro
func (r *Repo) ListByWallet(ctx context.Context, walletID string, limit int) ([]Bet, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+betColumns+` FROM bets
		WHERE wallet_id=$1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, walletID, limit)
	if err != nil {
		return nil, fmt.Errorf("list bets: %w", err)
	}
	defer rows.Close()

	var out []Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBet(r rowScanner) (*Bet, error) {
	var (
		b            Bet
		pick, status string
		settledAt    sql.NullTime
	)
	if err := r.Scan(&b.ID, &b.BettorID, &b.WalletID, &b.GameID, &pick, &b.Stake, &b.Odds,
		&status, &b.Payout, &b.CreatedAt, &settledAt); err != nil {
		return nil, err
	}
	b.Pick = Pick(pick)
	b.Status = Status(status)
	if settledAt.Valid {
		t := settledAt.Time
		b.SettledAt = &t
	}
	return &b, nil
}
