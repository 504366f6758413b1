package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/radieske/bet-ledger/internal/ledger"
	"github.com/radieske/bet-ledger/internal/shared/db"
)

// Discrepancy é uma carteira cujo saldo não bate com a soma do ledger
type Discrepancy struct {
	WalletID  string
	Balance   int64
	LedgerSum int64
}

func (d Discrepancy) Diff() int64 { return d.Balance - d.LedgerSum }

// Report resume uma auditoria completa
type Report struct {
	Checked       int
	Discrepancies []Discrepancy
}

// Auditor verifica o invariante saldo == soma do ledger. Divergência é erro
// fatal de integridade: a carteira é congelada e nunca corrigida aqui.
type Auditor struct {
	db         *sql.DB
	ledger     *ledger.Store
	log        *zap.Logger
	OnMismatch func(d Discrepancy)
}

func NewAuditor(conn *sql.DB, log *zap.Logger) *Auditor {
	return &Auditor{db: conn, ledger: ledger.NewStore(conn), log: log}
}

// AuditWallet confere uma carteira; devolve nil quando está consistente.
// Saldo e soma saem da mesma consulta, logo do mesmo snapshot: um crédito
// concorrente não aparece como divergência.
func (a *Auditor) AuditWallet(ctx context.Context, walletID string) (*Discrepancy, error) {
	var balance, sum int64
	err := a.db.QueryRowContext(ctx, `
		SELECT w.balance, COALESCE(SUM(l.amount), 0) AS ledger_sum
		FROM wallets w
		LEFT JOIN ledger_entries l ON l.wallet_id = w.id
		WHERE w.id=$1
		GROUP BY w.balance`, walletID).Scan(&balance, &sum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("audit wallet: %w", err)
	}
	if sum == balance {
		return nil, nil
	}

	d := Discrepancy{WalletID: walletID, Balance: balance, LedgerSum: sum}
	if err := a.freeze(ctx, d); err != nil {
		return nil, err
	}
	return &d, nil
}

// AuditAll confere todas as carteiras numa única consulta agregada e congela
// as divergentes.
func (a *Auditor) AuditAll(ctx context.Context) (Report, error) {
	var rep Report
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM wallets`).Scan(&rep.Checked); err != nil {
		return rep, fmt.Errorf("count wallets: %w", err)
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT w.id, w.balance, COALESCE(SUM(l.amount), 0) AS ledger_sum
		FROM wallets w
		LEFT JOIN ledger_entries l ON l.wallet_id = w.id
		GROUP BY w.id, w.balance
		HAVING w.balance <> COALESCE(SUM(l.amount), 0)
		ORDER BY w.id`)
	if err != nil {
		return rep, fmt.Errorf("audit query: %w", err)
	}
	for rows.Next() {
		var d Discrepancy
		if err := rows.Scan(&d.WalletID, &d.Balance, &d.LedgerSum); err != nil {
			rows.Close()
			return rep, err
		}
		rep.Discrepancies = append(rep.Discrepancies, d)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return rep, err
	}
	rows.Close()

	for _, d := range rep.Discrepancies {
		if err := a.freeze(ctx, d); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// Unfreeze libera a carteira depois da reconciliação manual, desde que o
// invariante volte a valer.
func (a *Auditor) Unfreeze(ctx context.Context, walletID string) error {
	return db.WithTx(ctx, a.db, func(tx *sql.Tx) error {
		var balance int64
		err := tx.QueryRowContext(ctx, `SELECT balance FROM wallets WHERE id=$1 FOR UPDATE`, walletID).Scan(&balance)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrWalletNotFound
		}
		if err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}

		sum, err := a.ledger.WithTx(tx).Sum(ctx, walletID)
		if err != nil {
			return err
		}
		if sum != balance {
			return fmt.Errorf("%w: balance=%d ledger=%d", ErrBalanceMismatch, balance, sum)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE wallets SET frozen = FALSE, updated_at = NOW() WHERE id=$1`, walletID); err != nil {
			return fmt.Errorf("unfreeze wallet: %w", err)
		}
		a.log.Info("wallet unfrozen", zap.String("wallet_id", walletID))
		return nil
	})
}

func (a *Auditor) freeze(ctx context.Context, d Discrepancy) error {
	a.log.Error("ledger invariant violated",
		zap.String("wallet_id", d.WalletID),
		zap.Int64("balance", d.Balance),
		zap.Int64("ledger_sum", d.LedgerSum),
		zap.Int64("diff", d.Diff()))

	if _, err := a.db.ExecContext(ctx,
		`UPDATE wallets SET frozen = TRUE, updated_at = NOW() WHERE id=$1 AND frozen = FALSE`, d.WalletID); err != nil {
		return fmt.Errorf("freeze wallet: %w", err)
	}
	if a.OnMismatch != nil {
		a.OnMismatch(d)
	}
	return nil
}
