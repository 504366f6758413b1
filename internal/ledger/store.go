package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/radieske/bet-ledger/internal/shared/db"
)

var ErrInvalidKind = errors.New("invalid ledger entry kind")

const entryColumns = `id, wallet_id, kind, amount, reference, note, created_at`

// Store grava e lê lançamentos na tabela ledger_entries.
// Não existe UPDATE nem DELETE: o ledger é append-only.
type Store struct{ q db.DBTX }

func NewStore(q db.DBTX) *Store { return &Store{q: q} }

// WithTx devolve um Store que executa dentro da transação informada
func (s *Store) WithTx(tx *sql.Tx) *Store { return &Store{q: tx} }

// Append insere o lançamento. Se já existir um com o mesmo
// (wallet_id, kind, reference) não vazio, devolve o existente com created=false.
func (s *Store) Append(ctx context.Context, e Entry) (entry Entry, created bool, err error) {
	if !e.Kind.Valid() {
		return Entry{}, false, fmt.Errorf("%w: %q", ErrInvalidKind, e.Kind)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	err = s.q.QueryRowContext(ctx, `
		INSERT INTO ledger_entries (`+entryColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (wallet_id, kind, reference) WHERE reference <> '' DO NOTHING
		RETURNING id, created_at`,
		e.ID, e.WalletID, string(e.Kind), e.Amount, e.Reference, e.Note, e.CreatedAt,
	).Scan(&e.ID, &e.CreatedAt)
	if err == nil {
		return e, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, fmt.Errorf("insert ledger entry: %w", err)
	}

	// conflito: outro lançamento com a mesma chave já existe
	existing, found, err := s.Find(ctx, e.WalletID, e.Kind, e.Reference)
	if err != nil {
		return Entry{}, false, err
	}
	if !found {
		return Entry{}, false, fmt.Errorf("ledger entry conflict without row: wallet=%s kind=%s ref=%s", e.WalletID, e.Kind, e.Reference)
	}
	return existing, false, nil
}

// Find busca o lançamento de uma chave de idempotência
func (s *Store) Find(ctx context.Context, walletID string, kind Kind, reference string) (Entry, bool, error) {
	if reference == "" {
		return Entry{}, false, nil
	}
	row := s.q.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE wallet_id=$1 AND kind=$2 AND reference=$3`,
		walletID, string(kind), reference)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("find ledger entry: %w", err)
	}
	return e, true, nil
}

// Sum soma todos os lançamentos da carteira. Uso exclusivo de auditoria:
// o saldo do caminho quente é wallets.balance.
func (s *Store) Sum(ctx context.Context, walletID string) (int64, error) {
	var total int64
	if err := s.q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE wallet_id=$1`, walletID,
	).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum ledger: %w", err)
	}
	return total, nil
}

// ListByWallet retorna os lançamentos mais recentes primeiro
func (s *Store) ListByWallet(ctx context.Context, walletID string, limit int) ([]Entry, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE wallet_id=$1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, walletID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(r scanner) (Entry, error) {
	var (
		e    Entry
		kind string
	)
	if err := r.Scan(&e.ID, &e.WalletID, &kind, &e.Amount, &e.Reference, &e.Note, &e.CreatedAt); err != nil {
		return Entry{}, err
	}
	e.Kind = Kind(kind)
	return e, nil
}
