package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/bet-ledger/internal/ledger"
	"github.com/radieske/bet-ledger/internal/shared/db"
)

const walletColumns = `id, owner_id, balance, frozen, last_checkin_date, version, created_at, updated_at`

// Service é o único caminho autorizado para alterar wallets.balance.
// Cada movimentação trava a linha da carteira (FOR UPDATE), grava o
// lançamento e atualiza o saldo na mesma transação.
type Service struct {
	db     *sql.DB
	ledger *ledger.Store
	log    *zap.Logger
	hooks  Hooks
}

func NewService(conn *sql.DB, log *zap.Logger, hooks Hooks) *Service {
	return &Service{db: conn, ledger: ledger.NewStore(conn), log: log, hooks: hooks}
}

// GetOrCreate retorna a carteira do dono, criando-a na primeira referência
func (s *Service) GetOrCreate(ctx context.Context, ownerID string) (*Wallet, error) {
	var w *Wallet
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		w, err = s.GetOrCreateTx(ctx, tx, ownerID)
		return err
	})
	return w, err
}

// GetOrCreateTx é seguro sob concorrência: dois primeiros acessos simultâneos
// convergem para a mesma linha via ON CONFLICT.
func (s *Service) GetOrCreateTx(ctx context.Context, tx *sql.Tx, ownerID string) (*Wallet, error) {
	if ownerID == "" {
		return nil, errors.New("owner id required")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO wallets (id, owner_id) VALUES ($1,$2) ON CONFLICT (owner_id) DO NOTHING`,
		uuid.NewString(), ownerID); err != nil {
		return nil, fmt.Errorf("create wallet: %w", err)
	}

	w, err := scanWallet(tx.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE owner_id=$1`, ownerID))
	if err != nil {
		return nil, fmt.Errorf("load wallet: %w", err)
	}
	return w, nil
}

// Get lê a carteira pelo id
func (s *Service) Get(ctx context.Context, walletID string) (*Wallet, error) {
	w, err := scanWallet(s.db.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE id=$1`, walletID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

// Balance é a leitura do caminho quente (projeção materializada)
func (s *Service) Balance(ctx context.Context, walletID string) (int64, error) {
	var bal int64
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM wallets WHERE id=$1`, walletID).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrWalletNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("wallet balance: %w", err)
	}
	return bal, nil
}

// Credit soma Amount ao saldo em transação própria
func (s *Service) Credit(ctx context.Context, m Movement) (*Receipt, error) {
	return s.inTx(ctx, m, s.CreditTx)
}

// Debit subtrai Amount do saldo em transação própria
func (s *Service) Debit(ctx context.Context, m Movement) (*Receipt, error) {
	return s.inTx(ctx, m, s.DebitTx)
}

// CreditTx executa o crédito dentro de uma transação do chamador.
// Hooks não são disparados: o chamador usa Observe após o commit.
func (s *Service) CreditTx(ctx context.Context, tx *sql.Tx, m Movement) (*Receipt, error) {
	return s.apply(ctx, tx, m, false)
}

// DebitTx executa o débito dentro de uma transação do chamador
func (s *Service) DebitTx(ctx context.Context, tx *sql.Tx, m Movement) (*Receipt, error) {
	return s.apply(ctx, tx, m, true)
}

// Observe dispara os hooks de métricas para recibos já confirmados
func (s *Service) Observe(receipts ...*Receipt) {
	for _, r := range receipts {
		if r == nil {
			continue
		}
		if r.Replayed {
			if s.hooks.OnReplay != nil {
				s.hooks.OnReplay(r.Entry.Kind)
			}
			continue
		}
		if s.hooks.OnEntry != nil {
			s.hooks.OnEntry(r.Entry.Kind)
		}
	}
}

func (s *Service) inTx(ctx context.Context, m Movement, fn func(context.Context, *sql.Tx, Movement) (*Receipt, error)) (*Receipt, error) {
	if m.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var r *Receipt
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		r, err = fn(ctx, tx, m)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Observe(r)
	return r, nil
}

func (s *Service) apply(ctx context.Context, tx *sql.Tx, m Movement, debit bool) (*Receipt, error) {
	if m.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !m.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ledger.ErrInvalidKind, m.Kind)
	}

	// Lock pessimista: serializa movimentações concorrentes da mesma carteira
	var (
		balance int64
		frozen  bool
	)
	err := tx.QueryRowContext(ctx,
		`SELECT balance, frozen FROM wallets WHERE id=$1 FOR UPDATE`, m.WalletID).Scan(&balance, &frozen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}

	store := s.ledger.WithTx(tx)

	// Idempotência: a mesma (carteira, kind, referência) só move saldo uma vez
	if m.Reference != "" {
		existing, found, err := store.Find(ctx, m.WalletID, m.Kind, m.Reference)
		if err != nil {
			return nil, err
		}
		if found {
			s.log.Debug("idempotent replay",
				zap.String("wallet_id", m.WalletID),
				zap.String("kind", string(m.Kind)),
				zap.String("reference", m.Reference))
			return &Receipt{Entry: existing, Replayed: true, Balance: balance}, nil
		}
	}

	// adjust continua liberado para a reconciliação manual
	if frozen && m.Kind != ledger.KindAdjust {
		return nil, ErrWalletFrozen
	}

	amount := m.Amount
	if debit {
		if !m.AllowNegative && balance < m.Amount {
			return nil, fmt.Errorf("%w: have=%d need=%d", ErrInsufficientBalance, balance, m.Amount)
		}
		amount = -m.Amount
	}

	entry, created, err := store.Append(ctx, ledger.Entry{
		WalletID:  m.WalletID,
		Kind:      m.Kind,
		Amount:    amount,
		Reference: m.Reference,
		Note:      m.Note,
	})
	if err != nil {
		return nil, err
	}
	if !created {
		return &Receipt{Entry: entry, Replayed: true, Balance: balance}, nil
	}

	var newBalance int64
	if err := tx.QueryRowContext(ctx, `
		UPDATE wallets SET balance = balance + $1, version = version + 1, updated_at = NOW()
		WHERE id=$2
		RETURNING balance`, amount, m.WalletID).Scan(&newBalance); err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}

	return &Receipt{Entry: entry, Balance: newBalance}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWallet(r rowScanner) (*Wallet, error) {
	var (
		w       Wallet
		checkin sql.NullTime
	)
	if err := r.Scan(&w.ID, &w.OwnerID, &w.Balance, &w.Frozen, &checkin, &w.Version, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	if checkin.Valid {
		t := checkin.Time
		w.LastCheckinDate = &t
	}
	return &w, nil
}
