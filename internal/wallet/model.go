package wallet

import (
	"errors"
	"time"

	"github.com/radieske/bet-ledger/internal/ledger"
)

var (
	ErrInvalidAmount       = errors.New("amount must be > 0")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrWalletFrozen        = errors.New("wallet frozen pending reconciliation")
	ErrBalanceMismatch     = errors.New("wallet balance diverges from ledger")
)

// Wallet é a projeção materializada do ledger de um dono
type Wallet struct {
	ID              string
	OwnerID         string
	Balance         int64
	Frozen          bool
	LastCheckinDate *time.Time
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Movement descreve um crédito ou débito. Amount é sempre positivo;
// o sinal do lançamento é decidido pela operação.
type Movement struct {
	WalletID      string
	Amount        int64
	Kind          ledger.Kind
	Reference     string
	Note          string
	AllowNegative bool // só para débitos
}

// Receipt é o resultado de uma movimentação. Em replay idempotente,
// Entry é o lançamento que já existia e nada foi alterado.
type Receipt struct {
	Entry    ledger.Entry
	Replayed bool
	Balance  int64 // saldo após a operação (ou atual, em replay)
}

// Hooks recebem notificações após o commit (métricas)
type Hooks struct {
	OnEntry  func(kind ledger.Kind)
	OnReplay func(kind ledger.Kind)
}
