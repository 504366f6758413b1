package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/radieske/bet-ledger/pkg/contracts/events"
)

var (
	ErrInvalidDelta = errors.New("invalid leaderboard delta")
	ErrNotFound     = errors.New("score not found")
)

const (
	StatusWon  = "won"
	StatusLost = "lost"
	StatusVoid = "void"
)

// Delta é a contribuição de uma aposta liquidada para o placar mensal
type Delta struct {
	BetID     string
	BettorID  string
	PeriodKey string
	Status    string // won | lost
	Stake     int64
	Payout    int64
}

func (d Delta) validate() error {
	switch {
	case d.BetID == "" || d.BettorID == "":
		return fmt.Errorf("%w: bet and bettor ids are required", ErrInvalidDelta)
	case d.PeriodKey == "":
		return fmt.Errorf("%w: period key is required", ErrInvalidDelta)
	case d.Status != StatusWon && d.Status != StatusLost:
		return fmt.Errorf("%w: status must be won or lost", ErrInvalidDelta)
	case d.Stake <= 0:
		return fmt.Errorf("%w: stake must be > 0", ErrInvalidDelta)
	}
	return nil
}

// increments devolve (wins, losses, volume, profit) a somar no placar
func (d Delta) increments() (int64, int64, int64, int64) {
	if d.Status == StatusWon {
		return 1, 0, d.Stake, d.Payout - d.Stake
	}
	return 0, 1, d.Stake, -d.Stake
}

// DeltaFromEvent converte o evento de liquidação. Sem period_key no evento,
// o período é derivado de settled_at.
func DeltaFromEvent(e events.BetSettled) Delta {
	period := e.PeriodKey
	if period == "" && !e.SettledAt.IsZero() {
		period = PeriodKey(e.SettledAt)
	}
	return Delta{
		BetID:     e.BetID,
		BettorID:  e.BettorID,
		PeriodKey: period,
		Status:    e.Status,
		Stake:     e.Stake,
		Payout:    e.Payout,
	}
}

// PeriodKey é o mês (UTC) no formato "YYYY-MM"
func PeriodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Score é a linha agregada de um apostador num período
type Score struct {
	BettorID  string    `json:"bettor_id"`
	PeriodKey string    `json:"period_key"`
	Wins      int64     `json:"wins"`
	Losses    int64     `json:"losses"`
	Volume    int64     `json:"volume"`
	Profit    int64     `json:"profit"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Cache guarda o top N por período (Redis em produção)
type Cache interface {
	GetTop(ctx context.Context, periodKey string, limit int) ([]Score, bool, error)
	SetTop(ctx context.Context, periodKey string, limit int, scores []Score) error
	Invalidate(ctx context.Context, periodKey string) error
}

// Hooks de métricas; result é "applied" ou "duplicate"
type Hooks struct {
	OnApplied func(result string)
}
