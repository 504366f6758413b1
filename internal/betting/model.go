package betting

import (
	"errors"
	"fmt"
	"time"

	"github.com/radieske/bet-ledger/internal/ledger"
)

var (
	ErrInvalidStake = errors.New("invalid stake")
	ErrInvalidOdds  = errors.New("invalid odds")
	ErrInvalidPick  = errors.New("invalid pick")
	ErrInvalidBetID = errors.New("bet id must be a uuid")
	ErrGameNotFound = errors.New("game not found")
	ErrGameNotOpen  = errors.New("game not open for wagering")
	ErrBetNotFound  = errors.New("bet not found")
	ErrBetConflict  = errors.New("bet id already used by another bettor")
)

// Pick é o lado escolhido pelo apostador
type Pick string

const (
	PickHome Pick = "home"
	PickAway Pick = "away"
)

func (p Pick) Valid() bool { return p == PickHome || p == PickAway }

// Status da aposta: open -> {won, lost, void}, uma única transição
type Status string

const (
	StatusOpen Status = "open"
	StatusWon  Status = "won"
	StatusLost Status = "lost"
	StatusVoid Status = "void"
)

func (s Status) Terminal() bool { return s == StatusWon || s == StatusLost || s == StatusVoid }

// Bet é o modelo persistido no Postgres.
// Odds em centésimos (250 = 2.50x).
type Bet struct {
	ID        string
	BettorID  string
	WalletID  string
	GameID    int64
	Pick      Pick
	Stake     int64
	Odds      int64
	Status    Status
	Payout    int64
	CreatedAt time.Time
	SettledAt *time.Time
}

// PlaceBetRequest: BetID é opcional; quando informado funciona como chave
// de idempotência para retries do cliente.
type PlaceBetRequest struct {
	BetID    string
	BettorID string
	GameID   int64
	Pick     Pick
	Stake    int64
	Odds     int64
}

func (r PlaceBetRequest) validate() error {
	if r.Stake <= 0 {
		return ErrInvalidStake
	}
	if r.Odds <= 100 || r.Odds > MaxOdds {
		return ErrInvalidOdds
	}
	if !payoutFits(r.Stake, r.Odds) {
		return fmt.Errorf("%w: payout of %d at %s overflows", ErrInvalidStake, r.Stake, FormatOdds(r.Odds))
	}
	if !r.Pick.Valid() {
		return ErrInvalidPick
	}
	return nil
}

// HistoryItem é uma linha do extrato: ou uma aposta ou um lançamento
type HistoryItem struct {
	At    time.Time
	Bet   *Bet
	Entry *ledger.Entry
}

// Hooks de métricas
type Hooks struct {
	OnPlaced func()
}
