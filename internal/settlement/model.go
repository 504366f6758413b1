package settlement

import (
	"context"
	"errors"

	"github.com/radieske/bet-ledger/internal/games"
	"github.com/radieske/bet-ledger/pkg/contracts/events"
)

var ErrNotResolved = errors.New("game outcome not resolved")

// Sink recebe as apostas ganhas/perdidas após o commit da liquidação.
// Falhas aqui não desfazem nada: são registradas e contadas.
type Sink interface {
	Record(ctx context.Context, e events.BetSettled) error
}

// Hooks de métricas, disparados após o commit
type Hooks struct {
	OnBetSettled  func(status string)
	OnGameSettled func()
	OnError       func(stage string)
	OnSinkFailure func()
}

// Result de SettleGame. AlreadySettled indica replay sem efeito.
type Result struct {
	GameID         int64
	Outcome        games.Outcome
	AlreadySettled bool
	SettledBets    int
	Won            int
	Lost           int
	Void           int
	Skipped        int // apostas de carteiras congeladas, ficam open
}

// Summary agrega uma varredura de SettlePending
type Summary struct {
	GamesChecked int
	GamesSettled int
	SettledBets  int
	Won          int
	Lost         int
	Void         int
	Skipped      int
	Failed       int
}

func (s *Summary) add(r *Result) {
	if r.AlreadySettled {
		return
	}
	if r.Skipped == 0 {
		s.GamesSettled++
	}
	s.SettledBets += r.SettledBets
	s.Won += r.Won
	s.Lost += r.Lost
	s.Void += r.Void
	s.Skipped += r.Skipped
}
