package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/bet-ledger/internal/leaderboard"
	"github.com/radieske/bet-ledger/internal/shared/kafka"
	"github.com/radieske/bet-ledger/pkg/contracts/events"
)

// Applier é o lado do ranking que recebe os deltas
type Applier interface {
	Apply(ctx context.Context, d leaderboard.Delta) (bool, error)
}

// Processor consome bet_settled e aplica no placar mensal.
// Entrega at-least-once: duplicatas são descartadas pelo Applier.
type Processor struct {
	Log    *zap.Logger
	Reader kafka.MessageReader
	Scores Applier

	OnConsumed func()       // métricas (counter++)
	OnError    func(string) // métricas por fase
}

// Run inicia o loop de consumo; o offset só é confirmado após o Apply
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka fetch failed", zap.Error(err))
			p.fail("read")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if p.OnConsumed != nil {
			p.OnConsumed()
		}

		if err := p.Handle(ctx, m.Value); err != nil {
			// sem commit: a mensagem volta no próximo rebalance/restart
			p.Log.Warn("apply bet_settled failed", zap.Int64("offset", m.Offset), zap.Error(err))
			continue
		}
		if err := p.Reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka commit failed", zap.Error(err))
			p.fail("commit")
		}
	}
}

// Handle decodifica e aplica um evento. Mensagens inválidas são descartadas
// (retorno nil) para não travar a partição.
func (p *Processor) Handle(ctx context.Context, value []byte) error {
	var ev events.BetSettled
	if err := json.Unmarshal(value, &ev); err != nil {
		p.Log.Warn("invalid bet_settled message", zap.Error(err))
		p.fail("decode")
		return nil
	}
	if ev.Status == leaderboard.StatusVoid {
		return nil
	}

	applied, err := p.Scores.Apply(ctx, leaderboard.DeltaFromEvent(ev))
	if errors.Is(err, leaderboard.ErrInvalidDelta) {
		p.Log.Warn("dropping bet_settled", zap.String("bet_id", ev.BetID), zap.Error(err))
		p.fail("decode")
		return nil
	}
	if err != nil {
		p.fail("apply")
		return err
	}
	p.Log.Debug("bet_settled consumed",
		zap.String("bet_id", ev.BetID),
		zap.Bool("applied", applied))
	return nil
}

func (p *Processor) fail(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}
