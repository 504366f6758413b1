package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/bet-ledger/internal/games"
	"github.com/radieske/bet-ledger/internal/settlement"
	"github.com/radieske/bet-ledger/internal/shared/kafka"
	"github.com/radieske/bet-ledger/pkg/contracts/events"
)

// Settler é a parte do Engine usada pelo consumer
type Settler interface {
	SettleGame(ctx context.Context, gameID int64) (*settlement.Result, error)
}

// Processor consome game_resolved e dispara a liquidação do jogo.
// O offset é confirmado mesmo em falha: a varredura periódica
// (SettlePending) reprocessa qualquer jogo que ficou pendente.
type Processor struct {
	Log     *zap.Logger
	Reader  kafka.MessageReader
	Settler Settler

	OnConsumed func()       // métricas (counter++)
	OnError    func(string) // métricas por fase
}

// Run inicia o loop principal de consumo das mensagens Kafka
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
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("settle from game_resolved failed", zap.Int64("offset", m.Offset), zap.Error(err))
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

// Handle decodifica o evento e liquida o jogo. Jogo sem resultado ou
// inexistente não é erro: o sinal pode chegar antes do placar.
func (p *Processor) Handle(ctx context.Context, value []byte) error {
	var ev events.GameResolved
	if err := json.Unmarshal(value, &ev); err != nil || ev.GameID == 0 {
		p.Log.Warn("invalid game_resolved message", zap.ByteString("value", value), zap.Error(err))
		p.fail("decode")
		return nil
	}

	res, err := p.Settler.SettleGame(ctx, ev.GameID)
	switch {
	case errors.Is(err, settlement.ErrNotResolved):
		p.Log.Info("game not resolved yet", zap.Int64("game_id", ev.GameID))
		return nil
	case errors.Is(err, games.ErrGameNotFound):
		p.Log.Warn("game_resolved for unknown game", zap.Int64("game_id", ev.GameID))
		return nil
	case err != nil:
		p.fail("settle")
		return err
	}

	p.Log.Debug("game_resolved handled",
		zap.Int64("game_id", ev.GameID),
		zap.Bool("already_settled", res.AlreadySettled))
	return nil
}

func (p *Processor) fail(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}
