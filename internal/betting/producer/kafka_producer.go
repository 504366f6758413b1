package producer

import (
	"context"
	"encoding/json"

	"github.com/radieske/bet-ledger/internal/shared/kafka"
	"github.com/radieske/bet-ledger/pkg/contracts/events"
)

// KafkaPublisher publica apostas criadas no tópico bet_placed.
// A chave é o bet_id, então eventos da mesma aposta caem na mesma partição.
type KafkaPublisher struct {
	Writer kafka.MessageWriter
}

func NewKafkaPublisher(w kafka.MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{Writer: w}
}

func (p *KafkaPublisher) PublishBetPlaced(ctx context.Context, e events.BetPlaced) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return kafka.WriteJSON(ctx, p.Writer, e.BetID, b)
}
