package producer

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/radieske/bet-ledger/internal/shared/kafka"
	"github.com/radieske/bet-ledger/pkg/contracts/events"
)

// KafkaPublisher sinaliza no tópico game_resolved que um jogo terminou
type KafkaPublisher struct {
	Writer kafka.MessageWriter
}

func NewKafkaPublisher(w kafka.MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{Writer: w}
}

func (p *KafkaPublisher) PublishGameResolved(ctx context.Context, e events.GameResolved) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return kafka.WriteJSON(ctx, p.Writer, strconv.FormatInt(e.GameID, 10), b)
}
