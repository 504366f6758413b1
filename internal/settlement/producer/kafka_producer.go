package producer

import (
	"context"
	"encoding/json"

	"github.com/radieske/bet-ledger/internal/shared/kafka"
	"github.com/radieske/bet-ledger/pkg/contracts/events"
)

// KafkaPublisher é o Sink da liquidação quando o ranking roda em outro
// processo: cada aposta liquidada vira uma mensagem em bet_settled.
type KafkaPublisher struct {
	Writer kafka.MessageWriter
}

func NewKafkaPublisher(w kafka.MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{Writer: w}
}

// Record publica o evento com chave bettor_id, mantendo a ordem por apostador
func (p *KafkaPublisher) Record(ctx context.Context, e events.BetSettled) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return kafka.WriteJSON(ctx, p.Writer, e.BettorID, b)
}
