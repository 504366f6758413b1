package producer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/bet-ledger/internal/shared/kafka"
	"github.com/radieske/bet-ledger/pkg/contracts/events"
)

type fakeWriter struct{ msgs []kafka.Message }

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func TestKafkaPublisher_PublishGameResolved(t *testing.T) {
	w := &fakeWriter{}
	at := time.Date(2026, 10, 18, 22, 0, 0, 0, time.UTC)

	err := NewKafkaPublisher(w).PublishGameResolved(context.Background(), events.GameResolved{GameID: 1001, ResolvedAt: at})

	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "1001", string(w.msgs[0].Key))
	assert.JSONEq(t, `{"game_id":1001,"resolved_at":"2026-10-18T22:00:00Z"}`, string(w.msgs[0].Value))
}
