package events

import "time"

// Evento emitido pela liquidação para cada aposta ganha ou perdida.
// O consumidor (ranking) deve tratá-lo como at-least-once: BetID é a chave
// de idempotência.
type BetSettled struct {
	BetID     string    `json:"bet_id"`
	BettorID  string    `json:"bettor_id"`
	GameID    int64     `json:"game_id"`
	Status    string    `json:"status"` // "won" | "lost"
	Stake     int64     `json:"stake"`
	Payout    int64     `json:"payout"`
	NetProfit int64     `json:"net_profit"` // payout - stake
	PeriodKey string    `json:"period_key"` // "YYYY-MM"
	SettledAt time.Time `json:"settled_at"`
}
