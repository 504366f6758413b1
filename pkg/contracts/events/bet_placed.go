package events

import "time"

// Evento publicado no tópico "bet_placed" após o commit da aposta e do débito.
type BetPlaced struct {
	BetID       string    `json:"bet_id"`
	BettorID    string    `json:"bettor_id"`
	WalletID    string    `json:"wallet_id"`
	GameID      int64     `json:"game_id"`
	Pick        string    `json:"pick"` // "home" | "away"
	Stake       int64     `json:"stake"`
	Odds        int64     `json:"odds"`         // centésimos, ex: 250
	OddsDecimal string    `json:"odds_decimal"` // ex: "2.50"
	LedgerRef   string    `json:"ledger_ref"`   // referência do débito (bet:{id})
	PlacedAt    time.Time `json:"placed_at"`
}
