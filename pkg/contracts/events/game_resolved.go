package events

import "time"

// Sinal publicado pelo feed de placares quando um jogo termina (ou é cancelado).
// Só carrega o id: o resultado é lido da tabela games dentro da transação de
// liquidação.
type GameResolved struct {
	GameID     int64     `json:"game_id"`
	ResolvedAt time.Time `json:"resolved_at"`
}
