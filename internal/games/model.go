package games

import "time"

// Status é o estado do jogo segundo o feed externo
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusFinal      Status = "final"
	StatusPostponed  Status = "postponed"
	StatusCanceled   Status = "canceled"
	StatusUnknown    Status = "unknown"
)

// SettlementStatus é o único campo do jogo que o core escreve
type SettlementStatus string

const (
	SettlementPending SettlementStatus = "pending"
	SettlementSettled SettlementStatus = "settled"
)

// Outcome é o resultado apostável de um jogo
type Outcome string

const (
	OutcomeUnresolved Outcome = "unresolved"
	OutcomeHome       Outcome = "home"
	OutcomeAway       Outcome = "away"
	OutcomeVoid       Outcome = "void"
)

// Game é a visão somente-leitura do jogo usada por apostas e liquidação
type Game struct {
	ID               int64
	Status           Status
	HomeScore        *int
	AwayScore        *int
	Winner           string // vencedor declarado pelo feed, pode vir vazio
	StartTime        *time.Time
	SettlementStatus SettlementStatus
	SettledAt        *time.Time
}

// OpenForWagering indica se o jogo ainda aceita apostas
func (g Game) OpenForWagering() bool {
	if g.SettlementStatus != SettlementPending {
		return false
	}
	switch g.Status {
	case StatusFinal, StatusCanceled, StatusPostponed:
		return false
	}
	return true
}
