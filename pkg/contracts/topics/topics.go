package topics

const (
	// Bets
	BetPlaced  = "bet_placed"
	BetSettled = "bet_settled"

	// Games (sinal do feed externo de que um jogo tem resultado)
	GameResolved = "game_resolved"
)
