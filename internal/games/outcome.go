package games

import "context"

// Resolver é o provedor de resultado consumido pela liquidação
type Resolver interface {
	Resolve(ctx context.Context, g Game) (Outcome, error)
}

// ScoreResolver deriva o resultado do placar persistido pelo feed
type ScoreResolver struct{}

func (ScoreResolver) Resolve(_ context.Context, g Game) (Outcome, error) {
	return OutcomeOf(g), nil
}

// OutcomeOf traduz o estado bruto do jogo para o enum de resultado.
// Empate ou placar ausente num jogo final é void (aposta devolvida);
// jogo cancelado também. Qualquer outro estado ainda não tem resultado.
func OutcomeOf(g Game) Outcome {
	switch g.Status {
	case StatusCanceled:
		return OutcomeVoid
	case StatusFinal:
	default:
		return OutcomeUnresolved
	}

	if g.HomeScore != nil && g.AwayScore != nil {
		switch {
		case *g.HomeScore > *g.AwayScore:
			return OutcomeHome
		case *g.AwayScore > *g.HomeScore:
			return OutcomeAway
		default:
			return OutcomeVoid
		}
	}

	switch Outcome(g.Winner) {
	case OutcomeHome, OutcomeAway:
		return Outcome(g.Winner)
	}
	return OutcomeVoid
}
