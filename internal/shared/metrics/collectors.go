package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors agrupa os contadores do ledger, da liquidação e do ranking.
// Os componentes não conhecem o Prometheus: recebem callbacks montados a
// partir destes contadores no main de cada binário.
type Collectors struct {
	LedgerEntries      *prometheus.CounterVec // por kind
	IdempotentReplays  *prometheus.CounterVec // por kind
	BetsPlaced         prometheus.Counter
	BetsSettled        *prometheus.CounterVec // por status
	GamesSettled       prometheus.Counter
	SettlementErrors   *prometheus.CounterVec // por estágio
	SinkFailures       prometheus.Counter
	AuditMismatches    prometheus.Counter
	LeaderboardApplied *prometheus.CounterVec // por resultado: applied | duplicate
}

// NewCollectors cria e registra os contadores em reg
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		LedgerEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_entries_total", Help: "lançamentos gravados no ledger",
		}, []string{"kind"}),
		IdempotentReplays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_idempotent_replays_total", Help: "movimentações repetidas ignoradas pela referência",
		}, []string{"kind"}),
		BetsPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bets_placed_total", Help: "apostas criadas",
		}),
		BetsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bets_settled_total", Help: "apostas liquidadas por status final",
		}, []string{"status"}),
		GamesSettled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "games_settled_total", Help: "jogos marcados como liquidados",
		}),
		SettlementErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_errors_total", Help: "erros de liquidação por estágio",
		}, []string{"stage"}),
		SinkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "settlement_sink_failures_total", Help: "falhas best-effort ao notificar o ranking",
		}),
		AuditMismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_audit_mismatches_total", Help: "carteiras com saldo divergente do ledger",
		}),
		LeaderboardApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leaderboard_events_total", Help: "eventos de ranking aplicados ou descartados como duplicados",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.LedgerEntries,
		c.IdempotentReplays,
		c.BetsPlaced,
		c.BetsSettled,
		c.GamesSettled,
		c.SettlementErrors,
		c.SinkFailures,
		c.AuditMismatches,
		c.LeaderboardApplied,
	)
	return c
}
