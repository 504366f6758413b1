package settlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/bet-ledger/internal/betting"
	"github.com/radieske/bet-ledger/internal/games"
	"github.com/radieske/bet-ledger/internal/leaderboard"
	"github.com/radieske/bet-ledger/internal/ledger"
	"github.com/radieske/bet-ledger/internal/shared/db"
	"github.com/radieske/bet-ledger/internal/wallet"
	"github.com/radieske/bet-ledger/pkg/contracts/events"
)

// Engine liquida jogos: cada jogo numa transação única, com o jogo travado
// FOR UPDATE. Rodar de novo para o mesmo jogo é sempre no-op.
type Engine struct {
	db       *sql.DB
	wallets  *wallet.Service
	games    *games.Repo
	resolver games.Resolver
	sink     Sink
	log      *zap.Logger
	hooks    Hooks
	now      func() time.Time
}

// NewEngine: sink pode ser nil (ranking desligado)
func NewEngine(conn *sql.DB, wallets *wallet.Service, resolver games.Resolver, sink Sink, log *zap.Logger, hooks Hooks) *Engine {
	if resolver == nil {
		resolver = games.ScoreResolver{}
	}
	return &Engine{
		db:       conn,
		wallets:  wallets,
		games:    games.NewRepo(conn),
		resolver: resolver,
		sink:     sink,
		log:      log,
		hooks:    hooks,
		now:      time.Now,
	}
}

type openBet struct {
	betting.Bet
	frozen bool
}

// SettleGame liquida todas as apostas abertas do jogo conforme o resultado
func (e *Engine) SettleGame(ctx context.Context, gameID int64) (*Result, error) {
	var (
		res      *Result
		receipts []*wallet.Receipt
		notices  []events.BetSettled
		stage    string
	)
	err := db.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		res = &Result{GameID: gameID}

		stage = "lock_game"
		gameRepo := e.games.WithTx(tx)
		g, err := gameRepo.LockForSettlement(ctx, gameID)
		if err != nil {
			return err
		}
		if g.SettlementStatus == games.SettlementSettled {
			res.AlreadySettled = true
			return nil
		}

		stage = "resolve"
		outcome, err := e.resolver.Resolve(ctx, *g)
		if err != nil {
			return fmt.Errorf("resolve game %d: %w", gameID, err)
		}
		if outcome == games.OutcomeUnresolved {
			return fmt.Errorf("%w: game %d is %s", ErrNotResolved, gameID, g.Status)
		}
		res.Outcome = outcome

		stage = "lock_bets"
		open, err := lockOpenBets(ctx, tx, gameID)
		if err != nil {
			return err
		}

		now := e.now().UTC()
		stage = "settle_bet"
		for _, ob := range open {
			if ob.frozen {
				e.log.Warn("skipping bet of frozen wallet",
					zap.String("bet_id", ob.ID),
					zap.String("wallet_id", ob.WalletID))
				res.Skipped++
				continue
			}

			status, payout, receipt, err := e.settleBet(ctx, tx, &ob.Bet, outcome, now)
			if err != nil {
				return fmt.Errorf("settle bet %s: %w", ob.ID, err)
			}
			if receipt != nil {
				receipts = append(receipts, receipt)
			}

			res.SettledBets++
			switch status {
			case betting.StatusWon:
				res.Won++
			case betting.StatusLost:
				res.Lost++
			case betting.StatusVoid:
				res.Void++
				continue // void não entra no ranking
			}
			notices = append(notices, events.BetSettled{
				BetID:     ob.ID,
				BettorID:  ob.BettorID,
				GameID:    gameID,
				Status:    string(status),
				Stake:     ob.Stake,
				Payout:    payout,
				NetProfit: payout - ob.Stake,
				PeriodKey: leaderboard.PeriodKey(now),
				SettledAt: now,
			})
		}

		// com aposta pulada o jogo continua pendente e volta na próxima varredura
		if res.Skipped > 0 {
			return nil
		}
		stage = "mark_game"
		return gameRepo.MarkSettled(ctx, gameID, now)
	})
	if err != nil {
		if !errors.Is(err, ErrNotResolved) && !errors.Is(err, games.ErrGameNotFound) {
			e.fail(stage)
			e.log.Error("settle game failed", zap.Int64("game_id", gameID), zap.String("stage", stage), zap.Error(err))
		}
		return nil, err
	}

	if res.AlreadySettled {
		e.log.Debug("game already settled", zap.Int64("game_id", gameID))
		return res, nil
	}

	e.wallets.Observe(receipts...)
	e.observe(res)
	e.log.Info("game settled",
		zap.Int64("game_id", gameID),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("bets", res.SettledBets),
		zap.Int("won", res.Won),
		zap.Int("lost", res.Lost),
		zap.Int("void", res.Void),
		zap.Int("skipped", res.Skipped))

	e.notify(ctx, notices)
	return res, nil
}

// settleBet credita (quando há crédito) e grava o estado terminal da aposta.
// O UPDATE só vale para aposta ainda open.
func (e *Engine) settleBet(ctx context.Context, tx *sql.Tx, b *betting.Bet, outcome games.Outcome, now time.Time) (betting.Status, int64, *wallet.Receipt, error) {
	var (
		status  betting.Status
		payout  int64
		receipt *wallet.Receipt
		err     error
	)
	switch {
	case outcome == games.OutcomeVoid:
		status, payout = betting.StatusVoid, b.Stake
		receipt, err = e.wallets.CreditTx(ctx, tx, wallet.Movement{
			WalletID:  b.WalletID,
			Amount:    payout,
			Kind:      ledger.KindBetRefund,
			Reference: ledger.BetReference(b.ID),
			Note:      fmt.Sprintf("refund game %d", b.GameID),
		})
	case games.Outcome(b.Pick) == outcome:
		status, payout = betting.StatusWon, betting.Payout(b.Stake, b.Odds)
		receipt, err = e.wallets.CreditTx(ctx, tx, wallet.Movement{
			WalletID:  b.WalletID,
			Amount:    payout,
			Kind:      ledger.KindBetWin,
			Reference: ledger.BetReference(b.ID),
			Note:      fmt.Sprintf("win game %d @%s", b.GameID, betting.FormatOdds(b.Odds)),
		})
	default:
		status = betting.StatusLost
	}
	if err != nil {
		return "", 0, nil, err
	}

	r, err := tx.ExecContext(ctx, `
		UPDATE bets SET status=$2, payout=$3, settled_at=$4
		WHERE id=$1 AND status='open'`, b.ID, string(status), payout, now)
	if err != nil {
		return "", 0, nil, fmt.Errorf("update bet: %w", err)
	}
	n, err := r.RowsAffected()
	if err != nil {
		return "", 0, nil, err
	}
	if n != 1 {
		return "", 0, nil, fmt.Errorf("bet %s is no longer open", b.ID)
	}
	return status, payout, receipt, nil
}

// lockOpenBets trava as apostas abertas e as carteiras envolvidas na ordem
// de wallet_id, a mesma para qualquer liquidação concorrente. As apostas são
// devolvidas em ordem de id, que é a ordem de processamento.
func lockOpenBets(ctx context.Context, tx *sql.Tx, gameID int64) ([]openBet, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT b.id, b.bettor_id, b.wallet_id, b.game_id, b.pick, b.stake, b.odds, w.frozen
		FROM bets b
		JOIN wallets w ON w.id = b.wallet_id
		WHERE b.game_id=$1 AND b.status='open'
		ORDER BY b.wallet_id, b.id
		FOR UPDATE OF b, w`, gameID)
	if err != nil {
		return nil, fmt.Errorf("lock open bets: %w", err)
	}
	defer rows.Close()

	var out []openBet
	for rows.Next() {
		var (
			ob   openBet
			pick string
		)
		if err := rows.Scan(&ob.ID, &ob.BettorID, &ob.WalletID, &ob.GameID, &pick, &ob.Stake, &ob.Odds, &ob.frozen); err != nil {
			return nil, err
		}
		ob.Pick = betting.Pick(pick)
		ob.Status = betting.StatusOpen
		out = append(out, ob)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// notify é best-effort: a liquidação já está confirmada
func (e *Engine) notify(ctx context.Context, notices []events.BetSettled) {
	if e.sink == nil {
		return
	}
	for _, n := range notices {
		if err := e.sink.Record(ctx, n); err != nil {
			e.log.Warn("leaderboard sink failed", zap.String("bet_id", n.BetID), zap.Error(err))
			if e.hooks.OnSinkFailure != nil {
				e.hooks.OnSinkFailure()
			}
		}
	}
}

func (e *Engine) observe(r *Result) {
	if fn := e.hooks.OnBetSettled; fn != nil {
		for i := 0; i < r.Won; i++ {
			fn(string(betting.StatusWon))
		}
		for i := 0; i < r.Lost; i++ {
			fn(string(betting.StatusLost))
		}
		for i := 0; i < r.Void; i++ {
			fn(string(betting.StatusVoid))
		}
	}
	if r.Skipped == 0 && e.hooks.OnGameSettled != nil {
		e.hooks.OnGameSettled()
	}
}

func (e *Engine) fail(stage string) {
	if e.hooks.OnError != nil {
		e.hooks.OnError(stage)
	}
}
