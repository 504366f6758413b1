package betting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/bet-ledger/internal/games"
	"github.com/radieske/bet-ledger/internal/ledger"
	"github.com/radieske/bet-ledger/internal/shared/db"
	"github.com/radieske/bet-ledger/internal/wallet"
	"github.com/radieske/bet-ledger/pkg/contracts/events"
)

// Publisher recebe o evento da aposta criada (Kafka em produção)
type Publisher interface {
	PublishBetPlaced(ctx context.Context, e events.BetPlaced) error
}

// Manager cria apostas debitando o stake na mesma transação
type Manager struct {
	db      *sql.DB
	wallets *wallet.Service
	bets    *Repo
	games   *games.Repo
	ledger  *ledger.Store
	pub     Publisher
	log     *zap.Logger
	hooks   Hooks
}

// NewManager: pub pode ser nil (sem publicação de eventos)
func NewManager(conn *sql.DB, wallets *wallet.Service, pub Publisher, log *zap.Logger, hooks Hooks) *Manager {
	return &Manager{
		db:      conn,
		wallets: wallets,
		bets:    NewRepo(conn),
		games:   games.NewRepo(conn),
		ledger:  ledger.NewStore(conn),
		pub:     pub,
		log:     log,
		hooks:   hooks,
	}
}

// PlaceBet valida, trava o jogo em modo compartilhado, debita o stake com
// referência "bet:{id}" e cria a aposta. Qualquer falha desfaz tudo.
func (m *Manager) PlaceBet(ctx context.Context, req PlaceBetRequest) (*Bet, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	betID := req.BetID
	if betID == "" {
		betID = uuid.NewString()
	} else if _, err := uuid.Parse(betID); err != nil {
		return nil, ErrInvalidBetID
	}

	var (
		bet      *Bet
		receipt  *wallet.Receipt
		replayed bool
	)
	err := db.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		bets := m.bets.WithTx(tx)

		g, err := m.games.WithTx(tx).LockForWager(ctx, req.GameID)
		if errors.Is(err, games.ErrGameNotFound) {
			return ErrGameNotFound
		}
		if err != nil {
			return err
		}

		// retry do cliente: devolve a aposta existente mesmo que o jogo já tenha fechado
		if req.BetID != "" {
			existing, err := bets.Get(ctx, betID)
			switch {
			case err == nil:
				bet, replayed = existing, true
				return checkReplay(existing, req)
			case !errors.Is(err, ErrBetNotFound):
				return err
			}
		}

		if !g.OpenForWagering() {
			return fmt.Errorf("%w: game %d is %s", ErrGameNotOpen, g.ID, g.Status)
		}

		w, err := m.wallets.GetOrCreateTx(ctx, tx, req.BettorID)
		if err != nil {
			return err
		}

		// debita antes de inserir a aposta: o lock da carteira vem antes da FK
		// de bets -> wallets, senão duas apostas simultâneas entram em deadlock
		receipt, err = m.wallets.DebitTx(ctx, tx, wallet.Movement{
			WalletID:  w.ID,
			Amount:    req.Stake,
			Kind:      ledger.KindBetPlace,
			Reference: ledger.BetReference(betID),
			Note:      fmt.Sprintf("stake on game %d (%s)", g.ID, req.Pick),
		})
		if err != nil {
			return err
		}

		b := &Bet{
			ID:        betID,
			BettorID:  req.BettorID,
			WalletID:  w.ID,
			GameID:    g.ID,
			Pick:      req.Pick,
			Stake:     req.Stake,
			Odds:      req.Odds,
			Status:    StatusOpen,
			CreatedAt: time.Now().UTC(),
		}
		created, err := bets.Insert(ctx, b)
		if err != nil {
			return err
		}
		if !created {
			// mesmo id confirmado por uma chamada concorrente; o débito acima foi replay
			existing, err := bets.Get(ctx, betID)
			if err != nil {
				return err
			}
			bet, replayed = existing, true
			return checkReplay(existing, req)
		}
		bet = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	if replayed {
		m.log.Debug("bet replay", zap.String("bet_id", bet.ID))
		return bet, nil
	}

	m.wallets.Observe(receipt)
	if m.hooks.OnPlaced != nil {
		m.hooks.OnPlaced()
	}
	m.log.Info("bet placed",
		zap.String("bet_id", bet.ID),
		zap.String("bettor_id", bet.BettorID),
		zap.Int64("game_id", bet.GameID),
		zap.Int64("stake", bet.Stake),
		zap.Int64("balance", receipt.Balance))

	m.publish(ctx, bet)
	return bet, nil
}

func checkReplay(existing *Bet, req PlaceBetRequest) error {
	if existing.BettorID != req.BettorID {
		return fmt.Errorf("%w: %s", ErrBetConflict, existing.ID)
	}
	return nil
}

// publish é best-effort: a aposta já está confirmada no banco
func (m *Manager) publish(ctx context.Context, b *Bet) {
	if m.pub == nil {
		return
	}
	err := m.pub.PublishBetPlaced(ctx, events.BetPlaced{
		BetID:       b.ID,
		BettorID:    b.BettorID,
		WalletID:    b.WalletID,
		GameID:      b.GameID,
		Pick:        string(b.Pick),
		Stake:       b.Stake,
		Odds:        b.Odds,
		OddsDecimal: FormatOdds(b.Odds),
		LedgerRef:   ledger.BetReference(b.ID),
		PlacedAt:    b.CreatedAt,
	})
	if err != nil {
		m.log.Warn("publish bet_placed failed", zap.String("bet_id", b.ID), zap.Error(err))
	}
}

// GetBet retorna a aposta pelo id
func (m *Manager) GetBet(ctx context.Context, id string) (*Bet, error) {
	return m.bets.Get(ctx, id)
}

// History junta apostas e lançamentos da carteira, mais recentes primeiro
func (m *Manager) History(ctx context.Context, walletID string, limit int) ([]HistoryItem, error) {
	if limit <= 0 {
		limit = 50
	}
	bets, err := m.bets.ListByWallet(ctx, walletID, limit)
	if err != nil {
		return nil, err
	}
	entries, err := m.ledger.ListByWallet(ctx, walletID, limit)
	if err != nil {
		return nil, err
	}

	items := make([]HistoryItem, 0, len(bets)+len(entries))
	for i := range bets {
		items = append(items, HistoryItem{At: bets[i].CreatedAt, Bet: &bets[i]})
	}
	for i := range entries {
		items = append(items, HistoryItem{At: entries[i].CreatedAt, Entry: &entries[i]})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].At.After(items[j].At) })

	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
