//go:build integration

package settlement_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/bet-ledger/internal/betting"
	"github.com/radieske/bet-ledger/internal/games"
	"github.com/radieske/bet-ledger/internal/leaderboard"
	"github.com/radieske/bet-ledger/internal/ledger"
	"github.com/radieske/bet-ledger/internal/settlement"
	"github.com/radieske/bet-ledger/internal/shared/db"
	"github.com/radieske/bet-ledger/internal/wallet"
)

// Roda contra um Postgres real: POSTGRES_TEST_DSN=... go test -tags integration ./...
func openDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	conn, err := db.ConnectPostgres(dsn, db.PoolOptions{MaxOpenConns: 20})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.Migrate(context.Background(), conn))
	return conn
}

type stack struct {
	db      *sql.DB
	wallets *wallet.Service
	bets    *betting.Manager
	engine  *settlement.Engine
	scores  *leaderboard.Aggregator
	feed    *games.Feed
}

func newStack(t *testing.T) *stack {
	conn := openDB(t)
	log := zap.NewNop()
	wallets := wallet.NewService(conn, log, wallet.Hooks{})
	scores := leaderboard.NewAggregator(conn, nil, log, leaderboard.Hooks{})
	return &stack{
		db:      conn,
		wallets: wallets,
		bets:    betting.NewManager(conn, wallets, nil, log, betting.Hooks{}),
		engine:  settlement.NewEngine(conn, wallets, games.ScoreResolver{}, scores, log, settlement.Hooks{}),
		scores:  scores,
		feed:    games.NewFeed(conn),
	}
}

var gameSeq atomic.Int64

func newGameID() int64 {
	return time.Now().UnixNano()/1000 + gameSeq.Add(1)
}

func (s *stack) fundedWallet(t *testing.T, amount int64) *wallet.Wallet {
	t.Helper()
	ctx := context.Background()
	w, err := s.wallets.GetOrCreate(ctx, "it-"+uuid.NewString())
	require.NoError(t, err)
	_, err = s.wallets.Credit(ctx, wallet.Movement{
		WalletID: w.ID, Amount: amount, Kind: ledger.KindDeposit, Reference: "seed:" + w.ID,
	})
	require.NoError(t, err)
	return w
}

func (s *stack) openGame(t *testing.T) int64 {
	t.Helper()
	id := newGameID()
	require.NoError(t, s.feed.Upsert(context.Background(), games.Game{ID: id, Status: games.StatusScheduled}))
	return id
}

func (s *stack) finish(t *testing.T, id int64, home, away int) {
	t.Helper()
	require.NoError(t, s.feed.Upsert(context.Background(), games.Game{ID: id, Status: games.StatusFinal, HomeScore: &home, AwayScore: &away}))
}

func (s *stack) assertConsistent(t *testing.T, walletID string, want int64) {
	t.Helper()
	ctx := context.Background()
	bal, err := s.wallets.Balance(ctx, walletID)
	require.NoError(t, err)
	sum, err := ledger.NewStore(s.db).Sum(ctx, walletID)
	require.NoError(t, err)
	assert.Equal(t, want, bal)
	assert.Equal(t, bal, sum, "balance must equal ledger sum")
}

func countEntries(t *testing.T, conn *sql.DB, walletID string) int {
	t.Helper()
	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM ledger_entries WHERE wallet_id=$1`, walletID).Scan(&n))
	return n
}

func TestIntegration_PlaceSettleResettle(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	w := s.fundedWallet(t, 1000)
	gameID := s.openGame(t)

	bet, err := s.bets.PlaceBet(ctx, betting.PlaceBetRequest{
		BettorID: w.OwnerID, GameID: gameID, Pick: betting.PickHome, Stake: 200, Odds: 250,
	})
	require.NoError(t, err)
	s.assertConsistent(t, w.ID, 800)

	s.finish(t, gameID, 2, 1)
	res, err := s.engine.SettleGame(ctx, gameID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Won)
	s.assertConsistent(t, w.ID, 1300)

	got, err := s.bets.GetBet(ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, betting.StatusWon, got.Status)
	assert.Equal(t, int64(500), got.Payout)
	require.NotNil(t, got.SettledAt)

	entries := countEntries(t, s.db, w.ID)
	res, err = s.engine.SettleGame(ctx, gameID)
	require.NoError(t, err)
	assert.True(t, res.AlreadySettled)
	assert.Equal(t, entries, countEntries(t, s.db, w.ID))
	s.assertConsistent(t, w.ID, 1300)

	score, err := s.scores.Get(ctx, w.OwnerID, leaderboard.PeriodKey(*got.SettledAt))
	require.NoError(t, err)
	assert.Equal(t, int64(1), score.Wins)
	assert.Equal(t, int64(300), score.Profit)
}

func TestIntegration_VoidRefundsExactStake(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	w := s.fundedWallet(t, 500)
	gameID := s.openGame(t)

	_, err := s.bets.PlaceBet(ctx, betting.PlaceBetRequest{
		BettorID: w.OwnerID, GameID: gameID, Pick: betting.PickAway, Stake: 120, Odds: 310,
	})
	require.NoError(t, err)

	s.finish(t, gameID, 1, 1)
	res, err := s.engine.SettleGame(ctx, gameID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Void)
	s.assertConsistent(t, w.ID, 500)

	_, err = s.scores.Get(ctx, w.OwnerID, leaderboard.PeriodKey(time.Now()))
	assert.ErrorIs(t, err, leaderboard.ErrNotFound)
}

func TestIntegration_ConcurrentSettleIsExactlyOnce(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	w := s.fundedWallet(t, 1000)
	gameID := s.openGame(t)

	for i := 0; i < 5; i++ {
		_, err := s.bets.PlaceBet(ctx, betting.PlaceBetRequest{
			BettorID: w.OwnerID, GameID: gameID, Pick: betting.PickHome, Stake: 100, Odds: 200,
		})
		require.NoError(t, err)
	}
	s.finish(t, gameID, 3, 0)

	var (
		wg        sync.WaitGroup
		effective atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.engine.SettleGame(ctx, gameID)
			if assert.NoError(t, err) && !res.AlreadySettled {
				effective.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), effective.Load())
	s.assertConsistent(t, w.ID, 500+5*200)
}

func TestIntegration_ConcurrentBetsNeverOverdraw(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	w := s.fundedWallet(t, 100)
	gameID := s.openGame(t)

	var (
		wg           sync.WaitGroup
		ok, rejected atomic.Int32
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.bets.PlaceBet(ctx, betting.PlaceBetRequest{
				BettorID: w.OwnerID, GameID: gameID, Pick: betting.PickHome, Stake: 100, Odds: 150,
			})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, wallet.ErrInsufficientBalance):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(1), rejected.Load())
	s.assertConsistent(t, w.ID, 0)
}

func TestIntegration_ConcurrentCreditSameReference(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	w := s.fundedWallet(t, 1)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.wallets.Credit(ctx, wallet.Movement{
				WalletID: w.ID, Amount: 50, Kind: ledger.KindAdjust, Reference: "ticket-42",
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	s.assertConsistent(t, w.ID, 51)
}

func TestIntegration_LeaderboardApplyOnce(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	d := leaderboard.Delta{
		BetID: uuid.NewString(), BettorID: "it-" + uuid.NewString(), PeriodKey: "2026-10",
		Status: leaderboard.StatusWon, Stake: 100, Payout: 250,
	}

	var (
		wg      sync.WaitGroup
		applied atomic.Int32
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.scores.Apply(ctx, d)
			if assert.NoError(t, err) && ok {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), applied.Load())
	score, err := s.scores.Get(ctx, d.BettorID, d.PeriodKey)
	require.NoError(t, err)
	assert.Equal(t, int64(1), score.Wins)
	assert.Equal(t, int64(150), score.Profit)
}

func TestIntegration_AuditFreezesDivergentWallet(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	w := s.fundedWallet(t, 300)

	// escrita fora do Service: exatamente o que a auditoria existe para pegar
	_, err := s.db.Exec(`UPDATE wallets SET balance = balance + 7 WHERE id=$1`, w.ID)
	require.NoError(t, err)

	d, err := wallet.NewAuditor(s.db, zap.NewNop()).AuditWallet(ctx, w.ID)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, int64(7), d.Diff())

	_, err = s.wallets.Debit(ctx, wallet.Movement{WalletID: w.ID, Amount: 1, Kind: ledger.KindWithdraw})
	assert.ErrorIs(t, err, wallet.ErrWalletFrozen)
}
