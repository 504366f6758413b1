package games

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var gameCols = []string{"id", "status", "home_score", "away_score", "winner", "start_time", "settlement_status", "settled_at"}

func TestRepo_LockForSettlement(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	start := time.Date(2026, 10, 1, 20, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .* FROM games WHERE id=\$1 FOR UPDATE`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(gameCols).
			AddRow(int64(42), "final", int64(2), int64(1), "", start, "pending", nil))

	g, err := NewRepo(db).LockForSettlement(context.Background(), 42)

	require.NoError(t, err)
	assert.Equal(t, StatusFinal, g.Status)
	require.NotNil(t, g.HomeScore)
	assert.Equal(t, 2, *g.HomeScore)
	assert.Equal(t, 1, *g.AwayScore)
	assert.Equal(t, start, *g.StartTime)
	assert.Nil(t, g.SettledAt)
	assert.Equal(t, OutcomeHome, OutcomeOf(*g))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_LockForWager_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM games WHERE id=\$1 FOR SHARE`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(gameCols))

	_, err = NewRepo(db).LockForWager(context.Background(), 7)

	require.ErrorIs(t, err, ErrGameNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_MarkSettled(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Now().UTC()
	mock.ExpectExec(`UPDATE games SET settlement_status='settled', settled_at=\$2 WHERE id=\$1 AND settlement_status='pending'`).
		WithArgs(int64(42), at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE games SET settlement_status='settled'`).
		WithArgs(int64(42), at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	r := NewRepo(db)
	require.NoError(t, r.MarkSettled(context.Background(), 42, at))
	assert.Error(t, r.MarkSettled(context.Background(), 42, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_ListSettleable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT id FROM games WHERE status IN \('final','canceled'\) AND settlement_status='pending' ORDER BY start_time NULLS LAST, id LIMIT \$1`).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)).AddRow(int64(9)))

	ids, err := NewRepo(db).ListSettleable(context.Background(), 50)

	require.NoError(t, err)
	assert.Equal(t, []int64{3, 9}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeed_Upsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO games \(id, status, home_score, away_score, winner, start_time\) .* ON CONFLICT \(id\) DO UPDATE SET`).
		WithArgs(int64(1001), "final", int64(2), int64(0), "", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewFeed(db).Upsert(context.Background(), Game{ID: 1001, Status: StatusFinal, HomeScore: score(2), AwayScore: score(0)})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
