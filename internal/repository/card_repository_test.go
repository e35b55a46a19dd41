package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/gatewise/vms-api/pkg/errors"
)

func newCardRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return sqlxDB, mock, func() {
		sqlxDB.Close()
		db.Close()
	}
}

func cardRows(id int, name string, occupied bool, occupiedBy interface{}) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "card_name", "occupied", "occupied_by", "created_at", "updated_at"}).
		AddRow(id, name, occupied, occupiedBy, time.Now(), time.Now())
}

func TestCardRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newCardRepoMock(t)
	defer cleanup()
	repo := NewCardRepository(db)

	mock.ExpectQuery("UPDATE cards SET card_name").
		WithArgs(7, "GATE-A-07", sqlmock.AnyArg()).
		WillReturnRows(cardRows(7, "GATE-A-07", false, nil))

	card, err := repo.Update(context.Background(), 7, "GATE-A-07")
	require.NoError(t, err)
	assert.Equal(t, "GATE-A-07", card.CardName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardRepositoryUpdateNameConflict(t *testing.T) {
	db, mock, cleanup := newCardRepoMock(t)
	defer cleanup()
	repo := NewCardRepository(db)

	mock.ExpectQuery("UPDATE cards SET card_name").
		WithArgs(7, "CARD-01", sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "cards_card_name_key"})

	_, err := repo.Update(context.Background(), 7, "CARD-01")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestCardRepositoryAssign(t *testing.T) {
	db, mock, cleanup := newCardRepoMock(t)
	defer cleanup()
	repo := NewCardRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, card_name").
		WithArgs(7).
		WillReturnRows(cardRows(7, "CARD-07", false, nil))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(int64(20251231235959)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("UPDATE cards SET occupied = TRUE").
		WithArgs(7, int64(20251231235959), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	card, err := repo.Assign(context.Background(), 7, 20251231235959)
	require.NoError(t, err)
	assert.True(t, card.Occupied)
	require.NotNil(t, card.OccupiedBy)
	assert.Equal(t, int64(20251231235959), *card.OccupiedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardRepositoryAssignOccupied(t *testing.T) {
	db, mock, cleanup := newCardRepoMock(t)
	defer cleanup()
	repo := NewCardRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, card_name").
		WithArgs(7).
		WillReturnRows(cardRows(7, "CARD-07", true, int64(20250101080000)))
	mock.ExpectRollback()

	_, err := repo.Assign(context.Background(), 7, 20251231235959)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrCardOccupied.Code, appErr.Code)
}

func TestCardRepositoryAssignVisitorAlreadyHolds(t *testing.T) {
	db, mock, cleanup := newCardRepoMock(t)
	defer cleanup()
	repo := NewCardRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, card_name").
		WithArgs(7).
		WillReturnRows(cardRows(7, "CARD-07", false, nil))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(int64(20251231235959)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	_, err := repo.Assign(context.Background(), 7, 20251231235959)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrVisitorHasCard.Code, appErr.Code)
}

func TestCardRepositoryAssignLosesRace(t *testing.T) {
	db, mock, cleanup := newCardRepoMock(t)
	defer cleanup()
	repo := NewCardRepository(db)

	// Another transaction grabbed the card between the read and the
	// conditional update.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, card_name").
		WithArgs(7).
		WillReturnRows(cardRows(7, "CARD-07", false, nil))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(int64(20251231235959)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("UPDATE cards SET occupied = TRUE").
		WithArgs(7, int64(20251231235959), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Assign(context.Background(), 7, 20251231235959)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrCardOccupied.Code, appErr.Code)
}

func TestCardRepositoryAssignSecondCardSameVisitor(t *testing.T) {
	db, mock, cleanup := newCardRepoMock(t)
	defer cleanup()
	repo := NewCardRepository(db)

	// A parallel transaction assigned another card to the same visitor
	// after our COUNT ran, so the partial unique index on occupied_by
	// rejects the update.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, card_name").
		WithArgs(8).
		WillReturnRows(cardRows(8, "CARD-08", false, nil))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(int64(20251231235959)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("UPDATE cards SET occupied = TRUE").
		WithArgs(8, int64(20251231235959), sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "idx_cards_one_per_visitor"})
	mock.ExpectRollback()

	_, err := repo.Assign(context.Background(), 8, 20251231235959)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrVisitorHasCard.Code, appErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardRepositoryRelease(t *testing.T) {
	db, mock, cleanup := newCardRepoMock(t)
	defer cleanup()
	repo := NewCardRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, card_name").
		WithArgs(7).
		WillReturnRows(cardRows(7, "CARD-07", true, int64(20251231235959)))
	mock.ExpectExec("UPDATE cards SET occupied = FALSE").
		WithArgs(7, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE visitors SET check_out_time").
		WithArgs(int64(20251231235959), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	card, err := repo.Release(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, card.Occupied)
	assert.Nil(t, card.OccupiedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardRepositoryReleaseNotOccupied(t *testing.T) {
	db, mock, cleanup := newCardRepoMock(t)
	defer cleanup()
	repo := NewCardRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, card_name").
		WithArgs(7).
		WillReturnRows(cardRows(7, "CARD-07", false, nil))
	mock.ExpectRollback()

	_, err := repo.Release(context.Background(), 7)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrCardNotOccupied.Code, appErr.Code)
}

func TestCardRepositoryStats(t *testing.T) {
	db, mock, cleanup := newCardRepoMock(t)
	defer cleanup()
	repo := NewCardRepository(db)

	rows := sqlmock.NewRows([]string{"total", "occupied", "available"}).AddRow(10, 4, 6)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Total)
	assert.Equal(t, 4, stats.Occupied)
	assert.Equal(t, 6, stats.Available)
}
