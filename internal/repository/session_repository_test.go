package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendify/attendify-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func sessionRows(session models.Session) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "token", "class_id", "teacher_id", "lecture_timing", "qr_code", "active", "created_at", "expires_at"}).
		AddRow(session.ID, session.Token, session.ClassID, session.TeacherID, session.LectureTiming, session.QRCode, session.Active, session.CreatedAt, session.ExpiresAt)
}

func TestCreateActiveDeactivatesPrevious(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now().UTC()
	session := models.Session{
		Token:         "SESSION-class-1-1-abc123",
		ClassID:       "class-1",
		TeacherID:     "teacher-1",
		LectureTiming: "Mon 9:00",
		QRCode:        "data:image/png;base64,stub",
		CreatedAt:     now,
		ExpiresAt:     now.Add(time.Hour),
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sessions SET active = FALSE WHERE class_id = $1 AND active`)).
		WithArgs("class-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	stored := session
	stored.ID = "sess-1"
	stored.Active = true
	mock.ExpectQuery("INSERT INTO sessions").
		WillReturnRows(sessionRows(stored))
	mock.ExpectCommit()

	result, err := repo.CreateActive(context.Background(), &session)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", result.ID)
	assert.True(t, result.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateActiveRollsBackOnInsertFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sessions SET active = FALSE WHERE class_id = $1 AND active`)).
		WithArgs("class-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("INSERT INTO sessions").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := repo.CreateActive(context.Background(), &models.Session{ClassID: "class-1"})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindActiveByClass(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, token, class_id, teacher_id, lecture_timing, qr_code, active, created_at, expires_at FROM sessions WHERE class_id = $1 AND active ORDER BY created_at DESC LIMIT 1`)).
		WithArgs("class-1").
		WillReturnRows(sessionRows(models.Session{ID: "sess-1", Token: "tok", ClassID: "class-1", Active: true, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}))

	session, err := repo.FindActiveByClass(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", session.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEndByToken(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE sessions SET active = FALSE WHERE token = $1 RETURNING`)).
		WithArgs("tok").
		WillReturnRows(sessionRows(models.Session{ID: "sess-1", Token: "tok", ClassID: "class-1", Active: false, CreatedAt: now, ExpiresAt: now}))

	session, err := repo.EndByToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.False(t, session.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sessions SET active = FALSE WHERE id = $1`)).
		WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Deactivate(context.Background(), "sess-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
