package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/attendify/attendify-api/internal/models"
)

const sessionColumns = `id, token, class_id, teacher_id, lecture_timing, qr_code, active, created_at, expires_at`

// SessionRepository handles persistence for QR sessions. It is the
// only writer of the active flag and the expiry fields.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CreateActive persists a new active session for its class. The
// deactivation of previous sessions and the insert run in one
// transaction so concurrent creates for the same class cannot leave
// two rows active.
func (r *SessionRepository) CreateActive(ctx context.Context, session *models.Session) (*models.Session, error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create session: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET active = FALSE WHERE class_id = $1 AND active`, session.ClassID); err != nil {
		return nil, fmt.Errorf("deactivate previous sessions: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO sessions (%s)
VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $8)
RETURNING %s`, sessionColumns, sessionColumns)
	var stored models.Session
	if err := tx.GetContext(ctx, &stored, query,
		session.ID, session.Token, session.ClassID, session.TeacherID,
		session.LectureTiming, session.QRCode, session.CreatedAt, session.ExpiresAt); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create session: %w", err)
	}
	committed = true
	return &stored, nil
}

// FindActiveByClass returns the most recently created active session
// for a class. Expiry is not evaluated here; callers own that policy.
func (r *SessionRepository) FindActiveByClass(ctx context.Context, classID string) (*models.Session, error) {
	var session models.Session
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE class_id = $1 AND active ORDER BY created_at DESC LIMIT 1`, sessionColumns)
	if err := r.db.GetContext(ctx, &session, query, classID); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindByToken resolves a session by its public token.
func (r *SessionRepository) FindByToken(ctx context.Context, token string) (*models.Session, error) {
	var session models.Session
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE token = $1`, sessionColumns)
	if err := r.db.GetContext(ctx, &session, query, token); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindByTokenForTeacher resolves a session owned by the given teacher.
func (r *SessionRepository) FindByTokenForTeacher(ctx context.Context, token, teacherID string) (*models.Session, error) {
	var session models.Session
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE token = $1 AND teacher_id = $2`, sessionColumns)
	if err := r.db.GetContext(ctx, &session, query, token, teacherID); err != nil {
		return nil, err
	}
	return &session, nil
}

// EndByToken clears the active flag no matter its current value and
// returns the resulting row, making the operation idempotent. Unknown
// tokens surface as sql.ErrNoRows.
func (r *SessionRepository) EndByToken(ctx context.Context, token string) (*models.Session, error) {
	var session models.Session
	query := fmt.Sprintf(`UPDATE sessions SET active = FALSE WHERE token = $1 RETURNING %s`, sessionColumns)
	if err := r.db.GetContext(ctx, &session, query, token); err != nil {
		return nil, err
	}
	return &session, nil
}

// Deactivate clears the active flag by row id. Used by the lazy expiry
// performed on read paths.
func (r *SessionRepository) Deactivate(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE sessions SET active = FALSE WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deactivate session: %w", err)
	}
	return nil
}
