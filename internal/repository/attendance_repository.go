package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/attendify/attendify-api/internal/models"
)

// ErrDuplicateAttendance signals that the (student, session) pair
// already has a row. The unique index is the actual race guard; this
// error is how the guarded insert reports losing the race.
var ErrDuplicateAttendance = errors.New("attendance already recorded for session")

// AttendanceRepository owns creation of attendance records. Rows are
// immutable after insert; nothing here ever updates one.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Insert records a scan. The insert is guarded by the unique index on
// (student_id, session_id): a concurrent duplicate loses the conflict
// and gets ErrDuplicateAttendance instead of a second row.
func (r *AttendanceRepository) Insert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.ScanTime.IsZero() {
		record.ScanTime = now
	}
	record.CreatedAt = now
	query := `INSERT INTO attendance (id, student_id, session_id, class_id, teacher_id, status, scan_time, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (student_id, session_id) DO NOTHING
RETURNING id, student_id, session_id, class_id, teacher_id, status, scan_time, created_at`
	var stored models.AttendanceRecord
	err := r.db.GetContext(ctx, &stored, query,
		record.ID, record.StudentID, record.SessionID, record.ClassID,
		record.TeacherID, record.Status, record.ScanTime, record.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDuplicateAttendance
		}
		return nil, fmt.Errorf("insert attendance: %w", err)
	}
	return &stored, nil
}

// Exists reports whether a (student, session) pair is already recorded.
// Purely an optimisation for a friendlier error; Insert remains the guard.
func (r *AttendanceRepository) Exists(ctx context.Context, studentID, sessionID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM attendance WHERE student_id = $1 AND session_id = $2)`
	if err := r.db.GetContext(ctx, &exists, query, studentID, sessionID); err != nil {
		return false, fmt.Errorf("check attendance: %w", err)
	}
	return exists, nil
}

// Report returns teacher-scoped attendance rows matching the filter.
func (r *AttendanceRepository) Report(ctx context.Context, filter models.AttendanceReportFilter) ([]models.AttendanceReportRow, error) {
	where := []string{"a.teacher_id = $1"}
	args := []interface{}{filter.TeacherID}
	if filter.ClassID != "" {
		where = append(where, fmt.Sprintf("a.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("a.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.From != nil {
		where = append(where, fmt.Sprintf("a.scan_time >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		where = append(where, fmt.Sprintf("a.scan_time <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}
	query := fmt.Sprintf(`SELECT a.id, a.student_id, s.name AS student_name, s.enrollment_number,
       a.class_id, c.name AS class_name, se.lecture_timing, a.status, a.scan_time
FROM attendance a
JOIN students s ON s.id = a.student_id
JOIN classes c ON c.id = a.class_id
JOIN sessions se ON se.id = a.session_id
WHERE %s
ORDER BY a.scan_time DESC`, strings.Join(where, " AND "))
	var rows []models.AttendanceReportRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("attendance report: %w", err)
	}
	return rows, nil
}

// StudentHistory returns a student's scans, newest first, optionally
// scoped to one class.
func (r *AttendanceRepository) StudentHistory(ctx context.Context, studentIDs []string, classID string) ([]models.StudentHistoryRow, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	query := `SELECT a.id, a.status, a.scan_time, c.name AS class_name, se.lecture_timing
FROM attendance a
JOIN classes c ON c.id = a.class_id
JOIN sessions se ON se.id = a.session_id
WHERE a.student_id IN (?) AND (? = '' OR a.class_id = ?)
ORDER BY a.created_at DESC`
	query, args, err := sqlx.In(query, studentIDs, classID, classID)
	if err != nil {
		return nil, fmt.Errorf("expand history query: %w", err)
	}
	query = r.db.Rebind(query)
	var rows []models.StudentHistoryRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("student history: %w", err)
	}
	return rows, nil
}

// CountPresentBetween counts present rows for a teacher within a window.
func (r *AttendanceRepository) CountPresentBetween(ctx context.Context, teacherID, classID string, from, to time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM attendance
WHERE teacher_id = $1 AND ($2 = '' OR class_id = $2)
  AND status = 'present' AND scan_time >= $3 AND scan_time < $4`
	if err := r.db.GetContext(ctx, &count, query, teacherID, classID, from, to); err != nil {
		return 0, fmt.Errorf("count present: %w", err)
	}
	return count, nil
}

// RecentLogs returns the latest scans for the teacher dashboard.
func (r *AttendanceRepository) RecentLogs(ctx context.Context, teacherID, classID string, from, to time.Time, limit int) ([]models.AttendanceLogEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT a.id, s.name AS student_name, a.scan_time, a.status, c.name AS class_name, c.code AS class_code
FROM attendance a
JOIN students s ON s.id = a.student_id
JOIN classes c ON c.id = a.class_id
WHERE a.teacher_id = $1 AND ($2 = '' OR a.class_id = $2)
  AND a.scan_time >= $3 AND a.scan_time < $4
ORDER BY a.scan_time DESC
LIMIT $5`
	var logs []models.AttendanceLogEntry
	if err := r.db.SelectContext(ctx, &logs, query, teacherID, classID, from, to, limit); err != nil {
		return nil, fmt.Errorf("recent logs: %w", err)
	}
	return logs, nil
}

// CountPresentBySession counts present rows for one session.
func (r *AttendanceRepository) CountPresentBySession(ctx context.Context, sessionID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM attendance WHERE session_id = $1 AND status = 'present'`
	if err := r.db.GetContext(ctx, &count, query, sessionID); err != nil {
		return 0, fmt.Errorf("count session attendance: %w", err)
	}
	return count, nil
}
