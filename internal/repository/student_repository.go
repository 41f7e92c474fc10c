package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/attendify/attendify-api/internal/models"
)

// StudentRepository handles persistence for roster entries.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// Create inserts a roster entry.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	student.CreatedAt = time.Now().UTC()
	query := `INSERT INTO students (id, name, email, enrollment_number, class_id, teacher_id, user_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(ctx, query, student.ID, student.Name, student.Email, student.EnrollmentNumber, student.ClassID, student.TeacherID, student.UserID, student.CreatedAt); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// FindByID loads one roster entry.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	query := `SELECT id, name, email, enrollment_number, class_id, teacher_id, user_id, created_at
FROM students WHERE id = $1`
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// ListByUser returns every roster entry linked to a registered user,
// oldest first.
func (r *StudentRepository) ListByUser(ctx context.Context, userID string) ([]models.Student, error) {
	query := `SELECT id, name, email, enrollment_number, class_id, teacher_id, user_id, created_at
FROM students WHERE user_id = $1 ORDER BY created_at ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, userID); err != nil {
		return nil, fmt.Errorf("list students by user: %w", err)
	}
	return students, nil
}

// ExistsInClass reports whether an enrollment number is already on a class roster.
func (r *StudentRepository) ExistsInClass(ctx context.Context, enrollmentNumber, classID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM students WHERE enrollment_number = $1 AND class_id = $2)`
	if err := r.db.GetContext(ctx, &exists, query, enrollmentNumber, classID); err != nil {
		return false, fmt.Errorf("check roster entry: %w", err)
	}
	return exists, nil
}

// FindLinkable locates the oldest roster entry for an enrollment number
// that is already linked to a registered user. Used to carry the link
// over when the same enrollment number joins another class.
func (r *StudentRepository) FindLinkable(ctx context.Context, enrollmentNumber string) (*models.Student, error) {
	var student models.Student
	query := `SELECT id, name, email, enrollment_number, class_id, teacher_id, user_id, created_at
FROM students WHERE enrollment_number = $1 AND user_id IS NOT NULL ORDER BY created_at ASC LIMIT 1`
	if err := r.db.GetContext(ctx, &student, query, enrollmentNumber); err != nil {
		return nil, err
	}
	return &student, nil
}

// ListByClass returns the roster of a class.
func (r *StudentRepository) ListByClass(ctx context.Context, classID string) ([]models.Student, error) {
	query := `SELECT id, name, email, enrollment_number, class_id, teacher_id, user_id, created_at
FROM students WHERE class_id = $1 ORDER BY name ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, classID); err != nil {
		return nil, fmt.Errorf("list class roster: %w", err)
	}
	return students, nil
}

// ListWithAttendance returns a class roster with per-student scan counts.
func (r *StudentRepository) ListWithAttendance(ctx context.Context, classID, teacherID string) ([]models.StudentWithAttendance, error) {
	query := `SELECT s.id, s.name, s.email, s.enrollment_number,
       COUNT(a.id) AS total_sessions,
       COUNT(a.id) FILTER (WHERE a.status = 'present') AS present_count
FROM students s
LEFT JOIN attendance a ON a.student_id = s.id AND a.class_id = s.class_id
WHERE s.class_id = $1 AND s.teacher_id = $2
GROUP BY s.id, s.name, s.email, s.enrollment_number
ORDER BY s.name ASC`
	var rows []models.StudentWithAttendance
	if err := r.db.SelectContext(ctx, &rows, query, classID, teacherID); err != nil {
		return nil, fmt.Errorf("list roster with attendance: %w", err)
	}
	for i := range rows {
		if rows[i].TotalSessions > 0 {
			rows[i].AttendancePercentage = float64(rows[i].PresentCount) / float64(rows[i].TotalSessions) * 100
		}
	}
	return rows, nil
}

// CountByTeacher counts roster entries for a teacher, optionally scoped to one class.
func (r *StudentRepository) CountByTeacher(ctx context.Context, teacherID, classID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM students WHERE teacher_id = $1 AND ($2 = '' OR class_id = $2)`
	if err := r.db.GetContext(ctx, &count, query, teacherID, classID); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return count, nil
}

// CountByClass counts roster entries of a class.
func (r *StudentRepository) CountByClass(ctx context.Context, classID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM students WHERE class_id = $1`
	if err := r.db.GetContext(ctx, &count, query, classID); err != nil {
		return 0, fmt.Errorf("count class students: %w", err)
	}
	return count, nil
}

// ProfileClasses returns the class memberships for a user's roster entries.
func (r *StudentRepository) ProfileClasses(ctx context.Context, userID string) ([]models.StudentProfileClass, error) {
	query := `SELECT s.class_id, c.name AS class_name, c.code AS class_code,
       u.full_name AS teacher_name, s.id AS student_record_id, s.enrollment_number
FROM students s
JOIN classes c ON c.id = s.class_id
JOIN users u ON u.id = s.teacher_id
WHERE s.user_id = $1
ORDER BY s.created_at ASC`
	var classes []models.StudentProfileClass
	if err := r.db.SelectContext(ctx, &classes, query, userID); err != nil {
		return nil, fmt.Errorf("load profile classes: %w", err)
	}
	return classes, nil
}

// DeleteWithAttendance removes a roster entry and its attendance rows
// in one transaction. Removing the entry is the only path that ever
// deletes attendance records.
func (r *StudentRepository) DeleteWithAttendance(ctx context.Context, studentID, classID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove student: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `DELETE FROM attendance WHERE student_id = $1 AND class_id = $2`, studentID, classID); err != nil {
		return fmt.Errorf("delete student attendance: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, studentID); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit remove student: %w", err)
	}
	committed = true
	return nil
}
