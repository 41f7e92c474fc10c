package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/attendify/attendify-api/internal/models"
	appErrors "github.com/attendify/attendify-api/pkg/errors"
)

type classRepository interface {
	Create(ctx context.Context, class *models.Class) error
	FindByID(ctx context.Context, id string) (*models.Class, error)
	ListAll(ctx context.Context) ([]models.ClassDetail, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.Class, error)
}

type studentRepository interface {
	Create(ctx context.Context, student *models.Student) error
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ListByUser(ctx context.Context, userID string) ([]models.Student, error)
	ExistsInClass(ctx context.Context, enrollmentNumber, classID string) (bool, error)
	FindLinkable(ctx context.Context, enrollmentNumber string) (*models.Student, error)
	ListByClass(ctx context.Context, classID string) ([]models.Student, error)
	ListWithAttendance(ctx context.Context, classID, teacherID string) ([]models.StudentWithAttendance, error)
	ProfileClasses(ctx context.Context, userID string) ([]models.StudentProfileClass, error)
	DeleteWithAttendance(ctx context.Context, studentID, classID string) error
}

// ClassService manages classes and their rosters.
type ClassService struct {
	classes   classRepository
	students  studentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs ClassService.
func NewClassService(classes classRepository, students studentRepository, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{classes: classes, students: students, validator: validate, logger: logger}
}

// CreateClassRequest describes class creation payload.
type CreateClassRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description *string `json:"description"`
}

// AddStudentRequest describes roster addition payload.
type AddStudentRequest struct {
	Name             string `json:"name" validate:"required"`
	EnrollmentNumber string `json:"enrollmentNumber" validate:"required"`
}

// Create registers a new class owned by the caller.
func (s *ClassService) Create(ctx context.Context, req CreateClassRequest, claims *models.JWTClaims) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}

	class := &models.Class{
		Name:        req.Name,
		Description: req.Description,
		Code:        fmt.Sprintf("CLASS-%d", time.Now().UnixMilli()),
		TeacherID:   claims.UserID,
	}
	if err := s.classes.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	return class, nil
}

// ListAll returns every class, for the student registration flow.
func (s *ClassService) ListAll(ctx context.Context) ([]models.ClassDetail, error) {
	classes, err := s.classes.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	return classes, nil
}

// ListMine returns classes owned by the caller.
func (s *ClassService) ListMine(ctx context.Context, claims *models.JWTClaims) ([]models.Class, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	classes, err := s.classes.ListByTeacher(ctx, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	return classes, nil
}

// ownedClass loads a class and checks the caller owns it.
func (s *ClassService) ownedClass(ctx context.Context, classID string, claims *models.JWTClaims) (*models.Class, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if claims == nil || class.TeacherID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "class is owned by another teacher")
	}
	return class, nil
}

// Roster returns the class roster with per-student attendance rates.
func (s *ClassService) Roster(ctx context.Context, classID string, claims *models.JWTClaims) ([]models.StudentWithAttendance, error) {
	if _, err := s.ownedClass(ctx, classID, claims); err != nil {
		return nil, err
	}
	rows, err := s.students.ListWithAttendance(ctx, classID, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roster")
	}
	return rows, nil
}

// AddStudent appends a roster entry, linking an already registered
// user when the same enrollment number is known elsewhere.
func (s *ClassService) AddStudent(ctx context.Context, classID string, req AddStudentRequest, claims *models.JWTClaims) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "name and enrollment number are required")
	}
	if _, err := s.ownedClass(ctx, classID, claims); err != nil {
		return nil, err
	}

	exists, err := s.students.ExistsInClass(ctx, req.EnrollmentNumber, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check roster")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student with this enrollment number already exists in this class")
	}

	student := &models.Student{
		Name:             req.Name,
		EnrollmentNumber: req.EnrollmentNumber,
		ClassID:          classID,
		TeacherID:        claims.UserID,
	}
	if linked, err := s.students.FindLinkable(ctx, req.EnrollmentNumber); err == nil {
		student.UserID = linked.UserID
		student.Email = linked.Email
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up linked student")
	}

	if err := s.students.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add student")
	}
	return student, nil
}

// RemoveStudent deletes a roster entry and, as a cascade, its
// attendance rows. This is the only deletion path for attendance.
func (s *ClassService) RemoveStudent(ctx context.Context, classID, studentID string, claims *models.JWTClaims) error {
	if _, err := s.ownedClass(ctx, classID, claims); err != nil {
		return err
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found in this class")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.ClassID != classID || student.TeacherID != claims.UserID {
		return appErrors.Clone(appErrors.ErrNotFound, "student not found in this class")
	}

	if err := s.students.DeleteWithAttendance(ctx, studentID, classID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove student")
	}
	s.logger.Info("student removed from class", zap.String("student_id", studentID), zap.String("class_id", classID))
	return nil
}

// Profile aggregates the caller's roster entries across classes.
func (s *ClassService) Profile(ctx context.Context, claims *models.JWTClaims) (*models.StudentProfile, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	entries, err := s.students.ListByUser(ctx, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	if len(entries) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
	}
	classes, err := s.students.ProfileClasses(ctx, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile classes")
	}
	return &models.StudentProfile{Primary: entries[0], Classes: classes}, nil
}
