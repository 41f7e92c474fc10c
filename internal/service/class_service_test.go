package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendify/attendify-api/internal/models"
	appErrors "github.com/attendify/attendify-api/pkg/errors"
)

type mockClassRepo struct {
	classes map[string]*models.Class
	created *models.Class
}

func (m *mockClassRepo) Create(ctx context.Context, class *models.Class) error {
	class.ID = "class-1"
	m.created = class
	return nil
}

func (m *mockClassRepo) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if class, ok := m.classes[id]; ok {
		return class, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockClassRepo) ListAll(ctx context.Context) ([]models.ClassDetail, error) {
	return nil, nil
}

func (m *mockClassRepo) ListByTeacher(ctx context.Context, teacherID string) ([]models.Class, error) {
	var out []models.Class
	for _, class := range m.classes {
		if class.TeacherID == teacherID {
			out = append(out, *class)
		}
	}
	return out, nil
}

type mockStudentRepo struct {
	students map[string]*models.Student
	roster   []models.StudentWithAttendance
	linkable *models.Student
	inClass  bool
	created  *models.Student
	deleted  bool
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	student.ID = "student-1"
	m.created = student
	return nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if student, ok := m.students[id]; ok {
		return student, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) ListByUser(ctx context.Context, userID string) ([]models.Student, error) {
	var out []models.Student
	for _, student := range m.students {
		if student.UserID != nil && *student.UserID == userID {
			out = append(out, *student)
		}
	}
	return out, nil
}

func (m *mockStudentRepo) ExistsInClass(ctx context.Context, enrollmentNumber, classID string) (bool, error) {
	return m.inClass, nil
}

func (m *mockStudentRepo) FindLinkable(ctx context.Context, enrollmentNumber string) (*models.Student, error) {
	if m.linkable == nil {
		return nil, sql.ErrNoRows
	}
	return m.linkable, nil
}

func (m *mockStudentRepo) ListByClass(ctx context.Context, classID string) ([]models.Student, error) {
	return nil, nil
}

func (m *mockStudentRepo) ListWithAttendance(ctx context.Context, classID, teacherID string) ([]models.StudentWithAttendance, error) {
	return m.roster, nil
}

func (m *mockStudentRepo) ProfileClasses(ctx context.Context, userID string) ([]models.StudentProfileClass, error) {
	return nil, nil
}

func (m *mockStudentRepo) DeleteWithAttendance(ctx context.Context, studentID, classID string) error {
	m.deleted = true
	return nil
}

func ownedClassFixture() map[string]*models.Class {
	return map[string]*models.Class{
		"class-1": {ID: "class-1", Name: "Algorithms", TeacherID: "teacher-1"},
	}
}

func TestClassServiceCreate(t *testing.T) {
	repo := &mockClassRepo{classes: map[string]*models.Class{}}
	svc := NewClassService(repo, &mockStudentRepo{}, nil, nil)

	class, err := svc.Create(context.Background(), CreateClassRequest{Name: "Algorithms"}, teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", class.TeacherID)
	assert.True(t, strings.HasPrefix(class.Code, "CLASS-"))
}

func TestClassServiceRosterForbidden(t *testing.T) {
	repo := &mockClassRepo{classes: ownedClassFixture()}
	svc := NewClassService(repo, &mockStudentRepo{}, nil, nil)

	_, err := svc.Roster(context.Background(), "class-1", teacherClaims("intruder"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestClassServiceRosterUnknownClass(t *testing.T) {
	repo := &mockClassRepo{classes: map[string]*models.Class{}}
	svc := NewClassService(repo, &mockStudentRepo{}, nil, nil)

	_, err := svc.Roster(context.Background(), "missing", teacherClaims("teacher-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestClassServiceAddStudent(t *testing.T) {
	repo := &mockClassRepo{classes: ownedClassFixture()}
	userID := "user-9"
	students := &mockStudentRepo{linkable: &models.Student{UserID: &userID}}
	svc := NewClassService(repo, students, nil, nil)

	student, err := svc.AddStudent(context.Background(), "class-1", AddStudentRequest{
		Name:             "Ada Lovelace",
		EnrollmentNumber: "EN-001",
	}, teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, "class-1", student.ClassID)
	require.NotNil(t, student.UserID)
	assert.Equal(t, "user-9", *student.UserID)
}

func TestClassServiceAddStudentDuplicate(t *testing.T) {
	repo := &mockClassRepo{classes: ownedClassFixture()}
	students := &mockStudentRepo{inClass: true}
	svc := NewClassService(repo, students, nil, nil)

	_, err := svc.AddStudent(context.Background(), "class-1", AddStudentRequest{
		Name:             "Ada Lovelace",
		EnrollmentNumber: "EN-001",
	}, teacherClaims("teacher-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Nil(t, students.created)
}

func TestClassServiceRemoveStudent(t *testing.T) {
	repo := &mockClassRepo{classes: ownedClassFixture()}
	students := &mockStudentRepo{students: map[string]*models.Student{
		"student-1": {ID: "student-1", ClassID: "class-1", TeacherID: "teacher-1"},
	}}
	svc := NewClassService(repo, students, nil, nil)

	require.NoError(t, svc.RemoveStudent(context.Background(), "class-1", "student-1", teacherClaims("teacher-1")))
	assert.True(t, students.deleted)
}

func TestClassServiceRemoveStudentWrongClass(t *testing.T) {
	repo := &mockClassRepo{classes: ownedClassFixture()}
	students := &mockStudentRepo{students: map[string]*models.Student{
		"student-1": {ID: "student-1", ClassID: "class-2", TeacherID: "teacher-1"},
	}}
	svc := NewClassService(repo, students, nil, nil)

	err := svc.RemoveStudent(context.Background(), "class-1", "student-1", teacherClaims("teacher-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.False(t, students.deleted)
}

func TestClassServiceProfileNotFound(t *testing.T) {
	svc := NewClassService(&mockClassRepo{classes: map[string]*models.Class{}}, &mockStudentRepo{}, nil, nil)

	_, err := svc.Profile(context.Background(), studentClaims("user-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
