package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/attendify/attendify-api/internal/models"
	"github.com/attendify/attendify-api/internal/repository"
	appErrors "github.com/attendify/attendify-api/pkg/errors"
	"github.com/attendify/attendify-api/pkg/export"
)

type attendanceRepository interface {
	Insert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error)
	Exists(ctx context.Context, studentID, sessionID string) (bool, error)
	Report(ctx context.Context, filter models.AttendanceReportFilter) ([]models.AttendanceReportRow, error)
	StudentHistory(ctx context.Context, studentIDs []string, classID string) ([]models.StudentHistoryRow, error)
	CountPresentBetween(ctx context.Context, teacherID, classID string, from, to time.Time) (int, error)
	RecentLogs(ctx context.Context, teacherID, classID string, from, to time.Time, limit int) ([]models.AttendanceLogEntry, error)
	CountPresentBySession(ctx context.Context, sessionID string) (int, error)
}

type rosterReader interface {
	ListByUser(ctx context.Context, userID string) ([]models.Student, error)
	CountByTeacher(ctx context.Context, teacherID, classID string) (int, error)
	CountByClass(ctx context.Context, classID string) (int, error)
}

type sessionReader interface {
	FindByToken(ctx context.Context, token string) (*models.Session, error)
	FindByTokenForTeacher(ctx context.Context, token, teacherID string) (*models.Session, error)
}

// AttendanceService is the attendance recorder plus the read-only
// reporting over recorded scans.
type AttendanceService struct {
	repo      attendanceRepository
	roster    rosterReader
	sessions  sessionReader
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAttendanceService constructs the attendance recorder.
func NewAttendanceService(repo attendanceRepository, roster rosterReader, sessions sessionReader, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		repo:      repo,
		roster:    roster,
		sessions:  sessions,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// MarkAttendanceRequest is the scan submission payload. Class and
// teacher are never taken from the client; they are derived from the
// resolved session.
type MarkAttendanceRequest struct {
	Token string `json:"sessionId" validate:"required"`
}

// Mark validates a scan against the session state and records at most
// one attendance row per (student, session) pair. The write path never
// flips the active flag on expiry; rejecting the write is enough.
func (s *AttendanceService) Mark(ctx context.Context, req MarkAttendanceRequest, claims *models.JWTClaims) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid scan payload")
	}
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}

	entries, err := s.roster.ListByUser(ctx, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if len(entries) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	session, err := s.sessions.FindByToken(ctx, req.Token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invalid session")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	if !session.Active || session.Expired(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrSessionExpired, "session has expired")
	}

	student := pickRosterEntry(entries, session.ClassID)

	// Friendlier duplicate message; the unique index on Insert is the
	// guard that holds under concurrent double submits.
	if exists, err := s.repo.Exists(ctx, student.ID, session.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check attendance")
	} else if exists {
		s.metrics.IncAttendanceConflicts()
		return nil, appErrors.Clone(appErrors.ErrConflict, "attendance already marked for this session")
	}

	record := &models.AttendanceRecord{
		StudentID: student.ID,
		SessionID: session.ID,
		ClassID:   session.ClassID,
		TeacherID: session.TeacherID,
		Status:    models.AttendanceStatusPresent,
		ScanTime:  s.now().UTC(),
	}
	stored, err := s.repo.Insert(ctx, record)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateAttendance) {
			s.metrics.IncAttendanceConflicts()
			return nil, appErrors.Clone(appErrors.ErrConflict, "attendance already marked for this session")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}

	s.metrics.IncAttendanceMarked()
	s.logger.Info("attendance marked",
		zap.String("student_id", stored.StudentID),
		zap.String("session_id", stored.SessionID),
		zap.String("class_id", stored.ClassID))
	return stored, nil
}

// pickRosterEntry prefers the roster entry matching the session's
// class so scans from multi-class students land on the right record.
func pickRosterEntry(entries []models.Student, classID string) models.Student {
	for _, entry := range entries {
		if entry.ClassID == classID {
			return entry
		}
	}
	return entries[0]
}

// Report returns teacher-scoped attendance rows matching the filter.
func (s *AttendanceService) Report(ctx context.Context, filter models.AttendanceReportFilter) ([]models.AttendanceReportRow, error) {
	if filter.TeacherID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher id required")
	}
	rows, err := s.repo.Report(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance report")
	}
	return rows, nil
}

// ExportReport renders the teacher report as a downloadable document.
func (s *AttendanceService) ExportReport(ctx context.Context, filter models.AttendanceReportFilter, format string) ([]byte, string, string, error) {
	rows, err := s.Report(ctx, filter)
	if err != nil {
		return nil, "", "", err
	}

	dataset := export.Dataset{
		Headers: []string{"Student", "Enrollment No", "Class", "Lecture", "Status", "Scan Time"},
	}
	for _, row := range rows {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student":       row.StudentName,
			"Enrollment No": row.EnrollmentNumber,
			"Class":         row.ClassName,
			"Lecture":       row.LectureTiming,
			"Status":        string(row.Status),
			"Scan Time":     row.ScanTime.UTC().Format(time.RFC3339),
		})
	}

	switch format {
	case "csv", "":
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv report")
		}
		return payload, "text/csv", "attendance-report.csv", nil
	case "pdf":
		payload, err := s.pdf.Render(dataset, "Attendance Report")
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf report")
		}
		return payload, "application/pdf", "attendance-report.pdf", nil
	default:
		return nil, "", "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

// History returns a student's own attendance rows plus the derived rate.
func (s *AttendanceService) History(ctx context.Context, userID, classID string) (*models.StudentHistory, error) {
	entries, err := s.roster.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if len(entries) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	ids := make([]string, len(entries))
	for i, entry := range entries {
		ids[i] = entry.ID
	}
	rows, err := s.repo.StudentHistory(ctx, ids, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance history")
	}

	present := 0
	for _, row := range rows {
		if row.Status == models.AttendanceStatusPresent {
			present++
		}
	}
	percentage := 0.0
	if len(rows) > 0 {
		percentage = round2(float64(present) / float64(len(rows)) * 100)
	}
	return &models.StudentHistory{Records: rows, Percentage: percentage}, nil
}

// Summary builds the teacher dashboard for the current day.
func (s *AttendanceService) Summary(ctx context.Context, teacherID, classID string) (*models.AttendanceSummary, error) {
	if teacherID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher id required")
	}

	now := s.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	presentToday, err := s.repo.CountPresentBetween(ctx, teacherID, classID, dayStart, dayEnd)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count today's attendance")
	}
	totalStudents, err := s.roster.CountByTeacher(ctx, teacherID, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
	}
	logs, err := s.repo.RecentLogs(ctx, teacherID, classID, dayStart, dayEnd, 10)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recent scans")
	}

	average := 0.0
	if totalStudents > 0 {
		average = round2(float64(presentToday) / float64(totalStudents) * 100)
	}
	return &models.AttendanceSummary{
		TotalStudents:     totalStudents,
		PresentToday:      presentToday,
		AverageAttendance: average,
		RecentLogs:        logs,
	}, nil
}

// SessionAverage summarises turnout for one session owned by the caller.
func (s *AttendanceService) SessionAverage(ctx context.Context, teacherID, token string) (*models.SessionAverage, error) {
	if token == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session token required")
	}
	session, err := s.sessions.FindByTokenForTeacher(ctx, token, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	total, err := s.roster.CountByClass(ctx, session.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count class students")
	}
	present, err := s.repo.CountPresentBySession(ctx, session.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count session attendance")
	}

	average := 0.0
	if total > 0 {
		average = round2(float64(present) / float64(total) * 100)
	}
	return &models.SessionAverage{
		Token:             token,
		ClassID:           session.ClassID,
		TotalStudents:     total,
		PresentCount:      present,
		AverageAttendance: average,
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
