package models

import "time"

// AttendanceStatus labels an attendance record. Only present rows are
// ever written; absence is the absence of a row and is computed by the
// reporting queries against the roster.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
)

// AttendanceRecord is an immutable proof that a student scanned a
// session before it expired. Class and teacher are copied from the
// session at scan time so later session changes cannot rewrite history.
type AttendanceRecord struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"student_id"`
	SessionID string           `db:"session_id" json:"session_id"`
	ClassID   string           `db:"class_id" json:"class_id"`
	TeacherID string           `db:"teacher_id" json:"teacher_id"`
	Status    AttendanceStatus `db:"status" json:"status"`
	ScanTime  time.Time        `db:"scan_time" json:"scan_time"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// AttendanceReportRow is one teacher-report line with joined metadata.
type AttendanceReportRow struct {
	ID               string           `db:"id" json:"id"`
	StudentID        string           `db:"student_id" json:"student_id"`
	StudentName      string           `db:"student_name" json:"student_name"`
	EnrollmentNumber string           `db:"enrollment_number" json:"enrollment_number"`
	ClassID          string           `db:"class_id" json:"class_id"`
	ClassName        string           `db:"class_name" json:"class_name"`
	LectureTiming    string           `db:"lecture_timing" json:"lecture_timing"`
	Status           AttendanceStatus `db:"status" json:"status"`
	ScanTime         time.Time        `db:"scan_time" json:"scan_time"`
}

// AttendanceReportFilter scopes the teacher report.
type AttendanceReportFilter struct {
	TeacherID string
	ClassID   string
	StudentID string
	From      *time.Time
	To        *time.Time
}

// StudentHistoryRow is one entry of a student's own attendance history.
type StudentHistoryRow struct {
	ID            string           `db:"id" json:"id"`
	Status        AttendanceStatus `db:"status" json:"status"`
	ScanTime      time.Time        `db:"scan_time" json:"scan_time"`
	ClassName     string           `db:"class_name" json:"class_name"`
	LectureTiming string           `db:"lecture_timing" json:"lecture_timing"`
}

// StudentHistory couples history rows with the derived attendance rate.
type StudentHistory struct {
	Records    []StudentHistoryRow `json:"attendance_records"`
	Percentage float64             `json:"percentage"`
}

// AttendanceSummary is the teacher dashboard aggregate.
type AttendanceSummary struct {
	TotalStudents     int                  `json:"total_students"`
	PresentToday      int                  `json:"present_today"`
	AverageAttendance float64              `json:"average_attendance"`
	RecentLogs        []AttendanceLogEntry `json:"recent_logs"`
}

// AttendanceLogEntry is one recent scan shown on the dashboard.
type AttendanceLogEntry struct {
	ID          string           `db:"id" json:"id"`
	StudentName string           `db:"student_name" json:"student_name"`
	ScanTime    time.Time        `db:"scan_time" json:"scan_time"`
	Status      AttendanceStatus `db:"status" json:"status"`
	ClassName   string           `db:"class_name" json:"class_name"`
	ClassCode   string           `db:"class_code" json:"class_code"`
}

// SessionAverage summarises turnout for a single session.
type SessionAverage struct {
	Token             string  `json:"token"`
	ClassID           string  `json:"class_id"`
	TotalStudents     int     `json:"total_students"`
	PresentCount      int     `json:"present_count"`
	AverageAttendance float64 `json:"average_attendance"`
}
