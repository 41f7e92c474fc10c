package models

import "time"

// Student is a roster entry binding a person to one class. The same
// user may appear in several classes through separate entries.
type Student struct {
	ID               string    `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	Email            *string   `db:"email" json:"email,omitempty"`
	EnrollmentNumber string    `db:"enrollment_number" json:"enrollment_number"`
	ClassID          string    `db:"class_id" json:"class_id"`
	TeacherID        string    `db:"teacher_id" json:"teacher_id"`
	UserID           *string   `db:"user_id" json:"user_id,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// StudentWithAttendance augments a roster entry with its attendance rate.
type StudentWithAttendance struct {
	ID                   string  `db:"id" json:"id"`
	Name                 string  `db:"name" json:"name"`
	Email                *string `db:"email" json:"email,omitempty"`
	EnrollmentNumber     string  `db:"enrollment_number" json:"enrollment_number"`
	TotalSessions        int     `db:"total_sessions" json:"total_sessions"`
	PresentCount         int     `db:"present_count" json:"present_count"`
	AttendancePercentage float64 `json:"attendance_percentage"`
}

// StudentProfile aggregates a user's roster entries across classes.
type StudentProfile struct {
	Primary Student                `json:"primary"`
	Classes []StudentProfileClass  `json:"classes"`
}

// StudentProfileClass is one class membership in a student profile.
type StudentProfileClass struct {
	ClassID          string `db:"class_id" json:"class_id"`
	ClassName        string `db:"class_name" json:"class_name"`
	ClassCode        string `db:"class_code" json:"class_code"`
	TeacherName      string `db:"teacher_name" json:"teacher_name"`
	StudentRecordID  string `db:"student_record_id" json:"student_record_id"`
	EnrollmentNumber string `db:"enrollment_number" json:"enrollment_number"`
}
