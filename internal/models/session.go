package models

import "time"

// Session is a time-boxed invitation for students of one class to
// record presence. The token is the public identity; the row id is
// storage-internal. At most one session per class is active at a time.
type Session struct {
	ID            string    `db:"id" json:"id"`
	Token         string    `db:"token" json:"token"`
	ClassID       string    `db:"class_id" json:"class_id"`
	TeacherID     string    `db:"teacher_id" json:"teacher_id"`
	LectureTiming string    `db:"lecture_timing" json:"lecture_timing"`
	QRCode        string    `db:"qr_code" json:"qr_code"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	ExpiresAt     time.Time `db:"expires_at" json:"expires_at"`
}

// Expired reports whether the session's window has passed at the given instant.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionView is the public projection returned after creating a session.
type SessionView struct {
	Token         string    `json:"token"`
	QRCode        string    `json:"qr_code"`
	LectureTiming string    `json:"lecture_timing"`
	ExpiresAt     time.Time `json:"expires_at"`
	Active        bool      `json:"active"`
}

// QRView is the polled display state for the active session of a class.
// An expired session is a normal terminal display state, not an error.
type QRView struct {
	QRImage       *string `json:"qr_image"`
	ExpiresIn     int64   `json:"expires_in"`
	Token         string  `json:"token,omitempty"`
	LectureTiming string  `json:"lecture_timing,omitempty"`
	ClassName     string  `json:"class_name,omitempty"`
	Message       string  `json:"message,omitempty"`
}
