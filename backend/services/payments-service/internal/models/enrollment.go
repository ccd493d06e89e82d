package models

import "time"

// Enrollment grants a user access to a course. Created as a consequence of a
// transaction completing, unique per (user, course), never deleted here.
type Enrollment struct {
	ID            int64     `db:"id" json:"id"`
	UserID        int64     `db:"user_id" json:"user_id"`
	CourseID      int64     `db:"course_id" json:"course_id"`
	TransactionID int64     `db:"transaction_id" json:"transaction_id"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
