package repository

import (
	"context"
	"database/sql"

	"coursehub/backend/services/payments-service/internal/models"
)

// EnrollmentRepository persists course access grants.
type EnrollmentRepository struct {
	db *sql.DB
}

// NewEnrollmentRepository returns repository.
func NewEnrollmentRepository(db *sql.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// CreateIfAbsent inserts an enrollment, treating an existing (user, course)
// row as success. The DO UPDATE arm is a no-op that lets RETURNING yield the
// surviving row either way.
func (r *EnrollmentRepository) CreateIfAbsent(ctx context.Context, enrollment *models.Enrollment) (*models.Enrollment, error) {
	const query = `
		INSERT INTO enrollments (user_id, course_id, transaction_id, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, course_id) DO UPDATE SET
			user_id = EXCLUDED.user_id
		RETURNING id, transaction_id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		enrollment.UserID,
		enrollment.CourseID,
		enrollment.TransactionID,
	).Scan(&enrollment.ID, &enrollment.TransactionID, &enrollment.CreatedAt)
	if err != nil {
		return nil, err
	}
	return enrollment, nil
}

// Exists reports whether user already holds access to the course.
func (r *EnrollmentRepository) Exists(ctx context.Context, userID, courseID int64) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM enrollments WHERE user_id = $1 AND course_id = $2
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userID, courseID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
