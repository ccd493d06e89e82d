package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"coursehub/backend/services/payments-service/internal/models"
)

// ErrEnrollmentFailed indicates the access grant could not be created after a
// completed payment. Non-fatal to the transaction: the buyer was charged and
// the completed status must never be rolled back or retried.
var ErrEnrollmentFailed = errors.New("enrollment creation failed")

// EnrollmentStore defines persistence contract for access grants.
type EnrollmentStore interface {
	CreateIfAbsent(ctx context.Context, enrollment *models.Enrollment) (*models.Enrollment, error)
	Exists(ctx context.Context, userID, courseID int64) (bool, error)
}

// EnrollmentService creates course access grants.
type EnrollmentService struct {
	store  EnrollmentStore
	logger *zap.Logger
}

// NewEnrollmentService builds service.
func NewEnrollmentService(store EnrollmentStore, logger *zap.Logger) *EnrollmentService {
	return &EnrollmentService{store: store, logger: logger}
}

// CreateIfAbsent grants access, treating an existing (user, course) grant as
// success.
func (s *EnrollmentService) CreateIfAbsent(ctx context.Context, userID, courseID, transactionID int64) (*models.Enrollment, error) {
	enrollment := &models.Enrollment{
		UserID:        userID,
		CourseID:      courseID,
		TransactionID: transactionID,
	}
	enrollment, err := s.store.CreateIfAbsent(ctx, enrollment)
	if err != nil {
		s.logger.Error("enrollment creation failed",
			zap.Int64("user_id", userID),
			zap.Int64("course_id", courseID),
			zap.Int64("transaction_id", transactionID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrEnrollmentFailed, err)
	}

	s.logger.Info("enrollment created",
		zap.Int64("enrollment_id", enrollment.ID),
		zap.Int64("user_id", userID),
		zap.Int64("course_id", courseID),
	)
	return enrollment, nil
}

// IsEnrolled reports whether user already holds access to course.
func (s *EnrollmentService) IsEnrolled(ctx context.Context, userID, courseID int64) (bool, error) {
	return s.store.Exists(ctx, userID, courseID)
}
