package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"coursehub/backend/services/payments-service/internal/clients"
	"coursehub/backend/services/payments-service/internal/models"
	"coursehub/backend/services/payments-service/internal/paystack"
)

// ErrAlreadyEnrolled rejects checkout for a course the buyer already owns.
var ErrAlreadyEnrolled = errors.New("checkout: already enrolled in course")

// GatewayInitializer starts checkout sessions with the payment gateway.
type GatewayInitializer interface {
	InitializeTransaction(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeResult, error)
}

// CourseCatalog is the catalog collaborator's price lookup.
type CourseCatalog interface {
	GetCoursePrice(ctx context.Context, courseID int64) (*clients.CoursePrice, error)
}

// CheckoutResult is the redirect handle returned to the buyer.
type CheckoutResult struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
}

// CheckoutService creates payment sessions and their pending ledger rows.
type CheckoutService struct {
	store       TransactionStore
	gateway     GatewayInitializer
	catalog     CourseCatalog
	enrollments *EnrollmentService
	logger      *zap.Logger
}

// NewCheckoutService builds service.
func NewCheckoutService(
	store TransactionStore,
	gateway GatewayInitializer,
	catalog CourseCatalog,
	enrollments *EnrollmentService,
	logger *zap.Logger,
) *CheckoutService {
	return &CheckoutService{
		store:       store,
		gateway:     gateway,
		catalog:     catalog,
		enrollments: enrollments,
		logger:      logger,
	}
}

// StartCheckout captures the course's current price, opens a gateway session
// and records the pending transaction. The captured amount is the only
// amount reconciliation will ever trust for this attempt.
func (s *CheckoutService) StartCheckout(ctx context.Context, userID, courseID int64, email string) (*CheckoutResult, error) {
	if userID == 0 || courseID == 0 {
		return nil, errors.New("checkout: user and course are required")
	}
	if email == "" {
		return nil, errors.New("checkout: email is required")
	}

	enrolled, err := s.enrollments.IsEnrolled(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if enrolled {
		return nil, ErrAlreadyEnrolled
	}

	price, err := s.catalog.GetCoursePrice(ctx, courseID)
	if err != nil {
		return nil, err
	}

	initReq := paystack.InitializeRequest{
		Email:       email,
		AmountMinor: price.AmountMinor,
		Currency:    price.Currency,
	}
	initReq.Metadata.UserID = userID
	initReq.Metadata.CourseID = courseID

	session, err := s.gateway.InitializeTransaction(ctx, initReq)
	if err != nil {
		return nil, err
	}

	tx := &models.Transaction{
		UserID:           userID,
		CourseID:         courseID,
		GatewayReference: session.Reference,
		AmountMinor:      price.AmountMinor,
		Currency:         price.Currency,
		Status:           models.TransactionStatusPending,
	}
	if err := s.store.Create(ctx, tx); err != nil {
		// The gateway session exists but we have no ledger row; reconciliation
		// for this reference will answer not-found until support intervenes.
		s.logger.Error("failed to record pending transaction",
			zap.String("reference", session.Reference),
			zap.Int64("user_id", userID),
			zap.Int64("course_id", courseID),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("checkout session created",
		zap.String("reference", session.Reference),
		zap.Int64("user_id", userID),
		zap.Int64("course_id", courseID),
		zap.Int64("amount_minor", price.AmountMinor),
		zap.String("currency", price.Currency),
	)

	return &CheckoutResult{
		Reference:        session.Reference,
		AuthorizationURL: session.AuthorizationURL,
	}, nil
}
