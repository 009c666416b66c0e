package app

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"quiz-platform/internal/domain"
)

// PaymentConfig holds pricing settings.
type PaymentConfig struct {
	Provider string
	Currency string
	TaxRate  decimal.Decimal
}

type PaymentInput struct {
	Type        domain.PaymentType `json:"payment_type" validate:"required,oneof=course_purchase subscription certificate donation"`
	Amount      decimal.Decimal    `json:"amount"`
	CourseID    *int64             `json:"course_id" validate:"omitempty,gt=0"`
	Currency    string             `json:"currency" validate:"omitempty,len=3"`
	Description string             `json:"description" validate:"max=500"`
}

type RefundInput struct {
	Reason string `json:"reason" validate:"max=500"`
}

// CourseEnroller enrolls buyers once a course purchase completes.
type CourseEnroller interface {
	EnrollPurchased(ctx context.Context, userID, courseID int64) (domain.Enrollment, error)
}

// PaymentService creates gateway charges and tracks their status.
type PaymentService struct {
	payments PaymentRepository
	users    UserRepository
	courses  CourseRepository
	enroller CourseEnroller
	gateway  PaymentGateway
	cfg      PaymentConfig
	now      func() time.Time
	log      Logger
}

func NewPaymentService(payments PaymentRepository, users UserRepository, courses CourseRepository, enroller CourseEnroller, gateway PaymentGateway, cfg PaymentConfig, log Logger) *PaymentService {
	if cfg.Currency == "" {
		cfg.Currency = "IDR"
	}
	if cfg.Provider == "" {
		cfg.Provider = "midtrans"
	}
	return &PaymentService{
		payments: payments,
		users:    users,
		courses:  courses,
		enroller: enroller,
		gateway:  gateway,
		cfg:      cfg,
		now:      time.Now,
		log:      orNop(log),
	}
}

// Create records a pending payment and opens a gateway charge for it.
func (s *PaymentService) Create(ctx context.Context, actor Actor, in PaymentInput) (domain.Payment, error) {
	amount := in.Amount
	description := strings.TrimSpace(in.Description)

	if in.Type == domain.PaymentCoursePurchase {
		if in.CourseID == nil {
			return domain.Payment{}, domain.FieldValidationError("course_id", "course_id is required for course purchases")
		}
		course, err := s.courses.CourseByID(ctx, *in.CourseID)
		if errors.Is(err, domain.ErrCourseNotFound) {
			return domain.Payment{}, domain.FieldValidationError("course_id", "course does not exist")
		}
		if err != nil {
			return domain.Payment{}, err
		}
		if course.IsFree || !course.Price.IsPositive() {
			return domain.Payment{}, domain.FieldValidationError("course_id", "course is free")
		}
		if !amount.IsZero() && !amount.Equal(course.Price) {
			return domain.Payment{}, domain.FieldValidationError("amount", "amount must match the course price")
		}
		amount = course.Price
		if description == "" {
			description = "Course purchase: " + course.Title
		}
	}
	if !amount.IsPositive() {
		return domain.Payment{}, domain.FieldValidationError("amount", "amount must be greater than zero")
	}

	user, err := s.users.UserByID(ctx, actor.UserID)
	if err != nil {
		return domain.Payment{}, err
	}

	now := s.now()
	tax := amount.Mul(s.cfg.TaxRate).Round(2)
	p := domain.Payment{
		OrderID:     uuid.NewString(),
		UserID:      actor.UserID,
		Type:        in.Type,
		CourseID:    in.CourseID,
		Description: description,
		Amount:      amount.Round(2),
		Tax:         tax,
		Total:       amount.Round(2).Add(tax),
		Currency:    strings.ToUpper(in.Currency),
		Status:      domain.PaymentPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.Currency == "" {
		p.Currency = s.cfg.Currency
	}
	if err := s.payments.CreatePayment(ctx, &p); err != nil {
		return domain.Payment{}, errors.Wrap(err, "create payment")
	}

	charge, err := s.gateway.CreateCharge(ctx, p, user)
	if err != nil {
		s.log.Error("create gateway charge", "order", p.OrderID, "err", err)
		p.Status = domain.PaymentFailed
		p.FailedAt = ptrTime(s.now())
		p.UpdatedAt = s.now()
		if uerr := s.payments.UpdatePayment(ctx, &p); uerr != nil {
			s.log.Error("mark payment failed", "order", p.OrderID, "err", uerr)
		}
		return domain.Payment{}, domain.ErrGatewayUnavailable
	}

	p.GatewayToken = charge.Token
	p.RedirectURL = charge.RedirectURL
	p.UpdatedAt = s.now()
	if err := s.payments.UpdatePayment(ctx, &p); err != nil {
		return domain.Payment{}, errors.Wrap(err, "update payment")
	}
	return p, nil
}

// Get returns a payment to its owner or an admin.
func (s *PaymentService) Get(ctx context.Context, actor Actor, id int64) (domain.Payment, error) {
	p, err := s.payments.PaymentByID(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}
	if p.UserID != actor.UserID && !actor.IsAdmin() {
		return domain.Payment{}, domain.ErrForbidden
	}
	return p, nil
}

// History lists the caller's payments, newest first.
func (s *PaymentService) History(ctx context.Context, actor Actor) ([]domain.Payment, error) {
	list, err := s.payments.ListPayments(ctx, actor.UserID)
	return list, errors.Wrap(err, "list payments")
}

// Confirm asks the gateway for the transaction status and applies it.
func (s *PaymentService) Confirm(ctx context.Context, actor Actor, id int64) (domain.Payment, error) {
	p, err := s.Get(ctx, actor, id)
	if err != nil {
		return domain.Payment{}, err
	}
	st, err := s.gateway.Status(ctx, p.OrderID)
	if err != nil {
		s.log.Error("query gateway status", "order", p.OrderID, "err", err)
		return domain.Payment{}, domain.ErrGatewayUnavailable
	}
	status, ok := MapGatewayStatus(st.TransactionStatus, st.FraudStatus)
	if !ok {
		return p, nil
	}
	return s.apply(ctx, p, status, st.TransactionID)
}

// Refund refunds a completed payment through the gateway; admin only.
func (s *PaymentService) Refund(ctx context.Context, actor Actor, id int64, in RefundInput) (domain.Payment, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.Payment{}, err
	}
	p, err := s.payments.PaymentByID(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}
	if p.Status != domain.PaymentCompleted {
		return domain.Payment{}, domain.ErrPaymentNotRefundable
	}
	if err := s.gateway.Refund(ctx, p, in.Reason); err != nil {
		s.log.Error("refund payment", "order", p.OrderID, "err", err)
		return domain.Payment{}, domain.ErrGatewayUnavailable
	}
	return s.apply(ctx, p, domain.PaymentRefunded, p.GatewayReference)
}

// HandleNotification processes a gateway webhook. Notifications for unknown orders are
// acknowledged and ignored. A bad signature is logged and rejected with domain.ErrInvalidSignature.
func (s *PaymentService) HandleNotification(ctx context.Context, n domain.GatewayNotification, payload []byte) error {
	event := domain.PaymentEvent{
		Provider:          s.cfg.Provider,
		OrderID:           n.OrderID,
		TransactionStatus: n.TransactionStatus,
		Signature:         n.SignatureKey,
		Payload:           payload,
		CreatedAt:         s.now(),
	}
	defer func() {
		if err := s.payments.RecordEvent(ctx, &event); err != nil {
			s.log.Error("record payment event", "order", n.OrderID, "err", err)
		}
	}()

	if !s.gateway.VerifySignature(n) {
		event.Status = "rejected"
		event.Error = domain.ErrInvalidSignature.Error()
		return domain.ErrInvalidSignature
	}

	p, err := s.payments.PaymentByOrderID(ctx, n.OrderID)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		event.Status = "ignored"
		event.Error = "unknown order"
		return nil
	}
	if err != nil {
		event.Status = "failed"
		event.Error = err.Error()
		return errors.Wrap(err, "find payment")
	}
	event.PaymentID = ptrInt64(p.ID)

	status, ok := MapGatewayStatus(n.TransactionStatus, n.FraudStatus)
	if !ok {
		event.Status = "ignored"
		event.Error = "unknown transaction status"
		return nil
	}
	if _, err := s.apply(ctx, p, status, n.TransactionID); err != nil {
		event.Status = "failed"
		event.Error = err.Error()
		return err
	}
	event.Status = "processed"
	return nil
}

// apply moves p to status when the transition is allowed. Repeating a transition is a no-op.
func (s *PaymentService) apply(ctx context.Context, p domain.Payment, status domain.PaymentStatus, reference string) (domain.Payment, error) {
	if !canTransition(p.Status, status) {
		return p, nil
	}
	now := s.now()
	p.Status = status
	if reference != "" {
		p.GatewayReference = reference
	}
	switch status {
	case domain.PaymentCompleted:
		p.PaidAt = ptrTime(now)
	case domain.PaymentFailed, domain.PaymentCancelled:
		p.FailedAt = ptrTime(now)
	case domain.PaymentRefunded:
		p.RefundedAt = ptrTime(now)
	}
	p.UpdatedAt = now
	if err := s.payments.UpdatePayment(ctx, &p); err != nil {
		return domain.Payment{}, errors.Wrap(err, "update payment")
	}

	if status == domain.PaymentCompleted && p.Type == domain.PaymentCoursePurchase && p.CourseID != nil {
		if _, err := s.enroller.EnrollPurchased(ctx, p.UserID, *p.CourseID); err != nil {
			s.log.Error("enroll after purchase", "order", p.OrderID, "err", err)
		}
	}
	return p, nil
}

func canTransition(from, to domain.PaymentStatus) bool {
	switch {
	case from == to:
		return false
	case from.Final():
		return false
	case from == domain.PaymentCompleted:
		return to == domain.PaymentRefunded
	case to == domain.PaymentRefunded:
		return false
	default:
		return true
	}
}

// MapGatewayStatus translates a gateway transaction status into a payment status.
func MapGatewayStatus(transactionStatus, fraudStatus string) (domain.PaymentStatus, bool) {
	switch strings.ToLower(transactionStatus) {
	case "capture":
		switch strings.ToLower(fraudStatus) {
		case "", "accept":
			return domain.PaymentCompleted, true
		case "challenge":
			return domain.PaymentProcessing, true
		default:
			return domain.PaymentFailed, true
		}
	case "settlement":
		return domain.PaymentCompleted, true
	case "pending":
		return domain.PaymentProcessing, true
	case "deny", "failure":
		return domain.PaymentFailed, true
	case "cancel", "expire":
		return domain.PaymentCancelled, true
	case "refund", "partial_refund":
		return domain.PaymentRefunded, true
	}
	return "", false
}
