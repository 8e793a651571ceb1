package payment

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	errors "github.com/Infantselva015/eci-payment-service/internal"
	ledgermodel "github.com/Infantselva015/eci-payment-service/internal/core/datamodel/ledger"
	paymentmodel "github.com/Infantselva015/eci-payment-service/internal/core/datamodel/payment"
	"github.com/Infantselva015/eci-payment-service/internal/core/events"
	"github.com/Infantselva015/eci-payment-service/internal/gateway"
)

// Repository interface for payment database operations. Create must surface
// errors.ErrDuplicateOrder when the order_id unique constraint fires, so
// concurrent charges for one order resolve to exactly one winner at the
// storage layer.
type Repository interface {
	Create(p *paymentmodel.Payment) error
	GetByID(id int64) (*paymentmodel.Payment, error)
	GetByOrderID(orderID int64) (*paymentmodel.Payment, error)
	GetByTransactionID(transactionID string) (*paymentmodel.Payment, error)
	UpdateStatus(id int64, update StatusUpdate) error
	List(filter ListFilter) ([]*paymentmodel.Payment, int64, error)
}

// StatusUpdate carries the mutable columns of a transition.
type StatusUpdate struct {
	Status            paymentmodel.Status
	GatewayResponse   *string
	AuthorizationCode *string
	CompletedAt       *time.Time
}

// LedgerAppender is the slice of the ledger service the state machine needs.
type LedgerAppender interface {
	Append(paymentID int64, entryType ledgermodel.EntryType, amount decimal.Decimal, status paymentmodel.Status, description string) (*ledgermodel.Entry, error)
	EntriesFor(paymentID int64) ([]*ledgermodel.Entry, error)
}

// Service owns the payment state machine: every status change flows through
// here, is checked against the transition table, and produces exactly one
// ledger entry.
type Service struct {
	repository Repository
	ledger     LedgerAppender
	authorizer gateway.Authorizer
	eventBus   *events.EventBus
	logger     *slog.Logger
}

func NewService(repository Repository, ledger LedgerAppender, authorizer gateway.Authorizer, eventBus *events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repository: repository,
		ledger:     ledger,
		authorizer: authorizer,
		eventBus:   eventBus,
		logger:     logger,
	}
}

func generateTransactionID() string {
	return fmt.Sprintf("TXN%010d", rand.Int63n(10000000000))
}

// AuthorizeAndSettle creates a PENDING payment, runs the gateway
// authorization and settles to COMPLETED or FAILED. The charge path
// produces exactly two ledger entries: the PENDING origin and the outcome.
func (s *Service) AuthorizeAndSettle(ctx context.Context, req *ChargeRequest) (*paymentmodel.Payment, error) {
	p := &paymentmodel.Payment{
		OrderID:       req.OrderID,
		UserID:        req.UserID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		PaymentMethod: paymentmodel.Method(req.PaymentMethod),
		Status:        paymentmodel.StatusPending,
		TransactionID: generateTransactionID(),
		Reference:     req.Reference,
	}

	if err := s.repository.Create(p); err != nil {
		if appErr, ok := errors.IsAppError(err); ok {
			s.logger.Warn("payment creation rejected", "order_id", req.OrderID, "code", appErr.Code)
			return nil, err
		}
		s.logger.Error("failed to create payment", "error", err, "order_id", req.OrderID)
		return nil, errors.NewInternalError("failed to create payment", err)
	}

	if _, err := s.ledger.Append(p.PaymentID, ledgermodel.EntryTypePayment, p.Amount, paymentmodel.StatusPending,
		fmt.Sprintf("Payment initiated via %s", p.PaymentMethod)); err != nil {
		return nil, err
	}

	s.eventBus.Publish(ctx, events.NewPaymentCreatedEvent(p.PaymentID, p.OrderID, p.UserID, p.Amount, p.Currency, string(p.PaymentMethod)))

	s.logger.Info("payment created",
		"payment_id", p.PaymentID,
		"order_id", p.OrderID,
		"transaction_id", p.TransactionID,
		"amount", p.Amount)

	result, err := s.authorizer.Authorize(ctx, gateway.AuthorizationRequest{
		OrderID:       p.OrderID,
		UserID:        p.UserID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		PaymentMethod: string(p.PaymentMethod),
		TransactionID: p.TransactionID,
	})
	if err != nil {
		s.logger.Error("gateway authorization errored, failing payment", "error", err, "payment_id", p.PaymentID)
		message := "Gateway unavailable"
		return s.settle(ctx, p, paymentmodel.StatusFailed, &message, nil)
	}

	if result.Decision == gateway.DecisionAuthorized {
		return s.settle(ctx, p, paymentmodel.StatusCompleted, &result.GatewayMessage, &result.AuthorizationCode)
	}
	return s.settle(ctx, p, paymentmodel.StatusFailed, &result.GatewayMessage, nil)
}

func (s *Service) settle(ctx context.Context, p *paymentmodel.Payment, target paymentmodel.Status, gatewayResponse, authCode *string) (*paymentmodel.Payment, error) {
	update := StatusUpdate{
		Status:            target,
		GatewayResponse:   gatewayResponse,
		AuthorizationCode: authCode,
	}
	if target == paymentmodel.StatusCompleted {
		now := time.Now()
		update.CompletedAt = &now
	}

	if err := s.repository.UpdateStatus(p.PaymentID, update); err != nil {
		s.logger.Error("failed to settle payment", "error", err, "payment_id", p.PaymentID, "target", target)
		return nil, errors.NewInternalError("failed to settle payment", err)
	}

	if _, err := s.ledger.Append(p.PaymentID, ledgermodel.EntryTypePayment, p.Amount, target,
		fmt.Sprintf("Status changed from %s to %s", p.Status, target)); err != nil {
		return nil, err
	}

	s.eventBus.Publish(ctx, events.NewPaymentStatusChangedEvent(p.PaymentID, string(p.Status), string(target), p.Amount))

	s.logger.Info("payment settled",
		"payment_id", p.PaymentID,
		"from_status", p.Status,
		"to_status", target)

	fresh, err := s.repository.GetByID(p.PaymentID)
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

// UpdateStatus applies an externally requested transition after checking it
// against the transition table. A REFUNDED target is a full refund of a
// COMPLETED payment and records a REFUND ledger entry, same as the refund
// endpoint.
func (s *Service) UpdateStatus(ctx context.Context, paymentID int64, target paymentmodel.Status, gatewayResponse *string) (*paymentmodel.Payment, error) {
	p, err := s.repository.GetByID(paymentID)
	if err != nil {
		return nil, err
	}

	if !p.Status.CanTransitionTo(target) {
		s.logger.Warn("illegal status transition requested",
			"payment_id", paymentID,
			"from_status", p.Status,
			"to_status", target)
		return nil, errors.ErrIllegalTransition
	}

	update := StatusUpdate{
		Status:          target,
		GatewayResponse: gatewayResponse,
	}
	if target == paymentmodel.StatusCompleted && p.CompletedAt == nil {
		now := time.Now()
		update.CompletedAt = &now
	}

	if err := s.repository.UpdateStatus(paymentID, update); err != nil {
		return nil, errors.NewInternalError("failed to update payment status", err)
	}

	entryType := ledgermodel.EntryTypePayment
	if target == paymentmodel.StatusRefunded {
		entryType = ledgermodel.EntryTypeRefund
	}
	if _, err := s.ledger.Append(paymentID, entryType, p.Amount, target,
		fmt.Sprintf("Status changed from %s to %s", p.Status, target)); err != nil {
		return nil, err
	}

	if target == paymentmodel.StatusRefunded {
		reason := "Full refund via status update"
		if gatewayResponse != nil {
			reason = *gatewayResponse
		}
		s.eventBus.Publish(ctx, events.NewPaymentRefundedEvent(paymentID, p.Amount, reason))
	} else {
		s.eventBus.Publish(ctx, events.NewPaymentStatusChangedEvent(paymentID, string(p.Status), string(target), p.Amount))
	}

	s.logger.Info("payment status updated",
		"payment_id", paymentID,
		"from_status", p.Status,
		"to_status", target)

	return s.repository.GetByID(paymentID)
}

// Refund moves a COMPLETED payment to REFUNDED. A missing amount refunds
// the full payment; partial amounts are allowed up to the original amount.
// Returns the updated payment and the effective refund amount.
func (s *Service) Refund(ctx context.Context, paymentID int64, amount *decimal.Decimal, reason string) (*paymentmodel.Payment, decimal.Decimal, error) {
	p, err := s.repository.GetByID(paymentID)
	if err != nil {
		return nil, decimal.Zero, err
	}

	if p.Status != paymentmodel.StatusCompleted {
		s.logger.Warn("refund rejected: payment not completed",
			"payment_id", paymentID,
			"status", p.Status)
		return nil, decimal.Zero, errors.ErrIneligibleForRefund
	}

	refundAmount := p.Amount
	if amount != nil {
		refundAmount = amount.RoundBank(2)
	}

	if refundAmount.GreaterThan(p.Amount) {
		s.logger.Warn("refund rejected: amount exceeds payment",
			"payment_id", paymentID,
			"refund_amount", refundAmount,
			"payment_amount", p.Amount)
		return nil, decimal.Zero, errors.ErrAmountExceedsPayment
	}

	gatewayResponse := fmt.Sprintf("Refund: %s", reason)
	if err := s.repository.UpdateStatus(paymentID, StatusUpdate{
		Status:          paymentmodel.StatusRefunded,
		GatewayResponse: &gatewayResponse,
	}); err != nil {
		return nil, decimal.Zero, errors.NewInternalError("failed to refund payment", err)
	}

	if _, err := s.ledger.Append(paymentID, ledgermodel.EntryTypeRefund, refundAmount, paymentmodel.StatusRefunded,
		fmt.Sprintf("Refund of %s %s: %s", refundAmount.StringFixed(2), p.Currency, reason)); err != nil {
		return nil, decimal.Zero, err
	}

	s.eventBus.Publish(ctx, events.NewPaymentRefundedEvent(paymentID, refundAmount, reason))

	s.logger.Info("payment refunded",
		"payment_id", paymentID,
		"refund_amount", refundAmount,
		"currency", p.Currency)

	fresh, err := s.repository.GetByID(paymentID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	return fresh, refundAmount, nil
}

// Cancel moves a PENDING or PROCESSING payment to CANCELLED.
func (s *Service) Cancel(ctx context.Context, paymentID int64) (*paymentmodel.Payment, error) {
	p, err := s.repository.GetByID(paymentID)
	if err != nil {
		return nil, err
	}

	if !p.Status.Cancellable() {
		s.logger.Warn("cancel rejected",
			"payment_id", paymentID,
			"status", p.Status)
		return nil, errors.ErrIllegalTransition
	}

	if err := s.repository.UpdateStatus(paymentID, StatusUpdate{Status: paymentmodel.StatusCancelled}); err != nil {
		return nil, errors.NewInternalError("failed to cancel payment", err)
	}

	if _, err := s.ledger.Append(paymentID, ledgermodel.EntryTypePayment, p.Amount, paymentmodel.StatusCancelled,
		"Payment cancelled by user"); err != nil {
		return nil, err
	}

	s.eventBus.Publish(ctx, events.NewPaymentStatusChangedEvent(paymentID, string(p.Status), string(paymentmodel.StatusCancelled), p.Amount))

	s.logger.Info("payment cancelled", "payment_id", paymentID)

	return s.repository.GetByID(paymentID)
}

func (s *Service) GetByID(paymentID int64) (*paymentmodel.Payment, error) {
	return s.repository.GetByID(paymentID)
}

func (s *Service) GetByOrderID(orderID int64) (*paymentmodel.Payment, error) {
	return s.repository.GetByOrderID(orderID)
}

func (s *Service) GetByTransactionID(transactionID string) (*paymentmodel.Payment, error) {
	return s.repository.GetByTransactionID(transactionID)
}

func (s *Service) List(filter ListFilter) ([]*paymentmodel.Payment, int64, error) {
	filter.Normalize()
	return s.repository.List(filter)
}

// EntriesFor exposes the ledger trail for response building.
func (s *Service) EntriesFor(paymentID int64) ([]*ledgermodel.Entry, error) {
	return s.ledger.EntriesFor(paymentID)
}
