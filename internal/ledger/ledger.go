package ledger

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/Infantselva015/eci-payment-service/internal/core/datamodel/ledger"
	"github.com/Infantselva015/eci-payment-service/internal/core/datamodel/payment"
)

// Repository interface for ledger database operations. Entries are insert
// only; there is deliberately no update or delete.
type Repository interface {
	Insert(entry *ledger.Entry) error
	ListByPaymentID(paymentID int64) ([]*ledger.Entry, error)
}

// Service records one audit entry per payment state transition.
type Service struct {
	repository Repository
	logger     *slog.Logger
}

func NewService(repository Repository, logger *slog.Logger) *Service {
	return &Service{
		repository: repository,
		logger:     logger,
	}
}

// Append writes an immutable entry for a transition. It only fails on
// storage unavailability.
func (s *Service) Append(paymentID int64, entryType ledger.EntryType, amount decimal.Decimal, status payment.Status, description string) (*ledger.Entry, error) {
	entry := &ledger.Entry{
		PaymentID:   paymentID,
		EntryType:   entryType,
		Amount:      amount,
		Status:      status,
		Description: description,
	}

	if err := s.repository.Insert(entry); err != nil {
		s.logger.Error("failed to append ledger entry", "error", err, "payment_id", paymentID, "entry_type", entryType)
		return nil, fmt.Errorf("failed to append ledger entry: %w", err)
	}

	s.logger.Info("ledger entry appended",
		"entry_id", entry.EntryID,
		"payment_id", paymentID,
		"entry_type", entryType,
		"status", status)
	return entry, nil
}

// EntriesFor returns the audit trail for a payment ordered by creation time
// ascending.
func (s *Service) EntriesFor(paymentID int64) ([]*ledger.Entry, error) {
	entries, err := s.repository.ListByPaymentID(paymentID)
	if err != nil {
		s.logger.Error("failed to list ledger entries", "error", err, "payment_id", paymentID)
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return entries, nil
}
