package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusRefunded   Status = "REFUNDED"
	StatusCancelled  Status = "CANCELLED"
)

type Method string

const (
	MethodCreditCard Method = "CREDIT_CARD"
	MethodDebitCard  Method = "DEBIT_CARD"
	MethodUPI        Method = "UPI"
	MethodNetBanking Method = "NET_BANKING"
	MethodWallet     Method = "WALLET"
	MethodCOD        Method = "COD"
)

// MaxAmount is the upper bound for a single charge, inclusive.
var MaxAmount = decimal.NewFromInt(100000)

// allowedTransitions is the single source of truth for legal status moves.
// FAILED, CANCELLED and REFUNDED are terminal; COMPLETED is terminal except
// for the refund transition.
var allowedTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted:  {StatusRefunded},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusRefunded, StatusCancelled:
		return true
	}
	return false
}

func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range allowedTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return len(allowedTransitions[s]) == 0
}

// Cancellable reports whether a payment in this status may still be
// cancelled. Only PENDING and PROCESSING qualify.
func (s Status) Cancellable() bool {
	return s == StatusPending || s == StatusProcessing
}

func (m Method) Valid() bool {
	switch m {
	case MethodCreditCard, MethodDebitCard, MethodUPI, MethodNetBanking, MethodWallet, MethodCOD:
		return true
	}
	return false
}

// Payment is the unit of charge. OrderID carries a unique index so the
// storage layer, not application code, enforces one payment per order even
// under concurrent creation attempts.
type Payment struct {
	PaymentID         int64           `gorm:"primaryKey;column:payment_id"`
	OrderID           int64           `gorm:"column:order_id;not null;uniqueIndex"`
	UserID            int64           `gorm:"column:user_id;not null;index"`
	Amount            decimal.Decimal `gorm:"column:amount;type:decimal(12,2);not null"`
	Currency          string          `gorm:"column:currency;size:3;default:INR"`
	PaymentMethod     Method          `gorm:"column:payment_method;not null"`
	Status            Status          `gorm:"column:status;default:PENDING;index"`
	TransactionID     string          `gorm:"column:transaction_id;size:50;uniqueIndex"`
	Reference         *string         `gorm:"column:reference;size:100;uniqueIndex"`
	AuthorizationCode *string         `gorm:"column:authorization_code;size:50"`
	GatewayResponse   *string         `gorm:"column:gateway_response;size:500"`
	CreatedAt         time.Time       `gorm:"column:created_at"`
	UpdatedAt         time.Time       `gorm:"column:updated_at"`
	CompletedAt       *time.Time      `gorm:"column:completed_at"`
}

func (Payment) TableName() string {
	return "payments"
}
