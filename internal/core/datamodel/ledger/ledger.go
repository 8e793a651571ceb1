package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Infantselva015/eci-payment-service/internal/core/datamodel/payment"
)

type EntryType string

const (
	EntryTypePayment EntryType = "PAYMENT"
	EntryTypeRefund  EntryType = "REFUND"
)

// Entry is an immutable audit record. One row is written per status
// transition and never updated or deleted afterwards.
type Entry struct {
	EntryID     int64           `gorm:"primaryKey;column:entry_id"`
	PaymentID   int64           `gorm:"column:payment_id;not null;index"`
	EntryType   EntryType       `gorm:"column:entry_type;not null"`
	Amount      decimal.Decimal `gorm:"column:amount;type:decimal(12,2);not null"`
	Status      payment.Status  `gorm:"column:status;not null"`
	Description string          `gorm:"column:description;size:500"`
	CreatedAt   time.Time       `gorm:"column:created_at"`
}

func (Entry) TableName() string {
	return "ledger_entries"
}
