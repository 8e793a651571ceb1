package postgres

import (
	"gorm.io/gorm"

	"github.com/Infantselva015/eci-payment-service/internal/core/datamodel/ledger"
	ledgerpkg "github.com/Infantselva015/eci-payment-service/internal/ledger"
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) ledgerpkg.Repository {
	return &LedgerRepository{
		db: db,
	}
}

func (r *LedgerRepository) Insert(entry *ledger.Entry) error {
	return r.db.Create(entry).Error
}

func (r *LedgerRepository) ListByPaymentID(paymentID int64) ([]*ledger.Entry, error) {
	var entries []*ledger.Entry
	err := r.db.Where("payment_id = ?", paymentID).Order("created_at ASC, entry_id ASC").Find(&entries).Error
	return entries, err
}
