package postgres

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	apperrors "github.com/Infantselva015/eci-payment-service/internal"
	paymentmodel "github.com/Infantselva015/eci-payment-service/internal/core/datamodel/payment"
	"github.com/Infantselva015/eci-payment-service/internal/payment"
)

// PaymentRepository persists payments through gorm. The one-payment-per-order
// rule is enforced by the unique index on order_id, not in application code;
// the session must be opened with TranslateError so the constraint violation
// arrives as gorm.ErrDuplicatedKey.
type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(p *paymentmodel.Payment) error {
	if err := r.db.Create(p).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return r.duplicateError(p, err)
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// duplicateError works out which unique index rejected the insert. gorm
// translates every constraint violation to the same ErrDuplicatedKey, so we
// look up the existing row on each candidate column instead.
func (r *PaymentRepository) duplicateError(p *paymentmodel.Payment, cause error) error {
	var count int64
	if err := r.db.Model(&paymentmodel.Payment{}).
		Where("order_id = ?", p.OrderID).
		Count(&count).Error; err == nil && count > 0 {
		return apperrors.ErrDuplicateOrder
	}
	if p.Reference != nil {
		if err := r.db.Model(&paymentmodel.Payment{}).
			Where("reference = ?", *p.Reference).
			Count(&count).Error; err == nil && count > 0 {
			return apperrors.ErrDuplicateReference
		}
	}
	return fmt.Errorf("failed to create payment: %w", cause)
}

func (r *PaymentRepository) GetByID(id int64) (*paymentmodel.Payment, error) {
	var p paymentmodel.Payment
	if err := r.db.First(&p, "payment_id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment by id: %w", err)
	}
	return &p, nil
}

func (r *PaymentRepository) GetByOrderID(orderID int64) (*paymentmodel.Payment, error) {
	var p paymentmodel.Payment
	if err := r.db.First(&p, "order_id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment by order id: %w", err)
	}
	return &p, nil
}

func (r *PaymentRepository) GetByTransactionID(transactionID string) (*paymentmodel.Payment, error) {
	var p paymentmodel.Payment
	if err := r.db.First(&p, "transaction_id = ?", transactionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment by transaction id: %w", err)
	}
	return &p, nil
}

func (r *PaymentRepository) UpdateStatus(id int64, update payment.StatusUpdate) error {
	columns := map[string]interface{}{
		"status": update.Status,
	}
	if update.GatewayResponse != nil {
		columns["gateway_response"] = *update.GatewayResponse
	}
	if update.AuthorizationCode != nil {
		columns["authorization_code"] = *update.AuthorizationCode
	}
	if update.CompletedAt != nil {
		columns["completed_at"] = *update.CompletedAt
	}

	result := r.db.Model(&paymentmodel.Payment{}).
		Where("payment_id = ?", id).
		Updates(columns)
	if result.Error != nil {
		return fmt.Errorf("failed to update payment status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrPaymentNotFound
	}
	return nil
}

func (r *PaymentRepository) List(filter payment.ListFilter) ([]*paymentmodel.Payment, int64, error) {
	query := r.db.Model(&paymentmodel.Payment{})

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.PaymentMethod != "" {
		query = query.Where("payment_method = ?", filter.PaymentMethod)
	}
	if filter.UserID > 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count payments: %w", err)
	}

	var payments []*paymentmodel.Payment
	offset := (filter.Page - 1) * filter.PageSize
	if err := query.
		Order("created_at DESC, payment_id DESC").
		Limit(filter.PageSize).
		Offset(offset).
		Find(&payments).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list payments: %w", err)
	}

	return payments, total, nil
}
