package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventTypePaymentCreated       = "payment.created"
	EventTypePaymentStatusChanged = "payment.status_changed"
	EventTypePaymentRefunded      = "payment.refunded"
)

type PaymentCreatedEvent struct {
	BaseEvent
	PaymentID     int64           `json:"payment_id"`
	OrderID       int64           `json:"order_id"`
	UserID        int64           `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentMethod string          `json:"payment_method"`
}

func NewPaymentCreatedEvent(paymentID, orderID, userID int64, amount decimal.Decimal, currency, method string) *PaymentCreatedEvent {
	return &PaymentCreatedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentCreated,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id":     paymentID,
				"order_id":       orderID,
				"user_id":        userID,
				"amount":         amount.String(),
				"currency":       currency,
				"payment_method": method,
			},
		},
		PaymentID:     paymentID,
		OrderID:       orderID,
		UserID:        userID,
		Amount:        amount,
		Currency:      currency,
		PaymentMethod: method,
	}
}

type PaymentStatusChangedEvent struct {
	BaseEvent
	PaymentID  int64           `json:"payment_id"`
	FromStatus string          `json:"from_status"`
	ToStatus   string          `json:"to_status"`
	Amount     decimal.Decimal `json:"amount"`
}

func NewPaymentStatusChangedEvent(paymentID int64, fromStatus, toStatus string, amount decimal.Decimal) *PaymentStatusChangedEvent {
	return &PaymentStatusChangedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentStatusChanged,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id":  paymentID,
				"from_status": fromStatus,
				"to_status":   toStatus,
				"amount":      amount.String(),
			},
		},
		PaymentID:  paymentID,
		FromStatus: fromStatus,
		ToStatus:   toStatus,
		Amount:     amount,
	}
}

type PaymentRefundedEvent struct {
	BaseEvent
	PaymentID    int64           `json:"payment_id"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
	Reason       string          `json:"reason"`
}

func NewPaymentRefundedEvent(paymentID int64, refundAmount decimal.Decimal, reason string) *PaymentRefundedEvent {
	return &PaymentRefundedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentRefunded,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id":    paymentID,
				"refund_amount": refundAmount.String(),
				"reason":        reason,
			},
		},
		PaymentID:    paymentID,
		RefundAmount: refundAmount,
		Reason:       reason,
	}
}
