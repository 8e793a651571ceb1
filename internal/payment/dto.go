package payment

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	errors "github.com/Infantselva015/eci-payment-service/internal"
	"github.com/Infantselva015/eci-payment-service/internal/core/common/validation"
	ledgermodel "github.com/Infantselva015/eci-payment-service/internal/core/datamodel/ledger"
	paymentmodel "github.com/Infantselva015/eci-payment-service/internal/core/datamodel/payment"
)

// ChargeRequest is the charge boundary payload. Reference is the only
// optional field; everything else participates in the idempotency
// fingerprint.
type ChargeRequest struct {
	OrderID       int64           `json:"order_id"`
	UserID        int64           `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentMethod string          `json:"payment_method"`
	Reference     *string         `json:"reference,omitempty"`
}

func (r *ChargeRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("order_id", r.OrderID).Required().PositiveInt(errors.ErrCodeValidationFailed)
	validator.Field("user_id", r.UserID).Required().PositiveInt(errors.ErrCodeValidationFailed)
	validator.Field("amount", r.Amount).
		PositiveDecimal(errors.ErrCodeInvalidAmount).
		MaxDecimal(paymentmodel.MaxAmount, errors.ErrCodeAmountTooHigh)
	if r.Currency != "" {
		validator.Field("currency", r.Currency).MaxLength(3).MinLength(3)
	}
	validator.Field("payment_method", r.PaymentMethod).Required().Custom(func(v interface{}) *errors.AppError {
		if method, ok := v.(string); ok && method != "" {
			if !paymentmodel.Method(method).Valid() {
				return errors.NewValidationFieldError("payment_method", "unknown payment method", errors.ErrCodeInvalidMethod)
			}
		}
		return nil
	})

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// Normalize applies banker's rounding to the amount and defaults the
// currency. Must run before fingerprinting so retried requests hash
// identically. A blank reference is treated as absent; only non-empty
// references are subject to the uniqueness constraint.
func (r *ChargeRequest) Normalize() {
	r.Amount = r.Amount.RoundBank(2)
	if r.Currency == "" {
		r.Currency = "INR"
	}
	if r.Reference != nil && strings.TrimSpace(*r.Reference) == "" {
		r.Reference = nil
	}
}

func (r *ChargeRequest) ReferenceValue() string {
	if r.Reference == nil {
		return ""
	}
	return *r.Reference
}

type RefundRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Reason string           `json:"reason"`
}

func (r *RefundRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("reason", r.Reason).Required().MinLength(5).MaxLength(500)
	if r.Amount != nil {
		validator.Field("amount", *r.Amount).PositiveDecimal(errors.ErrCodeInvalidAmount)
	}

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type StatusUpdateRequest struct {
	Status          string  `json:"status"`
	GatewayResponse *string `json:"gateway_response,omitempty"`
}

func (r *StatusUpdateRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("status", r.Status).Required().Custom(func(v interface{}) *errors.AppError {
		if status, ok := v.(string); ok && status != "" {
			if !paymentmodel.Status(status).Valid() {
				return errors.NewValidationFieldError("status", "unknown payment status", errors.ErrCodeValidationFailed)
			}
		}
		return nil
	})

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type LedgerEntryResponse struct {
	EntryID     int64           `json:"entry_id"`
	EntryType   string          `json:"entry_type"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

type PaymentResponse struct {
	PaymentID         int64                 `json:"payment_id"`
	OrderID           int64                 `json:"order_id"`
	UserID            int64                 `json:"user_id"`
	Amount            decimal.Decimal       `json:"amount"`
	Currency          string                `json:"currency"`
	PaymentMethod     string                `json:"payment_method"`
	Status            string                `json:"status"`
	TransactionID     string                `json:"transaction_id"`
	Reference         *string               `json:"reference,omitempty"`
	AuthorizationCode *string               `json:"authorization_code,omitempty"`
	GatewayResponse   *string               `json:"gateway_response,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
	CompletedAt       *time.Time            `json:"completed_at,omitempty"`
	Transactions      []LedgerEntryResponse `json:"transactions"`
}

func NewPaymentResponse(p *paymentmodel.Payment, entries []*ledgermodel.Entry) PaymentResponse {
	resp := PaymentResponse{
		PaymentID:         p.PaymentID,
		OrderID:           p.OrderID,
		UserID:            p.UserID,
		Amount:            p.Amount,
		Currency:          p.Currency,
		PaymentMethod:     string(p.PaymentMethod),
		Status:            string(p.Status),
		TransactionID:     p.TransactionID,
		Reference:         p.Reference,
		AuthorizationCode: p.AuthorizationCode,
		GatewayResponse:   p.GatewayResponse,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
		CompletedAt:       p.CompletedAt,
		Transactions:      make([]LedgerEntryResponse, 0, len(entries)),
	}

	for _, entry := range entries {
		resp.Transactions = append(resp.Transactions, LedgerEntryResponse{
			EntryID:     entry.EntryID,
			EntryType:   string(entry.EntryType),
			Amount:      entry.Amount,
			Status:      string(entry.Status),
			Description: entry.Description,
			CreatedAt:   entry.CreatedAt,
		})
	}

	return resp
}

type PaginatedResponse struct {
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Payments []PaymentResponse `json:"payments"`
}

// ListFilter narrows the payment listing. Zero values mean "no filter".
type ListFilter struct {
	Status        paymentmodel.Status
	PaymentMethod paymentmodel.Method
	UserID        int64
	Page          int
	PageSize      int
}

func (f *ListFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 10
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}
}
