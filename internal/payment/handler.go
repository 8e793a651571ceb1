package payment

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/shopspring/decimal"

	errors "github.com/Infantselva015/eci-payment-service/internal"
	paymentmodel "github.com/Infantselva015/eci-payment-service/internal/core/datamodel/payment"
	"github.com/Infantselva015/eci-payment-service/internal/transport"
	"github.com/Infantselva015/eci-payment-service/pkg/logger"
)

// IdempotencyKeyHeader carries the client-chosen dedup key for charges.
const IdempotencyKeyHeader = "Idempotency-Key"

type OrchestratorAPI interface {
	Charge(ctx context.Context, idempotencyKey string, req *ChargeRequest) (*ChargeResult, error)
	Refund(ctx context.Context, paymentID int64, req *RefundRequest) (*PaymentResponse, decimal.Decimal, error)
	Cancel(ctx context.Context, paymentID int64) (*PaymentResponse, error)
	UpdateStatus(ctx context.Context, paymentID int64, req *StatusUpdateRequest) (*PaymentResponse, error)
	GetByID(paymentID int64) (*PaymentResponse, error)
	GetByOrderID(orderID int64) (*PaymentResponse, error)
	GetByTransactionID(transactionID string) (*PaymentResponse, error)
	List(filter ListFilter) (*PaginatedResponse, error)
}

type Handler struct {
	*transport.BaseHandler
	Orchestrator OrchestratorAPI
}

func NewHandler(orchestrator OrchestratorAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler:  transport.NewBaseHandler(lg),
		Orchestrator: orchestrator,
	}
}

func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	idempotencyKey := r.Header.Get(IdempotencyKeyHeader)
	if idempotencyKey == "" {
		h.Logger.Warn("CreatePayment: missing idempotency key")
		h.HandleError(w, errors.NewValidationError("Idempotency-Key header is required", errors.ErrCodeMissingIdemKey))
		return
	}

	var req ChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("CreatePayment: invalid request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	result, err := h.Orchestrator.Charge(r.Context(), idempotencyKey, &req)
	if err != nil {
		h.Logger.Warn("CreatePayment: charge failed", "error", err, "order_id", req.OrderID)
		h.HandleServiceError(w, err)
		return
	}

	if result.Replayed {
		h.Logger.Info("CreatePayment: replayed cached response",
			"order_id", req.OrderID,
			"status", result.StatusCode)
	} else {
		h.Logger.Info("CreatePayment: payment charged",
			"order_id", req.OrderID,
			"status", result.StatusCode)
	}

	h.WriteRaw(w, result.StatusCode, result.Body)
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := h.paymentIDParam(w, r)
	if !ok {
		return
	}

	resp, err := h.Orchestrator.GetByID(paymentID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetPaymentByOrder(w http.ResponseWriter, r *http.Request) {
	orderIDStr := chi.URLParam(r, "orderID")
	orderID, err := strconv.ParseInt(orderIDStr, 10, 64)
	if err != nil {
		h.Logger.Error("GetPaymentByOrder: invalid order ID", "order_id", orderIDStr)
		h.HandleError(w, errors.NewValidationError("invalid order ID", errors.ErrCodeValidationFailed))
		return
	}

	resp, err := h.Orchestrator.GetByOrderID(orderID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetPaymentByTransaction(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionID")
	if transactionID == "" {
		h.HandleError(w, errors.NewValidationError("invalid transaction ID", errors.ErrCodeValidationFailed))
		return
	}

	resp, err := h.Orchestrator.GetByTransactionID(transactionID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := ListFilter{
		Status:        paymentmodel.Status(query.Get("status")),
		PaymentMethod: paymentmodel.Method(query.Get("payment_method")),
	}
	if userIDStr := query.Get("user_id"); userIDStr != "" {
		userID, err := strconv.ParseInt(userIDStr, 10, 64)
		if err != nil {
			h.HandleError(w, errors.NewValidationError("invalid user_id filter", errors.ErrCodeValidationFailed))
			return
		}
		filter.UserID = userID
	}
	if pageStr := query.Get("page"); pageStr != "" {
		filter.Page, _ = strconv.Atoi(pageStr)
	}
	if pageSizeStr := query.Get("page_size"); pageSizeStr != "" {
		filter.PageSize, _ = strconv.Atoi(pageSizeStr)
	}

	if filter.Status != "" && !filter.Status.Valid() {
		h.HandleError(w, errors.NewValidationError("unknown payment status filter", errors.ErrCodeValidationFailed))
		return
	}
	if filter.PaymentMethod != "" && !filter.PaymentMethod.Valid() {
		h.HandleError(w, errors.NewValidationError("unknown payment method filter", errors.ErrCodeInvalidMethod))
		return
	}

	resp, err := h.Orchestrator.List(filter)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := h.paymentIDParam(w, r)
	if !ok {
		return
	}

	var req StatusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("UpdatePaymentStatus: invalid request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	resp, err := h.Orchestrator.UpdateStatus(r.Context(), paymentID, &req)
	if err != nil {
		h.Logger.Warn("UpdatePaymentStatus: transition failed",
			"error", err,
			"payment_id", paymentID,
			"target_status", req.Status)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("UpdatePaymentStatus: status updated",
		"payment_id", paymentID,
		"status", resp.Status)

	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := h.paymentIDParam(w, r)
	if !ok {
		return
	}

	var req RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("RefundPayment: invalid request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	resp, refundAmount, err := h.Orchestrator.Refund(r.Context(), paymentID, &req)
	if err != nil {
		h.Logger.Warn("RefundPayment: refund failed", "error", err, "payment_id", paymentID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("RefundPayment: payment refunded",
		"payment_id", paymentID,
		"refund_amount", refundAmount)

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message":       "Payment refunded successfully",
		"refund_amount": refundAmount,
		"payment":       resp,
	})
}

func (h *Handler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := h.paymentIDParam(w, r)
	if !ok {
		return
	}

	resp, err := h.Orchestrator.Cancel(r.Context(), paymentID)
	if err != nil {
		h.Logger.Warn("CancelPayment: cancel failed", "error", err, "payment_id", paymentID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("CancelPayment: payment cancelled", "payment_id", paymentID)

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Payment cancelled successfully",
		"payment": resp,
	})
}

func (h *Handler) paymentIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	idStr := chi.URLParam(r, "id")
	paymentID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.Logger.Error("invalid payment ID", "id", idStr)
		h.HandleError(w, errors.NewValidationError("invalid payment ID", errors.ErrCodeValidationFailed))
		return 0, false
	}
	return paymentID, true
}
