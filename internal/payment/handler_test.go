package payment_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	apperrors "github.com/Infantselva015/eci-payment-service/internal"
	paymentpkg "github.com/Infantselva015/eci-payment-service/internal/payment"
)

type mockOrchestrator struct {
	chargeResult *paymentpkg.ChargeResult
	chargeError  error
	response     *paymentpkg.PaymentResponse
	getError     error
	lastKey      string
	lastRequest  *paymentpkg.ChargeRequest
}

func (m *mockOrchestrator) Charge(ctx context.Context, idempotencyKey string, req *paymentpkg.ChargeRequest) (*paymentpkg.ChargeResult, error) {
	m.lastKey = idempotencyKey
	m.lastRequest = req
	if m.chargeError != nil {
		return nil, m.chargeError
	}
	return m.chargeResult, nil
}

func (m *mockOrchestrator) Refund(ctx context.Context, paymentID int64, req *paymentpkg.RefundRequest) (*paymentpkg.PaymentResponse, decimal.Decimal, error) {
	if m.getError != nil {
		return nil, decimal.Zero, m.getError
	}
	return m.response, decimal.NewFromFloat(99.99), nil
}

func (m *mockOrchestrator) Cancel(ctx context.Context, paymentID int64) (*paymentpkg.PaymentResponse, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	return m.response, nil
}

func (m *mockOrchestrator) UpdateStatus(ctx context.Context, paymentID int64, req *paymentpkg.StatusUpdateRequest) (*paymentpkg.PaymentResponse, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	return m.response, nil
}

func (m *mockOrchestrator) GetByID(paymentID int64) (*paymentpkg.PaymentResponse, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	return m.response, nil
}

func (m *mockOrchestrator) GetByOrderID(orderID int64) (*paymentpkg.PaymentResponse, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	return m.response, nil
}

func (m *mockOrchestrator) GetByTransactionID(transactionID string) (*paymentpkg.PaymentResponse, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	return m.response, nil
}

func (m *mockOrchestrator) List(filter paymentpkg.ListFilter) (*paymentpkg.PaginatedResponse, error) {
	return &paymentpkg.PaginatedResponse{Page: 1, PageSize: 10}, nil
}

var _ = Describe("PaymentHandler", func() {
	var (
		handler      *paymentpkg.Handler
		orchestrator *mockOrchestrator
		router       *chi.Mux
	)

	BeforeEach(func() {
		orchestrator = &mockOrchestrator{
			chargeResult: &paymentpkg.ChargeResult{
				StatusCode: http.StatusCreated,
				Body:       []byte(`{"payment_id":1,"status":"COMPLETED"}`),
			},
			response: &paymentpkg.PaymentResponse{PaymentID: 1, OrderID: 1001, Status: "COMPLETED"},
		}
		handler = paymentpkg.NewHandler(orchestrator)

		router = chi.NewRouter()
		router.Post("/payments", handler.CreatePayment)
		router.Get("/payments", handler.ListPayments)
		router.Get("/payments/{id}", handler.GetPayment)
		router.Get("/payments/order/{orderID}", handler.GetPaymentByOrder)
		router.Get("/payments/transaction/{transactionID}", handler.GetPaymentByTransaction)
		router.Patch("/payments/{id}/status", handler.UpdatePaymentStatus)
		router.Post("/payments/{id}/refund", handler.RefundPayment)
		router.Delete("/payments/{id}", handler.CancelPayment)
	})

	chargeBody := func() *bytes.Buffer {
		body, _ := json.Marshal(map[string]interface{}{
			"order_id":       1001,
			"user_id":        42,
			"amount":         "499.99",
			"payment_method": "UPI",
		})
		return bytes.NewBuffer(body)
	}

	Describe("CreatePayment", func() {
		It("should require the Idempotency-Key header", func() {
			req := httptest.NewRequest(http.MethodPost, "/payments", chargeBody())
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))

			var resp apperrors.Response
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Error.Code).To(Equal(apperrors.ErrCodeMissingIdemKey))
		})

		It("should pass the key and body to the orchestrator", func() {
			req := httptest.NewRequest(http.MethodPost, "/payments", chargeBody())
			req.Header.Set("Idempotency-Key", "client-key-1")
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusCreated))
			Expect(orchestrator.lastKey).To(Equal("client-key-1"))
			Expect(orchestrator.lastRequest.OrderID).To(Equal(int64(1001)))
		})

		It("should write the orchestrator body verbatim", func() {
			orchestrator.chargeResult = &paymentpkg.ChargeResult{
				StatusCode: http.StatusCreated,
				Body:       []byte(`{"payment_id":7,"status":"FAILED"}`),
				Replayed:   true,
			}

			req := httptest.NewRequest(http.MethodPost, "/payments", chargeBody())
			req.Header.Set("Idempotency-Key", "client-key-1")
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusCreated))
			Expect(rec.Body.String()).To(Equal(`{"payment_id":7,"status":"FAILED"}`))
		})

		It("should reject malformed JSON", func() {
			req := httptest.NewRequest(http.MethodPost, "/payments", bytes.NewBufferString("{not json"))
			req.Header.Set("Idempotency-Key", "client-key-1")
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should map key reuse to a conflict", func() {
			orchestrator.chargeError = apperrors.ErrIdempotencyKeyReuse

			req := httptest.NewRequest(http.MethodPost, "/payments", chargeBody())
			req.Header.Set("Idempotency-Key", "client-key-1")
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusConflict))

			var resp apperrors.Response
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Error.Code).To(Equal(apperrors.ErrCodeIdempotencyKeyReuse))
		})
	})

	Describe("GetPayment", func() {
		It("should reject non-numeric IDs", func() {
			req := httptest.NewRequest(http.MethodGet, "/payments/abc", nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should map not found to 404", func() {
			orchestrator.getError = apperrors.ErrPaymentNotFound

			req := httptest.NewRequest(http.MethodGet, "/payments/99", nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusNotFound))

			var resp apperrors.Response
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Error.Code).To(Equal(apperrors.ErrCodePaymentNotFound))
		})

		It("should return the payment", func() {
			req := httptest.NewRequest(http.MethodGet, "/payments/1", nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))

			var resp paymentpkg.PaymentResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.PaymentID).To(Equal(int64(1)))
		})
	})

	Describe("ListPayments", func() {
		It("should reject unknown status filters", func() {
			req := httptest.NewRequest(http.MethodGet, "/payments?status=SHIPPED", nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should accept valid filters", func() {
			req := httptest.NewRequest(http.MethodGet, "/payments?status=COMPLETED&payment_method=UPI&user_id=42", nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
		})
	})

	Describe("RefundPayment", func() {
		It("should return the refund amount", func() {
			body, _ := json.Marshal(map[string]interface{}{"reason": "customer returned item"})
			req := httptest.NewRequest(http.MethodPost, "/payments/1/refund", bytes.NewBuffer(body))
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))

			var resp map[string]json.RawMessage
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp).To(HaveKey("refund_amount"))
			Expect(resp).To(HaveKey("payment"))
		})

		It("should map ineligible refunds to 400", func() {
			orchestrator.getError = apperrors.ErrIneligibleForRefund

			body, _ := json.Marshal(map[string]interface{}{"reason": "customer returned item"})
			req := httptest.NewRequest(http.MethodPost, "/payments/1/refund", bytes.NewBuffer(body))
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("CancelPayment", func() {
		It("should cancel and return the payment", func() {
			req := httptest.NewRequest(http.MethodDelete, "/payments/1", nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
		})
	})
})
