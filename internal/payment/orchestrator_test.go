package payment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	apperrors "github.com/Infantselva015/eci-payment-service/internal"
	idempotencymodel "github.com/Infantselva015/eci-payment-service/internal/core/datamodel/idempotency"
	paymentmodel "github.com/Infantselva015/eci-payment-service/internal/core/datamodel/payment"
	"github.com/Infantselva015/eci-payment-service/internal/core/events"
	"github.com/Infantselva015/eci-payment-service/internal/gateway"
	"github.com/Infantselva015/eci-payment-service/internal/idempotency"
	"github.com/Infantselva015/eci-payment-service/internal/notification"
	paymentpkg "github.com/Infantselva015/eci-payment-service/internal/payment"
)

// In-memory guard with the reserve state machine, enough for driving the
// orchestrator through every branch.
type mockGuard struct {
	records      map[string]*idempotencymodel.Record
	reserveCalls int
	resolveCalls int
	releaseCalls int
}

func newMockGuard() *mockGuard {
	return &mockGuard{records: make(map[string]*idempotencymodel.Record)}
}

func (g *mockGuard) Reserve(key, fingerprint string) (*idempotency.ReserveOutcome, error) {
	g.reserveCalls++
	existing, exists := g.records[key]
	if !exists {
		record := &idempotencymodel.Record{Key: key, RequestFingerprint: fingerprint}
		g.records[key] = record
		return &idempotency.ReserveOutcome{State: idempotency.StateReserved, Record: record}, nil
	}
	if existing.RequestFingerprint != fingerprint {
		return &idempotency.ReserveOutcome{State: idempotency.StateConflict, Record: existing}, nil
	}
	if !existing.Resolved() {
		return &idempotency.ReserveOutcome{State: idempotency.StateInFlight, Record: existing}, nil
	}
	return &idempotency.ReserveOutcome{State: idempotency.StateHit, Record: existing}, nil
}

func (g *mockGuard) Resolve(key string, responseBody []byte, responseStatus int, paymentID *int64) error {
	g.resolveCalls++
	record, exists := g.records[key]
	if !exists {
		return apperrors.NewInternalError("no reservation", nil)
	}
	record.ResponseBody = responseBody
	record.ResponseStatus = responseStatus
	record.PaymentID = paymentID
	return nil
}

func (g *mockGuard) Release(key string) error {
	g.releaseCalls++
	delete(g.records, key)
	return nil
}

// Dispatcher stub capturing enqueued jobs
type mockDispatcher struct {
	mu   sync.Mutex
	jobs []notification.Job
}

func (d *mockDispatcher) Enqueue(job notification.Job) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
}

func (d *mockDispatcher) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = nil
}

func (d *mockDispatcher) jobsFor(name string) []notification.Job {
	d.mu.Lock()
	defer d.mu.Unlock()
	var matched []notification.Job
	for _, job := range d.jobs {
		if job.Collaborator.Name() == name {
			matched = append(matched, job)
		}
	}
	return matched
}

type stubCollaborator struct {
	name string
}

func (c *stubCollaborator) Name() string { return c.name }

func (c *stubCollaborator) Send(ctx context.Context, eventKind notification.EventKind, payload json.RawMessage) (notification.SendResult, error) {
	return notification.SendOk, nil
}

var _ = Describe("ChargeOrchestrator", func() {
	var (
		orchestrator *paymentpkg.Orchestrator
		guard        *mockGuard
		dispatcher   *mockDispatcher
		mockRepo     *mockPaymentRepository
		ledger       *mockLedger
		authorizer   *stubAuthorizer
		ctx          context.Context
	)

	BeforeEach(func() {
		mockRepo = newMockPaymentRepository()
		ledger = newMockLedger()
		authorizer = &stubAuthorizer{decision: gateway.DecisionAuthorized, message: "Payment authorized"}
		guard = newMockGuard()
		dispatcher = &mockDispatcher{}
		eventBus := events.NewEventBus(testLogger())

		stateMachine := paymentpkg.NewService(mockRepo, ledger, authorizer, eventBus, testLogger())
		collaborators := paymentpkg.Collaborators{
			Order:        &stubCollaborator{name: "order-service"},
			Inventory:    &stubCollaborator{name: "inventory-service"},
			Notification: &stubCollaborator{name: "notification-service"},
		}
		orchestrator = paymentpkg.NewOrchestrator(stateMachine, guard, dispatcher, collaborators, testLogger())
		ctx = context.Background()
	})

	Describe("Charge", func() {
		Context("with a fresh idempotency key", func() {
			It("should create the payment and cache the response", func() {
				result, err := orchestrator.Charge(ctx, "key-1", chargeRequest())

				Expect(err).ToNot(HaveOccurred())
				Expect(result.StatusCode).To(Equal(http.StatusCreated))
				Expect(result.Replayed).To(BeFalse())

				var resp paymentpkg.PaymentResponse
				Expect(json.Unmarshal(result.Body, &resp)).To(Succeed())
				Expect(resp.OrderID).To(Equal(int64(1001)))
				Expect(resp.Status).To(Equal("COMPLETED"))
				Expect(resp.Transactions).To(HaveLen(2))

				Expect(guard.resolveCalls).To(Equal(1))
				Expect(guard.records["key-1"].ResponseStatus).To(Equal(http.StatusCreated))
			})

			It("should notify order and notification services on success", func() {
				_, err := orchestrator.Charge(ctx, "key-1", chargeRequest())
				Expect(err).ToNot(HaveOccurred())

				orderJobs := dispatcher.jobsFor("order-service")
				Expect(orderJobs).To(HaveLen(1))
				Expect(orderJobs[0].Tier).To(Equal(notification.TierCritical))
				Expect(orderJobs[0].EventKind).To(Equal(notification.EventPaymentCompleted))

				Expect(dispatcher.jobsFor("inventory-service")).To(BeEmpty())

				notifyJobs := dispatcher.jobsFor("notification-service")
				Expect(notifyJobs).To(HaveLen(1))
				Expect(notifyJobs[0].Tier).To(Equal(notification.TierBestEffort))
			})

			It("should also notify inventory on failure", func() {
				authorizer.decision = gateway.DecisionDeclined
				authorizer.message = "Insufficient funds"

				result, err := orchestrator.Charge(ctx, "key-1", chargeRequest())
				Expect(err).ToNot(HaveOccurred())
				Expect(result.StatusCode).To(Equal(http.StatusCreated))

				var resp paymentpkg.PaymentResponse
				Expect(json.Unmarshal(result.Body, &resp)).To(Succeed())
				Expect(resp.Status).To(Equal("FAILED"))

				inventoryJobs := dispatcher.jobsFor("inventory-service")
				Expect(inventoryJobs).To(HaveLen(1))
				Expect(inventoryJobs[0].EventKind).To(Equal(notification.EventPaymentFailed))
			})
		})

		Context("when replaying a resolved key with the same payload", func() {
			It("should return the cached response byte for byte", func() {
				first, err := orchestrator.Charge(ctx, "key-1", chargeRequest())
				Expect(err).ToNot(HaveOccurred())

				second, err := orchestrator.Charge(ctx, "key-1", chargeRequest())
				Expect(err).ToNot(HaveOccurred())

				Expect(second.Replayed).To(BeTrue())
				Expect(second.StatusCode).To(Equal(first.StatusCode))
				Expect(second.Body).To(Equal(first.Body))

				var firstResp, secondResp paymentpkg.PaymentResponse
				Expect(json.Unmarshal(first.Body, &firstResp)).To(Succeed())
				Expect(json.Unmarshal(second.Body, &secondResp)).To(Succeed())
				Expect(secondResp.PaymentID).To(Equal(firstResp.PaymentID))

				// gateway was not consulted a second time
				Expect(authorizer.calls).To(Equal(1))
			})
		})

		Context("when reusing a key with a different payload", func() {
			It("should return the key reuse error", func() {
				_, err := orchestrator.Charge(ctx, "key-1", chargeRequest())
				Expect(err).ToNot(HaveOccurred())

				different := chargeRequest()
				different.OrderID = 2002
				_, err = orchestrator.Charge(ctx, "key-1", different)

				Expect(err).To(MatchError(apperrors.ErrIdempotencyKeyReuse))
			})
		})

		Context("when the key is still in flight", func() {
			It("should return the in flight error", func() {
				req := chargeRequest()
				req.Normalize()
				fingerprint := idempotency.Fingerprint(req.OrderID, req.UserID, req.Amount, req.Currency, req.PaymentMethod, req.ReferenceValue())
				guard.records["key-1"] = &idempotencymodel.Record{Key: "key-1", RequestFingerprint: fingerprint}

				_, err := orchestrator.Charge(ctx, "key-1", chargeRequest())
				Expect(err).To(MatchError(apperrors.ErrPaymentInFlight))
			})
		})

		Context("when the order already has a payment", func() {
			It("should cache the duplicate order rejection", func() {
				_, err := orchestrator.Charge(ctx, "key-1", chargeRequest())
				Expect(err).ToNot(HaveOccurred())

				_, err = orchestrator.Charge(ctx, "key-2", chargeRequest())
				Expect(err).To(MatchError(apperrors.ErrDuplicateOrder))

				record := guard.records["key-2"]
				Expect(record.ResponseStatus).To(Equal(http.StatusConflict))

				var cached apperrors.Response
				Expect(json.Unmarshal(record.ResponseBody, &cached)).To(Succeed())
				Expect(cached.Error.Code).To(Equal(apperrors.ErrCodeDuplicateOrder))
			})

			It("should replay the cached rejection on retry", func() {
				_, err := orchestrator.Charge(ctx, "key-1", chargeRequest())
				Expect(err).ToNot(HaveOccurred())
				_, err = orchestrator.Charge(ctx, "key-2", chargeRequest())
				Expect(err).To(MatchError(apperrors.ErrDuplicateOrder))

				result, err := orchestrator.Charge(ctx, "key-2", chargeRequest())
				Expect(err).ToNot(HaveOccurred())
				Expect(result.Replayed).To(BeTrue())
				Expect(result.StatusCode).To(Equal(http.StatusConflict))
			})
		})

		Context("when the request is invalid", func() {
			It("should fail validation before touching the guard", func() {
				req := chargeRequest()
				req.Amount = decimal.NewFromInt(-5)

				_, err := orchestrator.Charge(ctx, "key-1", req)

				Expect(err).To(HaveOccurred())
				Expect(guard.reserveCalls).To(Equal(0))
			})

			It("should reject amounts above the maximum", func() {
				req := chargeRequest()
				req.Amount = decimal.NewFromInt(100001)

				_, err := orchestrator.Charge(ctx, "key-1", req)

				Expect(err).To(HaveOccurred())
				Expect(guard.reserveCalls).To(Equal(0))
			})
		})

		Context("when payment creation fails internally", func() {
			It("should release the reservation", func() {
				mockRepo.createError = apperrors.NewInternalError("db down", nil)

				_, err := orchestrator.Charge(ctx, "key-1", chargeRequest())

				Expect(err).To(HaveOccurred())
				Expect(guard.releaseCalls).To(Equal(1))
				Expect(guard.records).ToNot(HaveKey("key-1"))
			})
		})
	})

	Describe("Refund", func() {
		It("should notify all collaborators", func() {
			_, err := orchestrator.Charge(ctx, "key-1", chargeRequest())
			Expect(err).ToNot(HaveOccurred())

			resp, refundAmount, err := orchestrator.Refund(ctx, 1, &paymentpkg.RefundRequest{Reason: "customer returned item"})
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.Status).To(Equal("REFUNDED"))
			Expect(refundAmount.Equal(decimal.NewFromFloat(499.99))).To(BeTrue())

			Expect(dispatcher.jobsFor("order-service")).To(HaveLen(2))
			Expect(dispatcher.jobsFor("inventory-service")).To(HaveLen(1))
			Expect(dispatcher.jobsFor("notification-service")).To(HaveLen(2))
		})

		It("should validate the refund reason", func() {
			_, _, err := orchestrator.Refund(ctx, 1, &paymentpkg.RefundRequest{Reason: "ok"})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("UpdateStatus", func() {
		It("should reject unknown statuses", func() {
			_, err := orchestrator.UpdateStatus(ctx, 1, &paymentpkg.StatusUpdateRequest{Status: "SHIPPED"})
			Expect(err).To(HaveOccurred())
		})

		It("should notify the order service when a manual transition settles", func() {
			pending := &paymentmodel.Payment{
				OrderID:       1001,
				UserID:        42,
				Amount:        decimal.NewFromFloat(499.99),
				Currency:      "INR",
				PaymentMethod: paymentmodel.MethodUPI,
				Status:        paymentmodel.StatusPending,
				TransactionID: "TXN0000001001",
			}
			Expect(mockRepo.Create(pending)).To(Succeed())

			resp, err := orchestrator.UpdateStatus(ctx, pending.PaymentID, &paymentpkg.StatusUpdateRequest{Status: "FAILED"})
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.Status).To(Equal("FAILED"))

			orderJobs := dispatcher.jobsFor("order-service")
			Expect(orderJobs).To(HaveLen(1))
			Expect(orderJobs[0].EventKind).To(Equal(notification.EventPaymentFailed))
			Expect(dispatcher.jobsFor("inventory-service")).To(BeEmpty())
		})

		It("should fan a manual refund out to every collaborator", func() {
			_, err := orchestrator.Charge(ctx, "key-1", chargeRequest())
			Expect(err).ToNot(HaveOccurred())
			dispatcher.reset()

			resp, err := orchestrator.UpdateStatus(ctx, 1, &paymentpkg.StatusUpdateRequest{Status: "REFUNDED"})
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.Status).To(Equal("REFUNDED"))

			orderJobs := dispatcher.jobsFor("order-service")
			Expect(orderJobs).To(HaveLen(1))
			Expect(orderJobs[0].EventKind).To(Equal(notification.EventPaymentRefunded))
			Expect(dispatcher.jobsFor("inventory-service")).To(HaveLen(1))
			Expect(dispatcher.jobsFor("notification-service")).To(HaveLen(1))
		})

		It("should not notify on intermediate transitions", func() {
			pending := &paymentmodel.Payment{
				OrderID:       1001,
				UserID:        42,
				Amount:        decimal.NewFromFloat(499.99),
				Currency:      "INR",
				PaymentMethod: paymentmodel.MethodUPI,
				Status:        paymentmodel.StatusPending,
				TransactionID: "TXN0000001001",
			}
			Expect(mockRepo.Create(pending)).To(Succeed())

			resp, err := orchestrator.UpdateStatus(ctx, pending.PaymentID, &paymentpkg.StatusUpdateRequest{Status: "PROCESSING"})
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.Status).To(Equal("PROCESSING"))
			Expect(dispatcher.jobsFor("order-service")).To(BeEmpty())
		})
	})
})
