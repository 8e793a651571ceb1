package payment

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	errors "github.com/Infantselva015/eci-payment-service/internal"
	paymentmodel "github.com/Infantselva015/eci-payment-service/internal/core/datamodel/payment"
	"github.com/Infantselva015/eci-payment-service/internal/idempotency"
	"github.com/Infantselva015/eci-payment-service/internal/notification"
)

// IdempotencyGuard is the orchestrator's view of the dedup layer.
type IdempotencyGuard interface {
	Reserve(key, fingerprint string) (*idempotency.ReserveOutcome, error)
	Resolve(key string, responseBody []byte, responseStatus int, paymentID *int64) error
	Release(key string) error
}

// NotificationEnqueuer hands outcome notifications to the worker pool.
type NotificationEnqueuer interface {
	Enqueue(job notification.Job)
}

// Collaborators groups the downstream services interested in payment
// outcomes. Any of them may be nil when not configured.
type Collaborators struct {
	Order        notification.Collaborator
	Inventory    notification.Collaborator
	Notification notification.Collaborator
}

// ChargeResult is what the handler writes back. For a replay the body is the
// stored response byte for byte, so clients cannot distinguish a replay from
// the original response.
type ChargeResult struct {
	StatusCode int
	Body       json.RawMessage
	Replayed   bool
}

// Orchestrator composes the idempotency guard, the payment state machine and
// the notification dispatcher into the charge flow. It owns the ordering:
// dedup check first, then the payment lifecycle, then fire-and-forget
// notifications after the outcome is committed.
type Orchestrator struct {
	stateMachine  *Service
	guard         IdempotencyGuard
	dispatcher    NotificationEnqueuer
	collaborators Collaborators
	logger        *slog.Logger
}

func NewOrchestrator(stateMachine *Service, guard IdempotencyGuard, dispatcher NotificationEnqueuer, collaborators Collaborators, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		stateMachine:  stateMachine,
		guard:         guard,
		dispatcher:    dispatcher,
		collaborators: collaborators,
		logger:        logger,
	}
}

// Charge runs the idempotent charge flow for one request.
func (o *Orchestrator) Charge(ctx context.Context, idempotencyKey string, req *ChargeRequest) (*ChargeResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req.Normalize()

	fingerprint := idempotency.Fingerprint(req.OrderID, req.UserID, req.Amount, req.Currency, req.PaymentMethod, req.ReferenceValue())

	outcome, err := o.guard.Reserve(idempotencyKey, fingerprint)
	if err != nil {
		return nil, errors.NewInternalError("failed to reserve idempotency key", err)
	}

	switch outcome.State {
	case idempotency.StateHit:
		o.logger.Info("replaying cached charge response",
			"idempotency_key", idempotencyKey,
			"response_status", outcome.Record.ResponseStatus)
		return &ChargeResult{
			StatusCode: outcome.Record.ResponseStatus,
			Body:       outcome.Record.ResponseBody,
			Replayed:   true,
		}, nil
	case idempotency.StateConflict:
		return nil, errors.ErrIdempotencyKeyReuse
	case idempotency.StateInFlight:
		return nil, errors.ErrPaymentInFlight
	}

	p, err := o.stateMachine.AuthorizeAndSettle(ctx, req)
	if err != nil {
		return nil, o.resolveChargeFailure(idempotencyKey, err)
	}

	entries, err := o.stateMachine.EntriesFor(p.PaymentID)
	if err != nil {
		o.logger.Error("failed to load ledger entries for response", "error", err, "payment_id", p.PaymentID)
		entries = nil
	}

	response := NewPaymentResponse(p, entries)
	body, err := json.Marshal(response)
	if err != nil {
		o.releaseReservation(idempotencyKey)
		return nil, errors.NewInternalError("failed to encode charge response", err)
	}

	if err := o.guard.Resolve(idempotencyKey, body, http.StatusCreated, &p.PaymentID); err != nil {
		// The payment is committed; a retry with the same key will hit the
		// unresolved record and surface as in flight until the sweep.
		o.logger.Error("failed to cache charge response", "error", err, "payment_id", p.PaymentID)
	}

	o.notifyChargeOutcome(p, body)

	return &ChargeResult{
		StatusCode: http.StatusCreated,
		Body:       body,
	}, nil
}

// resolveChargeFailure decides whether a failed charge is cached against the
// key or whether the reservation is returned to the pool. Deterministic
// rejections are cached so a retry replays the same refusal; transient
// internal failures release the key so the client can retry for real.
func (o *Orchestrator) resolveChargeFailure(idempotencyKey string, chargeErr error) error {
	appErr, ok := errors.IsAppError(chargeErr)
	if ok && appErr.Code == errors.ErrCodeDuplicateOrder {
		body, err := json.Marshal(errors.Response{Error: appErr})
		if err == nil {
			if err := o.guard.Resolve(idempotencyKey, body, appErr.StatusCode, nil); err != nil {
				o.logger.Error("failed to cache charge rejection", "error", err, "idempotency_key", idempotencyKey)
			}
		}
		return chargeErr
	}

	o.releaseReservation(idempotencyKey)
	return chargeErr
}

func (o *Orchestrator) releaseReservation(idempotencyKey string) {
	if err := o.guard.Release(idempotencyKey); err != nil {
		o.logger.Error("failed to release idempotency reservation", "error", err, "idempotency_key", idempotencyKey)
	}
}

// Refund refunds a payment and notifies every collaborator.
func (o *Orchestrator) Refund(ctx context.Context, paymentID int64, req *RefundRequest) (*PaymentResponse, decimal.Decimal, error) {
	if err := req.Validate(); err != nil {
		return nil, decimal.Zero, err
	}

	p, refundAmount, err := o.stateMachine.Refund(ctx, paymentID, req.Amount, req.Reason)
	if err != nil {
		return nil, decimal.Zero, err
	}

	response := o.buildResponse(p)
	payload, err := json.Marshal(response)
	if err == nil {
		o.enqueue(o.collaborators.Order, notification.EventPaymentRefunded, payload, notification.TierCritical, p.PaymentID)
		o.enqueue(o.collaborators.Inventory, notification.EventPaymentRefunded, payload, notification.TierBestEffort, p.PaymentID)
		o.enqueue(o.collaborators.Notification, notification.EventPaymentRefunded, payload, notification.TierBestEffort, p.PaymentID)
	}

	return &response, refundAmount, nil
}

// Cancel cancels a pending or processing payment.
func (o *Orchestrator) Cancel(ctx context.Context, paymentID int64) (*PaymentResponse, error) {
	p, err := o.stateMachine.Cancel(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	response := o.buildResponse(p)
	payload, err := json.Marshal(response)
	if err == nil {
		o.enqueue(o.collaborators.Order, notification.EventPaymentCancelled, payload, notification.TierCritical, p.PaymentID)
		o.enqueue(o.collaborators.Notification, notification.EventPaymentCancelled, payload, notification.TierBestEffort, p.PaymentID)
	}

	return &response, nil
}

// UpdateStatus applies an operator-requested transition.
func (o *Orchestrator) UpdateStatus(ctx context.Context, paymentID int64, req *StatusUpdateRequest) (*PaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p, err := o.stateMachine.UpdateStatus(ctx, paymentID, paymentmodel.Status(req.Status), req.GatewayResponse)
	if err != nil {
		return nil, err
	}

	response := o.buildResponse(p)

	// The order service needs to hear about settlements, even manual ones.
	// Intermediate transitions like PROCESSING have no outcome to report. A
	// manual refund fans out exactly like the refund endpoint.
	switch p.Status {
	case paymentmodel.StatusCompleted, paymentmodel.StatusFailed:
		eventKind := notification.EventPaymentCompleted
		if p.Status == paymentmodel.StatusFailed {
			eventKind = notification.EventPaymentFailed
		}
		if payload, err := json.Marshal(response); err == nil {
			o.enqueue(o.collaborators.Order, eventKind, payload, notification.TierCritical, p.PaymentID)
		}
	case paymentmodel.StatusRefunded:
		if payload, err := json.Marshal(response); err == nil {
			o.enqueue(o.collaborators.Order, notification.EventPaymentRefunded, payload, notification.TierCritical, p.PaymentID)
			o.enqueue(o.collaborators.Inventory, notification.EventPaymentRefunded, payload, notification.TierBestEffort, p.PaymentID)
			o.enqueue(o.collaborators.Notification, notification.EventPaymentRefunded, payload, notification.TierBestEffort, p.PaymentID)
		}
	}

	return &response, nil
}

func (o *Orchestrator) GetByID(paymentID int64) (*PaymentResponse, error) {
	p, err := o.stateMachine.GetByID(paymentID)
	if err != nil {
		return nil, err
	}
	response := o.buildResponse(p)
	return &response, nil
}

func (o *Orchestrator) GetByOrderID(orderID int64) (*PaymentResponse, error) {
	p, err := o.stateMachine.GetByOrderID(orderID)
	if err != nil {
		return nil, err
	}
	response := o.buildResponse(p)
	return &response, nil
}

func (o *Orchestrator) GetByTransactionID(transactionID string) (*PaymentResponse, error) {
	p, err := o.stateMachine.GetByTransactionID(transactionID)
	if err != nil {
		return nil, err
	}
	response := o.buildResponse(p)
	return &response, nil
}

func (o *Orchestrator) List(filter ListFilter) (*PaginatedResponse, error) {
	payments, total, err := o.stateMachine.List(filter)
	if err != nil {
		return nil, err
	}

	filter.Normalize()
	result := &PaginatedResponse{
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
		Payments: make([]PaymentResponse, 0, len(payments)),
	}
	for _, p := range payments {
		result.Payments = append(result.Payments, NewPaymentResponse(p, nil))
	}
	return result, nil
}

func (o *Orchestrator) buildResponse(p *paymentmodel.Payment) PaymentResponse {
	entries, err := o.stateMachine.EntriesFor(p.PaymentID)
	if err != nil {
		o.logger.Error("failed to load ledger entries for response", "error", err, "payment_id", p.PaymentID)
		entries = nil
	}
	return NewPaymentResponse(p, entries)
}

// notifyChargeOutcome fans the settled charge out to collaborators. The order
// service always hears about the outcome; inventory only needs to release
// reserved stock on failure; user notifications go out either way.
func (o *Orchestrator) notifyChargeOutcome(p *paymentmodel.Payment, payload json.RawMessage) {
	eventKind := notification.EventPaymentCompleted
	if p.Status == paymentmodel.StatusFailed {
		eventKind = notification.EventPaymentFailed
	}

	o.enqueue(o.collaborators.Order, eventKind, payload, notification.TierCritical, p.PaymentID)
	if p.Status == paymentmodel.StatusFailed {
		o.enqueue(o.collaborators.Inventory, eventKind, payload, notification.TierBestEffort, p.PaymentID)
	}
	o.enqueue(o.collaborators.Notification, eventKind, payload, notification.TierBestEffort, p.PaymentID)
}

func (o *Orchestrator) enqueue(collaborator notification.Collaborator, eventKind notification.EventKind, payload json.RawMessage, tier notification.Tier, paymentID int64) {
	if collaborator == nil || o.dispatcher == nil {
		return
	}
	o.dispatcher.Enqueue(notification.Job{
		Collaborator: collaborator,
		EventKind:    eventKind,
		Payload:      payload,
		Tier:         tier,
		PaymentID:    paymentID,
	})
}
