package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Infantselva015/eci-payment-service/internal"
)

type Decision string

const (
	DecisionAuthorized Decision = "AUTHORIZED"
	DecisionDeclined   Decision = "DECLINED"
)

type AuthorizationRequest struct {
	OrderID       int64
	UserID        int64
	Amount        decimal.Decimal
	Currency      string
	PaymentMethod string
	TransactionID string
}

type AuthorizationResult struct {
	Decision          Decision
	AuthorizationCode string
	GatewayMessage    string
}

// Authorizer is the capability boundary to the payment gateway. The state
// machine only sees Authorized or Declined, so a real gateway integration
// can replace the simulator without touching transition logic.
type Authorizer interface {
	Authorize(ctx context.Context, req AuthorizationRequest) (*AuthorizationResult, error)
}

// SimulatedAuthorizer approves or declines charges pseudo-randomly with a
// configurable decline rate and latency window.
type SimulatedAuthorizer struct {
	declineRate float64
	minLatency  time.Duration
	maxLatency  time.Duration
	rng         *rand.Rand
	logger      *slog.Logger
}

func NewSimulatedAuthorizer(cfg internal.GatewayConfig, logger *slog.Logger) *SimulatedAuthorizer {
	return &SimulatedAuthorizer{
		declineRate: cfg.DeclineRate,
		minLatency:  cfg.MinLatency,
		maxLatency:  cfg.MaxLatency,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:      logger,
	}
}

func (a *SimulatedAuthorizer) Authorize(ctx context.Context, req AuthorizationRequest) (*AuthorizationResult, error) {
	delay := a.minLatency
	if a.maxLatency > a.minLatency {
		delay += time.Duration(a.rng.Int63n(int64(a.maxLatency - a.minLatency)))
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if a.rng.Float64() < a.declineRate {
		a.logger.Info("gateway simulation: charge declined",
			"order_id", req.OrderID,
			"transaction_id", req.TransactionID,
			"amount", req.Amount)
		return &AuthorizationResult{
			Decision:       DecisionDeclined,
			GatewayMessage: "Insufficient funds",
		}, nil
	}

	code := fmt.Sprintf("AUTH%06d", a.rng.Intn(1000000))
	a.logger.Info("gateway simulation: charge authorized",
		"order_id", req.OrderID,
		"transaction_id", req.TransactionID,
		"authorization_code", code)
	return &AuthorizationResult{
		Decision:          DecisionAuthorized,
		AuthorizationCode: code,
		GatewayMessage:    fmt.Sprintf("Approved via %s", strings.ToLower(req.PaymentMethod)),
	}, nil
}
