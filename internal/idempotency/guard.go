package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Infantselva015/eci-payment-service/internal/core/datamodel/idempotency"
)

// Repository interface for idempotency key storage. InsertIfAbsent must be a
// true atomic operation at the storage layer: when two callers race on the
// same key at most one insert wins. Check-then-insert in application code is
// not an acceptable implementation.
type Repository interface {
	InsertIfAbsent(record *idempotency.Record) (bool, error)
	GetByKey(key string) (*idempotency.Record, error)
	Resolve(key string, responseBody []byte, responseStatus int, paymentID *int64) error
	DeleteByKey(key string) error
	DeleteExpired(now time.Time) (int64, error)
}

type ReserveState int

const (
	// StateReserved means no usable record existed and this caller now
	// holds the lease for the key.
	StateReserved ReserveState = iota
	// StateHit means a non-expired resolved record with a matching
	// fingerprint exists; the cached response must be returned verbatim.
	StateHit
	// StateConflict means the key was reused with a different payload.
	StateConflict
	// StateInFlight means another request reserved the key and has not
	// resolved it yet.
	StateInFlight
)

type ReserveOutcome struct {
	State  ReserveState
	Record *idempotency.Record
}

// Guard deduplicates charge requests by client-supplied idempotency key.
type Guard struct {
	repository Repository
	ttl        time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

func NewGuard(repository Repository, ttl time.Duration, logger *slog.Logger) *Guard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Guard{
		repository: repository,
		ttl:        ttl,
		now:        time.Now,
		logger:     logger,
	}
}

// WithClock overrides the time source. Used by tests to exercise expiry.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

// Fingerprint hashes the semantically relevant charge fields. Volatile
// request fields must not participate, otherwise legitimate retries would be
// rejected as key reuse.
func Fingerprint(orderID, userID int64, amount decimal.Decimal, currency, method, reference string) string {
	canonical := fmt.Sprintf("%d|%d|%s|%s|%s|%s", orderID, userID, amount.StringFixed(2), currency, method, reference)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// Reserve attempts to take the dedup lease for key. Expired records are
// treated as absent: the stale row is removed and the reservation retried,
// so a charge reusing an expired key starts a fresh attempt.
func (g *Guard) Reserve(key, fingerprint string) (*ReserveOutcome, error) {
	now := g.now()
	candidate := &idempotency.Record{
		Key:                key,
		RequestFingerprint: fingerprint,
		CreatedAt:          now,
		ExpiresAt:          now.Add(g.ttl),
	}

	inserted, err := g.repository.InsertIfAbsent(candidate)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	if inserted {
		g.logger.Info("idempotency key reserved", "key", key)
		return &ReserveOutcome{State: StateReserved, Record: candidate}, nil
	}

	existing, err := g.repository.GetByKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to load idempotency record: %w", err)
	}

	if existing.ExpiredAt(now) {
		g.logger.Info("idempotency key expired, releasing", "key", key, "expired_at", existing.ExpiresAt)
		if err := g.repository.DeleteByKey(key); err != nil {
			return nil, fmt.Errorf("failed to release expired idempotency key: %w", err)
		}
		inserted, err := g.repository.InsertIfAbsent(candidate)
		if err != nil {
			return nil, fmt.Errorf("failed to reserve idempotency key: %w", err)
		}
		if inserted {
			return &ReserveOutcome{State: StateReserved, Record: candidate}, nil
		}
		// Lost the re-reservation race; fall through to the fresh row.
		existing, err = g.repository.GetByKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to load idempotency record: %w", err)
		}
	}

	if existing.RequestFingerprint != fingerprint {
		g.logger.Warn("idempotency key reused with different payload", "key", key)
		return &ReserveOutcome{State: StateConflict, Record: existing}, nil
	}

	if !existing.Resolved() {
		g.logger.Info("idempotency key still in flight", "key", key)
		return &ReserveOutcome{State: StateInFlight, Record: existing}, nil
	}

	g.logger.Info("idempotency cache hit", "key", key, "response_status", existing.ResponseStatus)
	return &ReserveOutcome{State: StateHit, Record: existing}, nil
}

// Resolve transitions a reserved record to resolved. Calling it again with
// identical arguments is a no-op overwrite, which keeps retried
// resolutions safe.
func (g *Guard) Resolve(key string, responseBody []byte, responseStatus int, paymentID *int64) error {
	if err := g.repository.Resolve(key, responseBody, responseStatus, paymentID); err != nil {
		g.logger.Error("failed to resolve idempotency key", "error", err, "key", key)
		return fmt.Errorf("failed to resolve idempotency key: %w", err)
	}
	g.logger.Info("idempotency key resolved", "key", key, "response_status", responseStatus)
	return nil
}

// Release drops an unresolved reservation so the client can retry after an
// internal failure. Never called once a record is resolved.
func (g *Guard) Release(key string) error {
	if err := g.repository.DeleteByKey(key); err != nil {
		g.logger.Error("failed to release idempotency key", "error", err, "key", key)
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	g.logger.Info("idempotency key released", "key", key)
	return nil
}

// SweepExpired physically purges expired rows. Correctness never depends on
// it running; expiry is always honored at read time.
func (g *Guard) SweepExpired() (int64, error) {
	purged, err := g.repository.DeleteExpired(g.now())
	if err != nil {
		g.logger.Error("idempotency sweep failed", "error", err)
		return 0, fmt.Errorf("idempotency sweep failed: %w", err)
	}
	if purged > 0 {
		g.logger.Info("idempotency sweep purged expired keys", "purged", purged)
	}
	return purged, nil
}
