package postgres

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Infantselva015/eci-payment-service/internal/core/datamodel/idempotency"
	idempotencypkg "github.com/Infantselva015/eci-payment-service/internal/idempotency"
)

var ErrRecordNotFound = errors.New("idempotency record not found")

type IdempotencyRepository struct {
	db *gorm.DB
}

func NewIdempotencyRepository(db *gorm.DB) idempotencypkg.Repository {
	return &IdempotencyRepository{
		db: db,
	}
}

// InsertIfAbsent relies on the primary key constraint plus ON CONFLICT DO
// NOTHING, so the database resolves concurrent reservations for the same
// key to exactly one winner.
func (r *IdempotencyRepository) InsertIfAbsent(record *idempotency.Record) (bool, error) {
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idempotency_key"}},
		DoNothing: true,
	}).Create(record)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *IdempotencyRepository) GetByKey(key string) (*idempotency.Record, error) {
	var record idempotency.Record
	err := r.db.Where("idempotency_key = ?", key).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *IdempotencyRepository) Resolve(key string, responseBody []byte, responseStatus int, paymentID *int64) error {
	updates := map[string]interface{}{
		"response_body":   responseBody,
		"response_status": responseStatus,
	}
	if paymentID != nil {
		updates["payment_id"] = *paymentID
	}
	return r.db.Model(&idempotency.Record{}).Where("idempotency_key = ?", key).Updates(updates).Error
}

func (r *IdempotencyRepository) DeleteByKey(key string) error {
	return r.db.Where("idempotency_key = ?", key).Delete(&idempotency.Record{}).Error
}

func (r *IdempotencyRepository) DeleteExpired(now time.Time) (int64, error) {
	result := r.db.Where("expires_at <= ?", now).Delete(&idempotency.Record{})
	return result.RowsAffected, result.Error
}
