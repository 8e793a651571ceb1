package idempotency

import "time"

// Record is the dedup lease for one idempotency key. A row exists in one of
// two states: reserved (ResponseStatus == 0, a charge is in flight) or
// resolved (cached response populated). Expiry is honored at read time; a
// row past ExpiresAt is treated as absent whether or not the sweeper has
// purged it.
type Record struct {
	Key                string    `gorm:"primaryKey;column:idempotency_key;size:128"`
	RequestFingerprint string    `gorm:"column:request_fingerprint;size:64;not null"`
	PaymentID          *int64    `gorm:"column:payment_id"`
	ResponseBody       []byte    `gorm:"column:response_body"`
	ResponseStatus     int       `gorm:"column:response_status;default:0"`
	CreatedAt          time.Time `gorm:"column:created_at"`
	ExpiresAt          time.Time `gorm:"column:expires_at;index"`
}

func (Record) TableName() string {
	return "idempotency_keys"
}

func (r *Record) Resolved() bool {
	return r.ResponseStatus != 0
}

func (r *Record) ExpiredAt(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
