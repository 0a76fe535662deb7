// Package idempotency stores the first successful response to a request
// carrying an Idempotency-Key so that retries replay it. Keys are scoped per
// user.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// Status constants for idempotency keys. StatusProcessing is accepted by the
// schema but not written yet.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
)

// Key errors.
var (
	ErrKeyNotFound = errors.New("idempotency key not found")
	ErrKeyExists   = errors.New("idempotency key already stored for this user")
	ErrInvalidKey  = errors.New("idempotency key is empty")
	ErrKeyTooLong  = errors.New("idempotency key longer than 64 characters")
)

// MaxKeyLength matches the CHECK on idempotency_keys.key.
const MaxKeyLength = 64

// Record is a stored idempotency key with its cached response.
type Record struct {
	UserID             string    `json:"user_id"`
	Key                string    `json:"key"`
	Method             string    `json:"method"`
	Route              string    `json:"route"`
	CreatedAt          time.Time `json:"created_at"`
	ResponseHash       string    `json:"response_hash"`
	Status             string    `json:"status"`
	ResponseBody       string    `json:"response_body"`
	ResponseStatusCode int       `json:"response_status_code"`
}

// ValidateKey rejects empty and over-long keys.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	return nil
}

// ComputeResponseHash returns the hex SHA-256 of a cached response body.
func ComputeResponseHash(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

// Repository persists idempotency records.
type Repository interface {
	// Get returns the user's record for key, or ErrKeyNotFound.
	Get(ctx context.Context, userID, key string) (*Record, error)

	// Store saves a new record, or returns ErrKeyExists.
	Store(ctx context.Context, record *Record) error

	// DeleteOlderThan removes records created more than age ago and reports
	// how many went.
	DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error)
}
