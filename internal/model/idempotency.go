package model

import "time"

// IdempotencyRecord is a stored response for a repeated X-Idempotency-Key.
type IdempotencyRecord struct {
	Status     int
	Body       []byte
	CreatedAt  time.Time
	Processing bool // set while the first request is still running
}
