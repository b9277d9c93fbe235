package domain

import "time"

// FailedRollback records a height whose rollback failed and was left hot.
type FailedRollback struct {
	ID          string    `json:"id"`
	Height      int64     `json:"height"`
	SafeHeight  int64     `json:"safe_height"`
	Error       string    `json:"error_msg"`
	Attempts    int       `json:"attempts"`
	LastAttempt time.Time `json:"last_attempt"`
	CreatedAt   time.Time `json:"created_at"`
}
