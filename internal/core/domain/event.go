package domain

import "time"

// RevertEvent announces that a hot block was rolled back.
type RevertEvent struct {
	EventType  EventType `json:"event_type"`
	RunID      string    `json:"run_id"`
	Height     int64     `json:"height"`
	Hash       string    `json:"hash"`
	SafeHeight int64     `json:"safe_height"`
	Undone     int       `json:"undone"`
	DetectedAt time.Time `json:"detected_at"`
	Reason     string    `json:"reason"`
}

type EventType string

const (
	EventTypeBlockReverted EventType = "block_reverted"
	EventTypeReorgDetected EventType = "reorg_detected"
)
