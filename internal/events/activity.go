// Package events defines the event payloads published for ledger activity.
package events

import "time"

// ActivityRecorded is emitted whenever an entry is appended to a user's activity log.
type ActivityRecorded struct {
	ActivityID      string    `json:"activity_id"`
	UserID          string    `json:"user_id"`
	SavingsTargetID *string   `json:"savings_target_id,omitempty"`
	ActivityType    string    `json:"activity_type"`
	Title           string    `json:"title"`
	Amount          string    `json:"amount"`
	OccurredAt      time.Time `json:"occurred_at"`
	Version         string    `json:"version"`
}

// EventTypeActivityRecorded identifies ActivityRecorded payloads in the outbox.
const EventTypeActivityRecorded = "savings.activity_recorded"

// PayloadVersion is stamped on every payload produced by this service.
const PayloadVersion = "v1"
