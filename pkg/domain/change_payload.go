package domain

import "time"

// Action describes the kind of durable write a Change records.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Change is emitted after a durable write succeeds. Observers in other
// processes use it as a staleness signal for the owner's collection.
type Change struct {
	OwnerID  string    `json:"owner_id"`
	Action   Action    `json:"action"`
	RecordID string    `json:"record_id"`
	At       time.Time `json:"at"`
}
