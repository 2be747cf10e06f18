// Package events defines event payloads emitted by the proof service.
package events

import "time"

// ProofAnchored is emitted once per activity record after the ledger accepted
// its fingerprint and the record was persisted. Downstream consumers (the
// reconciler, audit sinks) key off record_id.
type ProofAnchored struct {
	RecordID       int64     `json:"record_id"`
	SubjectID      int64     `json:"subject_id"`
	Action         string    `json:"action"`
	Asset          string    `json:"asset"`
	Quantity       string    `json:"quantity"`
	Fingerprint    string    `json:"fingerprint"`
	ConfirmationID string    `json:"confirmation_id"`
	CreatedAt      time.Time `json:"created_at"`
}
