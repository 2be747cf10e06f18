package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action is an audited business verb.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// knownActions is the closed set accepted by the recorder. New audited verbs
// are added here.
var knownActions = map[Action]struct{}{
	ActionBuy:  {},
	ActionSell: {},
}

// Known reports whether the action is one of the audited verbs.
func (a Action) Known() bool {
	_, ok := knownActions[a]
	return ok
}

// ActivityRecord is one anchored claim: a financial action whose fingerprint
// has been accepted by the ledger. Once written it is never updated in place;
// corrections are new records, because the ledger anchor cannot be revised.
type ActivityRecord struct {
	ID             int64
	SubjectID      int64
	Action         Action
	Asset          string
	Quantity       decimal.Decimal
	Fingerprint    string
	ConfirmationID string
	CreatedAt      time.Time
}

// LedgerEvent is one fingerprint accepted by the external ledger. Sequence is
// the ledger's own ordering position and carries no business meaning.
type LedgerEvent struct {
	Fingerprint string
	Sequence    uint64
}

// VerificationResult is the verdict produced by Verify.
//
// Valid is true only when the fingerprint recomputed from the stored fields
// equals the stored fingerprint AND that fingerprint appears in the ledger's
// event history. Either check alone is insufficient: equality misses anchors
// the ledger never received, presence misses local tampering.
type VerificationResult struct {
	Valid            bool
	LocalFingerprint string
	ExistsInLedger   bool
}
