package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRecordNotFound is returned when an activity record cannot be located.
	ErrRecordNotFound = errors.New("activity record not found")
	// ErrDuplicateFingerprint indicates the same fingerprint was inserted twice
	// for one subject and action, the signature of a double-recorded retry.
	ErrDuplicateFingerprint = errors.New("duplicate fingerprint for subject and action")
	// ErrStoreUnavailable wraps storage-level failures on reads.
	ErrStoreUnavailable = errors.New("record store unavailable")
)

// EncodingError reports invalid input to the canonical encoder. It is local
// and definitive; callers must not retry.
type EncodingError struct {
	Field  string
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("cannot encode %s: %s", e.Field, e.Reason)
}

// PersistAfterSubmitError reports the one failure that is not retryable by
// re-running Record: the ledger accepted the fingerprint but the local insert
// failed, leaving an orphaned anchor. It carries everything needed to repair
// the store by re-inserting the record; resubmitting would anchor a second
// fingerprint for the same logical action.
type PersistAfterSubmitError struct {
	SubjectID      int64
	Fingerprint    string
	ConfirmationID string
	Err            error
}

func (e *PersistAfterSubmitError) Error() string {
	return fmt.Sprintf("ledger anchored fingerprint %s (confirmation %s) but local persistence failed: %v",
		e.Fingerprint, e.ConfirmationID, e.Err)
}

func (e *PersistAfterSubmitError) Unwrap() error { return e.Err }
