// Package domain defines the proof anchoring and verification logic.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// RecordRepository captures persistence operations for anchored records.
type RecordRepository interface {
	Insert(ctx context.Context, record ActivityRecord) (int64, error)
	GetByID(ctx context.Context, id int64) (*ActivityRecord, error)
	ListBySubject(ctx context.Context, subjectID int64, cursor *Cursor, limit int) ([]ActivityRecord, *Cursor, error)
}

// ProofLedger is the capability exposed by the external ledger: anchor a
// fingerprint and replay the emitted proof events. Implementations must be
// safe for concurrent use; both calls block on the network and honor the
// caller's context deadline.
type ProofLedger interface {
	Submit(ctx context.Context, fingerprint string) (confirmationID string, err error)
	Events(ctx context.Context, from, to uint64) ([]LedgerEvent, error)
}

// EventRangeAll requests the full event history, genesis to latest. The
// Verifier needs the full range: presence anywhere in history is the proof.
const EventRangeAll uint64 = 0

// Cursor models the keyset pagination token for subject listings.
type Cursor struct {
	CreatedAt time.Time
	ID        int64
}

// Service orchestrates recording and verification of anchored activities.
// One instance is shared by all in-flight requests; operations on different
// records are independent and run concurrently.
type Service struct {
	repo   RecordRepository
	ledger ProofLedger
	now    func() time.Time
}

// NewService constructs a Service around the injected store and ledger.
func NewService(repo RecordRepository, ledger ProofLedger) *Service {
	return &Service{repo: repo, ledger: ledger, now: time.Now}
}

// RecordInput captures the payload from the API layer.
type RecordInput struct {
	SubjectID int64
	Action    Action
	Asset     string
	Quantity  decimal.Decimal
}

// Record anchors a new activity: canonical encode, fingerprint, submit to the
// ledger, then persist. Ledger submission strictly precedes persistence; the
// ledger is the truth anchor and the local record is an index over it, so a
// failed submission must leave no local trace. If persistence fails after the
// ledger accepted, the orphaned anchor is reported via PersistAfterSubmitError
// so an operator can repair the store instead of resubmitting.
func (s *Service) Record(ctx context.Context, input RecordInput) (*ActivityRecord, error) {
	canonical, err := Encode(input.SubjectID, input.Action, input.Asset, input.Quantity)
	if err != nil {
		return nil, err
	}
	fp := Fingerprint(canonical)

	confirmationID, err := s.ledger.Submit(ctx, fp)
	if err != nil {
		return nil, err
	}

	record := ActivityRecord{
		SubjectID:      input.SubjectID,
		Action:         input.Action,
		Asset:          input.Asset,
		Quantity:       input.Quantity,
		Fingerprint:    fp,
		ConfirmationID: confirmationID,
		CreatedAt:      s.now().UTC(),
	}

	id, err := s.repo.Insert(ctx, record)
	if errors.Is(err, ErrDuplicateFingerprint) {
		// A local record for this exact claim already exists; the ledger now
		// holds an extra entry for it, which verification tolerates because
		// presence, not uniqueness, is the interesting predicate.
		return nil, err
	}
	if err != nil {
		return nil, &PersistAfterSubmitError{
			SubjectID:      input.SubjectID,
			Fingerprint:    fp,
			ConfirmationID: confirmationID,
			Err:            err,
		}
	}
	record.ID = id
	return &record, nil
}

// Verify recomputes the fingerprint of a stored record from its currently
// stored fields and checks it against both the stored fingerprint and the
// ledger's event history. Read-only, idempotent, and safe to call
// concurrently; ledger errors propagate instead of degrading the verdict.
func (s *Service) Verify(ctx context.Context, recordID int64) (*VerificationResult, error) {
	record, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrRecordNotFound
	}

	// Recompute over the raw stored fields, without write-path validation: a
	// record tampered into a shape Encode rejects must still surface as an
	// invalid verdict, not as an input error.
	local := Fingerprint(canonicalText(record.SubjectID, record.Action, record.Asset, record.Quantity))

	events, err := s.ledger.Events(ctx, EventRangeAll, EventRangeAll)
	if err != nil {
		return nil, err
	}

	exists := false
	for _, ev := range events {
		if ev.Fingerprint == record.Fingerprint {
			exists = true
			break
		}
	}

	return &VerificationResult{
		Valid:            local == record.Fingerprint && exists,
		LocalFingerprint: local,
		ExistsInLedger:   exists,
	}, nil
}

// ListBySubject returns a subject's records newest first with keyset
// pagination.
func (s *Service) ListBySubject(ctx context.Context, subjectID int64, cursor *Cursor, limit int) ([]ActivityRecord, *Cursor, error) {
	return s.repo.ListBySubject(ctx, subjectID, cursor, limit)
}
