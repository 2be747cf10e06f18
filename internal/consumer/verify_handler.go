package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/ardhimaskoi/Davin-App/internal/domain"
	"github.com/ardhimaskoi/Davin-App/internal/events"
	"github.com/ardhimaskoi/Davin-App/internal/observability"
)

// Verifier re-checks an anchored record against the ledger.
type Verifier interface {
	Verify(ctx context.Context, recordID int64) (*domain.VerificationResult, error)
}

// VerifyHandler re-verifies each freshly anchored record as its proof.anchored
// event arrives, so tampering or a dropped anchor is noticed without waiting
// for someone to call the verify endpoint.
type VerifyHandler struct {
	verifier Verifier
	logger   *log.Logger
}

// NewVerifyHandler constructs a handler around the injected verifier.
func NewVerifyHandler(verifier Verifier) *VerifyHandler {
	return &VerifyHandler{
		verifier: verifier,
		logger:   log.New(log.Writer(), "[verify] ", log.LstdFlags),
	}
}

// Handle verifies the record referenced by a proof.anchored event. Ledger
// unavailability is returned as an error so the message is retried; a failed
// verdict is terminal and only reported.
func (h *VerifyHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != "proof.anchored" {
		return nil
	}

	var ev events.ProofAnchored
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return err
	}

	result, err := h.verifier.Verify(ctx, ev.RecordID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			// The record vanished between anchor and reconciliation; nothing
			// to retry, but worth a trace.
			h.logger.Printf("record %d missing during reconciliation", ev.RecordID)
			return nil
		}
		// Ledger unavailability and store failures are transient: returning
		// the error leaves the message uncommitted for a later retry.
		return err
	}

	observability.RecordVerdict(result.Valid, result.ExistsInLedger)
	if !result.Valid {
		h.logger.Printf("ALERT record %d failed verification: local=%s stored=%s existsInLedger=%t",
			ev.RecordID, result.LocalFingerprint, ev.Fingerprint, result.ExistsInLedger)
	}
	return nil
}
