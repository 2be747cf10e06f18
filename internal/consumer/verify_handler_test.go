package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ardhimaskoi/Davin-App/internal/domain"
	"github.com/ardhimaskoi/Davin-App/internal/events"
)

type stubVerifier struct {
	calls  []int64
	result *domain.VerificationResult
	err    error
}

func (v *stubVerifier) Verify(_ context.Context, recordID int64) (*domain.VerificationResult, error) {
	v.calls = append(v.calls, recordID)
	return v.result, v.err
}

func anchoredMessage(t *testing.T, recordID int64) Message {
	t.Helper()
	payload, err := json.Marshal(events.ProofAnchored{
		RecordID:    recordID,
		SubjectID:   42,
		Action:      "BUY",
		Asset:       "BBCA",
		Quantity:    "2.5",
		Fingerprint: "0xe3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
	})
	require.NoError(t, err)
	return Message{
		Topic:     "proof_events",
		EventType: "proof.anchored",
		Payload:   payload,
	}
}

func TestVerifyHandlerChecksAnchoredRecord(t *testing.T) {
	verifier := &stubVerifier{
		result: &domain.VerificationResult{Valid: true, ExistsInLedger: true},
	}
	handler := NewVerifyHandler(verifier)

	err := handler.Handle(context.Background(), anchoredMessage(t, 7))
	require.NoError(t, err)
	require.Equal(t, []int64{7}, verifier.calls)
}

func TestVerifyHandlerIgnoresOtherEventTypes(t *testing.T) {
	verifier := &stubVerifier{}
	handler := NewVerifyHandler(verifier)

	err := handler.Handle(context.Background(), Message{EventType: "proof.revoked", Payload: json.RawMessage(`{}`)})
	require.NoError(t, err)
	require.Empty(t, verifier.calls)
}

func TestVerifyHandlerSwallowsMissingRecord(t *testing.T) {
	verifier := &stubVerifier{err: domain.ErrRecordNotFound}
	handler := NewVerifyHandler(verifier)

	err := handler.Handle(context.Background(), anchoredMessage(t, 9))
	require.NoError(t, err, "a vanished record is terminal, not retryable")
}

func TestVerifyHandlerRetriesTransientFailures(t *testing.T) {
	transient := errors.New("ledger unavailable")
	verifier := &stubVerifier{err: transient}
	handler := NewVerifyHandler(verifier)

	err := handler.Handle(context.Background(), anchoredMessage(t, 11))
	require.ErrorIs(t, err, transient)
}

func TestVerifyHandlerReportsInvalidVerdict(t *testing.T) {
	verifier := &stubVerifier{
		result: &domain.VerificationResult{Valid: false, ExistsInLedger: false, LocalFingerprint: "0xabc"},
	}
	handler := NewVerifyHandler(verifier)

	// An invalid verdict is alerting territory, not a processing failure.
	err := handler.Handle(context.Background(), anchoredMessage(t, 13))
	require.NoError(t, err)
	require.Equal(t, []int64{13}, verifier.calls)
}
