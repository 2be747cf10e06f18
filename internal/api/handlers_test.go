package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ardhimaskoi/Davin-App/internal/auth"
	"github.com/ardhimaskoi/Davin-App/internal/domain"
)

func TestCreateProofSuccess(t *testing.T) {
	repo := newMockRepo()
	handler := NewHandler(domain.NewService(repo, &mockLedger{}))

	body := `{"subjectId": 42, "action": "BUY", "asset": "BBCA", "quantity": "2.5"}`
	req := httptest.NewRequest(http.MethodPost, "/activity-proofs", strings.NewReader(body))
	req = req.WithContext(auth.WithClaims(req.Context(), writerClaims()))

	rr := httptest.NewRecorder()
	handler.proofs(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp CreateProofResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != 1 {
		t.Fatalf("expected id 1 got %d", resp.ID)
	}
	if len(resp.Fingerprint) != 66 || !strings.HasPrefix(resp.Fingerprint, "0x") {
		t.Fatalf("malformed fingerprint %q", resp.Fingerprint)
	}
	if resp.ConfirmationID == "" {
		t.Fatal("expected a confirmation id")
	}
}

func TestCreateProofRequiresWriteScope(t *testing.T) {
	handler := NewHandler(domain.NewService(newMockRepo(), &mockLedger{}))

	body := `{"subjectId": 42, "action": "BUY", "asset": "BBCA", "quantity": "2.5"}`
	req := httptest.NewRequest(http.MethodPost, "/activity-proofs", strings.NewReader(body))
	req = req.WithContext(auth.WithClaims(req.Context(), readerClaims()))

	rr := httptest.NewRecorder()
	handler.proofs(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
}

func TestCreateProofValidation(t *testing.T) {
	handler := NewHandler(domain.NewService(newMockRepo(), &mockLedger{}))

	cases := []struct {
		name string
		body string
	}{
		{"missing subject", `{"action": "BUY", "asset": "BBCA", "quantity": "1"}`},
		{"missing action", `{"subjectId": 42, "asset": "BBCA", "quantity": "1"}`},
		{"missing asset", `{"subjectId": 42, "action": "BUY", "quantity": "1"}`},
		{"negative quantity", `{"subjectId": 42, "action": "BUY", "asset": "BBCA", "quantity": "-1"}`},
		{"garbage body", `{"subjectId": `},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/activity-proofs", strings.NewReader(tc.body))
			req = req.WithContext(auth.WithClaims(req.Context(), writerClaims()))

			rr := httptest.NewRecorder()
			handler.proofs(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d: %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestCreateProofUnknownAction(t *testing.T) {
	handler := NewHandler(domain.NewService(newMockRepo(), &mockLedger{}))

	body := `{"subjectId": 42, "action": "hold", "asset": "BBCA", "quantity": "1"}`
	req := httptest.NewRequest(http.MethodPost, "/activity-proofs", strings.NewReader(body))
	req = req.WithContext(auth.WithClaims(req.Context(), writerClaims()))

	rr := httptest.NewRecorder()
	handler.proofs(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", rr.Code, rr.Body.String())
	}

	var payload map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode error payload: %v", err)
	}
	if payload["type"] != "encoding_error" {
		t.Fatalf("expected encoding_error got %q", payload["type"])
	}
}

func TestVerifyProofIntact(t *testing.T) {
	repo := newMockRepo()
	ledger := &mockLedger{}
	handler := NewHandler(domain.NewService(repo, ledger))

	created := createProof(t, handler)

	req := httptest.NewRequest(http.MethodGet, "/activity-proofs/1/verify", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), readerClaims()))

	rr := httptest.NewRecorder()
	handler.proofSubresource(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp VerifyResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Valid {
		t.Fatalf("expected valid verdict: %+v", resp)
	}
	if resp.LocalFingerprint != created.Fingerprint {
		t.Fatalf("fingerprint mismatch: %q vs %q", resp.LocalFingerprint, created.Fingerprint)
	}
}

func TestVerifyProofDetectsMissingAnchor(t *testing.T) {
	repo := newMockRepo()
	ledger := &mockLedger{}
	handler := NewHandler(domain.NewService(repo, ledger))

	createProof(t, handler)
	ledger.events = nil // history without the anchor

	req := httptest.NewRequest(http.MethodGet, "/activity-proofs/1/verify", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), readerClaims()))

	rr := httptest.NewRecorder()
	handler.proofSubresource(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp VerifyResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Valid || resp.ExistsInLedger {
		t.Fatalf("expected missing-anchor verdict: %+v", resp)
	}
}

func TestVerifyProofNotFound(t *testing.T) {
	handler := NewHandler(domain.NewService(newMockRepo(), &mockLedger{}))

	req := httptest.NewRequest(http.MethodGet, "/activity-proofs/99/verify", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), readerClaims()))

	rr := httptest.NewRecorder()
	handler.proofSubresource(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestVerifyProofInvalidID(t *testing.T) {
	handler := NewHandler(domain.NewService(newMockRepo(), &mockLedger{}))

	for _, path := range []string{"/activity-proofs/abc/verify", "/activity-proofs/0/verify", "/activity-proofs/-1/verify"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req = req.WithContext(auth.WithClaims(req.Context(), readerClaims()))

		rr := httptest.NewRecorder()
		handler.proofSubresource(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", path, rr.Code)
		}
	}
}

func TestListProofsRequiresSubject(t *testing.T) {
	handler := NewHandler(domain.NewService(newMockRepo(), &mockLedger{}))

	req := httptest.NewRequest(http.MethodGet, "/activity-proofs", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), readerClaims()))

	rr := httptest.NewRecorder()
	handler.proofs(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestListProofsReturnsRecords(t *testing.T) {
	repo := newMockRepo()
	handler := NewHandler(domain.NewService(repo, &mockLedger{}))

	createProof(t, handler)

	req := httptest.NewRequest(http.MethodGet, "/activity-proofs?subjectId=42", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), readerClaims()))

	rr := httptest.NewRecorder()
	handler.proofs(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp ListProofsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 item got %d", len(resp.Items))
	}
	item := resp.Items[0]
	if item.SubjectID != 42 || item.Action != "BUY" || item.Asset != "BBCA" {
		t.Fatalf("unexpected item %+v", item)
	}
	if item.Quantity != "2.5" {
		t.Fatalf("expected normalized quantity 2.5 got %q", item.Quantity)
	}
}

func TestMissingClaimsRejected(t *testing.T) {
	handler := NewHandler(domain.NewService(newMockRepo(), &mockLedger{}))

	req := httptest.NewRequest(http.MethodGet, "/activity-proofs?subjectId=42", nil)
	rr := httptest.NewRecorder()
	handler.proofs(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

func createProof(t *testing.T, handler *Handler) CreateProofResponse {
	t.Helper()

	body := `{"subjectId": 42, "action": "BUY", "asset": "BBCA", "quantity": "2.5"}`
	req := httptest.NewRequest(http.MethodPost, "/activity-proofs", strings.NewReader(body))
	req = req.WithContext(auth.WithClaims(req.Context(), writerClaims()))

	rr := httptest.NewRecorder()
	handler.proofs(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("setup create failed: %d %s", rr.Code, rr.Body.String())
	}

	var resp CreateProofResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode create response: %v", err)
	}
	return resp
}

func writerClaims() *auth.Claims {
	return &auth.Claims{
		Subject: "tester",
		Scopes: map[string]struct{}{
			auth.ScopeProofsWrite: {},
		},
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func readerClaims() *auth.Claims {
	return &auth.Claims{
		Subject: "tester",
		Scopes: map[string]struct{}{
			auth.ScopeProofsRead: {},
		},
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

type mockRepo struct {
	records map[int64]*domain.ActivityRecord
	nextID  int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{records: map[int64]*domain.ActivityRecord{}, nextID: 1}
}

func (m *mockRepo) Insert(ctx context.Context, record domain.ActivityRecord) (int64, error) {
	id := m.nextID
	m.nextID++
	record.ID = id
	m.records[id] = &record
	return id, nil
}

func (m *mockRepo) GetByID(ctx context.Context, id int64) (*domain.ActivityRecord, error) {
	record, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	clone := *record
	return &clone, nil
}

func (m *mockRepo) ListBySubject(ctx context.Context, subjectID int64, cursor *domain.Cursor, limit int) ([]domain.ActivityRecord, *domain.Cursor, error) {
	out := make([]domain.ActivityRecord, 0)
	for _, record := range m.records {
		if record.SubjectID == subjectID {
			out = append(out, *record)
		}
	}
	return out, nil, nil
}

type mockLedger struct {
	events []domain.LedgerEvent
}

func (m *mockLedger) Submit(ctx context.Context, fingerprint string) (string, error) {
	m.events = append(m.events, domain.LedgerEvent{Fingerprint: fingerprint, Sequence: uint64(len(m.events) + 1)})
	return "0xconfirmed", nil
}

func (m *mockLedger) Events(ctx context.Context, from, to uint64) ([]domain.LedgerEvent, error) {
	return m.events, nil
}
