// Package api exposes HTTP handlers for the proof service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ardhimaskoi/Davin-App/internal/auth"
	"github.com/ardhimaskoi/Davin-App/internal/domain"
	"github.com/ardhimaskoi/Davin-App/internal/ledger"
	"github.com/ardhimaskoi/Davin-App/internal/observability"
	"github.com/ardhimaskoi/Davin-App/internal/persistence"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/activity-proofs", h.proofs)
	mux.HandleFunc("/activity-proofs/", h.proofSubresource)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) proofs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createProof(w, r)
	case http.MethodGet:
		h.listProofs(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) proofSubresource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/activity-proofs/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "verify" {
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid record id")
		return
	}
	h.verifyProof(w, r, id)
}

func (h *Handler) createProof(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeProofsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope proofs:write required")
		return
	}

	var req CreateProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	start := time.Now()
	record, err := h.service.Record(r.Context(), domain.RecordInput{
		SubjectID: req.SubjectID,
		Action:    domain.Action(req.Action),
		Asset:     req.Asset,
		Quantity:  req.Quantity,
	})
	if err != nil {
		recordFailureMetric(err)
		writeServiceError(w, err)
		return
	}
	observability.ObserveSubmit(time.Since(start))

	writeJSON(w, http.StatusCreated, CreateProofResponse{
		ID:             record.ID,
		Fingerprint:    record.Fingerprint,
		ConfirmationID: record.ConfirmationID,
	})
}

func (h *Handler) listProofs(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeProofsRead) && !claims.HasScope(auth.ScopeProofsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope proofs:read required")
		return
	}

	rawSubject := r.URL.Query().Get("subjectId")
	subjectID, err := strconv.ParseInt(rawSubject, 10, 64)
	if err != nil || subjectID <= 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing or invalid subjectId parameter")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	records, next, err := h.service.ListBySubject(r.Context(), subjectID, cursor, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	items := make([]RecordView, 0, len(records))
	for _, record := range records {
		items = append(items, toRecordView(record))
	}

	writeJSON(w, http.StatusOK, ListProofsResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) verifyProof(w http.ResponseWriter, r *http.Request, id int64) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeProofsRead) && !claims.HasScope(auth.ScopeProofsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope proofs:read required")
		return
	}

	result, err := h.service.Verify(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	observability.RecordVerdict(result.Valid, result.ExistsInLedger)

	writeJSON(w, http.StatusOK, VerifyResponse{
		Valid:            result.Valid,
		LocalFingerprint: result.LocalFingerprint,
		ExistsInLedger:   result.ExistsInLedger,
		Message:          verdictMessage(result),
	})
}

func verdictMessage(result *domain.VerificationResult) string {
	switch {
	case result.Valid:
		return "record intact and anchored in ledger"
	case !result.ExistsInLedger:
		return "fingerprint not found in ledger event history"
	default:
		return "stored fields do not reproduce the anchored fingerprint"
	}
}

// CreateProofRequest is the payload for POST /activity-proofs.
type CreateProofRequest struct {
	SubjectID int64           `json:"subjectId"`
	Action    string          `json:"action"`
	Asset     string          `json:"asset"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// Validate ensures request correctness before the encoder sees it.
func (r CreateProofRequest) Validate() error {
	if r.SubjectID <= 0 {
		return errors.New("subjectId is required")
	}
	if strings.TrimSpace(r.Action) == "" {
		return errors.New("action is required")
	}
	if strings.TrimSpace(r.Asset) == "" {
		return errors.New("asset is required")
	}
	if r.Quantity.IsNegative() {
		return errors.New("quantity must not be negative")
	}
	return nil
}

// CreateProofResponse describes the response body for create.
type CreateProofResponse struct {
	ID             int64  `json:"id"`
	Fingerprint    string `json:"fingerprint"`
	ConfirmationID string `json:"confirmationId"`
}

// RecordView exposes full details about an anchored record.
type RecordView struct {
	ID             int64     `json:"id"`
	SubjectID      int64     `json:"subjectId"`
	Action         string    `json:"action"`
	Asset          string    `json:"asset"`
	Quantity       string    `json:"quantity"`
	Fingerprint    string    `json:"fingerprint"`
	ConfirmationID string    `json:"confirmationId"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ListProofsResponse packages list results.
type ListProofsResponse struct {
	Items      []RecordView `json:"items"`
	NextCursor string       `json:"nextCursor,omitempty"`
}

// VerifyResponse reports the verification verdict with enough detail to tell
// "ledger unreachable" apart from "tampering detected".
type VerifyResponse struct {
	Valid            bool   `json:"valid"`
	LocalFingerprint string `json:"localFingerprint"`
	ExistsInLedger   bool   `json:"existsInLedger"`
	Message          string `json:"message"`
}

func toRecordView(record domain.ActivityRecord) RecordView {
	return RecordView{
		ID:             record.ID,
		SubjectID:      record.SubjectID,
		Action:         string(record.Action),
		Asset:          record.Asset,
		Quantity:       record.Quantity.String(),
		Fingerprint:    record.Fingerprint,
		ConfirmationID: record.ConfirmationID,
		CreatedAt:      record.CreatedAt,
	}
}

// writeServiceError maps domain and ledger errors onto the HTTP surface. No
// error is downgraded to an empty result; ledger failures surface as 502 so
// callers never mistake "unreachable" for "verified".
func writeServiceError(w http.ResponseWriter, err error) {
	var encErr *domain.EncodingError
	if errors.As(err, &encErr) {
		writeError(w, http.StatusBadRequest, "encoding_error", encErr.Error())
		return
	}

	var orphanErr *domain.PersistAfterSubmitError
	if errors.As(err, &orphanErr) {
		// The anchor exists on the ledger with no local counterpart. Loud and
		// distinct: the repair is re-inserting the record, never resubmitting.
		writeError(w, http.StatusInternalServerError, "persistence_after_submit", orphanErr.Error())
		return
	}

	switch {
	case errors.Is(err, ledger.ErrTimeout):
		writeError(w, http.StatusBadGateway, "ledger_timeout", err.Error())
	case errors.Is(err, ledger.ErrRejected):
		writeError(w, http.StatusBadGateway, "ledger_rejected", err.Error())
	case errors.Is(err, ledger.ErrUnavailable):
		writeError(w, http.StatusBadGateway, "ledger_unavailable", err.Error())
	case errors.Is(err, domain.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "not_found", "activity record not found")
	case errors.Is(err, domain.ErrDuplicateFingerprint):
		writeError(w, http.StatusConflict, "duplicate_fingerprint", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func recordFailureMetric(err error) {
	var orphanErr *domain.PersistAfterSubmitError
	switch {
	case errors.As(err, &orphanErr):
		observability.RecordSubmitFailure("orphaned")
	case errors.Is(err, ledger.ErrTimeout):
		observability.RecordSubmitFailure("timeout")
	case errors.Is(err, ledger.ErrRejected):
		observability.RecordSubmitFailure("rejected")
	case errors.Is(err, ledger.ErrUnavailable):
		observability.RecordSubmitFailure("unavailable")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]string{
		"type":    code,
		"message": message,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
