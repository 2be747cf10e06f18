// Package ledger implements the JSON-RPC client for the external proof
// ledger: an Ethereum-style node hosting the deployed ProofStorage contract.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ardhimaskoi/Davin-App/internal/domain"
)

var (
	// ErrUnavailable indicates a transport or node failure. Nothing was
	// anchored; the whole operation may be retried after backoff.
	ErrUnavailable = errors.New("ledger unavailable")
	// ErrRejected indicates the ledger explicitly refused the write. Definitive;
	// not retried automatically.
	ErrRejected = errors.New("ledger rejected submission")
	// ErrTimeout indicates the submission outcome is unknown: the transaction
	// may or may not have been accepted. Callers must reconcile against the
	// event history before resubmitting.
	ErrTimeout = errors.New("ledger submission outcome unknown")
)

// Config carries the connection parameters for the ledger node.
type Config struct {
	RPCURL          string
	ContractAddress string
	FromAccount     string
	SubmitGas       uint64
	// SubmitTimeout bounds one Submit call including the finality wait. The
	// caller's context may shorten it further.
	SubmitTimeout   time.Duration
	ReceiptInterval time.Duration
}

// Client talks to the ledger node over JSON-RPC. One instance is constructed
// at startup and shared by every in-flight record/verify call; the underlying
// http.Client serializes nothing beyond its connection pool.
type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	requestID  atomic.Uint64
}

// NewClient constructs a Client with a circuit breaker over transport calls.
func NewClient(cfg Config) *Client {
	if cfg.SubmitGas == 0 {
		cfg.SubmitGas = 200000
	}
	if cfg.ReceiptInterval <= 0 {
		cfg.ReceiptInterval = 500 * time.Millisecond
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ledger-rpc",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		breaker:    breaker,
	}
}

// Close releases pooled connections. Call at shutdown.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Submit anchors a fingerprint via storeProof and blocks until the node
// reports the transaction mined. The returned confirmation id is the
// transaction hash. A context deadline reached after the transaction was sent
// is ambiguous and reported as ErrTimeout; resubmitting after ErrTimeout may
// anchor the fingerprint twice.
func (c *Client) Submit(ctx context.Context, fingerprint string) (string, error) {
	if c.cfg.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.SubmitTimeout)
		defer cancel()
	}

	word, err := fingerprintWord(fingerprint)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRejected, err)
	}

	tx := map[string]string{
		"from": c.cfg.FromAccount,
		"to":   c.cfg.ContractAddress,
		"gas":  hexUint(c.cfg.SubmitGas),
		"data": "0x" + storeProofSelector + word,
	}

	var txHash string
	if err := c.call(ctx, "eth_sendTransaction", []any{tx}, &txHash); err != nil {
		var rpcErr *rpcError
		if errors.As(err, &rpcErr) {
			return "", fmt.Errorf("%w: %s", ErrRejected, rpcErr.Message)
		}
		if ctx.Err() != nil {
			// The request may have reached the node before the deadline hit.
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := c.awaitReceipt(ctx, txHash); err != nil {
		return "", err
	}
	return txHash, nil
}

// awaitReceipt polls until the transaction is mined. The transaction is
// already on the wire, so every failure from here on is ambiguous rather
// than retry-safe.
func (c *Client) awaitReceipt(ctx context.Context, txHash string) error {
	ticker := time.NewTicker(c.cfg.ReceiptInterval)
	defer ticker.Stop()

	for {
		var receipt *txReceipt
		if err := c.call(ctx, "eth_getTransactionReceipt", []any{txHash}, &receipt); err != nil {
			return fmt.Errorf("%w: awaiting receipt for %s: %v", ErrTimeout, txHash, err)
		}
		if receipt != nil {
			if receipt.Status == "0x0" {
				return fmt.Errorf("%w: transaction %s reverted", ErrRejected, txHash)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: transaction %s unconfirmed: %v", ErrTimeout, txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Events replays ProofStored events emitted by the contract over the block
// range, in ledger order. A zero `to` means latest. Read-only; all failures
// map to ErrUnavailable because nothing durable is at stake.
func (c *Client) Events(ctx context.Context, from, to uint64) ([]domain.LedgerEvent, error) {
	toBlock := "latest"
	if to != domain.EventRangeAll {
		toBlock = hexUint(to)
	}
	filter := map[string]any{
		"address":   c.cfg.ContractAddress,
		"topics":    []string{proofStoredTopic},
		"fromBlock": hexUint(from),
		"toBlock":   toBlock,
	}

	var logs []rpcLog
	if err := c.call(ctx, "eth_getLogs", []any{filter}, &logs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	events := make([]domain.LedgerEvent, 0, len(logs))
	for _, entry := range logs {
		fp, err := wordFingerprint(entry.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed ProofStored data %q: %v", ErrUnavailable, entry.Data, err)
		}
		seq, err := parseHexUint(entry.BlockNumber)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed block number %q: %v", ErrUnavailable, entry.BlockNumber, err)
		}
		events = append(events, domain.LedgerEvent{Fingerprint: fp, Sequence: seq})
	}
	return events, nil
}

type txReceipt struct {
	Status string `json:"status"`
}

type rpcLog struct {
	Data        string `json:"data"`
	BlockNumber string `json:"blockNumber"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call performs one JSON-RPC request. Transport failures pass through the
// circuit breaker; an open breaker fails fast without touching the network.
// RPC-level errors are returned as *rpcError and do not trip the breaker.
func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      c.requestID.Add(1),
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return err
	}

	raw, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RPCURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %s", resp.Status)
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("circuit breaker open: %w", err)
		}
		return err
	}

	var envelope rpcEnvelope
	if err := json.Unmarshal(raw.([]byte), &envelope); err != nil {
		return err
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	return json.Unmarshal(envelope.Result, result)
}

// fingerprintWord strips the 0x prefix and validates the fingerprint encodes
// exactly one 32-byte word.
func fingerprintWord(fingerprint string) (string, error) {
	if !strings.HasPrefix(fingerprint, "0x") {
		return "", fmt.Errorf("fingerprint %q missing 0x prefix", fingerprint)
	}
	word := fingerprint[2:]
	if len(word) != 64 {
		return "", fmt.Errorf("fingerprint %q is not a 32-byte word", fingerprint)
	}
	for _, r := range word {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return "", fmt.Errorf("fingerprint %q is not lowercase hex", fingerprint)
		}
	}
	return word, nil
}

// wordFingerprint converts a 32-byte log data word back into fingerprint form.
func wordFingerprint(data string) (string, error) {
	word := strings.TrimPrefix(strings.ToLower(data), "0x")
	if len(word) != 64 {
		return "", fmt.Errorf("expected 32-byte word, got %d hex chars", len(word))
	}
	return "0x" + word, nil
}

func hexUint(v uint64) string {
	return "0x" + strconv.FormatUint(v, 16)
}

func parseHexUint(v string) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(v, "0x"), 16, 64)
}
