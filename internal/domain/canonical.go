package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// encodeDelimiter separates canonical fields. None of the encoded fields may
// contain it: subject ids are numeric, actions come from a closed set, and
// asset symbols are short tickers.
const encodeDelimiter = "|"

// Encode produces the canonical text for an activity. The field order and
// delimiter are fixed forever: the fingerprint of every anchored record
// depends on them.
//
// Action and asset are encoded verbatim as supplied; callers that want
// case-insensitive identity must normalize before calling. Quantity is
// normalized to its shortest decimal representation so that mathematically
// equal values (2 vs 2.0) encode identically regardless of how the value was
// serialized when read back from storage.
func Encode(subjectID int64, action Action, asset string, quantity decimal.Decimal) (string, error) {
	if subjectID <= 0 {
		return "", &EncodingError{Field: "subjectId", Reason: "must be positive"}
	}
	if !action.Known() {
		return "", &EncodingError{Field: "action", Reason: fmt.Sprintf("unknown action %q", string(action))}
	}
	if strings.TrimSpace(asset) == "" {
		return "", &EncodingError{Field: "asset", Reason: "must not be empty"}
	}
	if strings.Contains(asset, encodeDelimiter) {
		return "", &EncodingError{Field: "asset", Reason: "must not contain the delimiter"}
	}
	if quantity.IsNegative() {
		return "", &EncodingError{Field: "quantity", Reason: "must not be negative"}
	}
	return canonicalText(subjectID, action, asset, quantity), nil
}

// canonicalText renders the fields without validating them. Verification
// recomputes fingerprints from whatever is stored, including fields tampered
// into shapes Encode rejects; validation belongs to the write path only.
func canonicalText(subjectID int64, action Action, asset string, quantity decimal.Decimal) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(subjectID, 10))
	b.WriteString(encodeDelimiter)
	b.WriteString(string(action))
	b.WriteString(encodeDelimiter)
	b.WriteString(asset)
	b.WriteString(encodeDelimiter)
	// Decimal.String trims trailing zeros, so "2.0" and "2" both render "2".
	b.WriteString(quantity.String())
	return b.String()
}
