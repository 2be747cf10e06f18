package domain

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestFingerprintShape(t *testing.T) {
	fp := Fingerprint("42|BUY|BBCA|2.5")

	if len(fp) != 66 {
		t.Fatalf("expected 66 characters, got %d: %q", len(fp), fp)
	}
	if !strings.HasPrefix(fp, FingerprintPrefix) {
		t.Fatalf("missing %q prefix: %q", FingerprintPrefix, fp)
	}
	for _, r := range fp[2:] {
		if !strings.ContainsRune("0123456789abcdef", r) {
			t.Fatalf("non lowercase-hex rune %q in %q", r, fp)
		}
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	canonical, err := Encode(42, ActionBuy, "BBCA", decimal.RequireFromString("2.5"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := Fingerprint(canonical)
	for i := 0; i < 10; i++ {
		if got := Fingerprint(canonical); got != first {
			t.Fatalf("fingerprint not deterministic: %q vs %q", got, first)
		}
	}
}

func TestFingerprintKnownVector(t *testing.T) {
	// sha256("") is a fixed public constant; the prefix convention and hex
	// casing must never drift.
	const want = "0xe3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Fingerprint(""); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestFingerprintSensitivity(t *testing.T) {
	a := Fingerprint("42|BUY|BBCA|2.5")
	b := Fingerprint("42|BUY|BBCA|2.6")
	if a == b {
		t.Fatal("distinct canonical texts must produce distinct fingerprints")
	}
}
