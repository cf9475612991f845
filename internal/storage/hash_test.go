package storage

import (
	"testing"
)

func TestHashTokenStable(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	token := "errly_ab12_" + repeatHex(64) // pragma: allowlist secret

	first := HashToken(token)
	second := HashToken(token)

	if first != second {
		t.Errorf("hash not stable across invocations: %s != %s", first, second)
	}

	if len(first) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(first))
	}

	for _, c := range first {
		isHex := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
		if !isHex {
			t.Errorf("hash contains non-lowercase-hex char %q", c)
		}
	}
}

func TestHashTokenDistinguishesInputs(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	if HashToken("a") == HashToken("b") {
		t.Error("different inputs should not collide")
	}

	// Case-sensitive: the token format is case-sensitive, so is the hash.
	if HashToken("Errly") == HashToken("errly") {
		t.Error("hash must be case-sensitive")
	}
}

// repeatHex builds a deterministic hex string of length n for test tokens.
func repeatHex(n int) string {
	const digits = "0123456789abcdef"

	out := make([]byte, n)
	for i := range out {
		out[i] = digits[i%len(digits)]
	}

	return string(out)
}
