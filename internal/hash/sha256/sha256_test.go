// Package sha256 includes tests for the SHA-256 hasher adapter.
package sha256

import "testing"

// TestHasherHashDeterministic ensures repeated hashing yields the same digest.
func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("<html><body>listing</body></html>"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if len(got) != 64 {
		t.Fatalf("expected 64 hex chars, got %d (%s)", len(got), got)
	}
	again, err := h.Hash([]byte("<html><body>listing</body></html>"))
	if err != nil {
		t.Fatalf("Hash() repeat error = %v", err)
	}
	if again != got {
		t.Fatalf("expected deterministic hash, got %s vs %s", got, again)
	}
}

// TestHasherHashDistinct ensures different pages yield different digests.
func TestHasherHashDistinct(t *testing.T) {
	t.Parallel()

	h := New()
	a, err := h.Hash([]byte("page one"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	b, err := h.Hash([]byte("page two"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct digests, both were %s", a)
	}
}
