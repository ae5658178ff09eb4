package crypto

import (
	"strings"
	"testing"
)

func TestNewTokenShapeAndUniqueness(t *testing.T) {
	g, err := NewTokenGenerator(16)
	if err != nil {
		t.Fatal(err)
	}

	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		tok, err := g.NewToken()
		if err != nil {
			t.Fatal(err)
		}
		if len(tok) != 16 {
			t.Fatalf("expected 16 chars, got %q", tok)
		}
		for _, r := range tok {
			if !strings.ContainsRune(tokenAlphabet, r) {
				t.Fatalf("token %q contains non-alphanumeric %q", tok, r)
			}
		}
		if seen[tok] {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = true
	}
}

func TestNewTokenGeneratorRejectsShortTokens(t *testing.T) {
	if _, err := NewTokenGenerator(8); err == nil {
		t.Fatal("expected error for token length below minimum")
	}
}

func TestAddressHasher(t *testing.T) {
	h, err := NewAddressHasher("pepper")
	if err != nil {
		t.Fatal(err)
	}
	a := h.Hash("203.0.113.7")
	if a != h.Hash("203.0.113.7") {
		t.Error("hash must be deterministic")
	}
	if a == h.Hash("203.0.113.8") {
		t.Error("different addresses must hash differently")
	}
	if strings.Contains(a, "203.0.113.7") || len(a) != 64 {
		t.Errorf("unexpected hash %q", a)
	}

	other, _ := NewAddressHasher("salt")
	if other.Hash("203.0.113.7") == a {
		t.Error("hash must depend on key")
	}
	if _, err := NewAddressHasher(""); err == nil {
		t.Error("expected error for empty key")
	}
}
