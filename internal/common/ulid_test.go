package common

import "testing"

func TestNewULID(t *testing.T) {
	a, err := NewULID()
	if err != nil {
		t.Fatalf("new ulid: %v", err)
	}
	b, err := NewULID()
	if err != nil {
		t.Fatalf("new ulid: %v", err)
	}
	if len(a) != 26 || len(b) != 26 {
		t.Fatalf("expected 26 chars, got %d and %d", len(a), len(b))
	}
	if a == b {
		t.Fatalf("expected distinct ids, got %q twice", a)
	}
}
