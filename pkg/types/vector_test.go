package types

import (
	"strings"
	"testing"
)

func TestVectorMemoryIDDeterministic(t *testing.T) {
	a := VectorMemoryID("alice", VectorTypeTurn, "remember the milk")
	b := VectorMemoryID("alice", VectorTypeTurn, "remember the milk")
	if a != b {
		t.Errorf("same inputs produced different IDs: %s vs %s", a, b)
	}
	if len(a) != 32 {
		t.Errorf("expected 32-char ID, got %d chars", len(a))
	}
}

func TestVectorMemoryIDDiscriminates(t *testing.T) {
	base := VectorMemoryID("alice", VectorTypeTurn, "remember the milk")
	if VectorMemoryID("bob", VectorTypeTurn, "remember the milk") == base {
		t.Error("different users should produce different IDs")
	}
	if VectorMemoryID("alice", VectorTypeDoc, "remember the milk") == base {
		t.Error("different subtypes should produce different IDs")
	}
	if VectorMemoryID("alice", VectorTypeTurn, "remember the eggs") == base {
		t.Error("different text should produce different IDs")
	}
}

func TestVectorMemoryIDLongTextPrefix(t *testing.T) {
	prefix := strings.Repeat("x", 200)
	a := VectorMemoryID("alice", VectorTypeDoc, prefix+" tail one")
	b := VectorMemoryID("alice", VectorTypeDoc, prefix+" tail two")
	if a != b {
		t.Error("texts sharing the first 200 chars should hash to the same ID")
	}
}
