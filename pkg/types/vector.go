package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// vectorIDTextPrefix bounds how much text participates in the identity
// hash. Edits beyond this prefix do not change the memory ID.
const vectorIDTextPrefix = 200

// VectorMemoryID derives the deterministic identifier for a memorized
// unit of text. Memorizing the same text for the same user and subtype
// always yields the same ID, which is what makes upserts idempotent.
func VectorMemoryID(userID, vectorType, text string) string {
	t := text
	if len(t) > vectorIDTextPrefix {
		t = t[:vectorIDTextPrefix]
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s", userID, vectorType, t)))
	return hex.EncodeToString(sum[:])[:32]
}

// VectorEntry is one memorized unit of text with its embedding.
// Entries are append-only: an entry is never mutated after it is stored.
type VectorEntry struct {
	// MemoryID is the content-derived identifier (VectorMemoryID).
	MemoryID  string `json:"memory_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`

	// Type is the memory subtype (turn, summary, doc).
	Type string `json:"type"`

	Text      string            `json:"text"`
	Embedding []float32         `json:"-"`
	Tags      map[string]string `json:"tags,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
