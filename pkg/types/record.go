package types

import "time"

// Importance bounds for memory records. Importance is an integer score;
// values outside the range are rejected on write.
const (
	ImportanceMin     = 1
	ImportanceMax     = 10
	ImportanceDefault = 5
)

// ClampImportance clamps v into the valid importance range.
// Used for programmatic adjustments (e.g., usage boosts); explicit writes
// with out-of-range importance are rejected instead.
func ClampImportance(v int) int {
	if v < ImportanceMin {
		return ImportanceMin
	}
	if v > ImportanceMax {
		return ImportanceMax
	}
	return v
}

// Record represents a single persisted memory unit about the principal.
// A record is one of four kinds (fact, project, foundation, notebook);
// kind-specific payloads live in the optional Project/Foundation/Notebook
// fields and exactly one of them is set for non-fact kinds.
type Record struct {
	// Core identification fields
	ID        string     `json:"id"`   // Unique identifier (format: mem:kind:slug)
	Kind      RecordKind `json:"kind"` // Record variant
	Content   string     `json:"content"`
	Tags      []string   `json:"tags,omitempty"`
	Source    string     `json:"source,omitempty"` // Origin of the record (e.g., "manual", "research")

	// Importance drives the default query ordering and the ranker's
	// importance component. Bounded to [ImportanceMin, ImportanceMax].
	Importance int `json:"importance"`

	// Active is the soft-delete flag. Records are never hard-deleted;
	// deactivated records are excluded from queries and ranking.
	Active bool `json:"active"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"` // Optional expiry; expired records never rank

	// Kind-specific payloads
	Project    *ProjectFields    `json:"project,omitempty"`
	Foundation *FoundationFields `json:"foundation,omitempty"`
	Notebook   *NotebookFields   `json:"notebook,omitempty"`

	// Arbitrary metadata
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ProjectFields carries the structured state of a project record.
type ProjectFields struct {
	Status    ProjectStatus `json:"status"`
	Phase     string        `json:"phase,omitempty"`
	Goals     []string      `json:"goals,omitempty"`     // Ordered goals
	Decisions []string      `json:"decisions,omitempty"` // Ordered decisions made
	Blockers  []string      `json:"blockers,omitempty"`
}

// FoundationFields carries the structured state of a foundation record.
type FoundationFields struct {
	Domain      string   `json:"domain"`
	Subject     string   `json:"subject"`
	Title       string   `json:"title"`
	KeyConcepts []string `json:"key_concepts,omitempty"`
	Confidence  int      `json:"confidence"` // 1-10, how settled the distillation is
}

// NotebookFields carries the structured state of a notebook entry.
// ParentID links to the entry this one revises, forming an acyclic
// version chain (each entry points to exactly one earlier parent).
type NotebookFields struct {
	Title    string         `json:"title"`
	Status   NotebookStatus `json:"status"`
	ParentID string         `json:"parent_id,omitempty"`
	Version  int            `json:"version"`
}

// Expired reports whether the record's expiry timestamp has passed.
// Records without an expiry never expire.
func (r *Record) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

// NormalizedImportance rescales the bounded importance range to [0, 1].
func (r *Record) NormalizedImportance() float64 {
	v := ClampImportance(r.Importance)
	return float64(v-ImportanceMin) / float64(ImportanceMax-ImportanceMin)
}

// ConversationTurn is one ordered, immutable log entry of a session.
// Turns are append-only; they are never updated after creation.
type ConversationTurn struct {
	ID         int64                  `json:"id"`
	SessionID  string                 `json:"session_id"`
	UserID     string                 `json:"user_id"`
	Role       string                 `json:"role"` // "user" or "assistant"
	Content    string                 `json:"content"`
	TokenCount int                    `json:"token_count,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}
