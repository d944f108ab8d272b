package storage

import (
	"errors"
	"time"

	"github.com/verdantlabs/recall/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrValidation indicates that the input parameters are invalid.
	ErrValidation = errors.New("invalid input")

	// ErrTerminalState indicates an attempted write to a task that has
	// already reached a terminal state.
	ErrTerminalState = errors.New("task in terminal state")
)

// MaxTopK caps semantic search fan-out regardless of what the caller asks
// for. Larger values only add noise to the ranking stage.
const MaxTopK = 50

// Filter provides filtering options for memory record queries.
type Filter struct {
	// Kind restricts results to a single record kind.
	// Empty string means no filter on kind.
	Kind types.RecordKind

	// Tags restricts results to records carrying ALL of these tags.
	Tags []string

	// TagsAny restricts results to records carrying AT LEAST ONE of
	// these tags. Combined with Tags, both constraints apply.
	TagsAny []string

	// MinImportance restricts results to records with importance >= this
	// value. Zero means no minimum.
	MinImportance int

	// ActiveOnly excludes deactivated records. Default queries should
	// set this; it is a field rather than the default so that
	// administrative listings can see deactivated records too.
	ActiveOnly bool

	// IncludeExpired includes records whose ExpiresAt has passed.
	// By default expired records are excluded.
	IncludeExpired bool

	// Limit is the maximum number of records to return (default: 20, max: 100).
	Limit int
}

// Normalize applies defaults and validates the Filter.
func (f *Filter) Normalize() {
	if f.Limit < 1 {
		f.Limit = 20 // Default limit
	}

	if f.Limit > 100 {
		f.Limit = 100 // Max limit
	}

	if f.MinImportance < 0 {
		f.MinImportance = 0
	}
}

// VectorSearchOptions provides options for semantic search over the
// vector memory index.
type VectorSearchOptions struct {
	// Type restricts results to a single memory subtype (turn, summary,
	// doc). Empty string means no filter on subtype.
	Type string

	// SessionID restricts results to a single session.
	// Empty string means no filter on session.
	SessionID string

	// TopK is the maximum number of matches to return. Must be >= 1;
	// values above MaxTopK are clamped.
	TopK int
}

// Normalize clamps TopK to the allowed ceiling. It does not default a
// non-positive TopK: that is a caller error surfaced as ErrValidation
// by Search implementations.
func (o *VectorSearchOptions) Normalize() {
	if o.TopK > MaxTopK {
		o.TopK = MaxTopK
	}
}

// UpsertRequest describes one unit of text to memorize.
type UpsertRequest struct {
	UserID    string
	SessionID string

	// Type is the memory subtype (turn, summary, doc).
	Type string

	Text string
	Tags map[string]string
}

// Validate checks the request fields that every backend requires.
func (r *UpsertRequest) Validate() error {
	if r.UserID == "" {
		return ErrValidation
	}
	if r.Text == "" {
		return ErrValidation
	}
	if !types.IsValidVectorType(r.Type) {
		return ErrValidation
	}
	return nil
}

// Match is one semantic search hit.
type Match struct {
	// Entry is the stored vector entry, embedding omitted.
	Entry types.VectorEntry

	// Similarity is cosine similarity in [0, 1] against the query.
	Similarity float64
}

// TurnFilter selects conversation turns for the recent-history layer.
type TurnFilter struct {
	// SessionID restricts turns to a single session. Empty means all
	// sessions for the user.
	SessionID string

	// UserID restricts turns to a single user.
	UserID string

	// Limit is the maximum number of turns to return, newest first
	// (default: 10, max: 100).
	Limit int
}

// Normalize applies defaults and validates the TurnFilter.
func (f *TurnFilter) Normalize() {
	if f.Limit < 1 {
		f.Limit = 10
	}

	if f.Limit > 100 {
		f.Limit = 100
	}
}

// Clock lets stores and engines take a time source so tests can pin it.
type Clock func() time.Time
