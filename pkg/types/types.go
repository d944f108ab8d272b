// Package types defines the core data structures for the Recall memory
// subsystem: memory records and their kind-specific payloads, conversation
// turns, vector memory entries, and async task records.
package types

// RecordKind identifies the variant of a memory record.
type RecordKind string

// Memory record kind constants. The set is closed: every record carries
// exactly one of these kinds, and kind-specific payloads are dispatched on it.
const (
	// KindFact is an atomic free-text fact about the principal.
	KindFact RecordKind = "fact"

	// KindProject is ongoing project state (status, goals, decisions).
	KindProject RecordKind = "project"

	// KindFoundation is a distilled, cliff-notes-style summary of a
	// studied subject, used as dense background context.
	KindFoundation RecordKind = "foundation"

	// KindNotebook is a versioned notebook entry forming a parent chain.
	KindNotebook RecordKind = "notebook"
)

// ValidRecordKinds is a slice of all valid record kinds for validation.
var ValidRecordKinds = []RecordKind{
	KindFact,
	KindProject,
	KindFoundation,
	KindNotebook,
}

// IsValidRecordKind checks if the given kind is valid.
func IsValidRecordKind(kind RecordKind) bool {
	for _, validKind := range ValidRecordKinds {
		if validKind == kind {
			return true
		}
	}
	return false
}

// ProjectStatus represents the lifecycle status of a project record.
type ProjectStatus string

// Project status constants.
const (
	ProjectPlanning  ProjectStatus = "planning"
	ProjectActive    ProjectStatus = "active"
	ProjectPaused    ProjectStatus = "paused"
	ProjectCompleted ProjectStatus = "completed"
	ProjectArchived  ProjectStatus = "archived"
)

// ValidProjectStatuses is a slice of all valid project statuses.
var ValidProjectStatuses = []ProjectStatus{
	ProjectPlanning,
	ProjectActive,
	ProjectPaused,
	ProjectCompleted,
	ProjectArchived,
}

// IsValidProjectStatus checks if the given project status is valid.
func IsValidProjectStatus(status ProjectStatus) bool {
	for _, validStatus := range ValidProjectStatuses {
		if validStatus == status {
			return true
		}
	}
	return false
}

// NotebookStatus represents the review status of a notebook entry.
// Entries progress draft -> reviewed -> canonical.
type NotebookStatus string

// Notebook status constants.
const (
	NotebookDraft     NotebookStatus = "draft"
	NotebookReviewed  NotebookStatus = "reviewed"
	NotebookCanonical NotebookStatus = "canonical"
)

// ValidNotebookStatuses is a slice of all valid notebook statuses.
var ValidNotebookStatuses = []NotebookStatus{
	NotebookDraft,
	NotebookReviewed,
	NotebookCanonical,
}

// IsValidNotebookStatus checks if the given notebook status is valid.
func IsValidNotebookStatus(status NotebookStatus) bool {
	for _, validStatus := range ValidNotebookStatuses {
		if validStatus == status {
			return true
		}
	}
	return false
}

// Vector memory subtype constants. Each memorized unit of text carries one.
const (
	// VectorTypeTurn is an embedded conversation turn.
	VectorTypeTurn = "turn"

	// VectorTypeSummary is an embedded compressed-history summary.
	VectorTypeSummary = "summary"

	// VectorTypeDoc is an embedded document or corpus chunk.
	VectorTypeDoc = "doc"
)

// ValidVectorTypes is a slice of all valid vector memory subtypes.
var ValidVectorTypes = []string{
	VectorTypeTurn,
	VectorTypeSummary,
	VectorTypeDoc,
}

// IsValidVectorType checks if the given vector memory subtype is valid.
func IsValidVectorType(vectorType string) bool {
	for _, validType := range ValidVectorTypes {
		if validType == vectorType {
			return true
		}
	}
	return false
}
