package engine

import (
	"strings"
	"time"
)

// jaccardThreshold is the word-set similarity above which two texts are
// treated as duplicates.
const jaccardThreshold = 0.8

// SizeFunc measures one piece of text in budget units.
type SizeFunc func(text string) int

// CharSize measures text in characters.
func CharSize(text string) int {
	return len(text)
}

// TokenEstimate approximates token count as one token per four
// characters. Good enough for budgeting; exact counts depend on the
// downstream tokenizer anyway.
func TokenEstimate(text string) int {
	n := (len(text) + 3) / 4
	if n < 1 && len(text) > 0 {
		n = 1
	}
	return n
}

// ContextItem is one admitted piece of context with provenance.
type ContextItem struct {
	ID      string          `json:"id"`
	Source  CandidateSource `json:"source"`
	Content string          `json:"content"`
	Score   float64         `json:"score"`
	Reason  string          `json:"reason,omitempty"`
	Size    int             `json:"size"`
}

// ContextPayload is the assembled context: ordered items whose sizes
// never exceed the budget, plus exclusion and degradation markers.
// For a fixed candidate list, budget and sizer, the Items and sizes are
// deterministic.
type ContextPayload struct {
	Items     []ContextItem `json:"items"`
	TotalSize int           `json:"total_size"`
	Budget    int           `json:"budget"`

	// ExcludedIDs lists candidates skipped for size, in input order.
	// Duplicates are silently dropped, not listed: they cost nothing.
	ExcludedIDs []string `json:"excluded_ids,omitempty"`

	Degraded bool      `json:"degraded,omitempty"`
	Notes    []string  `json:"notes,omitempty"`
	BuiltAt  time.Time `json:"built_at"`
}

// Assembler packs ranked candidates into a bounded payload.
type Assembler struct {
	sizer SizeFunc
	now   func() time.Time
}

// NewAssembler creates an assembler with the given size function.
// A nil sizer defaults to CharSize.
func NewAssembler(sizer SizeFunc) *Assembler {
	if sizer == nil {
		sizer = CharSize
	}
	return &Assembler{sizer: sizer, now: time.Now}
}

// SetClock replaces the assembler's time source for tests.
func (a *Assembler) SetClock(now func() time.Time) {
	a.now = now
}

// Layer is one group of candidates packed under its own sub-budget.
type Layer struct {
	Candidates []Candidate
	Budget     int
}

// Assemble packs candidates, in the order given, into a payload whose
// total size never exceeds budget. Packing is best effort: a candidate
// that doesn't fit is skipped and recorded, and later smaller ones are
// still considered. Duplicates of already-admitted items are dropped
// without consuming budget. Admitted text is redacted.
func (a *Assembler) Assemble(candidates []Candidate, budget int) *ContextPayload {
	return a.AssembleLayers([]Layer{{Candidates: candidates, Budget: budget}}, budget)
}

// AssembleLayers packs multiple candidate groups, each bounded by its
// own sub-budget, into one payload bounded by totalBudget. Dedup spans
// all layers: text admitted in an earlier layer suppresses duplicates
// in later ones.
func (a *Assembler) AssembleLayers(layers []Layer, totalBudget int) *ContextPayload {
	payload := &ContextPayload{Budget: totalBudget, BuiltAt: a.now()}
	dedup := newDeduper()

	for _, layer := range layers {
		layerSize := 0
		for _, candidate := range layer.Candidates {
			text := Redact(candidate.Content)
			if dedup.isDuplicate(candidate.ID, text) {
				continue
			}

			size := a.sizer(text)
			if layerSize+size > layer.Budget || payload.TotalSize+size > totalBudget {
				payload.ExcludedIDs = append(payload.ExcludedIDs, candidate.ID)
				continue
			}

			dedup.admit(candidate.ID, text)
			payload.Items = append(payload.Items, ContextItem{
				ID:      candidate.ID,
				Source:  candidate.Source,
				Content: text,
				Score:   candidate.Score,
				Reason:  candidate.Reason,
				Size:    size,
			})
			layerSize += size
			payload.TotalSize += size
		}
	}

	return payload
}

// deduper tracks admitted items across the three duplicate signals:
// identical ID, normalized content equality, and high word-set overlap.
type deduper struct {
	ids        map[string]bool
	normalized map[string]bool
	wordSets   []map[string]bool
}

func newDeduper() *deduper {
	return &deduper{
		ids:        make(map[string]bool),
		normalized: make(map[string]bool),
	}
}

func (d *deduper) isDuplicate(id, text string) bool {
	if d.ids[id] {
		return true
	}
	norm := normalizeText(text)
	if d.normalized[norm] {
		return true
	}
	words := wordSet(norm)
	for _, admitted := range d.wordSets {
		if jaccard(words, admitted) >= jaccardThreshold {
			return true
		}
	}
	return false
}

func (d *deduper) admit(id, text string) {
	d.ids[id] = true
	norm := normalizeText(text)
	d.normalized[norm] = true
	d.wordSets = append(d.wordSets, wordSet(norm))
}

// normalizeText lowercases and collapses whitespace.
func normalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

func wordSet(normalized string) map[string]bool {
	set := make(map[string]bool)
	for _, word := range strings.Fields(normalized) {
		set[word] = true
	}
	return set
}

// jaccard computes word-set Jaccard similarity.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0
	for word := range a {
		if b[word] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
