package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/verdantlabs/recall/internal/storage"
	"github.com/verdantlabs/recall/pkg/types"
)

// coreImportanceFloor marks records that are always candidates,
// whatever the query. Facts at this importance are things the assistant
// must never forget (allergies, hard constraints).
const coreImportanceFloor = 9

// defaultStoreLimit bounds the keyword-driven store query.
const defaultStoreLimit = 30

// CandidateSource says which retrieval path produced a candidate.
type CandidateSource string

const (
	SourceMemory       CandidateSource = "memory"
	SourceVector       CandidateSource = "vector"
	SourceConversation CandidateSource = "conversation"
)

// ScoreComponents breaks down a relevance score into individual factors,
// each in [0, 1].
type ScoreComponents struct {
	// Similarity is semantic similarity for vector candidates, or a
	// keyword-match proxy for store candidates.
	Similarity float64

	// Importance is the record's normalized importance.
	Importance float64

	// Recency is the exponential age decay.
	Recency float64

	// TagOverlap is the fraction of query keywords present as tags.
	TagOverlap float64
}

// Candidate is one ranked retrieval result.
type Candidate struct {
	// ID identifies the underlying item: a record ID or a vector memory ID.
	ID      string
	Source  CandidateSource
	Content string
	Tags    []string

	// Record is set for memory-store candidates; Entry for vector ones.
	Record *types.Record
	Entry  *types.VectorEntry

	// Score is the overall relevance score.
	Score float64

	// Components breaks down the score into individual factors.
	Components ScoreComponents

	// Reason explains why this candidate was surfaced.
	Reason string

	// age is retained for deterministic tie-breaking.
	age time.Duration
}

// RankedSet is the ranker's output: scored candidates in descending
// relevance order, plus degradation markers when one retrieval path
// failed.
type RankedSet struct {
	Candidates []Candidate

	// Degraded is true when one of the two retrieval paths failed and
	// the candidates cover only the surviving one.
	Degraded bool
	Notes    []string
}

// RankRequest describes one ranking call.
type RankRequest struct {
	UserID    string
	SessionID string
	Query     string

	// TopK bounds the vector search fan-out (default 20, max 50).
	TopK int
}

// Ranker merges memory-store and vector-index retrieval into one scored
// candidate list.
type Ranker struct {
	store   storage.MemoryStore
	index   storage.VectorIndex
	weights Weights
	now     storage.Clock
}

// NewRanker creates a ranker over the given store and index.
func NewRanker(store storage.MemoryStore, index storage.VectorIndex, weights Weights) *Ranker {
	if weights.HalfLifeDays <= 0 {
		weights.HalfLifeDays = DefaultWeights().HalfLifeDays
	}
	return &Ranker{store: store, index: index, weights: weights, now: time.Now}
}

// SetClock replaces the ranker's time source for tests.
func (r *Ranker) SetClock(clock storage.Clock) {
	r.now = clock
}

// Rank fetches candidates from both sources concurrently, scores them
// with the weighted composite, and returns them best first. A failure
// in one source degrades the result instead of failing it; only both
// sources failing is an error.
func (r *Ranker) Rank(ctx context.Context, req RankRequest) (*RankedSet, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("%w: query is required", storage.ErrValidation)
	}
	topK := req.TopK
	if topK < 1 {
		topK = 20
	}
	if topK > storage.MaxTopK {
		topK = storage.MaxTopK
	}

	keywords := ExtractKeywords(req.Query)

	var (
		wg         sync.WaitGroup
		records    []*types.Record
		recordsErr error
		matches    []storage.Match
		matchesErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		records, recordsErr = r.fetchRecords(ctx, keywords)
	}()
	go func() {
		defer wg.Done()
		matches, matchesErr = r.index.Search(ctx, req.UserID, req.Query,
			storage.VectorSearchOptions{TopK: topK})
	}()
	wg.Wait()

	if recordsErr != nil && matchesErr != nil {
		return nil, fmt.Errorf("both retrieval paths failed: store: %v; vector: %w", recordsErr, matchesErr)
	}

	set := &RankedSet{}
	if recordsErr != nil {
		log.Printf("ranker: memory store query failed, continuing with semantic results only: %v", recordsErr)
		set.Degraded = true
		set.Notes = append(set.Notes, fmt.Sprintf("memory store unavailable: %v", recordsErr))
	}
	if matchesErr != nil {
		log.Printf("ranker: vector search failed, continuing with memory store results only: %v", matchesErr)
		set.Degraded = true
		set.Notes = append(set.Notes, fmt.Sprintf("semantic search unavailable: %v", matchesErr))
	}

	now := r.now()
	queryLower := strings.ToLower(req.Query)
	seen := make(map[string]bool)

	for _, record := range records {
		if seen[record.ID] {
			continue
		}
		seen[record.ID] = true
		set.Candidates = append(set.Candidates, r.scoreRecord(record, queryLower, keywords, now))
	}
	for i := range matches {
		match := matches[i]
		if seen[match.Entry.MemoryID] {
			continue
		}
		seen[match.Entry.MemoryID] = true
		set.Candidates = append(set.Candidates, r.scoreMatch(match, keywords, now))
	}

	sortCandidates(set.Candidates)
	return set, nil
}

// fetchRecords gathers store candidates: the always-included core set
// plus keyword-tagged records when the query yields keywords.
func (r *Ranker) fetchRecords(ctx context.Context, keywords []string) ([]*types.Record, error) {
	core, err := r.store.Query(ctx, storage.Filter{
		ActiveOnly:    true,
		MinImportance: coreImportanceFloor,
		Limit:         defaultStoreLimit,
	})
	if err != nil {
		return nil, err
	}

	records := core
	if len(keywords) > 0 {
		tagged, err := r.store.Query(ctx, storage.Filter{
			ActiveOnly: true,
			TagsAny:    keywords,
			Limit:      defaultStoreLimit,
		})
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool, len(records))
		for _, record := range records {
			seen[record.ID] = true
		}
		for _, record := range tagged {
			if !seen[record.ID] {
				records = append(records, record)
			}
		}
	}

	return records, nil
}

func (r *Ranker) scoreRecord(record *types.Record, queryLower string, keywords []string, now time.Time) Candidate {
	components := ScoreComponents{
		Similarity: textMatch(record.Content, queryLower),
		Importance: record.NormalizedImportance(),
		Recency:    r.decay(now.Sub(record.UpdatedAt)),
		TagOverlap: tagOverlap(record.Tags, keywords),
	}

	candidate := Candidate{
		ID:         record.ID,
		Source:     SourceMemory,
		Content:    record.Content,
		Tags:       record.Tags,
		Record:     record,
		Components: components,
		Score:      r.combine(components),
		age:        now.Sub(record.UpdatedAt),
	}
	candidate.Reason = buildReason(candidate)
	return candidate
}

func (r *Ranker) scoreMatch(match storage.Match, keywords []string, now time.Time) Candidate {
	entry := match.Entry
	tags := make([]string, 0, len(entry.Tags))
	for _, v := range entry.Tags {
		tags = append(tags, v)
	}
	sort.Strings(tags)

	components := ScoreComponents{
		Similarity: match.Similarity,
		// Vector entries carry no importance; score them neutrally.
		Importance: 0.5,
		Recency:    r.decay(now.Sub(entry.CreatedAt)),
		TagOverlap: tagOverlap(tags, keywords),
	}

	candidate := Candidate{
		ID:         entry.MemoryID,
		Source:     SourceVector,
		Content:    entry.Text,
		Tags:       tags,
		Entry:      &entry,
		Components: components,
		Score:      r.combine(components),
		age:        now.Sub(entry.CreatedAt),
	}
	candidate.Reason = buildReason(candidate)
	return candidate
}

// combine applies the weighted composite.
func (r *Ranker) combine(c ScoreComponents) float64 {
	return c.Similarity*r.weights.Similarity +
		c.Importance*r.weights.Importance +
		c.Recency*r.weights.Recency +
		c.TagOverlap*r.weights.TagOverlap
}

// decay computes the exponential recency factor: 0.5 at one half-life.
func (r *Ranker) decay(age time.Duration) float64 {
	days := age.Hours() / 24.0
	if days < 0 {
		days = 0
	}
	return math.Pow(2, -days/r.weights.HalfLifeDays)
}

// textMatch scores keyword presence for store candidates, which have no
// embedding similarity: 1.0 for an exact phrase hit, otherwise the
// fraction of query words present in the content.
func textMatch(content, queryLower string) float64 {
	if queryLower == "" {
		return 1.0
	}

	contentLower := strings.ToLower(content)
	if strings.Contains(contentLower, queryLower) {
		return 1.0
	}

	queryWords := strings.Fields(queryLower)
	if len(queryWords) == 0 {
		return 0
	}
	matched := 0
	for _, word := range queryWords {
		if strings.Contains(contentLower, word) {
			matched++
		}
	}
	return float64(matched) / float64(len(queryWords))
}

// tagOverlap is the fraction of query keywords present as tags.
func tagOverlap(tags, keywords []string) float64 {
	if len(keywords) == 0 || len(tags) == 0 {
		return 0
	}

	tagSet := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tagSet[strings.ToLower(tag)] = true
	}

	matched := 0
	for _, keyword := range keywords {
		if tagSet[keyword] {
			matched++
		}
	}

	overlap := float64(matched) / float64(len(keywords))
	if overlap > 1 {
		overlap = 1
	}
	return overlap
}

// buildReason constructs a human-readable explanation for the match.
func buildReason(c Candidate) string {
	var reasons []string

	if c.Components.Similarity > 0.8 {
		reasons = append(reasons, "strong semantic match")
	} else if c.Components.Similarity > 0.5 {
		reasons = append(reasons, "partial match")
	}
	if c.Components.Importance > 0.7 {
		reasons = append(reasons, "high importance")
	}
	if c.Components.Recency > 0.8 {
		reasons = append(reasons, "recent")
	}
	if c.Components.TagOverlap > 0 {
		reasons = append(reasons, "tag match")
	}

	if len(reasons) == 0 {
		return "matched content"
	}
	return strings.Join(reasons, ", ")
}

// sortCandidates orders by score descending with deterministic ties:
// similarity descending, then age ascending, then ID ascending.
func sortCandidates(candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].Components.Similarity != candidates[j].Components.Similarity {
			return candidates[i].Components.Similarity > candidates[j].Components.Similarity
		}
		if candidates[i].age != candidates[j].age {
			return candidates[i].age < candidates[j].age
		}
		return candidates[i].ID < candidates[j].ID
	})
}
