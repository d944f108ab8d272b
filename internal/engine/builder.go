// Package engine contains the retrieval side of the memory subsystem:
// keyword extraction, the relevance ranker, the context assembler and
// the caller-facing context builder that composes them.
package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/verdantlabs/recall/internal/storage"
	"github.com/verdantlabs/recall/pkg/types"
)

// BuilderConfig tunes the context builder.
type BuilderConfig struct {
	// TopK bounds the vector search fan-out (default 20).
	TopK int

	// TurnBudgetShare is the fraction of the total budget reserved for
	// the recent-conversation layer (default 0.25). Unused memory
	// budget flows into the turn layer, not the other way around.
	TurnBudgetShare float64

	// RecentTurnLimit is how many turns the conversation layer considers
	// (default 10).
	RecentTurnLimit int

	// DefaultBudget is used when a request leaves Budget at zero
	// (default 4000).
	DefaultBudget int
}

// normalize applies defaults.
func (c *BuilderConfig) normalize() {
	if c.TopK < 1 {
		c.TopK = 20
	}
	if c.TurnBudgetShare <= 0 || c.TurnBudgetShare >= 1 {
		c.TurnBudgetShare = 0.25
	}
	if c.RecentTurnLimit < 1 {
		c.RecentTurnLimit = 10
	}
	if c.DefaultBudget < 1 {
		c.DefaultBudget = 4000
	}
}

// BuildRequest describes one context build.
type BuildRequest struct {
	UserID    string
	SessionID string
	Query     string

	// Budget is the maximum payload size in the builder's size units.
	// Zero uses the builder's configured default.
	Budget int
}

// ContextBuilder composes ranking and assembly into the single
// operation callers use: query in, bounded context payload out.
type ContextBuilder struct {
	ranker    *Ranker
	store     storage.MemoryStore
	assembler *Assembler
	cfg       BuilderConfig
}

// NewContextBuilder wires a builder from its parts. A nil assembler
// defaults to character sizing.
func NewContextBuilder(ranker *Ranker, store storage.MemoryStore, assembler *Assembler, cfg BuilderConfig) *ContextBuilder {
	if assembler == nil {
		assembler = NewAssembler(nil)
	}
	cfg.normalize()
	return &ContextBuilder{ranker: ranker, store: store, assembler: assembler, cfg: cfg}
}

// BuildContext ranks memory for the query and packs it into a payload
// bounded by the budget. Ranked memories get the larger budget share;
// recent conversation turns are packed under the remainder. Failures on
// one retrieval path degrade the payload rather than failing the build.
func (b *ContextBuilder) BuildContext(ctx context.Context, req BuildRequest) (*ContextPayload, error) {
	if req.Budget == 0 {
		req.Budget = b.cfg.DefaultBudget
	}
	if req.Budget < 1 {
		return nil, fmt.Errorf("%w: budget must be at least 1", storage.ErrValidation)
	}
	if req.Query == "" {
		return nil, fmt.Errorf("%w: query is required", storage.ErrValidation)
	}

	ranked, err := b.ranker.Rank(ctx, RankRequest{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Query:     req.Query,
		TopK:      b.cfg.TopK,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to rank candidates: %w", err)
	}

	turnBudget := int(float64(req.Budget) * b.cfg.TurnBudgetShare)
	memoryBudget := req.Budget - turnBudget

	layers := []Layer{{Candidates: ranked.Candidates, Budget: memoryBudget}}

	turns, turnsErr := b.recentTurns(ctx, req)
	if turnsErr != nil {
		log.Printf("builder: recent turns unavailable: %v", turnsErr)
		ranked.Degraded = true
		ranked.Notes = append(ranked.Notes, fmt.Sprintf("recent conversation unavailable: %v", turnsErr))
	} else if len(turns) > 0 {
		// The turn layer gets its reserved share plus whatever the
		// memory layer left unused; AssembleLayers caps the total.
		layers = append(layers, Layer{Candidates: turns, Budget: req.Budget})
	}

	payload := b.assembler.AssembleLayers(layers, req.Budget)
	payload.Degraded = ranked.Degraded
	payload.Notes = ranked.Notes
	return payload, nil
}

// recentTurns fetches the conversation layer as candidates, oldest
// first so the packed history reads chronologically.
func (b *ContextBuilder) recentTurns(ctx context.Context, req BuildRequest) ([]Candidate, error) {
	turns, err := b.store.RecentTurns(ctx, storage.TurnFilter{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Limit:     b.cfg.RecentTurnLimit,
	})
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(turns))
	for i := len(turns) - 1; i >= 0; i-- {
		turn := turns[i]
		candidates = append(candidates, Candidate{
			ID:      fmt.Sprintf("turn:%d", turn.ID),
			Source:  SourceConversation,
			Content: formatTurn(turn),
			Reason:  "recent conversation",
		})
	}
	return candidates, nil
}

func formatTurn(turn *types.ConversationTurn) string {
	return fmt.Sprintf("%s: %s", turn.Role, turn.Content)
}
