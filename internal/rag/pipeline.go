// Package rag orchestrates one query end to end: embed the query,
// search the vector store, splice the best hit into the prompt template,
// and stream a completion. Each request owns its own Pipeline instance;
// the shared handles behind it are read-only after startup.
package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/calyx-labs/ragline/internal/domain"
)

// Template placeholders. Replace-all semantics: a template may reference
// the query more than once.
const (
	PlaceholderRetrieved = "_RETRIEVED_"
	PlaceholderQuery     = "_QUERY_"
)

// State of a pipeline instance. Retrieve and Generate are strictly
// sequential within one instance; calling them out of order is
// ErrInvalidState.
type State int

const (
	StateIdle State = iota
	StateRetrieving
	StateReprompted
	StateGenerating
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRetrieving:
		return "retrieving"
	case StateReprompted:
		return "reprompted"
	case StateGenerating:
		return "generating"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// searcher is the consumer interface for the vector store.
type searcher interface {
	Search(ctx context.Context, vector []float32, collection string, groupID *uint64, k int) ([]domain.SearchResult, error)
}

// Factory holds the process-wide handles shared by all pipeline
// instances. None of them are mutated after startup.
type Factory struct {
	embedder   domain.Embedder
	store      searcher
	generator  domain.Generator
	collection string
	template   string
	topK       int
	candidates int
	logger     *zap.Logger
}

// FactoryConfig configures the shared pipeline dependencies.
type FactoryConfig struct {
	Embedder   domain.Embedder
	Store      searcher
	Generator  domain.Generator
	Collection string
	Template   string
	TopK       int // search candidates fetched, default 10
	Candidates int // top candidates inspected for a description, default 3
	Logger     *zap.Logger
}

// NewFactory validates shared dependencies once at startup.
func NewFactory(cfg FactoryConfig) *Factory {
	topK := cfg.TopK
	if topK <= 0 {
		topK = 10
	}
	candidates := cfg.Candidates
	if candidates <= 0 {
		candidates = 3
	}
	return &Factory{
		embedder:   cfg.Embedder,
		store:      cfg.Store,
		generator:  cfg.Generator,
		collection: cfg.Collection,
		template:   cfg.Template,
		topK:       topK,
		candidates: candidates,
		logger:     cfg.Logger,
	}
}

// NewPipeline creates a fresh request-scoped pipeline in Idle state.
func (f *Factory) NewPipeline() *Pipeline {
	return &Pipeline{
		factory: f,
		prompt:  f.template,
		state:   StateIdle,
	}
}

// Pipeline is the per-request orchestrator. Not safe for concurrent use;
// one instance serves exactly one query.
type Pipeline struct {
	factory *Factory
	groupID *uint64
	state   State
	prompt  string
}

// WithGroup restricts retrieval to one tenant group.
func (p *Pipeline) WithGroup(groupID uint64) *Pipeline {
	p.groupID = &groupID
	return p
}

// State reports the current pipeline state.
func (p *Pipeline) State() State {
	return p.state
}

// Prompt returns the held template, finalized after Retrieve.
func (p *Pipeline) Prompt() string {
	return p.prompt
}

// Retrieve embeds the query, searches the collection, and substitutes
// the best-matching description and the query text into the held
// template. When search yields nothing usable the literal "not found"
// sentinel is substituted instead; that is a soft fallback, not an
// error. Returns the retrieved text.
func (p *Pipeline) Retrieve(ctx context.Context, queryText string) (string, error) {
	if p.state != StateIdle {
		return "", fmt.Errorf("retrieve in state %s: %w", p.state, domain.ErrInvalidState)
	}
	p.state = StateRetrieving

	f := p.factory

	embedded, err := f.embedder.Embed(ctx, queryText)
	if err != nil {
		p.state = StateError
		return "", fmt.Errorf("embed query: %w", err)
	}

	results, err := f.store.Search(ctx, embedded.Embedding, f.collection, p.groupID, f.topK)
	if err != nil {
		p.state = StateError
		return "", fmt.Errorf("search: %w", err)
	}

	retrieved := f.pickDescription(results)

	p.prompt = strings.ReplaceAll(p.prompt, PlaceholderRetrieved, retrieved)
	p.prompt = strings.ReplaceAll(p.prompt, PlaceholderQuery, queryText)
	p.state = StateReprompted

	f.logger.Debug("Retrieval completed",
		zap.String("collection", f.collection),
		zap.Int("results", len(results)),
		zap.Bool("fallback", retrieved == domain.NotFoundSentinel),
	)

	return retrieved, nil
}

// pickDescription inspects only the top candidates by similarity and
// takes the description of the highest-ranked one that carries the
// field. Ranking is the store's; scores are never recomputed here.
func (f *Factory) pickDescription(results []domain.SearchResult) string {
	limit := f.candidates
	if limit > len(results) {
		limit = len(results)
	}
	for _, r := range results[:limit] {
		if desc, ok := r.Description(); ok && desc != "" {
			return desc
		}
	}
	return domain.NotFoundSentinel
}

// Generate streams a completion for the finalized prompt. onToken is
// invoked synchronously per token in generation order. Returns the
// aggregated text. Engine failures surface to the caller; they are not
// retried.
func (p *Pipeline) Generate(ctx context.Context, onToken domain.TokenCallback) (string, error) {
	if p.state != StateReprompted {
		return "", fmt.Errorf("generate in state %s: %w", p.state, domain.ErrInvalidState)
	}
	p.state = StateGenerating

	text, err := p.factory.generator.Generate(ctx, p.prompt, onToken)
	if err != nil {
		p.state = StateError
		return "", fmt.Errorf("generate: %w", err)
	}

	p.state = StateDone
	return text, nil
}

// Run composes Retrieve then Generate. When retrieval falls back to the
// sentinel, generation still proceeds with it substituted into the
// prompt; callers wanting strict behavior must check the retrieved text
// themselves.
func (p *Pipeline) Run(ctx context.Context, queryText string, onToken domain.TokenCallback) (string, error) {
	if _, err := p.Retrieve(ctx, queryText); err != nil {
		return "", err
	}
	return p.Generate(ctx, onToken)
}
