// Package memory keeps fetched runs in process so a caller can search them
// and read single fields without receiving the whole payload again.
//
// Each stored run is chunked into its string leaves. Keyword search runs
// against an in-memory SQLite table; semantic search is available only when
// an embedding backend answered for every chunk at store time.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Coykto/debug-mcp/internal/embedding"
)

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds memory store configuration.
type Config struct {
	MaxDepth       int
	SnippetRadius  int
	Embedder       embedding.Embedder
	EmbedTimeout   time.Duration
	EmbedMaxChars  int
	EmbedBatchSize int
	Logger         *zap.Logger
}

// DefaultConfig returns the default configuration: no embedder, so every
// run is keyword-searchable only.
func DefaultConfig() Config {
	return Config{
		MaxDepth:       DefaultMaxDepth,
		SnippetRadius:  DefaultSnippetRadius,
		EmbedTimeout:   30 * time.Second,
		EmbedMaxChars:  8000,
		EmbedBatchSize: 64,
	}
}

func (c *Config) fillDefaults() {
	d := DefaultConfig()
	if c.MaxDepth <= 0 {
		c.MaxDepth = d.MaxDepth
	}
	if c.SnippetRadius <= 0 {
		c.SnippetRadius = d.SnippetRadius
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = d.EmbedTimeout
	}
	if c.EmbedMaxChars <= 0 {
		c.EmbedMaxChars = d.EmbedMaxChars
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = d.EmbedBatchSize
	}
}

// ─── Types ───────────────────────────────────────────────────────────────────

// StoredRun is an immutable snapshot of one stored payload. Callers must
// not modify Data or Summary.
type StoredRun struct {
	ReferenceID string
	Data        any
	Summary     map[string]any
	Chunks      []Chunk
	StoredAt    time.Time

	similarity SimilaritySearch
	generation int64
	indexed    bool
}

// SemanticSearchAvailable reports whether the run was embedded.
func (r *StoredRun) SemanticSearchAvailable() bool {
	return r.similarity.Available()
}

// RunInfo is the discovery view of a stored run.
type RunInfo struct {
	ReferenceID string         `json:"reference_id"`
	Summary     map[string]any `json:"summary"`
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store maps reference ids to stored runs. It is safe for concurrent use;
// a reader sees either the previous run or the complete new one.
type Store struct {
	cfg      Config
	logger   *zap.Logger
	keywords *keywordIndex
	gen      atomic.Int64

	mu   sync.RWMutex
	runs map[string]*StoredRun
}

// New creates a Store with its keyword index.
func New(cfg Config) (*Store, error) {
	cfg.fillDefaults()
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	kw, err := openKeywordIndex()
	if err != nil {
		return nil, err
	}

	return &Store{
		cfg:      cfg,
		logger:   logger.Named("memory"),
		keywords: kw,
		runs:     make(map[string]*StoredRun),
	}, nil
}

// Close releases the keyword index.
func (s *Store) Close() error {
	return s.keywords.close()
}

// Store saves data under ref, replacing any earlier run with that id. The
// payload is copied; later changes by the caller are not seen. It fails
// only when data or summary cannot be encoded as JSON.
func (s *Store) Store(ctx context.Context, ref string, data any, summary map[string]any) error {
	owned, err := normalize(data)
	if err != nil {
		return fmt.Errorf("store run %s: %w", ref, err)
	}
	ownedSummary := map[string]any{}
	if summary != nil {
		v, err := normalize(summary)
		if err != nil {
			return fmt.Errorf("store run %s summary: %w", ref, err)
		}
		ownedSummary, _ = v.(map[string]any)
	}

	chunks := Chunks(owned, ChunkOptions{MaxDepth: s.cfg.MaxDepth})
	run := &StoredRun{
		ReferenceID: ref,
		Data:        owned,
		Summary:     ownedSummary,
		Chunks:      chunks,
		StoredAt:    time.Now().UTC(),
		similarity:  s.buildSimilarity(ctx, chunks),
		generation:  s.gen.Add(1),
	}

	if err := s.keywords.insert(ctx, ref, run.generation, chunks); err != nil {
		s.logger.Warn("keyword index write failed; searches will scan",
			zap.String("reference_id", ref), zap.Error(err))
		_ = s.keywords.remove(context.WithoutCancel(ctx), ref, run.generation)
	} else {
		run.indexed = true
	}

	s.mu.Lock()
	old := s.runs[ref]
	s.runs[ref] = run
	if old != nil && old.indexed {
		if err := s.keywords.remove(context.WithoutCancel(ctx), ref, old.generation); err != nil {
			s.logger.Warn("retiring keyword rows failed",
				zap.String("reference_id", ref), zap.Int64("generation", old.generation), zap.Error(err))
		}
	}
	s.mu.Unlock()

	s.logger.Debug("run stored",
		zap.String("reference_id", ref),
		zap.Int("chunks", len(chunks)),
		zap.Bool("semantic", run.similarity.Available()))
	return nil
}

// Get returns the stored run for ref.
func (s *Store) Get(ref string) (*StoredRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[ref]
	return run, ok
}

// GetField resolves a dot path inside the run's data. Missing runs and
// unresolvable paths both report false.
func (s *Store) GetField(ref, path string) (any, bool) {
	run, ok := s.Get(ref)
	if !ok {
		return nil, false
	}
	return lookupPath(run.Data, path)
}

// SearchSimilar ranks the run's chunks by semantic similarity to query.
// It is empty when the run is unknown or was stored without embeddings.
func (s *Store) SearchSimilar(ctx context.Context, ref, query string, maxResults int) []SimilarMatch {
	run, ok := s.Get(ref)
	if !ok {
		return nil
	}
	return run.similarity.Search(ctx, query, maxResults)
}

// SearchKeyword returns chunks containing query, case-insensitively, in
// chunk order. maxResults <= 0 means no limit.
func (s *Store) SearchKeyword(ctx context.Context, ref, query string, maxResults int) []KeywordMatch {
	limit := maxResults
	if limit <= 0 {
		limit = -1
	}
	foldedQuery := fold(query)

	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[ref]
	if !ok {
		return nil
	}

	var hits []int
	if run.indexed {
		var err error
		hits, err = s.keywords.candidates(ctx, ref, run.generation, foldedQuery, limit)
		if err != nil {
			s.logger.Warn("keyword index query failed; scanning chunks",
				zap.String("reference_id", ref), zap.Error(err))
			hits = scanChunks(run.Chunks, foldedQuery, limit)
		}
	} else {
		hits = scanChunks(run.Chunks, foldedQuery, limit)
	}

	queryLen := len([]rune(foldedQuery))
	out := make([]KeywordMatch, 0, len(hits))
	for _, idx := range hits {
		if idx < 0 || idx >= len(run.Chunks) {
			continue
		}
		c := run.Chunks[idx]
		pos := matchRune(c.Text, foldedQuery)
		if pos < 0 {
			continue
		}
		out = append(out, KeywordMatch{
			Path:          c.Path,
			Snippet:       snippet(c.Text, pos, queryLen, s.cfg.SnippetRadius),
			MatchPosition: pos,
		})
	}
	return out
}

// ListStoredRuns returns every stored run's id and summary, sorted by id.
func (s *Store) ListStoredRuns() []RunInfo {
	s.mu.RLock()
	out := make([]RunInfo, 0, len(s.runs))
	for ref, run := range s.runs {
		out = append(out, RunInfo{ReferenceID: ref, Summary: run.Summary})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ReferenceID < out[j].ReferenceID })
	return out
}

// ReferenceIDs returns the stored reference ids, sorted.
func (s *Store) ReferenceIDs() []string {
	runs := s.ListStoredRuns()
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ReferenceID
	}
	return ids
}
