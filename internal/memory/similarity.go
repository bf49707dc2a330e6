package memory

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Coykto/debug-mcp/internal/embedding"
)

// PreviewChars bounds the chunk preview returned with a similarity hit.
const PreviewChars = 300

// SimilarMatch is one semantic search hit.
type SimilarMatch struct {
	Path       string  `json:"path"`
	Preview    string  `json:"preview"`
	Similarity float64 `json:"similarity"`
}

// SimilaritySearch answers nearest-neighbour queries over one run's chunks.
// The implementation is picked once, when the run is stored.
type SimilaritySearch interface {
	Available() bool
	Search(ctx context.Context, query string, maxResults int) []SimilarMatch
}

type unavailable struct{}

func (unavailable) Available() bool { return false }

func (unavailable) Search(context.Context, string, int) []SimilarMatch { return nil }

// modelIndex holds one vector per chunk and embeds queries on demand.
type modelIndex struct {
	embedder embedding.Embedder
	chunks   []Chunk
	vectors  [][]float32
	maxChars int
	timeout  time.Duration
	logger   *zap.Logger
}

func (m *modelIndex) Available() bool { return true }

func (m *modelIndex) Search(ctx context.Context, query string, maxResults int) []SimilarMatch {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	vecs, err := m.embedder.Embed(ctx, []string{Truncate(query, m.maxChars)})
	if err != nil || len(vecs) != 1 {
		m.logger.Warn("embedding query failed", zap.Error(err))
		return nil
	}
	q := vecs[0]

	out := make([]SimilarMatch, len(m.chunks))
	for i, c := range m.chunks {
		out[i] = SimilarMatch{
			Path:       c.Path,
			Preview:    Truncate(c.Text, PreviewChars),
			Similarity: clampUnit(CosineSimilarity(q, m.vectors[i])),
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Similarity > out[b].Similarity })

	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}

// buildSimilarity embeds every chunk in batches. Any failure, including
// the deadline, leaves the run without semantic search.
func (s *Store) buildSimilarity(ctx context.Context, chunks []Chunk) SimilaritySearch {
	if s.cfg.Embedder == nil || len(chunks) == 0 {
		return unavailable{}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.EmbedTimeout)
	defer cancel()

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += s.cfg.EmbedBatchSize {
		end := min(start+s.cfg.EmbedBatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, Truncate(c.Text, s.cfg.EmbedMaxChars))
		}

		vecs, err := s.cfg.Embedder.Embed(ctx, texts)
		if err == nil && len(vecs) != len(texts) {
			err = embedding.ErrEmptyResponse
		}
		if err != nil {
			s.logger.Warn("embedding unavailable for run; keyword search only",
				zap.Int("chunks", len(chunks)), zap.Error(err))
			return unavailable{}
		}
		vectors = append(vectors, vecs...)
	}

	return &modelIndex{
		embedder: s.cfg.Embedder,
		chunks:   chunks,
		vectors:  vectors,
		maxChars: s.cfg.EmbedMaxChars,
		timeout:  s.cfg.EmbedTimeout,
		logger:   s.logger,
	}
}

// CosineSimilarity returns the cosine of the angle between a and b. It is
// 0 when the lengths differ or either vector is empty or all zeros.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

func clampUnit(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
