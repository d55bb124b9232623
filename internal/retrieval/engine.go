package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/scholar-rag/backend/internal/corpus"
	"github.com/scholar-rag/backend/internal/intent"
	"github.com/scholar-rag/backend/internal/storage/models"
	"github.com/scholar-rag/backend/internal/textsim"
	"github.com/scholar-rag/backend/pkg/logger"
)

type Config struct {
	// TopK is the default result budget when the caller passes none.
	TopK int
	// DiversityCap limits how many chunks one document may contribute.
	DiversityCap int
	// RedundancyPenalty is subtracted from the score of redundant
	// thesis chunks.
	RedundancyPenalty float64
	// PaperSpecificDocCap bounds a paper_specific result, clamped to
	// the 2..4 range.
	PaperSpecificDocCap int
}

func DefaultConfig() Config {
	return Config{
		TopK:                8,
		DiversityCap:        2,
		RedundancyPenalty:   0.08,
		PaperSpecificDocCap: 4,
	}
}

// ChunkSource provides the namespace's retrievable chunks in stable
// stored order.
type ChunkSource interface {
	Chunks(namespaceID string) ([]models.Chunk, error)
}

type Engine struct {
	source   ChunkSource
	embedder corpus.Embedder
	cfg      Config
}

func NewEngine(source ChunkSource, embedder corpus.Embedder, cfg Config) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = 8
	}
	if cfg.DiversityCap <= 0 {
		cfg.DiversityCap = 2
	}
	if cfg.PaperSpecificDocCap < 2 {
		cfg.PaperSpecificDocCap = 2
	}
	if cfg.PaperSpecificDocCap > 4 {
		cfg.PaperSpecificDocCap = 4
	}
	return &Engine{source: source, embedder: embedder, cfg: cfg}
}

// Result is an ordered, deduplicated, diversity-capped chunk list plus
// notes about retrieval gaps the caller must be able to observe.
type Result struct {
	Chunks []models.Chunk
	// Scores holds the ranking score of the chunk at the same index.
	Scores []float64
	Notes  []string
}

func (r *Result) score(scorer scoreFunc) *Result {
	r.Scores = make([]float64, len(r.Chunks))
	for i, c := range r.Chunks {
		r.Scores[i] = scorer(c)
	}
	return r
}

// strategy is one rung of the fallback ladder. Each rung receives the
// chunks accumulated so far and decides whether to extend or replace
// them.
type strategy struct {
	name string
	run  func(current []models.Chunk) []models.Chunk
}

// publicationShare maps each intent to the fraction of the result
// budget reserved for publication chunks on the mixed path.
var publicationShare = map[intent.Intent]float64{
	intent.PaperSpecific:       1.0,
	intent.PaperCompare:        1.0,
	intent.TechnicalCrossPaper: 0.75,
	intent.ResearchOverview:    0.40,
	intent.FutureDirections:    0.30,
}

// Retrieve selects and ranks chunks for a classified query. The
// per-intent policies are evaluated as an ordered ladder of fallback
// strategies; a rung only runs when the previous rungs left the result
// short. paper_specific has no fallback at all, and a non-empty
// paper_compare result stays restricted to the mentioned documents.
func (e *Engine) Retrieve(ctx context.Context, namespaceID, query string, queryIntent intent.Intent, mentionedPublications []models.Document, topK int) (*Result, error) {
	if topK <= 0 {
		topK = e.cfg.TopK
	}

	chunks, err := e.source.Chunks(namespaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}

	scorer := e.newScorer(ctx, query)
	result := &Result{}

	if queryIntent == intent.PaperSpecific {
		result.Chunks = e.paperSpecific(chunks, scorer, mentionedPublications, topK)
		if len(result.Chunks) == 0 {
			target := "the mentioned paper"
			if len(mentionedPublications) > 0 {
				target = mentionedPublications[0].FileName
			}
			result.Notes = append(result.Notes,
				fmt.Sprintf("no indexed publication content found for %s; no substitute sources were used", target))
		}
		return result.score(scorer), nil
	}

	if queryIntent == intent.PaperCompare {
		result.Chunks = e.paperCompare(chunks, scorer, mentionedPublications, topK)
		if len(result.Chunks) > 0 {
			// A short compare result stands as-is; topping up would
			// admit documents the query never mentioned.
			logger.Debug("Retrieval strategy applied",
				zap.String("strategy", "compare_seeded"),
				zap.Int("chunks", len(result.Chunks)),
			)
			return result.score(scorer), nil
		}
	}

	ladder := []strategy{
		{"role_mix", func(current []models.Chunk) []models.Chunk {
			if len(current) > 0 {
				return current
			}
			return e.roleMix(chunks, scorer, queryIntent, topK)
		}},
		{"backfill", func(current []models.Chunk) []models.Chunk {
			if len(current) >= topK {
				return current
			}
			return e.backfill(chunks, scorer, current, topK)
		}},
		{"unfiltered", func(current []models.Chunk) []models.Chunk {
			if len(current) > 0 {
				return current
			}
			return e.capAndTrim(rank(chunks, scorer, nil), topK)
		}},
	}

	for _, rung := range ladder {
		before := len(result.Chunks)
		result.Chunks = rung.run(result.Chunks)
		if len(result.Chunks) != before {
			logger.Debug("Retrieval strategy applied",
				zap.String("strategy", rung.name),
				zap.Int("chunks", len(result.Chunks)),
			)
		}
	}

	if len(result.Chunks) == 0 {
		result.Notes = append(result.Notes, "no relevant passages found in the corpus")
	}

	logger.Debug("Retrieval complete",
		zap.String("namespace_id", namespaceID),
		zap.String("intent", string(queryIntent)),
		zap.Int("chunks", len(result.Chunks)),
	)

	return result.score(scorer), nil
}

// paperSpecific hard-filters to the single best mentioned publication.
// An empty result is returned as-is: substituting other papers would
// silently break the sourcing contract.
func (e *Engine) paperSpecific(chunks []models.Chunk, scorer scoreFunc, mentioned []models.Document, topK int) []models.Chunk {
	if len(mentioned) == 0 {
		return nil
	}
	target := mentioned[0]

	ranked := rank(chunks, scorer, func(c models.Chunk) bool {
		return c.DocumentID == target.ID &&
			c.SourceRole == models.RolePublication &&
			!c.IsRedundant
	})

	limit := e.cfg.PaperSpecificDocCap
	if topK < limit {
		limit = topK
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// paperCompare seeds one best chunk per mentioned publication so every
// compared paper is represented, then tops up from the same restricted
// document set.
func (e *Engine) paperCompare(chunks []models.Chunk, scorer scoreFunc, mentioned []models.Document, topK int) []models.Chunk {
	if len(mentioned) == 0 {
		return nil
	}

	restricted := make(map[string]struct{}, len(mentioned))
	for _, doc := range mentioned {
		restricted[doc.ID] = struct{}{}
	}

	var result []models.Chunk
	seen := make(map[string]struct{})

	for _, doc := range mentioned {
		best := rank(chunks, scorer, func(c models.Chunk) bool {
			return c.DocumentID == doc.ID &&
				c.SourceRole == models.RolePublication &&
				!c.IsRedundant
		})
		if len(best) > 0 {
			result = append(result, best[0])
			seen[best[0].ID] = struct{}{}
		}
	}

	topUp := rank(chunks, scorer, func(c models.Chunk) bool {
		_, ok := restricted[c.DocumentID]
		return ok && c.SourceRole == models.RolePublication && !c.IsRedundant
	})
	perDoc := countByDocument(result)
	for _, c := range topUp {
		if len(result) >= topK {
			break
		}
		if _, ok := seen[c.ID]; ok {
			continue
		}
		if perDoc[c.DocumentID] >= e.cfg.DiversityCap {
			continue
		}
		result = append(result, c)
		seen[c.ID] = struct{}{}
		perDoc[c.DocumentID]++
	}

	return result
}

// roleMix splits the budget between publication and thesis chunks by
// the intent's ratio, fetches each role's top chunks independently and
// interleaves them one at a time.
func (e *Engine) roleMix(chunks []models.Chunk, scorer scoreFunc, queryIntent intent.Intent, topK int) []models.Chunk {
	share, ok := publicationShare[queryIntent]
	if !ok {
		share = 0.75
	}

	publicationTarget := int(math.Round(share * float64(topK)))
	if publicationTarget > topK {
		publicationTarget = topK
	}

	hasPublications := false
	for _, c := range chunks {
		if c.SourceRole == models.RolePublication {
			hasPublications = true
			break
		}
	}
	if publicationTarget < 1 && hasPublications {
		// Overview and future-directions answers still need at least
		// one published anchor when publications exist.
		publicationTarget = 1
	}
	thesisTarget := topK - publicationTarget

	publications := rank(chunks, scorer, func(c models.Chunk) bool {
		return c.SourceRole == models.RolePublication
	})
	if len(publications) > publicationTarget {
		publications = publications[:publicationTarget]
	}

	// Overview and future-directions intents may surface redundant
	// thesis chunks for narrative framing; the other intents exclude
	// them.
	allowRedundant := queryIntent == intent.ResearchOverview || queryIntent == intent.FutureDirections
	thesis := rank(chunks, scorer, func(c models.Chunk) bool {
		return c.SourceRole == models.RoleThesis && (allowRedundant || !c.IsRedundant)
	})
	if len(thesis) > thesisTarget {
		thesis = thesis[:thesisTarget]
	}

	var first, second []models.Chunk
	if allowRedundant {
		first, second = thesis, publications
	} else {
		first, second = publications, thesis
	}

	return e.capAndTrim(interleave(first, second), topK)
}

// backfill merges an unfiltered query across the publication and
// thesis roles (redundant allowed) behind the chunks already selected,
// then re-applies the diversity cap.
func (e *Engine) backfill(chunks []models.Chunk, scorer scoreFunc, current []models.Chunk, topK int) []models.Chunk {
	extra := rank(chunks, scorer, func(c models.Chunk) bool {
		return c.SourceRole == models.RolePublication || c.SourceRole == models.RoleThesis
	})
	return e.capAndTrim(append(current, extra...), topK)
}

// capAndTrim dedupes by chunk id, applies the per-document diversity
// cap and cuts the list to topK, preserving order.
func (e *Engine) capAndTrim(chunks []models.Chunk, topK int) []models.Chunk {
	var result []models.Chunk
	seen := make(map[string]struct{})
	perDoc := make(map[string]int)

	for _, c := range chunks {
		if len(result) >= topK {
			break
		}
		if _, ok := seen[c.ID]; ok {
			continue
		}
		if perDoc[c.DocumentID] >= e.cfg.DiversityCap {
			continue
		}
		result = append(result, c)
		seen[c.ID] = struct{}{}
		perDoc[c.DocumentID]++
	}

	return result
}

type scoreFunc func(c models.Chunk) float64

// newScorer builds the base ranking function: cosine similarity when
// both query and chunk embeddings exist, keyword-overlap ratio
// otherwise, minus the redundancy penalty for redundant thesis chunks.
func (e *Engine) newScorer(ctx context.Context, query string) scoreFunc {
	var queryEmbedding []float32
	if e.embedder != nil {
		embedding, err := e.embedder.Embed(ctx, query)
		if err != nil {
			logger.Warn("Query embedding unavailable, falling back to keyword scoring", zap.Error(err))
		} else {
			queryEmbedding = embedding
		}
	}

	queryTokens := make(map[string]struct{})
	for _, t := range textsim.Tokenize(query) {
		queryTokens[t] = struct{}{}
	}

	return func(c models.Chunk) float64 {
		var score float64
		if len(queryEmbedding) > 0 && len(c.Embedding) > 0 {
			score = textsim.CosineSimilarity(queryEmbedding, c.Embedding)
		} else {
			score = keywordOverlap(c.Text, queryTokens)
		}
		if c.IsRedundant && c.SourceRole == models.RoleThesis {
			score -= e.cfg.RedundancyPenalty
		}
		return score
	}
}

// keywordOverlap is the fraction of the candidate's distinct tokens
// present in the query token set.
func keywordOverlap(text string, queryTokens map[string]struct{}) float64 {
	tokens := textsim.Tokenize(text)
	if len(tokens) == 0 || len(queryTokens) == 0 {
		return 0
	}

	distinct := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		distinct[t] = struct{}{}
	}

	matched := 0
	for t := range distinct {
		if _, ok := queryTokens[t]; ok {
			matched++
		}
	}

	return float64(matched) / float64(len(distinct))
}

// rank filters and sorts a copy of the chunk list by descending score.
// The sort is stable, so ties keep the store's original ordering.
func rank(chunks []models.Chunk, scorer scoreFunc, keep func(models.Chunk) bool) []models.Chunk {
	type scored struct {
		chunk models.Chunk
		score float64
	}

	var candidates []scored
	for _, c := range chunks {
		if keep != nil && !keep(c) {
			continue
		}
		candidates = append(candidates, scored{chunk: c, score: scorer(c)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	result := make([]models.Chunk, len(candidates))
	for i, s := range candidates {
		result[i] = s.chunk
	}
	return result
}

func interleave(a, b []models.Chunk) []models.Chunk {
	result := make([]models.Chunk, 0, len(a)+len(b))
	for i := 0; i < len(a) || i < len(b); i++ {
		if i < len(a) {
			result = append(result, a[i])
		}
		if i < len(b) {
			result = append(result, b[i])
		}
	}
	return result
}

func countByDocument(chunks []models.Chunk) map[string]int {
	counts := make(map[string]int)
	for _, c := range chunks {
		counts[c.DocumentID]++
	}
	return counts
}
