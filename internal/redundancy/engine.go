package redundancy

import (
	"go.uber.org/zap"

	"github.com/scholar-rag/backend/internal/storage/models"
	"github.com/scholar-rag/backend/internal/textsim"
	"github.com/scholar-rag/backend/pkg/logger"
)

type Config struct {
	// CosineThreshold gates near-duplicate candidates on embedding
	// similarity when both chunks carry embeddings.
	CosineThreshold float64
	// LexicalThreshold gates near-duplicate candidates on word 5-gram
	// Jaccard overlap.
	LexicalThreshold float64
	// NoveltyThreshold is the fraction of novel sentences above which a
	// thesis chunk is judged to add enough new content to stay
	// non-redundant.
	NoveltyThreshold float64
}

func DefaultConfig() Config {
	return Config{
		CosineThreshold:  0.96,
		LexicalThreshold: 0.85,
		NoveltyThreshold: 0.20,
	}
}

type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	cfg.CosineThreshold = clamp01(cfg.CosineThreshold)
	cfg.LexicalThreshold = clamp01(cfg.LexicalThreshold)
	cfg.NoveltyThreshold = clamp01(cfg.NoveltyThreshold)
	return &Engine{cfg: cfg}
}

// Annotate recomputes redundancy marks for every thesis chunk in the
// slice against the publication chunks in the same slice. Marks are
// reset and rewritten wholesale, so running it twice on an unchanged
// set yields identical results. Chunk order does not affect the
// outcome.
func (e *Engine) Annotate(chunks []models.Chunk) {
	var publications []*models.Chunk
	for i := range chunks {
		if chunks[i].SourceRole == models.RolePublication {
			publications = append(publications, &chunks[i])
		}
	}

	marked := 0
	for i := range chunks {
		if chunks[i].SourceRole != models.RoleThesis {
			continue
		}
		if e.annotateThesisChunk(&chunks[i], publications) {
			marked++
		}
	}

	if marked > 0 {
		logger.Debug("Redundancy annotation complete",
			zap.Int("thesis_marked", marked),
			zap.Int("publication_chunks", len(publications)),
		)
	}
}

func (e *Engine) annotateThesisChunk(t *models.Chunk, publications []*models.Chunk) bool {
	t.IsRedundant = false
	t.RedundantOf = ""
	t.RedundancyScore = 0

	// An exact normalized-hash match is decided on novelty alone and
	// preempts the near-duplicate search entirely.
	for _, p := range publications {
		if p.TextHash != t.TextHash || t.TextHash == "" {
			continue
		}
		if textsim.NoveltyRatio(t.Text, p.Text) < e.cfg.NoveltyThreshold {
			t.IsRedundant = true
			t.RedundantOf = p.ID
			t.RedundancyScore = 1.0
			return true
		}
		return false
	}

	var best *models.Chunk
	bestScore := -1.0
	for _, p := range publications {
		lexical := textsim.LexicalOverlap(t.Text, p.Text)
		if lexical < e.cfg.LexicalThreshold {
			continue
		}
		cosine := 0.0
		if len(t.Embedding) > 0 && len(p.Embedding) > 0 {
			cosine = textsim.CosineSimilarity(t.Embedding, p.Embedding)
			if cosine < e.cfg.CosineThreshold {
				continue
			}
		}
		if score := (cosine + lexical) / 2; score > bestScore {
			bestScore = score
			best = p
		}
	}

	if best == nil {
		return false
	}
	if textsim.NoveltyRatio(t.Text, best.Text) >= e.cfg.NoveltyThreshold {
		return false
	}

	t.IsRedundant = true
	t.RedundantOf = best.ID
	t.RedundancyScore = bestScore
	return true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
