package redundancy

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholar-rag/backend/internal/storage/models"
	"github.com/scholar-rag/backend/pkg/textutil"
)

// longPassage builds a multi-sentence passage long enough for the
// 5-gram overlap gate. replaceLast swaps one word in the final
// sentence so the texts near-duplicate without hashing equal.
func longPassage(replaceLast bool) string {
	words := []string{
		"alpha", "bravo", "charlie", "delta", "echo", "foxtrot",
		"golf", "hotel", "india", "juliet", "kilo",
	}
	var b strings.Builder
	for i, w := range words {
		adjective := "consistent"
		if replaceLast && i == len(words)-1 {
			adjective = "significant"
		}
		fmt.Fprintf(&b, "Experiment %s shows %s segmentation gains on benchmark suites. ", w, adjective)
	}
	return strings.TrimSpace(b.String())
}

func pubChunk(id, text string, embedding []float32) models.Chunk {
	return models.Chunk{
		ID:         id,
		Text:       text,
		TextHash:   textutil.HashContent(text),
		SourceRole: models.RolePublication,
		Embedding:  embedding,
	}
}

func thesisChunk(id, text string, embedding []float32) models.Chunk {
	return models.Chunk{
		ID:         id,
		Text:       text,
		TextHash:   textutil.HashContent(text),
		SourceRole: models.RoleThesis,
		Embedding:  embedding,
	}
}

func TestAnnotate_ExactDuplicate(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	text := "We achieve a large improvement in mean intersection over union on the urban driving benchmark."

	chunks := []models.Chunk{
		pubChunk("pub-1", text, nil),
		thesisChunk("thesis-1", text, nil),
	}
	engine.Annotate(chunks)

	require.True(t, chunks[1].IsRedundant)
	assert.Equal(t, "pub-1", chunks[1].RedundantOf)
	assert.Equal(t, 1.0, chunks[1].RedundancyScore)
	assert.False(t, chunks[0].IsRedundant)
}

func TestAnnotate_ExactHashWithNovelSentencesStaysNonRedundant(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	pub := pubChunk("pub-1", "We achieve a large improvement on the urban driving benchmark.", nil)
	thesis := thesisChunk("thesis-1",
		"We achieve a large improvement on the urban driving benchmark. "+
			"However the approach degrades sharply in low light conditions.", nil)
	// Same normalized hash, different text: the hash match is decided on
	// novelty alone and never reaches the near-duplicate search.
	thesis.TextHash = pub.TextHash

	chunks := []models.Chunk{pub, thesis}
	engine.Annotate(chunks)

	assert.False(t, chunks[1].IsRedundant)
	assert.Empty(t, chunks[1].RedundantOf)
	assert.Equal(t, 0.0, chunks[1].RedundancyScore)
}

func TestAnnotate_NearDuplicateWithEmbeddings(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	embedding := []float32{0.3, 0.5, 0.8}

	chunks := []models.Chunk{
		pubChunk("pub-1", longPassage(false), embedding),
		thesisChunk("thesis-1", longPassage(true), embedding),
	}
	engine.Annotate(chunks)

	require.True(t, chunks[1].IsRedundant)
	assert.Equal(t, "pub-1", chunks[1].RedundantOf)
	// Score averages a cosine of 1 with a lexical overlap below 1.
	assert.Greater(t, chunks[1].RedundancyScore, 0.9)
	assert.Less(t, chunks[1].RedundancyScore, 1.0)
}

func TestAnnotate_NearDuplicateWithoutEmbeddings(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	chunks := []models.Chunk{
		pubChunk("pub-1", longPassage(false), nil),
		thesisChunk("thesis-1", longPassage(true), nil),
	}
	engine.Annotate(chunks)

	// Only the lexical gate applies; the missing cosine contributes
	// zero to the averaged score.
	require.True(t, chunks[1].IsRedundant)
	assert.Greater(t, chunks[1].RedundancyScore, 0.4)
	assert.Less(t, chunks[1].RedundancyScore, 0.5)
}

func TestAnnotate_LowCosineBlocksNearDuplicate(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	chunks := []models.Chunk{
		pubChunk("pub-1", longPassage(false), []float32{1, 0, 0}),
		thesisChunk("thesis-1", longPassage(true), []float32{0, 1, 0}),
	}
	engine.Annotate(chunks)

	assert.False(t, chunks[1].IsRedundant)
}

func TestAnnotate_DissimilarTextStaysNonRedundant(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	chunks := []models.Chunk{
		pubChunk("pub-1", longPassage(false), nil),
		thesisChunk("thesis-1", "This chapter surveys unpublished negative results from early prototypes across three studies.", nil),
	}
	engine.Annotate(chunks)

	assert.False(t, chunks[1].IsRedundant)
}

func TestAnnotate_OnlyThesisChunksAreMarked(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	text := longPassage(false)

	chunks := []models.Chunk{
		pubChunk("pub-1", text, nil),
		pubChunk("pub-2", text, nil),
		{ID: "web-1", Text: text, TextHash: textutil.HashContent(text), SourceRole: models.RoleWeb},
	}
	engine.Annotate(chunks)

	for _, c := range chunks {
		assert.False(t, c.IsRedundant, c.ID)
	}
}

func TestAnnotate_Idempotent(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	text := longPassage(false)

	chunks := []models.Chunk{
		pubChunk("pub-1", text, nil),
		thesisChunk("thesis-1", text, nil),
		thesisChunk("thesis-2", longPassage(true), nil),
	}

	engine.Annotate(chunks)
	first := make([]models.Chunk, len(chunks))
	copy(first, chunks)

	engine.Annotate(chunks)
	assert.Equal(t, first, chunks)
}

func TestAnnotate_MaterialAdditionStaysNonRedundant(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	chunks := []models.Chunk{
		pubChunk("pub-1", "We achieve 92% mIoU on CamVid.", []float32{1, 0}),
		thesisChunk("thesis-1",
			"We achieve 92% mIoU on CamVid, extending this with a discussion of failure cases.",
			[]float32{0.99, 0.1}),
	}
	engine.Annotate(chunks)

	assert.False(t, chunks[1].IsRedundant)
}

func TestAnnotate_MarksResetWhenPublicationRemoved(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	text := longPassage(false)

	chunks := []models.Chunk{
		pubChunk("pub-1", text, nil),
		thesisChunk("thesis-1", text, nil),
	}
	engine.Annotate(chunks)
	require.True(t, chunks[1].IsRedundant)

	remaining := chunks[1:]
	engine.Annotate(remaining)

	assert.False(t, remaining[0].IsRedundant)
	assert.Empty(t, remaining[0].RedundantOf)
	assert.Equal(t, 0.0, remaining[0].RedundancyScore)
}
