package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholar-rag/backend/internal/corpus"
	"github.com/scholar-rag/backend/internal/evidence"
	"github.com/scholar-rag/backend/internal/redundancy"
	"github.com/scholar-rag/backend/internal/retrieval"
	"github.com/scholar-rag/backend/internal/storage/models"
	"github.com/scholar-rag/backend/internal/storage/sqlite"
)

type memPersistence struct {
	snaps map[string]*sqlite.Snapshot
}

func newMemPersistence() *memPersistence {
	return &memPersistence{snaps: make(map[string]*sqlite.Snapshot)}
}

func (m *memPersistence) ReadNamespace(namespaceID string) (*sqlite.Snapshot, error) {
	snap, ok := m.snaps[namespaceID]
	if !ok {
		return &sqlite.Snapshot{}, nil
	}
	return &sqlite.Snapshot{
		Documents: append([]models.Document(nil), snap.Documents...),
		Chunks:    append([]models.Chunk(nil), snap.Chunks...),
	}, nil
}

func (m *memPersistence) ReplaceNamespace(namespaceID string, snap *sqlite.Snapshot) error {
	m.snaps[namespaceID] = &sqlite.Snapshot{
		Documents: append([]models.Document(nil), snap.Documents...),
		Chunks:    append([]models.Chunk(nil), snap.Chunks...),
	}
	return nil
}

type stubGenerator struct {
	answer string
	err    error

	lastEvidence string
	lastHints    []string
}

func (g *stubGenerator) GenerateAnswer(ctx context.Context, query, evidenceBlock string, citationHints []string) (string, error) {
	g.lastEvidence = evidenceBlock
	g.lastHints = citationHints
	return g.answer, g.err
}

type stubRecorder struct {
	records []models.QueryRecord
	sources []models.QuerySource
}

func (r *stubRecorder) InsertQueryRecord(record *models.QueryRecord) error {
	r.records = append(r.records, *record)
	return nil
}

func (r *stubRecorder) InsertQuerySource(source *models.QuerySource) error {
	r.sources = append(r.sources, *source)
	return nil
}

func newTestEngine(t *testing.T, generator AnswerGenerator, recorder Recorder) (*Engine, *corpus.Store) {
	t.Helper()
	store := corpus.NewStore(newMemPersistence(), nil, redundancy.NewEngine(redundancy.DefaultConfig()), nil)
	retriever := retrieval.NewEngine(store, nil, retrieval.DefaultConfig())
	engine := NewEngine(store, retriever, generator, recorder, nil, evidence.Catalog{
		{Title: "SegFormer", Venue: "NeurIPS", Year: 2021, Aliases: []string{"segformer"}},
	})
	return engine, store
}

func TestProcessQuery(t *testing.T) {
	generator := &stubGenerator{answer: "The encoder avoids positional encodings [P1]."}
	recorder := &stubRecorder{}
	engine, store := newTestEngine(t, generator, recorder)

	_, err := store.IngestDocument(context.Background(), "ns", corpus.IngestRequest{
		FileName:   "segformer.pdf",
		SourceRole: models.RolePublication,
		Text:       "The hierarchical encoder avoids positional encodings and scales across resolutions.",
		Metadata:   models.DocumentMetadata{Title: "SegFormer"},
	})
	require.NoError(t, err)

	response, err := engine.ProcessQuery(context.Background(), Request{
		NamespaceID: "ns",
		Query:       "How does the encoder avoid positional encodings?",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, response.ID)
	assert.NotEmpty(t, response.Intent)
	assert.Contains(t, response.Answer, "[P1]")
	assert.Contains(t, response.Answer, "Evidence:")
	assert.Equal(t, 1, response.ChunkCount)
	assert.Greater(t, response.Confidence, 0.5)

	// Catalog resolution flows into the citation panel.
	require.Len(t, response.Citations, 1)
	assert.Equal(t, "SegFormer", response.Citations[0].Title)
	assert.Equal(t, "NeurIPS", response.Citations[0].Venue)

	// The model saw the marked-up evidence and the citation hints.
	assert.Contains(t, generator.lastEvidence, "[P1]")
	require.Len(t, generator.lastHints, 1)
	assert.Contains(t, generator.lastHints[0], "SegFormer")

	// History was persisted along with the source links.
	require.Len(t, recorder.records, 1)
	assert.Equal(t, response.ID, recorder.records[0].ID)
	require.Len(t, recorder.sources, 1)
	assert.Equal(t, "P1", recorder.sources[0].Marker)
	assert.Greater(t, recorder.sources[0].Score, 0.0)
}

func TestProcessQuery_UncitedAnswerGetsNoCitationBonus(t *testing.T) {
	generator := &stubGenerator{answer: "The encoder avoids positional encodings."}
	engine, store := newTestEngine(t, generator, &stubRecorder{})

	_, err := store.IngestDocument(context.Background(), "ns", corpus.IngestRequest{
		FileName:   "segformer.pdf",
		SourceRole: models.RolePublication,
		Text:       "The hierarchical encoder avoids positional encodings and scales across resolutions.",
		Metadata:   models.DocumentMetadata{Title: "SegFormer"},
	})
	require.NoError(t, err)

	response, err := engine.ProcessQuery(context.Background(), Request{
		NamespaceID: "ns",
		Query:       "How does the encoder avoid positional encodings?",
	})
	require.NoError(t, err)

	// The enforced answer always carries marked evidence; the citation
	// bonus still depends on the model's own text citing a publication.
	assert.Contains(t, response.Answer, "[P1]")
	assert.InDelta(t, 0.8, response.Confidence, 1e-9)
}

func TestProcessQuery_EmptyCorpus(t *testing.T) {
	generator := &stubGenerator{answer: "I could not find relevant material in the corpus."}
	engine, _ := newTestEngine(t, generator, &stubRecorder{})

	response, err := engine.ProcessQuery(context.Background(), Request{
		NamespaceID: "empty-ns",
		Query:       "What is this research about?",
	})
	require.NoError(t, err)

	assert.Zero(t, response.ChunkCount)
	assert.NotEmpty(t, response.Notes)
	assert.InDelta(t, 0.3, response.Confidence, 1e-9)
	assert.Contains(t, generator.lastEvidence, "No relevant passages")
}

func TestProcessQuery_GeneratorFailure(t *testing.T) {
	generator := &stubGenerator{err: errors.New("model unavailable")}
	engine, store := newTestEngine(t, generator, &stubRecorder{})

	_, err := store.IngestDocument(context.Background(), "ns", corpus.IngestRequest{
		FileName:   "paper.pdf",
		SourceRole: models.RolePublication,
		Text:       "Some publication text about the research topic.",
	})
	require.NoError(t, err)

	_, err = engine.ProcessQuery(context.Background(), Request{
		NamespaceID: "ns",
		Query:       "What does the paper say?",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to generate answer")
}

func TestCalculateConfidence(t *testing.T) {
	pub := evidence.Reference{Role: models.RolePublication}
	thesis := evidence.Reference{Role: models.RoleThesis}
	redundant := evidence.Reference{Role: models.RoleThesis, Redundant: true}

	tests := []struct {
		name        string
		references  []evidence.Reference
		modelAnswer string
		want        float64
	}{
		{
			name: "no evidence",
			want: 0.3,
		},
		{
			name:        "all publications with marker in text",
			references:  []evidence.Reference{pub, pub},
			modelAnswer: "answer [P1]",
			want:        0.9,
		},
		{
			name:        "mixed evidence without marker",
			references:  []evidence.Reference{pub, thesis},
			modelAnswer: "answer",
			want:        0.65,
		},
		{
			name:        "all redundant thesis",
			references:  []evidence.Reference{redundant, redundant},
			modelAnswer: "answer",
			want:        0.3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, calculateConfidence(tt.references, tt.modelAnswer), 1e-9)
		})
	}
}

func TestFormatEvidenceBlock(t *testing.T) {
	chunks := []models.Chunk{
		{ID: "c1", Text: "first passage", SourceRole: models.RolePublication, SourceName: "paper.pdf"},
		{ID: "c2", Text: "second passage", SourceRole: models.RoleThesis, SourceName: "thesis.pdf"},
	}
	references := []evidence.Reference{{Marker: "P1"}, {Marker: "T1"}}

	block := formatEvidenceBlock(chunks, references)
	assert.Contains(t, block, "[P1] (publication, paper.pdf)\nfirst passage")
	assert.Contains(t, block, "[T1] (thesis, thesis.pdf)\nsecond passage")

	assert.Equal(t, "No relevant passages were found in the corpus.", formatEvidenceBlock(nil, nil))
}
