package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholar-rag/backend/internal/storage/models"
)

func testDocuments() []models.Document {
	return []models.Document{
		{
			ID:         "doc-segformer",
			FileName:   "segformer.pdf",
			SourceRole: models.RolePublication,
			Metadata:   models.DocumentMetadata{Title: "SegFormer: Simple and Efficient Design"},
		},
		{
			ID:         "doc-deeplab",
			FileName:   "deeplab-v3.pdf",
			SourceRole: models.RolePublication,
			Metadata:   models.DocumentMetadata{Title: "Rethinking Atrous Convolution"},
		},
		{
			ID:         "doc-thesis",
			FileName:   "dissertation.pdf",
			SourceRole: models.RoleThesis,
			Metadata:   models.DocumentMetadata{Title: "Dense Prediction for Urban Scenes"},
		},
	}
}

func TestClassify(t *testing.T) {
	docs := testDocuments()

	tests := []struct {
		name  string
		query string
		want  Intent
	}{
		{
			name:  "comparison term with mentioned publication",
			query: "Compare SegFormer and DeepLab-v3 on accuracy",
			want:  PaperCompare,
		},
		{
			name:  "two publication mentions without comparison term",
			query: "What do SegFormer and DeepLab-v3 say about context aggregation",
			want:  PaperCompare,
		},
		{
			name:  "future directions",
			query: "What are the open problems and future work in this research",
			want:  FutureDirections,
		},
		{
			name:  "research overview",
			query: "Give me an overview of the research journey",
			want:  ResearchOverview,
		},
		{
			name:  "single publication with results signal",
			query: "What mIoU does SegFormer report on the benchmark",
			want:  PaperSpecific,
		},
		{
			name:  "single publication without results signal",
			query: "How does SegFormer handle multi-scale features",
			want:  TechnicalCrossPaper,
		},
		{
			name:  "no mentions defaults to cross paper",
			query: "How is attention used for dense prediction",
			want:  TechnicalCrossPaper,
		},
		{
			name:  "comparison term without any publication mention",
			query: "What is the difference between training and inference",
			want:  TechnicalCrossPaper,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Classify(tt.query, docs)
			assert.Equal(t, tt.want, result.Intent)
		})
	}
}

func TestClassify_MentionRanking(t *testing.T) {
	docs := testDocuments()
	result := Classify("Compare SegFormer and DeepLab-v3 on accuracy", docs)

	require.Len(t, result.PublicationMentions(), 2)
	names := []string{result.Mentions[0].Document.FileName, result.Mentions[1].Document.FileName}
	assert.Contains(t, names, "segformer.pdf")
	assert.Contains(t, names, "deeplab-v3.pdf")
}

func TestClassify_TitleTokenOverlapMention(t *testing.T) {
	docs := testDocuments()

	// No verbatim alias, but most of the title's tokens appear.
	result := Classify("Tell me about the rethinking atrous paper and its ablation study", docs)

	require.NotEmpty(t, result.Mentions)
	assert.Equal(t, "doc-deeplab", result.Mentions[0].Document.ID)
	assert.Equal(t, PaperSpecific, result.Intent)
}

func TestPublicationMentions_FiltersThesis(t *testing.T) {
	docs := testDocuments()
	result := Classify("What does the dissertation chapter on dense prediction for urban scenes conclude", docs)

	for _, doc := range result.PublicationMentions() {
		assert.Equal(t, models.RolePublication, doc.SourceRole)
	}
}

func TestClassify_NoDocuments(t *testing.T) {
	result := Classify("Summarize the research", nil)
	assert.Equal(t, ResearchOverview, result.Intent)
	assert.Empty(t, result.Mentions)
}
