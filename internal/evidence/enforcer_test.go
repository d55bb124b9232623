package evidence

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholar-rag/backend/internal/intent"
	"github.com/scholar-rag/backend/internal/storage/models"
)

func testReferences() []Reference {
	return []Reference{
		{Marker: "P1", ChunkID: "c1", Role: models.RolePublication, Title: "SegFormer", Venue: "NeurIPS", Year: 2021},
		{Marker: "T1", ChunkID: "c2", Role: models.RoleThesis, Title: "Dissertation"},
		{Marker: "TR1", ChunkID: "c3", Role: models.RoleThesis, Redundant: true, Title: "Dissertation"},
	}
}

func TestEnforceContract_KeepsKnownMarkers(t *testing.T) {
	answer := "The encoder is efficient [P1] and the thesis elaborates [T1]."

	text, citations := EnforceContract("how does the encoder work",
		IntentContext{Intent: intent.TechnicalCrossPaper}, answer, testReferences())

	assert.Contains(t, text, "[P1]")
	assert.Contains(t, text, "[T1]")
	assert.NotEmpty(t, citations)
}

func TestEnforceContract_StripsUnknownMarkers(t *testing.T) {
	answer := "The encoder is efficient [P1] as shown in [P9] and [X1]."

	text, _ := EnforceContract("how does the encoder work",
		IntentContext{Intent: intent.TechnicalCrossPaper}, answer, testReferences())

	assert.Contains(t, text, "[P1]")
	assert.NotContains(t, text, "[P9]")
	// [X1] is not a recognized marker shape and passes through as text.
	assert.Contains(t, text, "[X1]")
}

func TestEnforceContract_StripsModelEvidenceSection(t *testing.T) {
	answer := "The encoder is efficient [P1].\n\nEvidence:\n[P1] something the model made up\n[P7] fabricated"

	text, _ := EnforceContract("how does the encoder work",
		IntentContext{Intent: intent.TechnicalCrossPaper}, answer, testReferences())

	assert.NotContains(t, text, "made up")
	assert.NotContains(t, text, "fabricated")
	// The enforcer appends its own listing built from real references.
	assert.Contains(t, text, "Evidence:")
	assert.Contains(t, text, "[P1] PUBLICATION - SegFormer, NeurIPS 2021 (chunk c1)")
}

func TestEnforceContract_SynthesizesEvidenceLineWhenNoMarkersUsed(t *testing.T) {
	answer := "The encoder reuses hierarchical features without positional encodings."

	text, _ := EnforceContract("how does the encoder work",
		IntentContext{Intent: intent.TechnicalCrossPaper}, answer, testReferences())

	require.Contains(t, text, "Primary evidence:")
	line := ""
	for _, l := range strings.Split(text, "\n") {
		if strings.HasPrefix(l, "Primary evidence:") {
			line = l
		}
	}
	// Publications lead, then thesis, then redundant thesis.
	assert.Equal(t, "Primary evidence: [P1] [T1] [TR1]", line)
}

func TestEnforceContract_SynthesizedLineCapped(t *testing.T) {
	refs := []Reference{
		{Marker: "P1", Role: models.RolePublication, Title: "A"},
		{Marker: "P2", Role: models.RolePublication, Title: "B"},
		{Marker: "P3", Role: models.RolePublication, Title: "C"},
		{Marker: "P4", Role: models.RolePublication, Title: "D"},
		{Marker: "P5", Role: models.RolePublication, Title: "E"},
	}

	text, _ := EnforceContract("question", IntentContext{Intent: intent.ResearchOverview},
		"An answer with no markers.", refs)

	assert.Contains(t, text, "Primary evidence: [P1] [P2] [P3] [P4]")
	assert.NotContains(t, text, "[P5]\n")
}

func TestEnforceContract_PaperSpecificRestrictionNote(t *testing.T) {
	target := &models.Document{ID: "doc-1", FileName: "segformer.pdf"}

	text, _ := EnforceContract("what miou does segformer report",
		IntentContext{Intent: intent.PaperSpecific, TargetDocument: target},
		"It reports strong results [P1].", testReferences())

	assert.Contains(t, text, "evidence restricted to segformer.pdf")
}

func TestEnforceContract_RestrictionNoteOmittedWithoutEvidence(t *testing.T) {
	target := &models.Document{ID: "doc-1", FileName: "segformer.pdf"}

	text, _ := EnforceContract("what miou does segformer report",
		IntentContext{Intent: intent.PaperSpecific, TargetDocument: target},
		"No indexed content was found for that paper.", nil)

	assert.NotContains(t, text, "evidence restricted")
}

func TestEnforceContract_QuantitativeWithoutPublicationNote(t *testing.T) {
	refs := []Reference{
		{Marker: "T1", Role: models.RoleThesis, Title: "Dissertation"},
	}

	text, _ := EnforceContract("what is the accuracy",
		IntentContext{Intent: intent.TechnicalCrossPaper},
		"The model reaches 92% on the benchmark [T1].", refs)

	assert.Contains(t, text, "treat figures with caution")
}

func TestEnforceContract_OnlyRedundantThesisNote(t *testing.T) {
	refs := []Reference{
		{Marker: "TR1", Role: models.RoleThesis, Redundant: true, Title: "Dissertation"},
	}

	text, _ := EnforceContract("what approach was used",
		IntentContext{Intent: intent.TechnicalCrossPaper},
		"The chapter describes the approach [TR1].", refs)

	assert.Contains(t, text, "duplicate published work")
}

func TestEnforceContract_CanonicalSourceNote(t *testing.T) {
	text, _ := EnforceContract("what approach was used",
		IntentContext{Intent: intent.TechnicalCrossPaper},
		"Both sources describe it [P1] [T1].", testReferences())

	assert.Contains(t, text, "publication evidence is canonical")
}

func TestEnforceContract_EmptyInputsNeverFail(t *testing.T) {
	text, citations := EnforceContract("", IntentContext{}, "", nil)
	assert.Empty(t, text)
	assert.Empty(t, citations)
}

func TestEnforceContract_CitationsDedupedAndCapped(t *testing.T) {
	var refs []Reference
	for i := 0; i < 12; i++ {
		refs = append(refs, Reference{
			Marker: fmt.Sprintf("P%d", i+1),
			Role:   models.RolePublication,
			Title:  fmt.Sprintf("Paper %d", i/2),
			Year:   2020,
		})
	}

	_, citations := EnforceContract("question", IntentContext{Intent: intent.ResearchOverview},
		"Answer [P1].", refs)

	require.LessOrEqual(t, len(citations), 8)
	seen := map[string]bool{}
	for _, c := range citations {
		key := c.Title
		assert.False(t, seen[key], key)
		seen[key] = true
	}
}

func TestContainsUnknownMarker(t *testing.T) {
	refs := testReferences()

	assert.False(t, ContainsUnknownMarker("fine [P1] and [TR1]", refs))
	assert.True(t, ContainsUnknownMarker("bad [P2]", refs))
	assert.False(t, ContainsUnknownMarker("no markers at all", refs))
}

func TestEnforceContract_EvidenceListingLabelsRedundantThesis(t *testing.T) {
	text, _ := EnforceContract("question", IntentContext{Intent: intent.ResearchOverview},
		"Answer [TR1].", testReferences())

	assert.Contains(t, text, "[TR1] THESIS-REDUNDANT - Dissertation (chunk c3)")
}
