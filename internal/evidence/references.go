package evidence

import (
	"fmt"

	"github.com/scholar-rag/backend/internal/storage/models"
	"github.com/scholar-rag/backend/pkg/textutil"
)

// Reference binds one retrieved chunk to a citation marker and the
// display fields the answer and citation panel render.
type Reference struct {
	Marker  string
	ChunkID string
	Role    models.SourceRole
	// Redundant mirrors the chunk's redundancy flag; such thesis
	// chunks get the TR marker prefix.
	Redundant bool
	Title     string
	Venue     string
	Year      int
	Source    string
}

func markerPrefix(role models.SourceRole, redundant bool) string {
	switch role {
	case models.RolePublication:
		return "P"
	case models.RoleThesis:
		if redundant {
			return "TR"
		}
		return "T"
	case models.RoleWeb:
		return "W"
	default:
		return "S"
	}
}

// BuildReferences assigns markers to retrieved chunks in retrieval
// order, numbering each prefix independently (P1, P2, T1, ...).
// Display fields prefer the canonical catalog over document metadata
// over the raw file name.
func BuildReferences(chunks []models.Chunk, documents []models.Document, catalog Catalog) []Reference {
	docsByID := make(map[string]models.Document, len(documents))
	for _, doc := range documents {
		docsByID[doc.ID] = doc
	}

	counters := make(map[string]int)
	references := make([]Reference, 0, len(chunks))

	for _, chunk := range chunks {
		prefix := markerPrefix(chunk.SourceRole, chunk.IsRedundant)
		counters[prefix]++

		ref := Reference{
			Marker:    fmt.Sprintf("%s%d", prefix, counters[prefix]),
			ChunkID:   chunk.ID,
			Role:      chunk.SourceRole,
			Redundant: chunk.IsRedundant,
			Source:    chunk.SourceName,
		}

		doc, hasDoc := docsByID[chunk.DocumentID]

		if pub, ok := catalog.Resolve(chunk.PaperKey, chunk.DocumentTitle, textutil.FileStem(chunk.SourceName)); ok {
			ref.Title = pub.Title
			ref.Venue = pub.Venue
			ref.Year = pub.Year
		} else if hasDoc && doc.Metadata.Title != "" {
			ref.Title = doc.Metadata.Title
			ref.Venue = doc.Metadata.Venue
			ref.Year = doc.Metadata.Year
		} else if chunk.DocumentTitle != "" {
			ref.Title = chunk.DocumentTitle
		} else {
			ref.Title = textutil.FileStem(chunk.SourceName)
		}

		references = append(references, ref)
	}

	return references
}

// CitationHints renders the marker list handed to the model inside the
// prompt, one line per reference.
func CitationHints(references []Reference) []string {
	hints := make([]string, 0, len(references))
	for _, ref := range references {
		line := fmt.Sprintf("[%s] %s", ref.Marker, ref.Title)
		if ref.Venue != "" {
			line += fmt.Sprintf(" (%s", ref.Venue)
			if ref.Year > 0 {
				line += fmt.Sprintf(" %d", ref.Year)
			}
			line += ")"
		} else if ref.Year > 0 {
			line += fmt.Sprintf(" (%d)", ref.Year)
		}
		hints = append(hints, line)
	}
	return hints
}
