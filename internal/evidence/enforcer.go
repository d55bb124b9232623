package evidence

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/scholar-rag/backend/internal/intent"
	"github.com/scholar-rag/backend/internal/storage/models"
)

// IntentContext carries what the enforcer needs to know about how the
// answer was retrieved.
type IntentContext struct {
	Intent intent.Intent
	// TargetDocument is set for paper_specific retrievals.
	TargetDocument *models.Document
}

// Citation is one deduplicated entry for the citation panel.
type Citation struct {
	Title string `json:"title"`
	Venue string `json:"venue,omitempty"`
	Year  int    `json:"year,omitempty"`
}

const maxCitations = 8
const maxSynthesizedMarkers = 4

var (
	// markerPattern matches bracketed citation markers. TR must come
	// before T so it isn't consumed as T + stray R.
	markerPattern = regexp.MustCompile(`\[(TR|P|T|W|S)(\d+)\]`)

	// sectionHeaderPattern matches evidence/citation section headers
	// the model sometimes appends on its own.
	sectionHeaderPattern = regexp.MustCompile(`(?im)^\s*(?:#+\s*)?(?:evidence|references|citations|sources|primary evidence)\s*:?\s*$`)

	quantPattern = regexp.MustCompile(`\d+(?:\.\d+)?\s*(?:%|percent|miou|map|bleu|f1|fps|ms|db|x\b)`)
)

var quantTerms = []string{"accuracy", "ablation", "f1", "precision", "recall", "error rate", "benchmark score"}

// EnforceContract rewrites a model answer so that every citation
// marker it contains resolves to a retrieved reference, appends the
// compliance notes and the full evidence listing, and returns the
// citation objects for the panel. It never fails: malformed input
// degrades to empty notes and markers.
func EnforceContract(query string, intentCtx IntentContext, answer string, references []Reference) (string, []Citation) {
	valid := make(map[string]struct{}, len(references))
	for _, ref := range references {
		valid[ref.Marker] = struct{}{}
	}

	text := stripModelEvidenceSection(answer)
	text = stripUnknownMarkers(text, valid)
	text = strings.TrimSpace(text)

	notes := complianceNotes(query, intentCtx, text, references)

	if len(references) > 0 && !markerPattern.MatchString(text) {
		text += "\n\n" + synthesizedEvidenceLine(references)
	}

	if len(notes) > 0 {
		var b strings.Builder
		b.WriteString("\n\nNotes:\n")
		for _, note := range notes {
			b.WriteString("- " + note + "\n")
		}
		text += strings.TrimRight(b.String(), "\n")
	}

	if len(references) > 0 {
		text += "\n\n" + evidenceListing(references)
	}

	return text, buildCitations(references)
}

// ContainsUnknownMarker reports whether the text cites a marker that
// does not resolve to any reference.
func ContainsUnknownMarker(text string, references []Reference) bool {
	valid := make(map[string]struct{}, len(references))
	for _, ref := range references {
		valid[ref.Marker] = struct{}{}
	}
	for _, match := range markerPattern.FindAllString(text, -1) {
		if _, ok := valid[strings.Trim(match, "[]")]; !ok {
			return true
		}
	}
	return false
}

// stripModelEvidenceSection cuts everything from the first
// model-authored evidence/citations header onward; the enforcer
// appends its own listing built from genuine references.
func stripModelEvidenceSection(text string) string {
	loc := sectionHeaderPattern.FindStringIndex(text)
	if loc == nil {
		return text
	}
	return text[:loc[0]]
}

func stripUnknownMarkers(text string, valid map[string]struct{}) string {
	return markerPattern.ReplaceAllStringFunc(text, func(match string) string {
		marker := strings.Trim(match, "[]")
		if _, ok := valid[marker]; ok {
			return match
		}
		return ""
	})
}

func complianceNotes(query string, intentCtx IntentContext, answer string, references []Reference) []string {
	var notes []string

	if intentCtx.Intent == intent.PaperSpecific && intentCtx.TargetDocument != nil && len(references) > 0 {
		notes = append(notes, fmt.Sprintf(
			"evidence restricted to %s as requested", intentCtx.TargetDocument.FileName))
	}

	hasPublication := false
	hasThesis := false
	onlyRedundantThesis := len(references) > 0
	for _, ref := range references {
		switch {
		case ref.Role == models.RolePublication:
			hasPublication = true
			onlyRedundantThesis = false
		case ref.Role == models.RoleThesis && ref.Redundant:
			hasThesis = true
		case ref.Role == models.RoleThesis:
			hasThesis = true
			onlyRedundantThesis = false
		default:
			onlyRedundantThesis = false
		}
	}

	if hasQuantitativeSignal(query) || hasQuantitativeSignal(answer) {
		if !hasPublication {
			notes = append(notes, "quantitative claims present but no publication source was retrieved; treat figures with caution")
		}
	}

	if onlyRedundantThesis && !hasPublication {
		notes = append(notes, "answer rests only on thesis passages that duplicate published work; confidence is lower")
	}

	if hasPublication && hasThesis {
		notes = append(notes, "publication evidence is canonical where thesis and publication sources conflict")
	}

	return notes
}

func hasQuantitativeSignal(text string) bool {
	lower := strings.ToLower(text)
	if quantPattern.MatchString(lower) {
		return true
	}
	for _, term := range quantTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// synthesizedEvidenceLine covers answers where the model cited nothing:
// up to four markers are appended, publications first, then thesis,
// then redundant thesis, then anything else.
func synthesizedEvidenceLine(references []Reference) string {
	ordered := make([]Reference, 0, len(references))
	for _, pass := range []func(Reference) bool{
		func(r Reference) bool { return r.Role == models.RolePublication },
		func(r Reference) bool { return r.Role == models.RoleThesis && !r.Redundant },
		func(r Reference) bool { return r.Role == models.RoleThesis && r.Redundant },
		func(r Reference) bool { return r.Role != models.RolePublication && r.Role != models.RoleThesis },
	} {
		for _, ref := range references {
			if pass(ref) {
				ordered = append(ordered, ref)
			}
		}
	}

	if len(ordered) > maxSynthesizedMarkers {
		ordered = ordered[:maxSynthesizedMarkers]
	}

	markers := make([]string, len(ordered))
	for i, ref := range ordered {
		markers[i] = "[" + ref.Marker + "]"
	}
	return "Primary evidence: " + strings.Join(markers, " ")
}

func evidenceListing(references []Reference) string {
	var b strings.Builder
	b.WriteString("Evidence:\n")
	for _, ref := range references {
		b.WriteString(fmt.Sprintf("[%s] %s - %s", ref.Marker, roleLabel(ref), ref.Title))
		if ref.Venue != "" {
			b.WriteString(", " + ref.Venue)
		}
		if ref.Year > 0 {
			b.WriteString(fmt.Sprintf(" %d", ref.Year))
		}
		b.WriteString(" (chunk " + ref.ChunkID + ")\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func roleLabel(ref Reference) string {
	if ref.Role == models.RoleThesis && ref.Redundant {
		return "THESIS-REDUNDANT"
	}
	return strings.ToUpper(string(ref.Role))
}

// buildCitations dedupes title/venue/year triples across the full
// reference list, not just the markers the model used, so the citation
// panel always reflects genuine retrieved evidence.
func buildCitations(references []Reference) []Citation {
	var citations []Citation
	seen := make(map[string]struct{})

	for _, ref := range references {
		c := Citation{Title: ref.Title, Venue: ref.Venue, Year: ref.Year}
		key := fmt.Sprintf("%s|%s|%d", c.Title, c.Venue, c.Year)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		citations = append(citations, c)
		if len(citations) >= maxCitations {
			break
		}
	}

	return citations
}
