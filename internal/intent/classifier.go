package intent

import (
	"sort"
	"strings"

	"github.com/scholar-rag/backend/internal/storage/models"
	"github.com/scholar-rag/backend/pkg/textutil"
)

type Intent string

const (
	PaperSpecific       Intent = "paper_specific"
	PaperCompare        Intent = "paper_compare"
	TechnicalCrossPaper Intent = "technical_cross_paper"
	ResearchOverview    Intent = "research_overview"
	FutureDirections    Intent = "future_directions"
)

// Mention is a known document matched against the query, with the
// alias-match score that ranked it.
type Mention struct {
	Document models.Document
	Score    float64
}

type Result struct {
	Intent   Intent
	Mentions []Mention
}

// Term lists are written in normalized form (lowercase, punctuation
// stripped); short ambiguous terms carry explicit spaces so they only
// match whole tokens.
var comparisonTerms = []string{
	"compare", "comparison", "versus", " vs ", "difference",
	"differences", "tradeoff", "trade off", "contrast", "better than",
}

var futureTerms = []string{
	"future", "roadmap", "limitation", "limitations", "next step",
	"open problem", "open question", "future work", "direction",
}

var overviewTerms = []string{
	"overview", "summary", "summarize", "summarise", "evolution",
	"trajectory", "big picture", "body of work", "research journey",
}

var paperSignalTerms = []string{
	"result", "results", "metric", "ablation", "accuracy", "dataset",
	"benchmark", "experiment", "table", "figure", "baseline",
	"cvpr", "iccv", "eccv", "neurips", "icml", "iclr", "acl", "emnlp",
	"miou", "f1", "bleu",
}

// Classify maps a free-text query plus the namespace's known documents
// to a retrieval intent and the ranked documents the query mentions.
// First matching rule wins.
func Classify(query string, documents []models.Document) Result {
	normalized := " " + textutil.NormalizeKey(query) + " "
	mentions := matchDocuments(normalized, documents)

	publicationMentions := 0
	for _, m := range mentions {
		if m.Document.SourceRole == models.RolePublication {
			publicationMentions++
		}
	}

	switch {
	case (containsAny(normalized, comparisonTerms) && publicationMentions >= 1) || publicationMentions >= 2:
		return Result{Intent: PaperCompare, Mentions: mentions}
	case containsAny(normalized, futureTerms):
		return Result{Intent: FutureDirections, Mentions: mentions}
	case containsAny(normalized, overviewTerms):
		return Result{Intent: ResearchOverview, Mentions: mentions}
	case publicationMentions == 1 && containsAny(normalized, paperSignalTerms):
		return Result{Intent: PaperSpecific, Mentions: mentions}
	default:
		return Result{Intent: TechnicalCrossPaper, Mentions: mentions}
	}
}

// PublicationMentions filters the ranked mentions down to
// publication-role documents, preserving score order.
func (r Result) PublicationMentions() []models.Document {
	var docs []models.Document
	for _, m := range r.Mentions {
		if m.Document.SourceRole == models.RolePublication {
			docs = append(docs, m.Document)
		}
	}
	return docs
}

func matchDocuments(normalizedQuery string, documents []models.Document) []Mention {
	queryTokens := tokenSet(normalizedQuery)

	var mentions []Mention
	for _, doc := range documents {
		score := 0.0
		for _, alias := range aliasesFor(doc) {
			if s := scoreAlias(normalizedQuery, queryTokens, alias); s > score {
				score = s
			}
		}
		if score > 0 {
			mentions = append(mentions, Mention{Document: doc, Score: score})
		}
	}

	sort.SliceStable(mentions, func(i, j int) bool {
		return mentions[i].Score > mentions[j].Score
	})
	return mentions
}

func aliasesFor(doc models.Document) []string {
	var aliases []string
	for _, raw := range []string{
		textutil.FileStem(doc.FileName),
		doc.Metadata.Title,
		doc.Metadata.CanonicalCitation,
	} {
		if alias := textutil.NormalizeKey(raw); alias != "" {
			aliases = append(aliases, alias)
		}
	}
	return aliases
}

// scoreAlias implements the three matching tiers: a verbatim >=6-char
// alias substring scores 3, a >=60% token overlap with a multi-token
// alias scores 2+ratio, and an exact single-token alias scores 1.25.
func scoreAlias(normalizedQuery string, queryTokens map[string]struct{}, alias string) float64 {
	if len(alias) >= 6 && strings.Contains(normalizedQuery, alias) {
		return 3
	}

	aliasTokens := strings.Fields(alias)
	if len(aliasTokens) >= 2 {
		matched := 0
		for _, t := range aliasTokens {
			if _, ok := queryTokens[t]; ok {
				matched++
			}
		}
		ratio := float64(matched) / float64(len(aliasTokens))
		if ratio >= 0.6 {
			return 2 + ratio
		}
	}

	if len(aliasTokens) == 1 {
		if _, ok := queryTokens[aliasTokens[0]]; ok {
			return 1.25
		}
	}

	return 0
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range strings.Fields(s) {
		set[t] = struct{}{}
	}
	return set
}

func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}
