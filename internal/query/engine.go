package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scholar-rag/backend/internal/cache/redis"
	"github.com/scholar-rag/backend/internal/corpus"
	"github.com/scholar-rag/backend/internal/evidence"
	"github.com/scholar-rag/backend/internal/intent"
	"github.com/scholar-rag/backend/internal/metrics"
	"github.com/scholar-rag/backend/internal/retrieval"
	"github.com/scholar-rag/backend/internal/storage/models"
	"github.com/scholar-rag/backend/pkg/logger"
	"github.com/scholar-rag/backend/pkg/textutil"
)

// AnswerGenerator is the external language model. Its failure is the
// one hard failure mode of query processing.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, query, evidenceBlock string, citationHints []string) (string, error)
}

// Recorder persists answered queries for the history endpoint.
type Recorder interface {
	InsertQueryRecord(record *models.QueryRecord) error
	InsertQuerySource(source *models.QuerySource) error
}

type Engine struct {
	store     *corpus.Store
	retriever *retrieval.Engine
	generator AnswerGenerator
	recorder  Recorder
	cache     *redis.Client
	catalog   evidence.Catalog
	cacheTTL  time.Duration
}

func NewEngine(store *corpus.Store, retriever *retrieval.Engine, generator AnswerGenerator, recorder Recorder, cache *redis.Client, catalog evidence.Catalog) *Engine {
	return &Engine{
		store:     store,
		retriever: retriever,
		generator: generator,
		recorder:  recorder,
		cache:     cache,
		catalog:   catalog,
		cacheTTL:  time.Hour,
	}
}

type Request struct {
	NamespaceID string
	Query       string
	TopK        int
}

type Response struct {
	ID         string              `json:"id"`
	Query      string              `json:"query"`
	Intent     string              `json:"intent"`
	Answer     string              `json:"answer"`
	Citations  []evidence.Citation `json:"citations"`
	Notes      []string            `json:"notes,omitempty"`
	Confidence float64             `json:"confidence"`
	ChunkCount int                 `json:"chunk_count"`
	LatencyMS  int                 `json:"latency_ms"`
}

// ProcessQuery runs the full pipeline: classify intent, retrieve
// evidence, call the model, enforce the citation contract, persist and
// return. Everything except the model call degrades rather than fails.
func (e *Engine) ProcessQuery(ctx context.Context, req Request) (*Response, error) {
	startTime := time.Now()
	queryID := uuid.New().String()
	queryHash := textutil.HashContent(req.Query)

	var cached Response
	if hit, err := e.cache.GetAnswer(ctx, req.NamespaceID, queryHash, &cached); err != nil {
		logger.Warn("Answer cache read failed", zap.Error(err))
	} else if hit {
		metrics.CacheHits.WithLabelValues("answer").Inc()
		return &cached, nil
	}
	metrics.CacheMisses.WithLabelValues("answer").Inc()

	logger.Info("Processing query",
		zap.String("query_id", queryID),
		zap.String("namespace_id", req.NamespaceID),
		zap.String("query", req.Query),
	)

	documents, err := e.store.Documents(req.NamespaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	classified := intent.Classify(req.Query, documents)
	mentionedPublications := classified.PublicationMentions()

	logger.Debug("Intent classified",
		zap.String("query_id", queryID),
		zap.String("intent", string(classified.Intent)),
		zap.Int("mentioned_publications", len(mentionedPublications)),
	)

	retrieved, err := e.retriever.Retrieve(ctx, req.NamespaceID, req.Query, classified.Intent, mentionedPublications, req.TopK)
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}
	metrics.RetrievedChunks.WithLabelValues(string(classified.Intent)).Observe(float64(len(retrieved.Chunks)))

	references := evidence.BuildReferences(retrieved.Chunks, documents, e.catalog)
	hints := evidence.CitationHints(references)

	answer, err := e.generator.GenerateAnswer(ctx, req.Query, formatEvidenceBlock(retrieved.Chunks, references), hints)
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	intentCtx := evidence.IntentContext{Intent: classified.Intent}
	if classified.Intent == intent.PaperSpecific && len(mentionedPublications) > 0 {
		intentCtx.TargetDocument = &mentionedPublications[0]
	}

	if evidence.ContainsUnknownMarker(answer, references) {
		metrics.ContractRepairs.WithLabelValues("unknown_marker").Inc()
	}
	finalText, citations := evidence.EnforceContract(req.Query, intentCtx, answer, references)

	confidence := calculateConfidence(references, answer)
	latency := int(time.Since(startTime).Milliseconds())

	response := &Response{
		ID:         queryID,
		Query:      req.Query,
		Intent:     string(classified.Intent),
		Answer:     finalText,
		Citations:  citations,
		Notes:      retrieved.Notes,
		Confidence: confidence,
		ChunkCount: len(retrieved.Chunks),
		LatencyMS:  latency,
	}

	e.record(queryID, req, classified.Intent, response, retrieved, references)

	if err := e.cache.SetAnswer(ctx, req.NamespaceID, queryHash, response, e.cacheTTL); err != nil {
		logger.Warn("Answer cache write failed", zap.Error(err))
	}

	metrics.QueryTotal.WithLabelValues("ok").Inc()
	metrics.QueryDuration.WithLabelValues(string(classified.Intent)).Observe(time.Since(startTime).Seconds())
	metrics.ConfidenceScore.Observe(confidence)

	logger.Info("Query processed",
		zap.String("query_id", queryID),
		zap.String("intent", string(classified.Intent)),
		zap.Int("chunks", len(retrieved.Chunks)),
		zap.Float64("confidence", confidence),
		zap.Int("latency_ms", latency),
	)

	return response, nil
}

func (e *Engine) record(queryID string, req Request, queryIntent intent.Intent, response *Response, retrieved *retrieval.Result, references []evidence.Reference) {
	if e.recorder == nil {
		return
	}

	err := e.recorder.InsertQueryRecord(&models.QueryRecord{
		ID:          queryID,
		NamespaceID: req.NamespaceID,
		QueryText:   req.Query,
		Intent:      string(queryIntent),
		Answer:      response.Answer,
		Confidence:  response.Confidence,
		ChunkCount:  response.ChunkCount,
		LatencyMS:   response.LatencyMS,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		logger.Warn("Failed to record query", zap.Error(err))
		return
	}

	for i, chunk := range retrieved.Chunks {
		marker := ""
		if i < len(references) {
			marker = references[i].Marker
		}
		score := 0.0
		if i < len(retrieved.Scores) {
			score = retrieved.Scores[i]
		}
		if err := e.recorder.InsertQuerySource(&models.QuerySource{
			QueryID:    queryID,
			ChunkID:    chunk.ID,
			DocumentID: chunk.DocumentID,
			Marker:     marker,
			Score:      score,
		}); err != nil {
			logger.Warn("Failed to record query source", zap.Error(err))
		}
	}
}

// formatEvidenceBlock renders the retrieved passages the model reads,
// each headed by its marker.
func formatEvidenceBlock(chunks []models.Chunk, references []evidence.Reference) string {
	if len(chunks) == 0 {
		return "No relevant passages were found in the corpus."
	}

	var b strings.Builder
	for i, chunk := range chunks {
		marker := ""
		if i < len(references) {
			marker = references[i].Marker
		}
		b.WriteString(fmt.Sprintf("[%s] (%s, %s)\n%s\n\n", marker, chunk.SourceRole, chunk.SourceName, chunk.Text))
	}
	return strings.TrimSpace(b.String())
}

// calculateConfidence derives a coarse confidence from the evidence
// mix: publication share raises it, an all-redundant evidence set
// lowers it. modelAnswer is the raw model output; the enforced text
// always carries publication markers in its appended listing, so
// checking it would make the citation bonus unconditional.
func calculateConfidence(references []evidence.Reference, modelAnswer string) float64 {
	if len(references) == 0 {
		return 0.3
	}

	confidence := 0.5

	publications := 0
	redundant := 0
	for _, ref := range references {
		if ref.Role == models.RolePublication {
			publications++
		}
		if ref.Redundant {
			redundant++
		}
	}

	confidence += 0.3 * float64(publications) / float64(len(references))
	if redundant == len(references) {
		confidence -= 0.2
	}
	if strings.Contains(modelAnswer, "[P") {
		confidence += 0.1
	}

	if confidence > 1.0 {
		confidence = 1.0
	}
	if confidence < 0 {
		confidence = 0
	}

	return confidence
}
