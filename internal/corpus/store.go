package corpus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scholar-rag/backend/internal/chunker"
	"github.com/scholar-rag/backend/internal/metrics"
	"github.com/scholar-rag/backend/internal/redundancy"
	"github.com/scholar-rag/backend/internal/storage/models"
	"github.com/scholar-rag/backend/internal/storage/sqlite"
	"github.com/scholar-rag/backend/pkg/logger"
	"github.com/scholar-rag/backend/pkg/textutil"
)

// Persistence is the whole-snapshot durable store the corpus sits on.
// Reads return the full namespace state; writes replace it atomically.
type Persistence interface {
	ReadNamespace(namespaceID string) (*sqlite.Snapshot, error)
	ReplaceNamespace(namespaceID string, snap *sqlite.Snapshot) error
}

// Embedder produces embedding vectors. A nil vector or an error is the
// normal degraded case, never fatal.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Store struct {
	persistence Persistence
	embedder    Embedder
	redundancy  *redundancy.Engine
	chunkSizes  map[models.SourceRole]chunker.Sizes

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore builds the corpus repository. embedder may be nil; chunks
// are then stored without embeddings and ranking degrades to keyword
// scoring.
func NewStore(persistence Persistence, embedder Embedder, engine *redundancy.Engine, chunkSizes map[models.SourceRole]chunker.Sizes) *Store {
	if chunkSizes == nil {
		chunkSizes = chunker.Defaults()
	}
	return &Store{
		persistence: persistence,
		embedder:    embedder,
		redundancy:  engine,
		chunkSizes:  chunkSizes,
		locks:       make(map[string]*sync.Mutex),
	}
}

// namespaceLock serializes writers per namespace. Readers go straight
// to the persistence layer.
func (s *Store) namespaceLock(namespaceID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[namespaceID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[namespaceID] = lock
	}
	return lock
}

type IngestRequest struct {
	FileName   string
	FileType   string
	SourceType models.SourceType
	SourceRef  string
	SourceRole models.SourceRole
	Text       string
	Metadata   models.DocumentMetadata
}

// IngestDocument chunks and stores one document. A prior document with
// the same file name in the namespace is superseded along with its
// chunks. Redundancy marks for the whole namespace are recomputed
// before the snapshot is persisted, so no partial state is observable.
func (s *Store) IngestDocument(ctx context.Context, namespaceID string, req IngestRequest) (*models.Document, error) {
	if req.FileName == "" {
		return nil, fmt.Errorf("file name is required")
	}

	lock := s.namespaceLock(namespaceID)
	lock.Lock()
	defer lock.Unlock()

	snap, err := s.persistence.ReadNamespace(namespaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to read namespace %s: %w", namespaceID, err)
	}
	normalizeSnapshot(snap)
	s.supersede(snap, req.FileName)

	role := models.ParseSourceRole(string(req.SourceRole))
	doc := models.Document{
		ID:          uuid.New().String(),
		NamespaceID: namespaceID,
		FileName:    req.FileName,
		FileType:    req.FileType,
		Status:      models.StatusActive,
		UploadedAt:  time.Now(),
		SourceType:  req.SourceType,
		SourceRef:   req.SourceRef,
		SourceRole:  role,
		Metadata:    req.Metadata,
	}

	sizes := chunker.ForRole(s.chunkSizes, role)
	pieces := chunker.Chunk(req.Text, sizes.Size, sizes.Overlap)
	if len(pieces) == 0 {
		doc.Status = models.StatusFailed
		snap.Documents = append(snap.Documents, doc)
		if err := s.writeAnnotated(namespaceID, snap); err != nil {
			return nil, err
		}
		logger.Warn("Document had no extractable text",
			zap.String("namespace_id", namespaceID),
			zap.String("file_name", req.FileName),
		)
		return &doc, nil
	}

	embeddings := s.embedPieces(ctx, pieces)

	paperKey := textutil.PaperKey(req.Metadata.Title, req.FileName)
	for i, piece := range pieces {
		chunk := models.Chunk{
			ID:            uuid.New().String(),
			NamespaceID:   namespaceID,
			DocumentID:    doc.ID,
			Text:          piece,
			TextHash:      textutil.HashContent(piece),
			SourceName:    req.FileName,
			ChunkIndex:    i,
			SourceRole:    role,
			PaperKey:      paperKey,
			DocumentTitle: req.Metadata.Title,
		}
		if embeddings != nil && i < len(embeddings) {
			chunk.Embedding = embeddings[i]
		}
		snap.Chunks = append(snap.Chunks, chunk)
	}
	doc.DocumentCount = len(pieces)
	snap.Documents = append(snap.Documents, doc)

	if err := s.writeAnnotated(namespaceID, snap); err != nil {
		return nil, err
	}

	logger.Info("Document ingested",
		zap.String("namespace_id", namespaceID),
		zap.String("document_id", doc.ID),
		zap.String("file_name", doc.FileName),
		zap.String("source_role", string(role)),
		zap.Int("chunks", len(pieces)),
	)

	return &doc, nil
}

// DeleteDocument soft-deletes a document and purges its chunks, then
// recomputes redundancy over what remains.
func (s *Store) DeleteDocument(ctx context.Context, namespaceID, documentID string) error {
	lock := s.namespaceLock(namespaceID)
	lock.Lock()
	defer lock.Unlock()

	snap, err := s.persistence.ReadNamespace(namespaceID)
	if err != nil {
		return fmt.Errorf("failed to read namespace %s: %w", namespaceID, err)
	}
	normalizeSnapshot(snap)

	found := false
	for i := range snap.Documents {
		if snap.Documents[i].ID == documentID {
			snap.Documents[i].Status = models.StatusDeleted
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("document %s not found in namespace %s", documentID, namespaceID)
	}

	kept := snap.Chunks[:0]
	for _, chunk := range snap.Chunks {
		if chunk.DocumentID != documentID {
			kept = append(kept, chunk)
		}
	}
	snap.Chunks = kept

	if err := s.writeAnnotated(namespaceID, snap); err != nil {
		return err
	}

	logger.Info("Document deleted",
		zap.String("namespace_id", namespaceID),
		zap.String("document_id", documentID),
	)

	return nil
}

// Documents returns the namespace's documents that have not been
// soft-deleted, normalized and in stored order.
func (s *Store) Documents(namespaceID string) ([]models.Document, error) {
	snap, err := s.persistence.ReadNamespace(namespaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to read namespace %s: %w", namespaceID, err)
	}
	normalizeSnapshot(snap)

	var docs []models.Document
	for _, doc := range snap.Documents {
		if doc.Status != models.StatusDeleted {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// Chunks returns the namespace's retrievable chunks in stored order.
func (s *Store) Chunks(namespaceID string) ([]models.Chunk, error) {
	snap, err := s.persistence.ReadNamespace(namespaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to read namespace %s: %w", namespaceID, err)
	}
	normalizeSnapshot(snap)
	return snap.Chunks, nil
}

// writeAnnotated runs the redundancy engine over the full chunk set and
// persists the snapshot. Annotation completes before the write so
// partial redundancy states are never stored.
func (s *Store) writeAnnotated(namespaceID string, snap *sqlite.Snapshot) error {
	s.redundancy.Annotate(snap.Chunks)

	redundant := 0
	for _, chunk := range snap.Chunks {
		if chunk.IsRedundant {
			redundant++
		}
	}
	metrics.RedundantThesisChunks.WithLabelValues(namespaceID).Set(float64(redundant))

	if err := s.persistence.ReplaceNamespace(namespaceID, snap); err != nil {
		return fmt.Errorf("failed to write namespace %s: %w", namespaceID, err)
	}
	return nil
}

// supersede drops any prior document with the same file name, plus its
// chunks. (namespaceID, fileName) is the logical replace key.
func (s *Store) supersede(snap *sqlite.Snapshot, fileName string) {
	superseded := make(map[string]struct{})
	docs := snap.Documents[:0]
	for _, doc := range snap.Documents {
		if doc.FileName == fileName {
			superseded[doc.ID] = struct{}{}
			continue
		}
		docs = append(docs, doc)
	}
	snap.Documents = docs

	if len(superseded) == 0 {
		return
	}
	chunks := snap.Chunks[:0]
	for _, chunk := range snap.Chunks {
		if _, ok := superseded[chunk.DocumentID]; !ok {
			chunks = append(chunks, chunk)
		}
	}
	snap.Chunks = chunks
}

func (s *Store) embedPieces(ctx context.Context, pieces []string) [][]float32 {
	if s.embedder == nil {
		return nil
	}
	embeddings, err := s.embedder.EmbedBatch(ctx, pieces)
	if err != nil {
		logger.Warn("Embedding unavailable, storing chunks without vectors", zap.Error(err))
		return nil
	}
	return embeddings
}

// normalizeSnapshot silently drops malformed records and clamps
// out-of-range scores before the snapshot is used.
func normalizeSnapshot(snap *sqlite.Snapshot) {
	validDocs := make(map[string]struct{})
	docs := snap.Documents[:0]
	for _, doc := range snap.Documents {
		if doc.ID == "" || doc.FileName == "" {
			continue
		}
		doc.SourceRole = models.ParseSourceRole(string(doc.SourceRole))
		validDocs[doc.ID] = struct{}{}
		docs = append(docs, doc)
	}
	snap.Documents = docs

	chunks := snap.Chunks[:0]
	for _, chunk := range snap.Chunks {
		if chunk.ID == "" || chunk.Text == "" {
			continue
		}
		if _, ok := validDocs[chunk.DocumentID]; !ok {
			continue
		}
		chunk.SourceRole = models.ParseSourceRole(string(chunk.SourceRole))
		if chunk.RedundancyScore < 0 {
			chunk.RedundancyScore = 0
		}
		if chunk.RedundancyScore > 1 {
			chunk.RedundancyScore = 1
		}
		chunks = append(chunks, chunk)
	}
	snap.Chunks = chunks
}
