package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/scholar-rag/backend/internal/storage/models"
	"github.com/scholar-rag/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		namespace_id TEXT NOT NULL,
		file_name TEXT NOT NULL,
		file_type TEXT,
		status TEXT NOT NULL,
		uploaded_at INTEGER NOT NULL,
		source_type TEXT,
		source_ref TEXT,
		document_count INTEGER DEFAULT 0,
		source_role TEXT NOT NULL,
		metadata TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_documents_namespace ON documents(namespace_id);
	CREATE INDEX IF NOT EXISTS idx_documents_file ON documents(namespace_id, file_name);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		namespace_id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		text TEXT NOT NULL,
		text_hash TEXT,
		embedding TEXT,
		source_name TEXT,
		chunk_index INTEGER NOT NULL,
		source_role TEXT NOT NULL,
		paper_key TEXT,
		document_title TEXT,
		heading_path TEXT,
		page_start INTEGER,
		page_end INTEGER,
		redundant_of TEXT,
		redundancy_score REAL,
		is_redundant INTEGER DEFAULT 0,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_namespace ON chunks(namespace_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);

	CREATE TABLE IF NOT EXISTS query_history (
		id TEXT PRIMARY KEY,
		namespace_id TEXT NOT NULL,
		query_text TEXT NOT NULL,
		intent TEXT,
		answer TEXT,
		confidence REAL,
		chunk_count INTEGER,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_query_namespace ON query_history(namespace_id);
	CREATE INDEX IF NOT EXISTS idx_query_created ON query_history(created_at);

	CREATE TABLE IF NOT EXISTS query_sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query_id TEXT NOT NULL,
		chunk_id TEXT,
		document_id TEXT,
		marker TEXT,
		score REAL,
		FOREIGN KEY (query_id) REFERENCES query_history(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_sources_query ON query_sources(query_id);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// Snapshot is the full persisted state of one namespace.
type Snapshot struct {
	Documents []models.Document
	Chunks    []models.Chunk
}

// ReadNamespace loads the whole snapshot for one namespace. Rows that
// fail to scan or decode are dropped rather than propagated.
func (c *Client) ReadNamespace(namespaceID string) (*Snapshot, error) {
	snap := &Snapshot{}

	docRows, err := c.db.Query(`
		SELECT id, file_name, file_type, status, uploaded_at, source_type,
			source_ref, document_count, source_role, metadata
		FROM documents WHERE namespace_id = ? ORDER BY uploaded_at, id`,
		namespaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}
	defer docRows.Close()

	for docRows.Next() {
		var doc models.Document
		var uploadedAt int64
		var fileType, sourceType, sourceRef, sourceRole, metadataJSON sql.NullString

		if err := docRows.Scan(&doc.ID, &doc.FileName, &fileType, &doc.Status,
			&uploadedAt, &sourceType, &sourceRef, &doc.DocumentCount,
			&sourceRole, &metadataJSON); err != nil {
			logger.Warn("Dropping unreadable document row", zap.Error(err))
			continue
		}

		doc.NamespaceID = namespaceID
		doc.FileType = fileType.String
		doc.SourceType = models.SourceType(sourceType.String)
		doc.SourceRef = sourceRef.String
		doc.SourceRole = models.ParseSourceRole(sourceRole.String)
		doc.UploadedAt = time.Unix(uploadedAt, 0)
		if metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &doc.Metadata); err != nil {
				logger.Warn("Dropping undecodable document metadata",
					zap.String("document_id", doc.ID), zap.Error(err))
			}
		}
		snap.Documents = append(snap.Documents, doc)
	}
	if err := docRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}

	chunkRows, err := c.db.Query(`
		SELECT id, document_id, text, text_hash, embedding, source_name,
			chunk_index, source_role, paper_key, document_title, heading_path,
			page_start, page_end, redundant_of, redundancy_score, is_redundant
		FROM chunks WHERE namespace_id = ? ORDER BY document_id, chunk_index`,
		namespaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}
	defer chunkRows.Close()

	for chunkRows.Next() {
		var chunk models.Chunk
		var textHash, embeddingJSON, sourceName, sourceRole sql.NullString
		var paperKey, documentTitle, headingPath, redundantOf sql.NullString
		var pageStart, pageEnd sql.NullInt64
		var redundancyScore sql.NullFloat64
		var isRedundant int

		if err := chunkRows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Text,
			&textHash, &embeddingJSON, &sourceName, &chunk.ChunkIndex,
			&sourceRole, &paperKey, &documentTitle, &headingPath,
			&pageStart, &pageEnd, &redundantOf, &redundancyScore,
			&isRedundant); err != nil {
			logger.Warn("Dropping unreadable chunk row", zap.Error(err))
			continue
		}

		chunk.NamespaceID = namespaceID
		chunk.TextHash = textHash.String
		chunk.SourceName = sourceName.String
		chunk.SourceRole = models.ParseSourceRole(sourceRole.String)
		chunk.PaperKey = paperKey.String
		chunk.DocumentTitle = documentTitle.String
		chunk.HeadingPath = headingPath.String
		chunk.PageStart = int(pageStart.Int64)
		chunk.PageEnd = int(pageEnd.Int64)
		chunk.RedundantOf = redundantOf.String
		chunk.RedundancyScore = redundancyScore.Float64
		chunk.IsRedundant = isRedundant != 0
		if embeddingJSON.String != "" {
			if err := json.Unmarshal([]byte(embeddingJSON.String), &chunk.Embedding); err != nil {
				logger.Warn("Dropping undecodable chunk embedding",
					zap.String("chunk_id", chunk.ID), zap.Error(err))
				chunk.Embedding = nil
			}
		}
		snap.Chunks = append(snap.Chunks, chunk)
	}
	if err := chunkRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}

	return snap, nil
}

// ReplaceNamespace atomically replaces the whole snapshot for one
// namespace in a single transaction.
func (c *Client) ReplaceNamespace(namespaceID string, snap *Snapshot) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM chunks WHERE namespace_id = ?`, namespaceID); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM documents WHERE namespace_id = ?`, namespaceID); err != nil {
		return fmt.Errorf("failed to clear documents: %w", err)
	}

	docStmt, err := tx.Prepare(`
		INSERT INTO documents (id, namespace_id, file_name, file_type, status,
			uploaded_at, source_type, source_ref, document_count, source_role, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare document insert: %w", err)
	}
	defer docStmt.Close()

	for _, doc := range snap.Documents {
		metadataJSON, _ := json.Marshal(doc.Metadata)
		if _, err := docStmt.Exec(doc.ID, namespaceID, doc.FileName,
			doc.FileType, string(doc.Status), doc.UploadedAt.Unix(),
			string(doc.SourceType), doc.SourceRef, doc.DocumentCount,
			string(doc.SourceRole), string(metadataJSON)); err != nil {
			return fmt.Errorf("failed to insert document %s: %w", doc.ID, err)
		}
	}

	chunkStmt, err := tx.Prepare(`
		INSERT INTO chunks (id, namespace_id, document_id, text, text_hash,
			embedding, source_name, chunk_index, source_role, paper_key,
			document_title, heading_path, page_start, page_end, redundant_of,
			redundancy_score, is_redundant)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer chunkStmt.Close()

	for _, chunk := range snap.Chunks {
		embeddingJSON := ""
		if len(chunk.Embedding) > 0 {
			data, _ := json.Marshal(chunk.Embedding)
			embeddingJSON = string(data)
		}
		isRedundant := 0
		if chunk.IsRedundant {
			isRedundant = 1
		}
		if _, err := chunkStmt.Exec(chunk.ID, namespaceID, chunk.DocumentID,
			chunk.Text, chunk.TextHash, embeddingJSON, chunk.SourceName,
			chunk.ChunkIndex, string(chunk.SourceRole), chunk.PaperKey,
			chunk.DocumentTitle, chunk.HeadingPath, chunk.PageStart,
			chunk.PageEnd, chunk.RedundantOf, chunk.RedundancyScore,
			isRedundant); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	logger.Debug("Namespace snapshot written",
		zap.String("namespace_id", namespaceID),
		zap.Int("documents", len(snap.Documents)),
		zap.Int("chunks", len(snap.Chunks)),
	)

	return nil
}

func (c *Client) InsertQueryRecord(record *models.QueryRecord) error {
	_, err := c.db.Exec(`
		INSERT INTO query_history (id, namespace_id, query_text, intent,
			answer, confidence, chunk_count, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.NamespaceID, record.QueryText, record.Intent,
		record.Answer, record.Confidence, record.ChunkCount,
		record.LatencyMS, record.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert query record: %w", err)
	}

	logger.Info("Query recorded",
		zap.String("query_id", record.ID),
		zap.String("intent", record.Intent),
		zap.Float64("confidence", record.Confidence),
	)

	return nil
}

func (c *Client) InsertQuerySource(source *models.QuerySource) error {
	_, err := c.db.Exec(`
		INSERT INTO query_sources (query_id, chunk_id, document_id, marker, score)
		VALUES (?, ?, ?, ?, ?)`,
		source.QueryID, source.ChunkID, source.DocumentID, source.Marker, source.Score,
	)
	if err != nil {
		return fmt.Errorf("failed to insert query source: %w", err)
	}
	return nil
}

func (c *Client) GetQueryHistory(namespaceID string, limit int) ([]models.QueryRecord, error) {
	rows, err := c.db.Query(`
		SELECT id, query_text, intent, answer, confidence, chunk_count,
			latency_ms, created_at
		FROM query_history
		WHERE namespace_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, namespaceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get query history: %w", err)
	}
	defer rows.Close()

	var records []models.QueryRecord
	for rows.Next() {
		var r models.QueryRecord
		var createdAt int64

		if err := rows.Scan(&r.ID, &r.QueryText, &r.Intent, &r.Answer,
			&r.Confidence, &r.ChunkCount, &r.LatencyMS, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.NamespaceID = namespaceID
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	return records, rows.Err()
}
