package models

import "time"

type SourceRole string

const (
	RolePublication SourceRole = "publication"
	RoleThesis      SourceRole = "thesis"
	RoleWeb         SourceRole = "web"
	RoleOther       SourceRole = "other"
)

func ParseSourceRole(s string) SourceRole {
	switch SourceRole(s) {
	case RolePublication, RoleThesis, RoleWeb:
		return SourceRole(s)
	default:
		return RoleOther
	}
}

type DocumentStatus string

const (
	StatusActive  DocumentStatus = "active"
	StatusFailed  DocumentStatus = "failed"
	StatusDeleted DocumentStatus = "deleted"
)

type SourceType string

const (
	SourceUpload SourceType = "upload"
	SourceCrawl  SourceType = "crawl"
)

// DocumentMetadata carries optional bibliographic fields supplied at
// ingestion time. All fields may be empty.
type DocumentMetadata struct {
	Title             string   `json:"title,omitempty"`
	Year              int      `json:"year,omitempty"`
	Venue             string   `json:"venue,omitempty"`
	Chapter           string   `json:"chapter,omitempty"`
	Section           string   `json:"section,omitempty"`
	Subsection        string   `json:"subsection,omitempty"`
	Topics            []string `json:"topics,omitempty"`
	CanonicalCitation string   `json:"canonicalCitation,omitempty"`
}

// Document is one ingested source unit. (namespaceID, fileName) is the
// logical replace key: re-ingesting the same file name supersedes the
// prior document and its chunks. After creation the only mutation is the
// soft-delete status flip.
type Document struct {
	ID            string           `json:"id"`
	NamespaceID   string           `json:"namespaceId"`
	FileName      string           `json:"fileName"`
	FileType      string           `json:"fileType"`
	Status        DocumentStatus   `json:"status"`
	UploadedAt    time.Time        `json:"uploadedAt"`
	SourceType    SourceType       `json:"sourceType"`
	SourceRef     string           `json:"sourceRef,omitempty"`
	DocumentCount int              `json:"documentCount"`
	SourceRole    SourceRole       `json:"sourceRole"`
	Metadata      DocumentMetadata `json:"metadata"`
}

// Chunk is one retrievable text window, exclusively owned by its
// Document. SourceRole is denormalized at creation time and immutable.
// The redundancy fields are recomputed wholesale whenever the owning
// namespace's corpus changes; they only carry meaning on thesis chunks.
type Chunk struct {
	ID              string     `json:"id"`
	NamespaceID     string     `json:"namespaceId"`
	DocumentID      string     `json:"documentId"`
	Text            string     `json:"text"`
	TextHash        string     `json:"textHash"`
	Embedding       []float32  `json:"embedding,omitempty"`
	SourceName      string     `json:"sourceName"`
	ChunkIndex      int        `json:"chunkIndex"`
	SourceRole      SourceRole `json:"sourceRole"`
	PaperKey        string     `json:"paperKey"`
	DocumentTitle   string     `json:"documentTitle,omitempty"`
	HeadingPath     string     `json:"headingPath,omitempty"`
	PageStart       int        `json:"pageStart,omitempty"`
	PageEnd         int        `json:"pageEnd,omitempty"`
	RedundantOf     string     `json:"redundantOf,omitempty"`
	RedundancyScore float64    `json:"redundancyScore,omitempty"`
	IsRedundant     bool       `json:"isRedundant"`
}

// QueryRecord persists one answered query for the history endpoint.
type QueryRecord struct {
	ID          string
	NamespaceID string
	QueryText   string
	Intent      string
	Answer      string
	Confidence  float64
	ChunkCount  int
	LatencyMS   int
	CreatedAt   time.Time
}

// QuerySource links a query record to one evidence chunk it was
// answered from.
type QuerySource struct {
	ID         int
	QueryID    string
	ChunkID    string
	DocumentID string
	Marker     string
	Score      float64
}
