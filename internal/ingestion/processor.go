package ingestion

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/scholar-rag/backend/internal/cache/redis"
	"github.com/scholar-rag/backend/internal/corpus"
	"github.com/scholar-rag/backend/internal/metrics"
	"github.com/scholar-rag/backend/internal/storage/models"
	"github.com/scholar-rag/backend/pkg/logger"
	"github.com/scholar-rag/backend/pkg/textutil"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// Processor feeds extracted text and crawled pages into the corpus
// store and keeps the answer cache coherent with corpus changes.
type Processor struct {
	store *corpus.Store
	cache *redis.Client
}

func NewProcessor(store *corpus.Store, cache *redis.Client) *Processor {
	return &Processor{store: store, cache: cache}
}

type UploadRequest struct {
	FileName   string
	FileType   string
	SourceRole string
	Text       string
	Metadata   models.DocumentMetadata
}

// ProcessUpload ingests pre-extracted document text. Binary formats
// are extracted upstream; this layer only sees text.
func (p *Processor) ProcessUpload(ctx context.Context, namespaceID string, req UploadRequest) (*models.Document, error) {
	role := models.ParseSourceRole(req.SourceRole)

	doc, err := p.store.IngestDocument(ctx, namespaceID, corpus.IngestRequest{
		FileName:   req.FileName,
		FileType:   req.FileType,
		SourceType: models.SourceUpload,
		SourceRole: role,
		Text:       req.Text,
		Metadata:   req.Metadata,
	})
	if err != nil {
		metrics.DocumentsIngested.WithLabelValues(string(role), "error").Inc()
		return nil, fmt.Errorf("failed to ingest %s: %w", req.FileName, err)
	}

	metrics.DocumentsIngested.WithLabelValues(string(role), string(doc.Status)).Inc()
	p.invalidate(ctx, namespaceID)

	return doc, nil
}

// ProcessWebPage ingests crawled HTML as a web-role document.
func (p *Processor) ProcessWebPage(ctx context.Context, namespaceID, url, htmlContent string) (*models.Document, error) {
	text := cleanHTML(htmlContent)
	if text == "" {
		return nil, fmt.Errorf("no content extracted from %s", url)
	}

	title := extractTitle(htmlContent)
	fileName := textutil.NormalizeKey(title)
	if fileName == "" {
		fileName = textutil.NormalizeKey(url)
	}
	fileName = strings.ReplaceAll(fileName, " ", "-") + ".txt"

	doc, err := p.store.IngestDocument(ctx, namespaceID, corpus.IngestRequest{
		FileName:   fileName,
		FileType:   "txt",
		SourceType: models.SourceCrawl,
		SourceRef:  url,
		SourceRole: models.RoleWeb,
		Text:       text,
		Metadata:   models.DocumentMetadata{Title: title},
	})
	if err != nil {
		metrics.DocumentsIngested.WithLabelValues(string(models.RoleWeb), "error").Inc()
		return nil, fmt.Errorf("failed to ingest crawled page %s: %w", url, err)
	}

	metrics.DocumentsIngested.WithLabelValues(string(models.RoleWeb), string(doc.Status)).Inc()
	p.invalidate(ctx, namespaceID)

	logger.Info("Web page ingested",
		zap.String("namespace_id", namespaceID),
		zap.String("url", url),
		zap.String("title", title),
	)

	return doc, nil
}

// Delete removes a document and drops stale cached answers.
func (p *Processor) Delete(ctx context.Context, namespaceID, documentID string) error {
	if err := p.store.DeleteDocument(ctx, namespaceID, documentID); err != nil {
		return err
	}
	p.invalidate(ctx, namespaceID)
	return nil
}

func (p *Processor) invalidate(ctx context.Context, namespaceID string) {
	if err := p.cache.InvalidateNamespace(ctx, namespaceID); err != nil {
		logger.Warn("Failed to invalidate answer cache", zap.Error(err))
	}
}

func cleanHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := doc.Find("body").Text()
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func extractTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "Untitled"
	}

	title := doc.Find("title").First().Text()
	if title == "" {
		title = doc.Find("h1").First().Text()
	}
	if title == "" {
		title = "Untitled"
	}
	return strings.TrimSpace(title)
}
