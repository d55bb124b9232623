package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/scholar-rag/backend/internal/corpus"
	"github.com/scholar-rag/backend/internal/ingestion"
	"github.com/scholar-rag/backend/internal/storage/models"
	"github.com/scholar-rag/backend/pkg/logger"
)

type DocumentHandler struct {
	processor *ingestion.Processor
	store     *corpus.Store
}

func NewDocumentHandler(processor *ingestion.Processor, store *corpus.Store) *DocumentHandler {
	return &DocumentHandler{processor: processor, store: store}
}

// UploadDocument ingests pre-extracted document text. PDF/DOCX byte
// parsing happens upstream of this API.
func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	var req struct {
		NamespaceID string                  `json:"namespace_id"`
		FileName    string                  `json:"file_name"`
		FileType    string                  `json:"file_type"`
		SourceRole  string                  `json:"source_role"`
		Text        string                  `json:"text"`
		Metadata    models.DocumentMetadata `json:"metadata"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.NamespaceID == "" || req.FileName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "namespace_id and file_name are required",
		})
	}

	doc, err := h.processor.ProcessUpload(c.Context(), req.NamespaceID, ingestion.UploadRequest{
		FileName:   req.FileName,
		FileType:   req.FileType,
		SourceRole: req.SourceRole,
		Text:       req.Text,
		Metadata:   req.Metadata,
	})
	if err != nil {
		logger.Error("Failed to ingest document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to ingest document",
		})
	}

	return c.JSON(fiber.Map{
		"document_id": doc.ID,
		"file_name":   doc.FileName,
		"status":      doc.Status,
		"chunks":      doc.DocumentCount,
	})
}

// CrawlDocument ingests a crawled web page from its HTML.
func (h *DocumentHandler) CrawlDocument(c *fiber.Ctx) error {
	var req struct {
		NamespaceID string `json:"namespace_id"`
		URL         string `json:"url"`
		HTMLContent string `json:"html_content"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.NamespaceID == "" || req.URL == "" || req.HTMLContent == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "namespace_id, url and html_content are required",
		})
	}

	doc, err := h.processor.ProcessWebPage(c.Context(), req.NamespaceID, req.URL, req.HTMLContent)
	if err != nil {
		logger.Error("Failed to ingest crawled page", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to ingest crawled page",
		})
	}

	return c.JSON(fiber.Map{
		"document_id": doc.ID,
		"file_name":   doc.FileName,
		"status":      doc.Status,
		"chunks":      doc.DocumentCount,
	})
}

func (h *DocumentHandler) ListDocuments(c *fiber.Ctx) error {
	namespaceID := c.Query("namespace_id")
	if namespaceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "namespace_id is required",
		})
	}

	docs, err := h.store.Documents(namespaceID)
	if err != nil {
		logger.Error("Failed to list documents", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list documents",
		})
	}

	return c.JSON(fiber.Map{"documents": docs})
}

func (h *DocumentHandler) DeleteDocument(c *fiber.Ctx) error {
	namespaceID := c.Query("namespace_id")
	documentID := c.Params("id")

	if namespaceID == "" || documentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "namespace_id and document id are required",
		})
	}

	if err := h.processor.Delete(c.Context(), namespaceID, documentID); err != nil {
		logger.Error("Failed to delete document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete document",
		})
	}

	return c.JSON(fiber.Map{"deleted": documentID})
}
