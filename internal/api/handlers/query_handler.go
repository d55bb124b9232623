package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/scholar-rag/backend/internal/query"
	"github.com/scholar-rag/backend/internal/storage/sqlite"
	"github.com/scholar-rag/backend/pkg/logger"
)

type QueryHandler struct {
	engine *query.Engine
	db     *sqlite.Client
}

func NewQueryHandler(engine *query.Engine, db *sqlite.Client) *QueryHandler {
	return &QueryHandler{engine: engine, db: db}
}

func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	var req struct {
		NamespaceID string `json:"namespace_id"`
		Query       string `json:"query"`
		TopK        int    `json:"top_k"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.NamespaceID == "" || req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "namespace_id and query are required",
		})
	}

	response, err := h.engine.ProcessQuery(c.Context(), query.Request{
		NamespaceID: req.NamespaceID,
		Query:       req.Query,
		TopK:        req.TopK,
	})
	if err != nil {
		logger.Error("Failed to process query", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process query",
		})
	}

	return c.JSON(response)
}

func (h *QueryHandler) GetQueryHistory(c *fiber.Ctx) error {
	namespaceID := c.Query("namespace_id")
	if namespaceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "namespace_id is required",
		})
	}

	limit := c.QueryInt("limit", 20)

	records, err := h.db.GetQueryHistory(namespaceID, limit)
	if err != nil {
		logger.Error("Failed to load query history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load query history",
		})
	}

	history := make([]fiber.Map, 0, len(records))
	for _, r := range records {
		history = append(history, fiber.Map{
			"id":          r.ID,
			"query":       r.QueryText,
			"intent":      r.Intent,
			"answer":      r.Answer,
			"confidence":  r.Confidence,
			"chunk_count": r.ChunkCount,
			"latency_ms":  r.LatencyMS,
			"created_at":  r.CreatedAt.Unix(),
		})
	}

	return c.JSON(fiber.Map{"history": history})
}
