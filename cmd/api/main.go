package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/scholar-rag/backend/internal/api/handlers"
	"github.com/scholar-rag/backend/internal/cache/redis"
	"github.com/scholar-rag/backend/internal/chunker"
	"github.com/scholar-rag/backend/internal/corpus"
	"github.com/scholar-rag/backend/internal/evidence"
	"github.com/scholar-rag/backend/internal/ingestion"
	"github.com/scholar-rag/backend/internal/llm"
	"github.com/scholar-rag/backend/internal/metrics"
	"github.com/scholar-rag/backend/internal/query"
	"github.com/scholar-rag/backend/internal/redundancy"
	"github.com/scholar-rag/backend/internal/retrieval"
	"github.com/scholar-rag/backend/internal/storage/models"
	"github.com/scholar-rag/backend/internal/storage/sqlite"
	"github.com/scholar-rag/backend/pkg/config"
	appLogger "github.com/scholar-rag/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Scholar RAG API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var cacheClient *redis.Client
	if cfg.Redis.Enabled {
		cacheClient, err = redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, running without cache", zap.Error(err))
			cacheClient = nil
		} else {
			defer cacheClient.Close()
		}
	}

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
	)

	embedder := llm.NewCachedEmbedder(llmClient, cacheClient)

	redundancyEngine := redundancy.NewEngine(redundancy.Config{
		CosineThreshold:  cfg.Dedup.CosineThreshold,
		LexicalThreshold: cfg.Dedup.LexicalThreshold,
		NoveltyThreshold: cfg.Dedup.NoveltyThreshold,
	})

	store := corpus.NewStore(sqliteClient, embedder, redundancyEngine, chunkSizes(cfg.Chunking))

	retriever := retrieval.NewEngine(store, embedder, retrieval.Config{
		TopK:                cfg.Retrieval.TopK,
		DiversityCap:        cfg.Retrieval.DiversityCap,
		RedundancyPenalty:   cfg.Retrieval.RedundancyPenalty,
		PaperSpecificDocCap: cfg.Retrieval.PaperSpecificDocCap,
	})

	queryEngine := query.NewEngine(store, retriever, llmClient, sqliteClient, cacheClient, catalog(cfg.Catalog))
	processor := ingestion.NewProcessor(store, cacheClient)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	queryHandler := handlers.NewQueryHandler(queryEngine, sqliteClient)
	documentHandler := handlers.NewDocumentHandler(processor, store)

	api := app.Group("/api/v1")

	api.Post("/query", queryHandler.HandleQuery)
	api.Get("/query/history", queryHandler.GetQueryHistory)

	api.Post("/documents", documentHandler.UploadDocument)
	api.Post("/documents/crawl", documentHandler.CrawlDocument)
	api.Get("/documents", documentHandler.ListDocuments)
	api.Delete("/documents/:id", documentHandler.DeleteDocument)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}

func chunkSizes(cfg config.ChunkingConfig) map[models.SourceRole]chunker.Sizes {
	sizes := chunker.Defaults()
	apply := func(role models.SourceRole, rc config.RoleChunking) {
		if rc.Size > 0 {
			sizes[role] = chunker.Sizes{Size: rc.Size, Overlap: rc.Overlap}
		}
	}
	apply(models.RolePublication, cfg.Publication)
	apply(models.RoleThesis, cfg.Thesis)
	apply(models.RoleWeb, cfg.Web)
	apply(models.RoleOther, cfg.Other)
	return sizes
}

func catalog(entries []config.CatalogEntry) evidence.Catalog {
	cat := make(evidence.Catalog, 0, len(entries))
	for _, e := range entries {
		cat = append(cat, evidence.CanonicalPublication{
			Title:   e.Title,
			Venue:   e.Venue,
			Year:    e.Year,
			Aliases: e.Aliases,
		})
	}
	return cat
}
