package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/atlas-gmao/backend/internal/alias"
	"github.com/atlas-gmao/backend/internal/analysis"
	"github.com/atlas-gmao/backend/internal/api/handlers"
	redisCache "github.com/atlas-gmao/backend/internal/cache/redis"
	"github.com/atlas-gmao/backend/internal/kg/depgraph"
	"github.com/atlas-gmao/backend/internal/kg/neo4j"
	"github.com/atlas-gmao/backend/internal/llm"
	"github.com/atlas-gmao/backend/internal/metrics"
	"github.com/atlas-gmao/backend/internal/middleware/ratelimit"
	"github.com/atlas-gmao/backend/internal/middleware/security"
	"github.com/atlas-gmao/backend/internal/middleware/validation"
	"github.com/atlas-gmao/backend/internal/query"
	"github.com/atlas-gmao/backend/internal/retrieval"
	"github.com/atlas-gmao/backend/internal/storage/sqlite"
	"github.com/atlas-gmao/backend/internal/vector/milvus"
	"github.com/atlas-gmao/backend/pkg/config"
	appLogger "github.com/atlas-gmao/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting equipment support assistant API")

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	neo4jClient, err := neo4j.NewClient(
		cfg.Neo4j.URI,
		cfg.Neo4j.Username,
		cfg.Neo4j.Password,
		cfg.Neo4j.Database,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Neo4j client", zap.Error(err))
	}
	defer neo4jClient.Close(context.Background())

	milvusClient, err := milvus.NewClient(
		cfg.Milvus.Endpoint,
		cfg.Milvus.APIKey,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
	}
	defer milvusClient.Close()

	if err := milvusClient.CreateCollection(context.Background()); err != nil {
		appLogger.Fatal("Failed to create collection", zap.Error(err))
	}

	var cacheClient *redisCache.Client
	if cfg.Redis.Enabled {
		cacheClient, err = redisCache.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, caching disabled", zap.Error(err))
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

	resolver := alias.NewResolver(sqliteClient, cfg.Retrieval.AliasBigramThreshold)
	analyzer := analysis.NewAnalyzer(cfg.Analyzer.Mode, llmClient)
	depBuilder := depgraph.NewBuilder(neo4jClient, neo4jClient)
	embedder := query.NewCachedEmbedder(llmClient, cacheClient)
	retriever := retrieval.NewRetriever(embedder, milvusClient, sqliteClient, depBuilder, cfg.Retrieval)
	engine := query.NewEngine(sqliteClient, resolver, analyzer, depBuilder, retriever, llmClient, cacheClient)

	metrics.Register()

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: 60,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()
	app.Use(limiter.Middleware())

	app.Use(validation.Middleware(validation.Config{
		Logger: appLogger.GetLogger(),
	}))

	queryHandler := handlers.NewQueryHandler(engine, sqliteClient)
	documentHandler := handlers.NewDocumentHandler(milvusClient, llmClient)
	equipmentHandler := handlers.NewEquipmentHandler(sqliteClient, neo4jClient)

	api := app.Group("/api/v1")

	api.Post("/query", queryHandler.HandleQuery)
	api.Get("/query/history", queryHandler.GetQueryHistory)
	api.Post("/feedback", queryHandler.SubmitFeedback)

	api.Post("/documents/chunks", documentHandler.IndexChunks)

	api.Post("/equipment", equipmentHandler.CreateEquipment)
	api.Post("/equipment/dependencies", equipmentHandler.CreateDependency)
	api.Post("/equipment/schematics", equipmentHandler.CreateSchematic)

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
	app.Get("/metrics", metrics.Handler())

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
