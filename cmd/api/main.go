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
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/onboard-agent/backend/internal/api/handlers"
	"github.com/onboard-agent/backend/internal/llm"
	"github.com/onboard-agent/backend/internal/metrics"
	"github.com/onboard-agent/backend/internal/middleware/ratelimit"
	"github.com/onboard-agent/backend/internal/middleware/security"
	"github.com/onboard-agent/backend/internal/middleware/validation"
	"github.com/onboard-agent/backend/internal/rag"
	redisstore "github.com/onboard-agent/backend/internal/store/redis"
	"github.com/onboard-agent/backend/internal/vector/milvus"
	"github.com/onboard-agent/backend/pkg/config"
	appLogger "github.com/onboard-agent/backend/pkg/logger"
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

	appLogger.Info("Starting onboarding assistant API server")

	metrics.Init()

	redisClient, err := redisstore.NewClient(
		cfg.Redis.Host,
		cfg.Redis.Port,
		cfg.Redis.Password,
		cfg.Redis.DB,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer redisClient.Close()

	milvusClient, err := milvus.NewClient(
		cfg.Milvus.Endpoint,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
	}
	defer milvusClient.Close()

	err = milvusClient.EnsureCollection(context.Background())
	if err != nil {
		appLogger.Fatal("Failed to ensure collection", zap.Error(err))
	}

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
	)

	cache := rag.NewTieredCache(redisClient)
	limiter := rag.NewLimiter(redisClient, cfg.RateLimit.PerMinute, cfg.RateLimit.PerHour)
	memory := rag.NewMemory(cfg.RAG.MaxExchanges)
	retriever := rag.NewRetriever(milvusClient, llmClient, cache, cfg.LLM.EmbeddingModel)

	engine := rag.NewEngine(rag.Config{
		TopK:              cfg.RAG.TopK,
		ScoreThreshold:    cfg.RAG.ScoreThreshold,
		FallbackTopK:      cfg.RAG.FallbackTopK,
		FallbackThreshold: cfg.RAG.FallbackThreshold,
		MetadataLimit:     cfg.RAG.MetadataLimit,
		DefaultLanguage:   rag.Language(cfg.RAG.DefaultLanguage),
		RecentHistory:     2 * cfg.RAG.MaxExchanges,
	}, retriever, llmClient, cache, limiter, memory, milvusClient)

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
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment: cfg.Logging.Level == "debug",
	}))
	ipLimiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.IPPerMinute,
		Logger:               appLogger.GetLogger(),
	})
	defer ipLimiter.Stop()
	app.Use(ipLimiter.Middleware())
	app.Use(validation.Middleware(validation.Config{
		Logger: appLogger.GetLogger(),
	}))

	queryHandler := handlers.NewQueryHandler(engine)
	adminHandler := handlers.NewAdminHandler(engine)
	documentHandler := handlers.NewDocumentHandler(milvusClient, llmClient, cache)
	wsHandler := handlers.NewWebSocketHandler(engine)

	api := app.Group("/api/v1")

	api.Post("/query", queryHandler.HandleQuery)
	api.Get("/users/:id/history", queryHandler.GetHistory)

	api.Post("/documents", documentHandler.IndexDocument)
	api.Get("/documents/:id", documentHandler.GetDocument)
	api.Delete("/documents/:id", documentHandler.DeleteDocument)

	api.Delete("/users/:id/memory", adminHandler.ClearMemory)
	api.Delete("/users/:id/cache", adminHandler.InvalidateUserCache)
	api.Post("/cache/search/invalidate", adminHandler.InvalidateSearchCache)

	api.Get("/health", adminHandler.Health)
	api.Get("/ready", adminHandler.Ready)

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", websocket.New(wsHandler.HandleConnection))

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
