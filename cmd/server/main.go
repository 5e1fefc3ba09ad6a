package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skillsynx/chatrelay/internal/assistant"
	"github.com/skillsynx/chatrelay/internal/knowledge"
	"github.com/skillsynx/chatrelay/internal/orchestrator"
	"github.com/skillsynx/chatrelay/internal/server"
	"github.com/skillsynx/chatrelay/internal/storage"
	"github.com/skillsynx/chatrelay/pkg/config"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		store, err = storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			DBName:      cfg.Database.DBName,
			SSLMode:     cfg.Database.SSLMode,
			UseInMemory: cfg.Database.UseInMemory,
		})
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// AI service client
	ai := assistant.NewOpenAIClient(
		cfg.OpenAI.APIKey,
		cfg.OpenAI.AssistantID,
		cfg.OpenAI.BaseURL,
		logger,
	)

	// Knowledge base answering the assistant's lookup tool calls
	kb := knowledge.NewBase(
		cfg.OpenAI.APIKey,
		cfg.OpenAI.Model,
		cfg.OpenAI.MaxTokens,
		cfg.OpenAI.Temperature,
		logger,
	)

	tools := orchestrator.NewToolRegistry()
	tools.Register(orchestrator.KnowledgeToolName, orchestrator.KnowledgeToolHandler(kb))

	orc := orchestrator.New(ai, store, store, tools, orchestrator.Config{
		PollInterval:    time.Duration(cfg.Orchestrator.PollIntervalMs) * time.Millisecond,
		MaxPollAttempts: cfg.Orchestrator.MaxPollAttempts,
	}, logger)

	srv := server.New(orc, cfg.Server.Port, cfg.Server.AllowedOrigin, logger)

	// Graceful shutdown on SIGINT/SIGTERM
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Shutdown error", zap.Error(err))
		}
	}()

	if err := srv.Start(); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
}
