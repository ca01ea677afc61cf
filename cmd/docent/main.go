package main

import (
	"context"

	"docent/internal/agent"
	docentconfig "docent/internal/config"
	"docent/internal/httpapi"
	"docent/internal/knowledge"
	"docent/internal/prompt"
	"docent/internal/transcript"
	"docent/pkg/config"
	"docent/pkg/database"
	"docent/pkg/llm"
	"docent/pkg/logging"
	"docent/pkg/search"
	"docent/pkg/server"
)

func main() {
	logger := logging.NewLoggerWithService("docent")

	config.LoadEnv(logger)

	logger.Info("Starting docent (documentation assistant)")

	cfg := docentconfig.LoadConfig()

	dbConfig := database.DefaultConfig()
	dbConfig.URL = cfg.DatabaseURL
	db := database.MustConnect(dbConfig, logger)
	defer func() { _ = db.Close() }()

	if err := transcript.EnsureSchema(context.Background(), db); err != nil {
		logger.WithError(err).Fatal("Failed to ensure transcript schema")
	}
	transcripts := transcript.NewStore(db)

	llmClient, err := llm.NewClient(llm.LoadConfig())
	if err != nil {
		logger.WithError(err).Fatal("Failed to create LLM client")
	}
	embedder, err := llm.NewEmbedder(llm.LoadEmbeddingConfig())
	if err != nil {
		logger.WithError(err).Fatal("Failed to create embedding client")
	}

	repository, err := knowledge.NewRepository(embedder, knowledge.RepositoryOptions{
		Root:              cfg.CollectionsDir,
		DefaultCollection: cfg.DefaultCollection,
		ChunkSize:         cfg.ChunkSize,
		ChunkOverlap:      cfg.ChunkOverlap,
		MinSimilarity:     cfg.MinSimilarity,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create knowledge repository")
	}

	var searchProvider search.Provider
	searchCfg := search.LoadConfig()
	if searchCfg.APIKey != "" || searchCfg.APIURL != "" {
		searchProvider, err = search.NewProvider(searchCfg)
		if err != nil {
			logger.WithError(err).Warn("Web search disabled")
			searchProvider = nil
		}
	} else {
		logger.Warn("No search provider configured - search_web disabled")
	}

	prompts, err := prompt.NewStore(cfg.PromptsDir)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load prompt templates")
	}

	loop, err := agent.NewLoop(agent.LoopConfig{
		Client:      llmClient,
		Prompts:     prompts,
		Knowledge:   repository,
		Search:      searchProvider,
		Transcript:  transcripts,
		Logger:      logger,
		MaxSteps:    cfg.MaxSteps,
		StepTimeout: cfg.StepTimeout,
		TopK:        cfg.TopK,
		SearchLimit: cfg.SearchLimit,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create agent loop")
	}

	router := server.SetupRouter(logger, "docent")
	httpapi.RegisterRoutes(router.Group("/api/docent"), &httpapi.Handler{
		Loop:        loop,
		Knowledge:   repository,
		Transcripts: transcripts,
		Logger:      logger,
		DocsDir:     cfg.DocsDir,
	})

	srvConfig := server.DefaultConfig("docent", cfg.Port)
	if err := server.Start(srvConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server error")
	}
}
