package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"studyvault/internal/config"
	db "studyvault/internal/core/database"
	"studyvault/internal/core/ingestion_engine"
	"studyvault/internal/core/llm"
	"studyvault/internal/core/loader"
	objectclient "studyvault/internal/core/object-client"
	"studyvault/internal/core/vectorindex"
	"studyvault/internal/services"
)

type App struct {
	DBClient *db.DatabaseClient
	Worker   *ingestion_engine.Worker
	Server   *Server

	cfg *config.Config
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Database initialized and ready.")

	objClient, err := objectclient.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Object client initialized and ready.")

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}

	analyzer, err := llm.NewGeminiAnalyzer(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the analyzer, %w", err)
	}

	docLoader := loader.New()
	index := vectorindex.NewManager(dbClient.DB(), embedder, cfg.EmbedBatchSize)

	pipeline := ingestion_engine.NewPipeline(dbClient, objClient, index, docLoader, analyzer, &ingestion_engine.Config{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	})
	worker := ingestion_engine.NewWorker(pipeline, dbClient)

	ttl := time.Duration(cfg.UploadTTLMinutes) * time.Minute
	uploadSvc := services.NewUploadService(dbClient, objClient, docLoader, pipeline, worker, ttl)
	materialSvc := services.NewMaterialService(dbClient, objClient, index)
	retrievalSvc := services.NewRetrievalService(index)
	jobSvc := services.NewJobService(dbClient)
	userSvc := services.NewUserService(dbClient)

	server := NewServer(cfg, userSvc, uploadSvc, materialSvc, retrievalSvc, jobSvc)

	return &App{
		DBClient: dbClient,
		Worker:   worker,
		Server:   server,
		cfg:      cfg,
	}, nil
}

// Run starts the worker pool and the HTTP server, blocking until ctx is
// cancelled, then shuts both down.
func (a *App) Run(ctx context.Context) error {
	a.Worker.Start(ctx, a.cfg.WorkerCount)
	go a.Server.Start()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := a.Server.Shutdown(shutdownCtx)
	a.Worker.Wait()
	return err
}

func (a *App) Close() {
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
