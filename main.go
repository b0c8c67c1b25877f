package main

import (
	"context"
	"log"
	"net/http"

	"go.uber.org/zap"

	"github.com/procmap-io/procmap/pkg/catalog"
	"github.com/procmap-io/procmap/pkg/cluster"
	"github.com/procmap-io/procmap/pkg/config"
	"github.com/procmap-io/procmap/pkg/handlers"
	"github.com/procmap-io/procmap/pkg/intent"
	"github.com/procmap-io/procmap/pkg/mcp"
	"github.com/procmap-io/procmap/pkg/mcp/tools"
	"github.com/procmap-io/procmap/pkg/services"
	"github.com/procmap-io/procmap/pkg/store"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("catalog", cfg.CatalogPath),
		zap.String("snapshot", cfg.SnapshotPath),
		zap.Bool("llm_intent", cfg.LLM.IsAvailable()))

	snapshots := store.NewSnapshotStore(cfg.SnapshotPath, logger)
	opts := cluster.DefaultExtractorOptions()
	if len(cfg.Cluster.CandidateSchemas) > 0 {
		opts.CandidateSchemas = cfg.Cluster.CandidateSchemas
	}
	svc := services.NewClusterService(snapshots, opts, logger)

	if cfg.MSSQL.IsAvailable() {
		live, err := catalog.NewLiveLoader(cfg.MSSQL.DSN, logger)
		if err != nil {
			logger.Fatal("failed to connect to SQL Server", zap.Error(err))
		}
		defer func() { _ = live.Close() }()
		svc.SetLiveLoader(live)
	}

	// Resume from the last snapshot when one exists; otherwise run the
	// full build pipeline, preferring a live SQL Server source over the
	// catalog file.
	switch {
	case snapshots.Exists():
		if err := svc.LoadSnapshot(); err != nil {
			logger.Fatal("failed to load snapshot", zap.Error(err))
		}
	case cfg.MSSQL.IsAvailable():
		if err := svc.BuildFromLive(context.Background(), cfg.Parameters()); err != nil {
			logger.Fatal("failed to build clusters from SQL Server", zap.Error(err))
		}
	default:
		if err := svc.BuildFromCatalog(cfg.CatalogPath, cfg.Parameters()); err != nil {
			logger.Fatal("failed to build clusters from catalog", zap.Error(err))
		}
	}

	classifier, err := intent.NewClassifier(intent.Config{
		Endpoint: cfg.LLM.Endpoint,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		Timeout:  cfg.LLM.Timeout(),
	}, logger)
	if err != nil {
		logger.Fatal("failed to create intent classifier", zap.Error(err))
	}

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(cfg, logger)
	healthHandler.RegisterRoutes(mux)

	clusterHandler := handlers.NewClusterHandler(svc, classifier, logger)
	clusterHandler.RegisterRoutes(mux)

	mcpServer := mcp.NewServer("procmap", cfg.Version, logger)
	tools.RegisterHealthTool(mcpServer.MCP(), cfg.Version)
	tools.RegisterClusterTools(mcpServer.MCP(), &tools.ClusterToolDeps{
		Service:    svc,
		Classifier: classifier,
		Logger:     logger,
	})
	mux.Handle("/mcp", mcpServer.NewStreamableHTTPServer())

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("starting procmap", zap.String("addr", addr), zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
