package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/polyquery/polyquery-engine/pkg/adapters/datasource"
	_ "github.com/polyquery/polyquery-engine/pkg/adapters/datasource/all" // link every adapter
	"github.com/polyquery/polyquery-engine/pkg/config"
	"github.com/polyquery/polyquery-engine/pkg/database"
	"github.com/polyquery/polyquery-engine/pkg/handlers"
	"github.com/polyquery/polyquery-engine/pkg/llm"
	"github.com/polyquery/polyquery-engine/pkg/logging"
	"github.com/polyquery/polyquery-engine/pkg/repositories"
	"github.com/polyquery/polyquery-engine/pkg/schemacache"
	"github.com/polyquery/polyquery-engine/pkg/services"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.Strings("adapters", adapterTypes()))

	repo, dbPool := buildChatStore(cfg, logger)
	if dbPool != nil {
		defer dbPool.Close()
	}

	llmClient, err := llm.NewClient(&cfg.LLM, logger)
	if err != nil {
		logger.Fatal("failed to create llm client", zap.Error(err))
	}

	metrics := services.NewMetrics(prometheus.DefaultRegisterer)

	engine := services.NewEngine(
		datasource.NewConnectorFactory(),
		schemacache.New(cfg.Engine.SchemaTTL(), logger),
		services.NewContextBuilder(cfg.Engine.MaxPromptEntities, logger),
		services.NewQueryGenerator(llmClient, cfg.LLM.Timeout(), logger),
		services.NewResultNormalizer(cfg.Engine.RowCap),
		services.NewCoordinator(cfg.Engine.ExecTimeout(), logger),
		repo,
		metrics,
		logger,
		services.Options{MaxPromptTurns: cfg.Engine.MaxPromptTurns},
	)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg).RegisterRoutes(mux)
	handlers.NewEngineHandler(engine, logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	addr := cfg.BindAddr + ":" + cfg.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting polyquery-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// buildChatStore picks the history store: PostgreSQL when DATABASE_URL
// is set, in-memory otherwise.
func buildChatStore(cfg *config.Config, logger *zap.Logger) (repositories.ChatRepository, *database.DB) {
	if cfg.ChatStore.URL == "" {
		logger.Info("no DATABASE_URL set, chat history kept in memory")
		return repositories.NewMemoryChatRepository(), nil
	}

	if err := database.RunMigrations(cfg.ChatStore.URL, "migrations", logger); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.NewConnection(ctx, &database.Config{URL: cfg.ChatStore.URL})
	if err != nil {
		logger.Fatal("failed to connect to chat store",
			zap.String("url", logging.SanitizeConnectionString(cfg.ChatStore.URL)),
			zap.Error(err))
	}

	return repositories.NewPostgresChatRepository(db.Pool), db
}

func adapterTypes() []string {
	infos := datasource.RegisteredTypes()
	types := make([]string, 0, len(infos))
	for _, info := range infos {
		types = append(types, info.Type)
	}
	return types
}
