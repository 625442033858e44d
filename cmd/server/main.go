package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mriia-ai/tutor/internal/ai"
	"github.com/mriia-ai/tutor/internal/chat"
	"github.com/mriia-ai/tutor/internal/curriculum"
	"github.com/mriia-ai/tutor/internal/index"
	"github.com/mriia-ai/tutor/internal/platform/cache"
	"github.com/mriia-ai/tutor/internal/platform/config"
	"github.com/mriia-ai/tutor/internal/platform/database"
	"github.com/mriia-ai/tutor/internal/profile"
	"github.com/mriia-ai/tutor/internal/records"
	"github.com/mriia-ai/tutor/internal/server"
	"github.com/mriia-ai/tutor/internal/session"
	"github.com/mriia-ai/tutor/internal/tutor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	catalog, err := loadCurriculum(cfg.CurriculumPath)
	if err != nil {
		return err
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	checks := map[string]server.ReadyCheck{}
	if st.check != nil {
		checks["database"] = st.check
	}

	provider := ai.NewGatewayProvider(cfg.LLM.APIKey, ai.WithBaseURL(cfg.LLM.BaseURL))
	checks["llm"] = provider.HealthCheck

	llm := ai.NewRouter(provider, cfg.LLM.LectureModel, cfg.LLM.PracticeModel)

	var embedder ai.Embedder = ai.NewEmbeddingClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.EmbeddingModel)
	if cfg.Cache.Enabled {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			return fmt.Errorf("connecting to cache: %w", err)
		}
		defer c.Close()
		embedder = ai.NewCachedEmbedder(embedder, c, cfg.LLM.EmbeddingModel)
		checks["cache"] = c.HealthCheck
		slog.Info("embedding cache enabled", "url", cfg.Cache.URL)
	}

	chroma := index.NewChromaClient(cfg.Index.URL, cfg.Index.TopicsCollection, cfg.Index.PagesCollection)
	checks["index"] = chroma.HealthCheck

	builder := profile.NewBuilder(st.records)
	validator := tutor.NewValidator(llm)
	generator := tutor.NewPracticeGenerator(llm, cfg.Pipeline.PracticeCount, cfg.Pipeline.MinViableCount)

	pipeline := tutor.NewPipeline(
		tutor.NewTopicRouter(embedder, chroma, cfg.Index.MinSimilarity, cfg.Index.TopicTopK),
		tutor.NewContextRetriever(chroma, cfg.Index.MaxPages),
		builder,
		tutor.NewContentGenerator(llm),
		tutor.NewValidationLoop(generator, validator, cfg.Pipeline.MaxRegenerations),
		tutor.NewEvaluator(llm),
		tutor.NewRecommender(llm),
		ai.NewInMemoryUsage(),
	)

	svc := tutor.NewService(pipeline, validator, st.records, builder, catalog)
	handler := server.New(svc, checks)

	if cfg.Telegram.BotToken != "" {
		telegram, err := chat.NewTelegramChannel(cfg.Telegram.BotToken)
		if err != nil {
			return err
		}
		gateway := chat.NewGateway()
		gateway.Register("telegram", telegram)
		defer gateway.StopAll()

		bot := chat.NewBot(svc, st.sessions, st.events, gateway)
		if err := gateway.StartAll(ctx, bot.Handle); err != nil {
			return err
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := newHTTPServer(addr, handler.Mux())

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newHTTPServer builds the server without a write deadline: a tutoring run
// spends several model calls and outlives any fixed response budget, and the
// progress websocket is long-lived. net/http sets the write deadline at
// request start, so a WriteTimeout here would drop the response of every
// slow pipeline run after it completed.
func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
}

func setupLogging(cfg config.LogConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// loadCurriculum falls back to the built-in catalog when the default path
// does not exist, so the server starts without a curriculum file.
func loadCurriculum(path string) (*curriculum.Loader, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			slog.Info("curriculum file not found, using built-in catalog", "path", path)
			path = ""
		}
	}
	catalog, err := curriculum.NewLoader(path)
	if err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}
	return catalog, nil
}

// stores bundles the persistence layer for the configured backend.
type stores struct {
	records  records.Store
	sessions session.Store
	events   session.EventLogger
	check    server.ReadyCheck // nil for the workbook backend
	close    func()
}

// openStores builds the journal and session stores. The workbook backend
// keeps sessions in memory and skips event logging.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.Records.Backend {
	case "workbook":
		journal, err := records.LoadWorkbook(cfg.Records.WorkbookPath)
		if err != nil {
			return nil, fmt.Errorf("loading workbook: %w", err)
		}
		return &stores{
			records:  journal,
			sessions: session.NewMemoryStore(),
			events:   session.NopEventLogger{},
			close:    func() {},
		}, nil

	default:
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		journal, err := records.NewPostgresStore(db.Pool)
		if err != nil {
			db.Close()
			return nil, err
		}
		if err := journal.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating journal tables: %w", err)
		}
		sessions, err := session.NewPostgresStore(db.Pool)
		if err != nil {
			db.Close()
			return nil, err
		}
		if err := sessions.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating session tables: %w", err)
		}
		check := func(ctx context.Context) error {
			if err := db.HealthCheck(ctx); err != nil {
				return err
			}
			acquired, idle, total := db.Stats()
			slog.Debug("database pool", "acquired", acquired, "idle", idle, "total", total)
			return nil
		}
		return &stores{
			records:  journal,
			sessions: sessions,
			events:   session.NewPostgresEventLogger(db.Pool),
			check:    check,
			close:    db.Close,
		}, nil
	}
}
