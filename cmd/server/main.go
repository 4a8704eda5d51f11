package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-learnpath/internal/agent"
	"github.com/p-n-ai/pai-learnpath/internal/ai"
	"github.com/p-n-ai/pai-learnpath/internal/curriculum"
	"github.com/p-n-ai/pai-learnpath/internal/platform/cache"
	"github.com/p-n-ai/pai-learnpath/internal/platform/config"
	"github.com/p-n-ai/pai-learnpath/internal/platform/database"
	"github.com/p-n-ai/pai-learnpath/internal/resources"
	"github.com/p-n-ai/pai-learnpath/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(os.Stdout, cfg.Log))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, cleanup, err := setup(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      newMux(a),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 3 * time.Minute, // content generation waits on the model
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// newLogger builds the process logger from the log settings.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// setup connects every dependency and builds the engine. The returned
// cleanup closes whatever was opened.
func setup(ctx context.Context, cfg *config.Config) (*app, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*app, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	loader, err := curriculum.NewLoader(cfg.ConfigDir)
	if err != nil {
		return fail(err)
	}
	catalog := resources.NewFileProvider(cfg.Resources.CatalogPath)
	if _, err := catalog.Load(ctx); err != nil {
		return fail(err)
	}

	checks := make(map[string]checkFunc)

	router := newRouter(cfg.AI)
	checks["ai"] = router.HealthCheck

	var (
		st     store.Store
		events agent.EventLogger = agent.NopEventLogger{}
	)
	if cfg.Database.URL != "" {
		db, err := database.Open(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, db.Close)
		pg, err := store.NewPostgresStore(db.Pool)
		if err != nil {
			return fail(err)
		}
		st = pg
		events = agent.NewPostgresEventLogger(db.Pool)
		checks["database"] = db.HealthCheck
	} else {
		slog.Warn("LEARN_DATABASE_URL not set, using in-memory store")
		st = store.NewMemoryStore()
	}

	var checker resources.LinkChecker = resources.NewHTTPLinkChecker(
		resources.WithLinkTimeout(cfg.Resources.LinkCheckTimeout),
	)
	var budget ai.BudgetChecker
	if cfg.Cache.URL != "" {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { c.Close() })
		checker = resources.NewCachedLinkChecker(checker, resources.NewRedisLinkCache(c.Client, cfg.Resources.LinkCacheTTL))
		budget = ai.NewRedisBudget(c.Client, int64(cfg.AI.Budget.Tokens), cfg.AI.Budget.Window)
		checks["cache"] = c.HealthCheck
	} else {
		budget = ai.NewInMemoryBudget(int64(cfg.AI.Budget.Tokens))
	}

	engine := agent.NewEngine(agent.EngineConfig{
		Completer: ai.NewCompleter(router, budget),
		Config:    loader,
		Resolver:  resources.NewResolver(catalog),
		Gate:      resources.NewGate(catalog, checker),
		Store:     st,
		Events:    events,
	})

	return &app{
		engine:  engine,
		store:   st,
		checks:  checks,
		isAdmin: loader.IsAdmin,
		reload: func() error {
			if err := loader.Reload(); err != nil {
				return err
			}
			catalog.Clear()
			_, err := catalog.Load(context.Background())
			return err
		},
	}, cleanup, nil
}

// newRouter registers every configured provider, cheapest first.
func newRouter(cfg config.AIConfig) *ai.Router {
	router := ai.NewRouter()
	if cfg.Groq.APIKey != "" {
		var opts []ai.OpenAIOption
		if cfg.Groq.Model != "" {
			opts = append(opts, ai.WithDefaultModel(cfg.Groq.Model))
		}
		router.Register("groq", ai.NewGroqProvider(cfg.Groq.APIKey, opts...))
	}
	if cfg.DeepSeek.APIKey != "" {
		router.Register("deepseek", ai.NewDeepSeekProvider(cfg.DeepSeek.APIKey))
	}
	if cfg.OpenAI.APIKey != "" {
		router.Register("openai", ai.NewOpenAIProvider(cfg.OpenAI.APIKey))
	}
	if cfg.Ollama.Enabled {
		var opts []ai.OllamaOption
		if cfg.Ollama.Model != "" {
			opts = append(opts, ai.WithOllamaModel(cfg.Ollama.Model))
		}
		router.Register("ollama", ai.NewOllamaProvider(cfg.Ollama.URL, opts...))
	}
	return router
}
