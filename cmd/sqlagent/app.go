package main

import (
	"context"
	"fmt"

	"github.com/YL-Cheng/Text2SQL-Agent/internal/agent"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/config"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/database"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/embedding"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/prompt"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/provider"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/retriever"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/schema"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/seed"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/sqlgen"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/store"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/vectorstore"
	"go.uber.org/zap"
)

// app holds the wired collaborators. Fields are filled in dependency order
// and a partially built app can still be closed.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *database.DB
	retriever *retriever.Retriever
	vectors   vectorstore.Store
	cache     *embedding.CachedProvider
	router    *provider.Router
	sql       *sqlgen.Generator
	tools     *agent.ToolRegistry
	engine    *agent.Engine
	history   *store.Store
}

func (a *app) Close() {
	if a.history != nil {
		a.history.Close()
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.vectors != nil {
		_ = a.vectors.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	_ = a.logger.Sync()
}

// openDatabase connects the database and loads the sample dataset when
// configured.
func (a *app) openDatabase(ctx context.Context) error {
	db, err := database.Open(ctx, a.cfg.Database, a.logger)
	if err != nil {
		return err
	}
	a.db = db
	if a.cfg.Database.Seed {
		if err := seed.Load(ctx, db.SQL(), db.Dialect(), seed.Generate(seed.DefaultOptions()), a.logger); err != nil {
			return fmt.Errorf("seed database: %w", err)
		}
	}
	return db.Verify(ctx)
}

// openRetriever builds the embedder, optional redis cache and vector store.
func (a *app) openRetriever() error {
	emb, err := embedding.New(a.cfg.Embedding, a.logger)
	if err != nil {
		return err
	}
	if a.cfg.Cache.RedisURL != "" {
		cached, err := embedding.NewCachedProvider(emb, a.cfg.Cache.RedisURL, a.cfg.Embedding.Model, a.cfg.Cache.TTL.Duration, a.logger)
		if err != nil {
			a.logger.Warn("Redis unavailable, embedding without cache", zap.Error(err))
		} else {
			a.cache = cached
			emb = cached
		}
	}

	vs, err := vectorstore.New(a.cfg.VectorStore, a.logger)
	if err != nil {
		return err
	}
	a.vectors = vs
	a.retriever = retriever.New(emb, vs, retriever.Options{
		K:      a.cfg.VectorStore.TopK,
		FetchK: a.cfg.VectorStore.FetchK,
		Lambda: a.cfg.VectorStore.Lambda,
	}, a.logger)
	return nil
}

// newApp wires every collaborator needed to answer questions.
func newApp(ctx context.Context, cfg *config.Config, key string, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	if err := a.build(ctx, key); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) build(ctx context.Context, key string) error {
	if err := a.openDatabase(ctx); err != nil {
		return err
	}
	if err := a.openRetriever(); err != nil {
		return err
	}
	if err := a.retriever.IndexIfEmpty(ctx, schema.NewCatalog().Documents()); err != nil {
		return fmt.Errorf("index schema: %w", err)
	}

	router, err := provider.BuildRouter(a.cfg, key, a.logger)
	if err != nil {
		return err
	}
	a.router = router

	sqlTmpl, err := prompt.LoadSQL(a.cfg.Templates.SQL)
	if err != nil {
		return fmt.Errorf("load sql template: %w", err)
	}
	a.sql = sqlgen.New(provider.NewCompleter(router, provider.RoleSQL, a.logger), a.db, sqlTmpl, a.cfg.SQL.MaxRetries, a.logger)

	a.tools = agent.NewToolRegistry()
	if err := agent.RegisterBuiltinTools(a.tools, a.db, a.retriever, a.sql); err != nil {
		return err
	}

	agentTmpl, err := prompt.LoadAgent(a.cfg.Templates.Agent)
	if err != nil {
		return fmt.Errorf("load agent template: %w", err)
	}
	planner := provider.NewCompleter(router, provider.RolePlanner, a.logger)
	a.engine, err = agent.NewEngine(ctx, planner, a.tools, agentTmpl, agent.OptionsFromConfig(a.cfg.Agent), a.logger)
	if err != nil {
		return err
	}

	if dsn := a.cfg.History.PostgresDSN; dsn != "" {
		hs, err := store.New(ctx, dsn, a.logger)
		if err != nil {
			a.logger.Warn("PostgreSQL unavailable, running without run history", zap.Error(err))
			return nil
		}
		a.history = hs
		if err := hs.Migrate(ctx, a.cfg.History.MigrationsDir); err != nil {
			return fmt.Errorf("migrate run history: %w", err)
		}
		a.engine.SetRecorder(hs)
	}
	return nil
}

// setup loads config and logger for a command.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg.Server.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
