// Package appwiring assembles the generator/validator/orchestrator/history/
// version-store stack from a config.Config. Both the control API server and
// the CLI build their dependencies through this single path so the two
// surfaces never drift in how they construct the engine.
package appwiring

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/aqa-systems/brain/internal/config"
	"github.com/aqa-systems/brain/internal/generator"
	"github.com/aqa-systems/brain/internal/history"
	"github.com/aqa-systems/brain/internal/llm"
	"github.com/aqa-systems/brain/internal/orchestrator"
	"github.com/aqa-systems/brain/internal/plancache"
	"github.com/aqa-systems/brain/internal/platform/database"
	"github.com/aqa-systems/brain/internal/platform/migrations"
	"github.com/aqa-systems/brain/internal/validator"
	"github.com/aqa-systems/brain/internal/versionstore"
	"github.com/aqa-systems/brain/internal/workspace"
	"github.com/aqa-systems/brain/pkg/logger"
)

// Bundle holds every dependency a caller needs to generate, validate,
// execute, and track plans.
type Bundle struct {
	Config       *config.Config
	Log          *logger.Logger
	DB           *sql.DB
	Cache        *plancache.Cache
	Scheduler    *plancache.Scheduler
	Generator    *generator.Generator
	Validator    *validator.Validator
	Orchestrator *orchestrator.Orchestrator
	History      history.Backend
	Versions     versionstore.Store
	Workspace    workspace.Config
}

// Options lets a caller override config-file DSN/migration decisions
// (the flags cmd/brainserver and cmd/brainctl both expose).
type Options struct {
	DSN           string // overrides cfg.DatabaseDSN when non-empty
	RunMigrations bool
}

// Build loads configuration and constructs a fully wired Bundle. Close
// must be called (via Bundle.Close) once the caller is done.
func Build(opts Options) (*Bundle, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	log := logger.New(logger.LoggingConfig{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: "stdout"})

	dsn := strings.TrimSpace(opts.DSN)
	if dsn == "" {
		dsn = cfg.DatabaseDSN
	}

	var db *sql.DB
	if dsn != "" {
		db, err = database.Open(context.Background(), dsn)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if cfg.DBMaxConnections > 0 {
			db.SetMaxOpenConns(cfg.DBMaxConnections)
		}
		if cfg.DBIdleTimeout > 0 {
			db.SetConnMaxIdleTime(cfg.DBIdleTimeout)
		}
		if opts.RunMigrations {
			if err := migrations.Apply(db); err != nil {
				db.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
	}

	provider := buildProvider(cfg, log)
	limits := &validator.ExecutionLimits{MaxSteps: cfg.MaxSteps, MaxRetryBudget: cfg.MaxStepRetries}
	v := validator.New(validator.ModeDefault, limits)

	cache, adapter, scheduler := buildCache(cfg, log)
	gen := generator.New(provider, v, adapter, cfg.Model)
	orch := orchestrator.New(cfg.RunnerPath)

	histBackend, err := history.NewFromEnv(history.Config{
		Backend:  cfg.HistoryBackend,
		DB:       db,
		BaseDir:  cfg.HistoryFileTreeDir,
		Compress: cfg.CacheCompress,
	})
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("configure history backend: %w", err)
	}

	versions, err := buildVersionStore(cfg, db)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("configure plan version store: %w", err)
	}

	return &Bundle{
		Config:       cfg,
		Log:          log,
		DB:           db,
		Cache:        cache,
		Scheduler:    scheduler,
		Generator:    gen,
		Validator:    v,
		Orchestrator: orch,
		History:      histBackend,
		Versions:     versions,
		Workspace: workspace.Config{
			Root:           ".",
			CacheDir:       cfg.CacheDir,
			HistoryBackend: cfg.HistoryBackend,
			HistoryDir:     cfg.HistoryFileTreeDir,
			Orchestrator:   orch,
		},
	}, nil
}

// Close releases the database handle and history backend, if any.
func (b *Bundle) Close() {
	if b.History != nil {
		_ = b.History.Close()
	}
	if b.DB != nil {
		_ = b.DB.Close()
	}
}

// Addr resolves the listen address following flag > config > default.
func (b *Bundle) Addr(flagAddr string) string {
	if a := strings.TrimSpace(flagAddr); a != "" {
		return a
	}
	if a := strings.TrimSpace(b.Config.Addr); a != "" {
		return a
	}
	return ":8080"
}

func buildProvider(cfg *config.Config, log *logger.Logger) llm.Provider {
	if strings.EqualFold(cfg.LLMMode, "real") {
		var opts []llm.RealOption
		if cfg.LLMProvider != "" {
			opts = append(opts, llm.WithPreferredProvider(cfg.LLMProvider))
		}
		if !cfg.LLMFallback {
			opts = append(opts, llm.WithFallbackDisabled())
		}
		return llm.NewReal(opts...)
	}
	log.Info("AQA_LLM_MODE=mock: serving canned plans, no vendor API calls will be made")
	return llm.NewMock(0)
}

// buildCache wires the file-backed plan cache, an optional Redis global
// tier, and a cron sweeper for passive-expiry backstop. The returned
// generator.Cache is a nil interface (not a typed-nil adapter) when
// caching is disabled, so the generator's own nil check short-circuits
// correctly.
func buildCache(cfg *config.Config, log *logger.Logger) (*plancache.Cache, generator.Cache, *plancache.Scheduler) {
	if !cfg.CacheEnabled {
		return nil, nil, nil
	}

	var global plancache.GlobalTier
	if cfg.CacheGlobal && cfg.CacheRedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.CacheRedisAddr})
		global = plancache.NewRedisTier(client, "brain:plancache:")
	}

	ccfg := plancache.Config{
		Dir:      cfg.CacheDir,
		Enabled:  true,
		Compress: cfg.CacheCompress,
		TTL:      time.Duration(cfg.CacheTTLDays) * 24 * time.Hour,
	}
	cache, err := plancache.New(ccfg, global)
	if err != nil {
		log.Warnf("plan cache not configured: %v", err)
		return nil, nil, nil
	}

	var scheduler *plancache.Scheduler
	if cfg.CacheSweepInterval > 0 {
		spec := fmt.Sprintf("@every %s", cfg.CacheSweepInterval.String())
		sched, err := plancache.NewScheduler(cache, spec, log)
		if err != nil {
			log.Warnf("cache sweep scheduler not configured: %v", err)
		} else {
			scheduler = sched
		}
	}

	return cache, plancache.NewGeneratorAdapter(cache), scheduler
}

func buildVersionStore(cfg *config.Config, db *sql.DB) (versionstore.Store, error) {
	switch {
	case db != nil:
		return versionstore.NewPostgresStore(db)
	case strings.EqualFold(cfg.StorageBackend, "memory"):
		return versionstore.NewMemoryStore(), nil
	default:
		return versionstore.NewFileStore(cfg.StoragePath)
	}
}
