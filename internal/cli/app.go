package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/suPer8Hu/gopherchat/internal/ai"
	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/config"
	"github.com/suPer8Hu/gopherchat/internal/db"
	"github.com/suPer8Hu/gopherchat/internal/naming"
	"github.com/suPer8Hu/gopherchat/internal/observability"
	"github.com/suPer8Hu/gopherchat/internal/prompts"
	"github.com/suPer8Hu/gopherchat/internal/store/redisstore"
	"gorm.io/gorm"
)

// app holds what serve and worker share: config, database and chat service.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	db      *gorm.DB
	svc     *chat.Service
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", "error", err)
		}
	}
}

func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	log := observability.Setup(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, log, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}

	gdb, err := db.Connect(cfg.DBDSN, cfg.DBLog)
	if err != nil {
		return nil, err
	}
	a.db = gdb
	a.closers = append(a.closers, func() error { return db.Close(gdb) })

	if err := db.AutoMigrate(gdb); err != nil {
		a.Close()
		return nil, err
	}

	reg, err := newRegistry(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	set := prompts.Default()
	opts := chat.Options{
		ContextWindowSize: cfg.ChatContextWindowSize,
		ModelTimeout:      cfg.ModelTimeout,
		StoreTimeout:      cfg.StoreTimeout,
		SystemPrompt:      set.ChatSystem,
		DefaultProvider:   cfg.AIProvider,
		DefaultModel:      cfg.DefaultModel(),
	}

	namer, err := reg.Get(ctx, cfg.AIProvider, cfg.DefaultModel())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("naming provider: %w", err)
	}
	opts.Namer = naming.NewGenerator(namer, set)

	if cfg.RedisAddr != "" {
		rdb, err := redisstore.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, rdb.Close)
		opts.Locker = redisstore.NewLocker(rdb, cfg.LockTTL)
		log.Info("using redis turn lock", "addr", cfg.RedisAddr)
	}

	a.svc = chat.NewService(chat.NewRepo(gdb), reg, opts)
	return a, nil
}

// newRegistry registers every provider that has the settings it needs. The
// configured default provider is always present, Validate guarantees that.
func newRegistry(ctx context.Context, cfg config.Config) (*ai.Registry, error) {
	reg := ai.NewRegistry()

	if cfg.GeminiAPIKey != "" {
		gemini, err := ai.NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		reg.Register("gemini", func(_ context.Context, model string) (ai.Provider, error) {
			return gemini.WithModel(model), nil
		})
	}

	reg.Register("ollama", func(_ context.Context, model string) (ai.Provider, error) {
		if model == "" {
			model = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, model), nil
	})

	if cfg.OpenRouterAPIKey != "" {
		reg.Register("openrouter", func(_ context.Context, model string) (ai.Provider, error) {
			if model == "" {
				model = cfg.OpenRouterModel
			}
			return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, model,
				cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
		})
	}

	if !reg.Has(cfg.AIProvider) {
		return nil, fmt.Errorf("provider %q is not configured", cfg.AIProvider)
	}
	return reg, nil
}
