package server

import (
	"context"
	"errors"
	"fmt"

	"replyBandit/business/bandit"
	"replyBandit/business/evaluation"
	"replyBandit/business/features"
	"replyBandit/domain"
	"replyBandit/internal/repository/memory"
	"replyBandit/internal/repository/notification"
	psqlRepo "replyBandit/internal/repository/postgres"
	redisRepo "replyBandit/internal/repository/redis"
	"replyBandit/internal/repository/sqlite"
	"replyBandit/pkg/config"
	"replyBandit/pkg/database"
	redisClient "replyBandit/pkg/database/redis"
	"replyBandit/pkg/logger"

	"gorm.io/gorm"
)

// App is a fully wired bandit service plus the resources it owns.
type App struct {
	Service *bandit.BanditService
	closers []func() error
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func EngineConfig(cfg *config.Config) bandit.EngineConfig {
	return bandit.EngineConfig{
		Variant:         domain.PolicyVariant(cfg.Engine.Variant),
		Alpha:           cfg.Engine.Alpha,
		Epsilon:         cfg.Engine.Epsilon,
		PriorScale:      cfg.Engine.PriorScale,
		RewardMin:       cfg.Engine.RewardMin,
		RewardMax:       cfg.Engine.RewardMax,
		MinPropensity:   cfg.Engine.MinPropensity,
		PropensityDraws: cfg.Engine.PropensityDraws,
		UnitBall:        cfg.Engine.UnitBall,
		Seed:            cfg.Engine.Seed,
	}
}

func EvaluationConfig(cfg *config.Config) evaluation.Config {
	e := cfg.Evaluation
	return evaluation.Config{
		ClipPercentile:      e.ClipPercentile,
		MinESSRatio:         e.MinESSRatio,
		MinSupportRatio:     e.MinSupportRatio,
		ExtremePropensity:   e.ExtremePropensity,
		MaxExtremeMass:      e.MaxExtremeMass,
		MaxWeightRatio:      e.MaxWeightRatio,
		DriftThreshold:      e.DriftThreshold,
		MinBaselineCoverage: e.MinBaselineCoverage,
	}
}

// Build wires the engine and its collaborators according to cfg.Storage.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg.Engine.Dim != features.Dim {
		return nil, fmt.Errorf("engine.dim is %d but the feature extractor produces %d features", cfg.Engine.Dim, features.Dim)
	}
	evalCfg := EvaluationConfig(cfg)
	if err := evalCfg.Validate(); err != nil {
		return nil, err
	}

	store, err := bandit.NewArmStore(bandit.StoreConfig{
		Arms:          cfg.Engine.Arms,
		Dim:           cfg.Engine.Dim,
		Lambda:        cfg.Engine.Lambda,
		ReinvertEvery: cfg.Engine.ReinvertEvery,
	})
	if err != nil {
		return nil, fmt.Errorf("arm store: %w", err)
	}
	engine, err := bandit.NewEngine(store, EngineConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	app := &App{}
	fail := func(err error) (*App, error) {
		_ = app.Close()
		return nil, err
	}

	var db *gorm.DB
	openDB := func() (*gorm.DB, error) {
		if db != nil {
			return db, nil
		}
		conn, err := database.InitPostgres(cfg)
		if err != nil {
			return nil, err
		}
		if err := psqlRepo.AutoMigrate(conn); err != nil {
			_ = database.ClosePostgres(conn)
			return nil, fmt.Errorf("migrate: %w", err)
		}
		app.closers = append(app.closers, func() error { return database.ClosePostgres(conn) })
		logger.Info("Database connected successfully")
		db = conn
		return db, nil
	}

	var decisionLog bandit.DecisionLog
	switch cfg.Storage.DecisionLog {
	case "postgres":
		conn, err := openDB()
		if err != nil {
			return fail(err)
		}
		decisionLog = psqlRepo.NewBanditRepository(conn)
	default:
		decisionLog = memory.NewDecisionLog()
	}

	var ledger bandit.FeedbackLedger
	switch cfg.Storage.Ledger {
	case "redis":
		client, err := redisClient.NewRedisClient(ctx, cfg)
		if err != nil {
			return fail(err)
		}
		app.closers = append(app.closers, func() error { return redisClient.CloseRedisClient(client) })
		ledger = redisRepo.NewFeedbackLedger(client, cfg.Redis.LedgerTTL)
	default:
		ledger = memory.NewFeedbackLedger()
	}

	var snapshots bandit.SnapshotRepository
	switch cfg.Storage.Snapshots {
	case "sqlite":
		s, err := sqlite.NewSnapshotStore(cfg.Storage.SQLitePath)
		if err != nil {
			return fail(fmt.Errorf("snapshot store: %w", err))
		}
		app.closers = append(app.closers, s.Close)
		snapshots = s
	default:
		snapshots = memory.NewSnapshotRepository()
	}

	var exploration bandit.ExplorationRepository
	if cfg.Storage.Exploration == "postgres" {
		conn, err := openDB()
		if err != nil {
			return fail(err)
		}
		exploration = psqlRepo.NewBanditConfigRepository(conn)
	}

	app.Service = bandit.NewBanditService(
		engine,
		decisionLog,
		ledger,
		snapshots,
		exploration,
		evalCfg,
		bandit.ServiceConfig{SnapshotEvery: cfg.Storage.SnapshotEvery},
	)

	if cfg.Notify.WebhookURL != "" {
		app.Service.SetShiftNotifier(notification.NewWebhookNotifier(notification.WebhookConfig{
			WebhookURL:        cfg.Notify.WebhookURL,
			BasicAuthUsername: cfg.Notify.BasicAuthUsername,
			BasicAuthPassword: cfg.Notify.BasicAuthPassword,
			Timeout:           cfg.Notify.Timeout,
			Source:            cfg.App.Name,
		}))
	}

	if cfg.Storage.RestoreOnStart {
		ok, err := app.Service.RestoreLatest(ctx)
		if err != nil {
			return fail(err)
		}
		logger.Info("Arm state restore", "restored", ok, "backend", cfg.Storage.Snapshots)
	}

	logger.Info("Bandit service ready",
		"variant", cfg.Engine.Variant,
		"arms", cfg.Engine.Arms,
		"decision_log", cfg.Storage.DecisionLog,
		"ledger", cfg.Storage.Ledger,
		"snapshots", cfg.Storage.Snapshots,
	)
	return app, nil
}
