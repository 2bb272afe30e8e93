// Package main - точка входа для фоновых процессов (Worker) PawLog
// Progress Engine.
//
// Worker отвечает за периодические задачи:
// - Штрафы за пропуски журнала для владельцев, которые не вернулись
// - Финализация челленджей, чьи окна недавно закрылись
// - Обновление кеша снимков статистики
//
// Все задачи идемпотентны: штрафы и награды ключуются в реестре,
// поэтому повторный запуск или гонка с API-сервером безопасны.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/pawlog-hub/pawlog-progress-engine/config"

	// Application layer
	"github.com/pawlog-hub/pawlog-progress-engine/internal/application/query"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/application/saga"

	// Domain layer
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/rewards"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"

	// Infrastructure layer
	"github.com/pawlog-hub/pawlog-progress-engine/internal/infrastructure/messaging"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/infrastructure/persistence/postgres"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/infrastructure/persistence/redis"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/infrastructure/scheduler"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/infrastructure/scheduler/jobs"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	// Создаём корневой контекст с возможностью отмены
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Запускаем приложение
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting PawLog Progress Engine Worker",
		"env", cfg.App.Environment,
		"debug", cfg.App.Debug,
		"timezone", cfg.App.Timezone,
	)

	if !cfg.Scheduler.Enabled {
		log.Warn("scheduler is disabled, worker has nothing to do")
		return nil
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ЗАПУСК МИГРАЦИЙ (Worker также должен иметь актуальную схему)
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Database.AutoMigrate {
		log.Info("checking database migrations...")
		migrator := postgres.NewMigrator(dbConn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ИНИЦИАЛИЗАЦИЯ REDIS (опционально, для кеша снимков)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redis.Cache
	var snapshotCache query.SnapshotCache

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, snapshot refresh disabled", "error", err)
		} else {
			defer redisCache.Close()
			snapshotCache = redis.NewStatsSnapshotCache(redisCache)
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ИНИЦИАЛИЗАЦИЯ РЕПОЗИТОРИЕВ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	subjectRepo := postgres.NewSubjectRepository(dbConn)
	entryRepo := postgres.NewEntryRepository(dbConn)
	achievementDefRepo := postgres.NewAchievementDefinitionRepository(dbConn)
	achievementRepo := postgres.NewAchievementRepository(dbConn)
	challengeDefRepo := postgres.NewChallengeDefinitionRepository(dbConn)
	challengeRepo := postgres.NewChallengeRepository(dbConn)
	stateRepo := postgres.NewRewardsStateRepository(dbConn)
	ledgerRepo := postgres.NewLedgerRepository(dbConn)

	ledger := rewards.NewLedger(ledgerRepo, uuid.NewString, nil)
	curve := rewards.DefaultLevelCurve(shared.XP(cfg.Engine.LevelCurveBaseXP))
	locks := saga.NewUserLocks()

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ИНИЦИАЛИЗАЦИЯ EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus...")
	eventBusConfig := messaging.DefaultInMemoryEventBusConfig()
	eventBusConfig.Logger = log
	eventBus := messaging.NewInMemoryEventBus(eventBusConfig)
	defer func() {
		log.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 8. РЕГИСТРАЦИЯ ЗАДАЧ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("registering scheduled jobs...")
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:        log,
		Timezone:      cfg.App.Location,
		EnableMetrics: true,
	})

	features := cfg.Features

	if features.IsEnabled(config.FeatureJobsAbsenceSweep, nil) {
		absenceJob := jobs.NewEvaluateAbsencesJob(
			subjectRepo, entryRepo, achievementDefRepo, achievementRepo,
			stateRepo, ledger, dbConn, locks, eventBus, log,
			jobs.EvaluateAbsencesConfig{
				RepeatablePenalties: cfg.Engine.RepeatablePenalties,
				Timeout:             cfg.Scheduler.JobTimeout,
			},
		)
		schedule := scheduler.NewDailySchedule(
			cfg.Scheduler.AbsenceSweepHour,
			cfg.Scheduler.AbsenceSweepMinute,
			cfg.App.Location,
		)
		if err := sched.Register(absenceJob, schedule); err != nil {
			return fmt.Errorf("failed to register absence job: %w", err)
		}
	}

	if features.IsEnabled(config.FeatureJobsChallengeFinalize, nil) {
		finalizeJob := jobs.NewFinalizeChallengesJob(
			subjectRepo, entryRepo, challengeDefRepo, challengeRepo,
			stateRepo, ledger, dbConn, locks, eventBus, log,
			jobs.FinalizeChallengesConfig{
				LevelCurveBaseXP: cfg.Engine.LevelCurveBaseXP,
				Timeout:          cfg.Scheduler.JobTimeout,
			},
		)
		schedule := scheduler.NewIntervalSchedule(cfg.Scheduler.FinalizeChallengesInterval)
		if err := sched.Register(finalizeJob, schedule); err != nil {
			return fmt.Errorf("failed to register finalize job: %w", err)
		}
	}

	if snapshotCache != nil && features.IsEnabled(config.FeatureJobsSnapshotRefresh, nil) {
		statsHandler := query.NewGetStatsSnapshotHandler(
			subjectRepo, entryRepo, achievementDefRepo, achievementRepo,
			challengeRepo, stateRepo, ledger, snapshotCache, curve, nil)

		refreshJob := jobs.NewRefreshSnapshotsJob(
			subjectRepo, statsHandler, log,
			jobs.RefreshSnapshotsConfig{Timeout: cfg.Scheduler.JobTimeout},
		)
		schedule := scheduler.NewIntervalSchedule(cfg.Scheduler.RefreshSnapshotsInterval)
		if err := sched.Register(refreshJob, schedule); err != nil {
			return fmt.Errorf("failed to register refresh job: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. ЗАПУСК ПЛАНИРОВЩИКА
	// ─────────────────────────────────────────────────────────────────────────
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	for _, job := range sched.ListJobs() {
		log.Info("job scheduled",
			"name", job.Name,
			"schedule", job.Schedule,
			"next_run", job.NextRun.Format(time.RFC3339),
		)
	}

	log.Info("PawLog Progress Engine Worker is running",
		"timezone", cfg.App.Timezone,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 10. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	log.Info("received shutdown signal", "signal", sig.String())

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	if err := sched.Stop(); err != nil {
		log.Error("scheduler stop failed", "error", err)
	}

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	if cfg.Observability.LogFormat == "json" || cfg.IsProduction() {
		// JSON формат для production (лучше для агрегаторов логов)
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		// Текстовый формат для development (лучше читается)
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}
