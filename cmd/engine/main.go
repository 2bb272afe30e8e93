// Package main - точка входа для API-сервера PawLog Progress Engine.
//
// Движок превращает рутинную обязанность - ежедневный журнал здоровья
// питомца - в игру: серии, достижения, челленджи, уровни и монеты.
// Владелец, который ведёт журнал каждый день, видит прогресс; владелец,
// который забросил, получает штраф.
//
// Архитектура следует принципам Clean Architecture и DDD:
// - Domain: чистая бизнес-логика без внешних зависимостей
// - Application: оркестрация use cases (Commands/Queries/Sagas)
// - Infrastructure: реализация репозиториев, кеш, шина событий
// - Interface: REST API
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/pawlog-hub/pawlog-progress-engine/config"

	// Application layer
	"github.com/pawlog-hub/pawlog-progress-engine/internal/application/command"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/application/eventhandler"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/application/query"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/application/saga"

	// Domain layer
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/rewards"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/domain/shared"

	// Infrastructure layer
	"github.com/pawlog-hub/pawlog-progress-engine/internal/infrastructure/messaging"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/infrastructure/persistence/postgres"
	"github.com/pawlog-hub/pawlog-progress-engine/internal/infrastructure/persistence/redis"

	// Interface layer
	httpserver "github.com/pawlog-hub/pawlog-progress-engine/internal/interface/http"
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
	log.Info("starting PawLog Progress Engine",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"debug", cfg.App.Debug,
	)

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
	// 4. ЗАПУСК МИГРАЦИЙ
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
	// 5. ИНИЦИАЛИЗАЦИЯ REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redis.Cache
	var snapshotCache query.SnapshotCache
	var rateLimiter httpserver.RateLimiter

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, caching disabled", "error", err)
		} else {
			defer redisCache.Close()
			snapshotCache = redis.NewStatsSnapshotCache(redisCache)
			rateLimiter = redis.NewRateLimiter(redisCache, cfg.HTTP.RateLimitPerMinute, 0, log)
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

	// Подписчики: инвалидация кеша статистики + аудит-лог.
	if snapshotCache != nil {
		invalidator := eventhandler.NewOnProgressChangedHandler(
			redis.NewStatsSnapshotCache(redisCache), log)
		invalidator.Register(eventBus)
	}
	eventhandler.NewAuditLogHandler(log).Register(eventBus)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ИНИЦИАЛИЗАЦИЯ APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing application handlers...")
	locks := saga.NewUserLocks()

	flow := saga.NewProgressFlow(
		saga.ProgressFlowDeps{
			Subjects:        subjectRepo,
			Entries:         entryRepo,
			AchievementDefs: achievementDefRepo,
			Achievements:    achievementRepo,
			ChallengeDefs:   challengeDefRepo,
			Challenges:      challengeRepo,
			States:          stateRepo,
			Ledger:          ledger,
			Tx:              dbConn,
			Locks:           locks,
			EventBus:        eventBus,
			NewID:           uuid.NewString,
		},
		saga.ProgressFlowConfig{
			RepeatablePenalties: cfg.Engine.RepeatablePenalties,
			LevelCurveBaseXP:    cfg.Engine.LevelCurveBaseXP,
		},
	)

	submitHandler := command.NewSubmitEventHandler(flow)
	redeemHandler := command.NewRedeemRewardHandler(
		stateRepo, ledger, dbConn, locks, eventBus, curve, nil)
	statsHandler := query.NewGetStatsSnapshotHandler(
		subjectRepo, entryRepo, achievementDefRepo, achievementRepo,
		challengeRepo, stateRepo, ledger, snapshotCache, curve, nil)
	ledgerHandler := query.NewGetLedgerHandler(ledger)

	// ─────────────────────────────────────────────────────────────────────────
	// 9. ЗАПУСК HTTP СЕРВЕРА
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("starting HTTP server...")
	serverConfig := httpserver.DefaultConfig()
	serverConfig.Host = cfg.HTTP.Host
	serverConfig.Port = cfg.HTTP.Port
	serverConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	serverConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	serverConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	serverConfig.EnableCORS = cfg.HTTP.EnableCORS
	serverConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	serverConfig.EnableMetrics = cfg.HTTP.EnableMetrics
	serverConfig.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute

	server := httpserver.NewServer(serverConfig, httpserver.Dependencies{
		SubmitEventHandler:      submitHandler,
		RedeemRewardHandler:     redeemHandler,
		GetStatsSnapshotHandler: statsHandler,
		GetLedgerHandler:        ledgerHandler,
		HealthChecker:           newHealthChecker(dbConn, redisCache),
		RateLimiter:             rateLimiter,
		MetricsSource: func() map[string]interface{} {
			return map[string]interface{}{
				"event_bus": eventBus.Metrics().Snapshot(),
			}
		},
	})

	errCh := server.StartAsync()
	log.Info("PawLog Progress Engine is running", "address", server.Address())

	// ─────────────────────────────────────────────────────────────────────────
	// 10. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// healthChecker проверяет доступность зависимостей сервера.
type healthChecker struct {
	db    *postgres.Connection
	cache *redis.Cache
}

func newHealthChecker(db *postgres.Connection, cache *redis.Cache) *healthChecker {
	return &healthChecker{db: db, cache: cache}
}

// Check реализует httpserver.HealthChecker.
func (h *healthChecker) Check(ctx context.Context) map[string]error {
	checks := map[string]error{
		"postgres": h.db.Ping(ctx),
	}
	if h.cache != nil {
		checks["redis"] = h.cache.Ping(ctx)
	}
	return checks
}

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
