// Package main - точка входа фонового процесса SkillNova Lifecycle Worker.
//
// Worker отвечает за жизненный цикл стажировки:
// - письмо с деталями программы и PDF-брошюрой
// - оффер-леттер, сгенерированный из шаблона
// - еженедельные задания по этапам
// - сертификат по окончании программы
// - ежемесячная очистка старых записей
//
// Рядом работает небольшой HTTP-сервер для проверок здоровья,
// ручного запуска задач и приёма регистраций.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/skillnova/lifecycle-hub/config"
	"github.com/skillnova/lifecycle-hub/internal/application/command"
	"github.com/skillnova/lifecycle-hub/internal/domain/enrollment"
	"github.com/skillnova/lifecycle-hub/internal/domain/notification"
	"github.com/skillnova/lifecycle-hub/internal/infrastructure/catalog"
	"github.com/skillnova/lifecycle-hub/internal/infrastructure/external/render"
	"github.com/skillnova/lifecycle-hub/internal/infrastructure/external/smtp"
	"github.com/skillnova/lifecycle-hub/internal/infrastructure/persistence/memory"
	"github.com/skillnova/lifecycle-hub/internal/infrastructure/persistence/postgres"
	"github.com/skillnova/lifecycle-hub/internal/infrastructure/persistence/redis"
	"github.com/skillnova/lifecycle-hub/internal/infrastructure/persistence/sqlite"
	"github.com/skillnova/lifecycle-hub/internal/infrastructure/scheduler"
	"github.com/skillnova/lifecycle-hub/internal/infrastructure/scheduler/jobs"
	"github.com/skillnova/lifecycle-hub/internal/infrastructure/service"
	httpapi "github.com/skillnova/lifecycle-hub/internal/interface/http"
	"github.com/skillnova/lifecycle-hub/internal/interface/http/handlers"
	"github.com/skillnova/lifecycle-hub/pkg/logger"
	"github.com/skillnova/lifecycle-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// Отсутствие почтовых учётных данных - фатальная ошибка.
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.New(logger.Options{
		Level:   cfg.Observability.LogLevel,
		Format:  cfg.Observability.LogFormat,
		Service: cfg.App.Name,
		Version: cfg.App.Version,
	})
	slog.SetDefault(log)

	log.Info("starting SkillNova Lifecycle Worker",
		slog.String("env", string(cfg.App.Environment)),
		slog.String("timezone", cfg.App.Timezone),
		slog.String("store", cfg.Database.Driver),
	)

	clock := timeutil.NewSystemClock(cfg.App.Location)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ХРАНИЛИЩЕ ЗАПИСЕЙ
	// ─────────────────────────────────────────────────────────────────────────
	repo, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. КАТАЛОГ ПРОГРАММ
	// ─────────────────────────────────────────────────────────────────────────
	programs, err := catalog.Load(cfg.Catalog.Path, catalog.Options{
		AttachmentsDir:       cfg.Catalog.AttachmentsDir,
		DefaultDurationUnits: cfg.Lifecycle.DefaultDurationUnits,
	})
	if err != nil {
		return fmt.Errorf("failed to load program catalog: %w", err)
	}
	log.Info("program catalog loaded", slog.Int("programs", len(programs.List())))

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REDIS (опционально, кеш сгенерированных файлов)
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("store", handlers.NewPingCheck(repo))

	var artifacts render.ArtifactStore
	if cfg.Redis.Enabled {
		cache, err := redis.NewCache(ctx, redis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			Namespace:    cfg.App.Name,
		})
		if err != nil {
			log.Warn("failed to connect to Redis, artifact caching disabled", logger.Err(err))
		} else {
			defer cache.Close()
			artifacts = redis.NewArtifactCache(cache, cfg.Redis.ArtifactTTL)
			health.AddOptionalCheck("artifact_cache", handlers.NewPingCheck(cache))
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ВНЕШНИЕ КЛИЕНТЫ: ПОЧТА И РЕНДЕРИНГ
	// ─────────────────────────────────────────────────────────────────────────
	transport := smtp.NewClient(smtp.Config{
		Host:     cfg.Mail.Server,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.User,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
		Timeout:  cfg.Mail.Timeout,
		Logger:   log,
	})
	sender := service.NewNotificationSender(transport, service.SenderConfig{
		MaxAttempts:      cfg.Mail.MaxAttempts,
		RetryDelay:       cfg.Mail.RetryDelay,
		BreakerThreshold: cfg.Mail.BreakerThreshold,
		BreakerTimeout:   cfg.Mail.BreakerTimeout,
		Clock:            clock,
		Logger:           log,
	})
	health.AddOptionalCheck("mail_relay", sender.RelayCheck)

	imageRenderer, err := render.NewImageRenderer(render.Config{
		CertificateTemplate: cfg.Render.CertificateTemplate,
		OfferTemplate:       cfg.Render.OfferTemplate,
		FontPath:            cfg.Render.FontPath,
		OutputDir:           cfg.Render.OutputDir,
		Clock:               clock,
		Logger:              log,
	})
	if err != nil {
		return fmt.Errorf("failed to init renderer: %w", err)
	}
	var renderer notification.Renderer = imageRenderer
	if artifacts != nil {
		renderer = render.NewCachedRenderer(imageRenderer, artifacts, clock, log)
	}

	brand := notification.DefaultBrand()

	// ─────────────────────────────────────────────────────────────────────────
	// 7. КОМАНДЫ
	// ─────────────────────────────────────────────────────────────────────────
	registerHandler := command.NewRegisterEnrollmentHandler(repo, programs, sender, brand,
		service.NewIDGenerator(), clock,
		command.RegisterEnrollmentConfig{DefaultTotalStages: cfg.Lifecycle.DefaultTotalStages}, log)
	paymentHandler := command.NewConfirmPaymentHandler(repo, programs, sender, brand, clock, log)
	completionHandler := command.NewCompletionHandler(repo, programs, clock, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = buildScheduler(cfg, jobs.Dependencies{
			Repo:     repo,
			Sender:   sender,
			Renderer: renderer,
			Catalog:  programs,
			Brand:    brand,
			Clock:    clock,
			Logger:   log,
		}, clock, log)
		if err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	} else {
		log.Warn("scheduler disabled, no lifecycle messages will be sent")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HTTP СЕРВЕР
	// ─────────────────────────────────────────────────────────────────────────
	var (
		server   *httpapi.Server
		serveErr <-chan error
	)
	if cfg.HTTP.Enabled {
		httpCfg := httpapi.DefaultConfig()
		httpCfg.Host = cfg.HTTP.Host
		httpCfg.Port = cfg.HTTP.Port
		httpCfg.APIKey = cfg.HTTP.APIKey
		httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
		httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
		httpCfg.Version = cfg.App.Version

		deps := httpapi.Dependencies{
			Register:    registerHandler,
			Payment:     paymentHandler,
			Completions: completionHandler,
			Enrollments: repo,
			Health:      health,
			Logger:      log,
		}
		if sched != nil {
			deps.Jobs = sched
		}
		server = httpapi.NewServer(httpCfg, deps)
		serveErr = server.StartAsync()
	}

	log.Info("SkillNova Lifecycle Worker is running")

	// ─────────────────────────────────────────────────────────────────────────
	// 10. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err, ok := <-serveErr:
		if ok && err != nil {
			log.Error("http server stopped", logger.Err(err))
			runErr = err
		}
	}

	log.Info("starting graceful shutdown...", slog.String("timeout", cfg.App.ShutdownTimeout.String()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("http server shutdown failed", logger.Err(err))
		}
	}
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
			log.Error("scheduler shutdown failed", logger.Err(err))
		}
	}

	log.Info("shutdown completed")
	return runErr
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// openStore подключает хранилище, выбранное в DATABASE_DRIVER, и применяет миграции.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (enrollment.Repository, func(), error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		log.Info("connecting to database...")
		opts := postgres.DefaultPoolOptions()
		opts.MaxConns = int32(cfg.Database.MaxConns)
		if cfg.Database.ConnMaxLifetime > 0 {
			opts.MaxConnLifetime = cfg.Database.ConnMaxLifetime
		}

		conn, err := postgres.Connect(ctx, cfg.Database.URL, opts)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		applied, err := postgres.NewMigrator(conn).Migrate(ctx)
		if err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date", slog.Int("applied", applied))

		return postgres.NewEnrollmentRepository(conn), func() {
			log.Info("closing database connection...")
			conn.Close()
		}, nil

	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.Database.SQLitePath, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		log.Info("sqlite store opened", slog.String("path", cfg.Database.SQLitePath))

		return sqlite.NewEnrollmentRepository(db), func() {
			if err := sqlite.Close(db); err != nil {
				log.Error("failed to close sqlite store", logger.Err(err))
			}
		}, nil

	case config.DriverMemory:
		log.Warn("using in-memory store, data is lost on restart")
		return memory.NewEnrollmentRepository(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// buildScheduler регистрирует четыре задачи уведомлений и задачу очистки.
func buildScheduler(cfg *config.Config, deps jobs.Dependencies, clock timeutil.Clock, log *slog.Logger) (*scheduler.Scheduler, error) {
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:         log,
		Clock:          clock,
		Timezone:       cfg.App.Location,
		PollInterval:   cfg.Scheduler.PollInterval,
		JobTimeout:     cfg.Scheduler.JobTimeout,
		MaxHistorySize: 1000,
	})

	cadence, err := scheduler.ParseCadence(cfg.Scheduler.Cadence, cfg.App.Location)
	if err != nil {
		return nil, fmt.Errorf("SCHEDULER_CADENCE: %w", err)
	}
	retentionCadence, err := scheduler.ParseCadence(cfg.Scheduler.RetentionCadence, cfg.App.Location)
	if err != nil {
		return nil, fmt.Errorf("RETENTION_CADENCE: %w", err)
	}

	jobCfg := jobs.Config{
		Policy: enrollment.DuePolicy{
			DetailsDelay: cfg.Lifecycle.DetailsDelay,
			OfferDelay:   cfg.Lifecycle.OfferDelay,
			StageGap:     cfg.Lifecycle.StageGap,
			UnitLength:   cfg.Lifecycle.UnitLength,
			RetentionAge: cfg.Lifecycle.RetentionAge,
		},
		Concurrency: cfg.Scheduler.Concurrency,
	}

	for _, kind := range []enrollment.Kind{
		enrollment.KindDetails,
		enrollment.KindOfferLetter,
		enrollment.KindWeeklyStage,
		enrollment.KindCompletion,
	} {
		job, err := jobs.NewLifecycleJob(kind, deps, jobCfg)
		if err != nil {
			return nil, fmt.Errorf("create %s job: %w", kind, err)
		}
		if err := sched.Register(job, cadence); err != nil {
			return nil, fmt.Errorf("register %s job: %w", kind, err)
		}
	}

	retention, err := jobs.NewRetentionJob(deps.Repo, cfg.Lifecycle.RetentionAge, clock, log)
	if err != nil {
		return nil, fmt.Errorf("create retention job: %w", err)
	}
	if err := sched.Register(retention, retentionCadence); err != nil {
		return nil, fmt.Errorf("register retention job: %w", err)
	}

	return sched, nil
}
