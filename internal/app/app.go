package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/course-feedback-api/internal/repository"
	"github.com/noah-isme/course-feedback-api/internal/service"
	"github.com/noah-isme/course-feedback-api/pkg/cache"
	"github.com/noah-isme/course-feedback-api/pkg/config"
	"github.com/noah-isme/course-feedback-api/pkg/database"
	"github.com/noah-isme/course-feedback-api/pkg/storage"
)

// App holds the process-wide dependencies shared by the command line tools.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	DB    *sqlx.DB
	Redis *redis.Client

	Metrics     *service.MetricsService
	Advancement *service.AdvancementService
	Transitions *service.TransitionService
	Reports     *service.ReportService
}

// New connects to PostgreSQL (and Redis when enabled) and wires the services.
func New(cfg *config.Config, logr *zap.Logger) (*App, error) {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if redisClient == nil {
		logr.Warn("redis disabled; concurrent transitions are not serialised")
	}

	reportStore, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		_ = db.Close()
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, err
	}

	metrics := service.NewMetricsService(cfg.Metrics.PushgatewayURL, cfg.Metrics.JobName)

	students := repository.NewStudentRepository(db)
	programs := repository.NewProgramRepository(db)
	periods := repository.NewEvaluationPeriodRepository(db)
	enrollments := repository.NewEnrollmentRepository(db)
	locks := repository.NewLockRepository(redisClient)

	advancement := service.NewAdvancementService(students, programs, nil, metrics, logr)
	transitions := service.NewTransitionService(periods, enrollments, advancement, logr,
		service.WithTransitionLocker(locks, cfg.Transition.LockTTL),
		service.WithTransitionMetrics(metrics),
	)

	return &App{
		Config:      cfg,
		Logger:      logr,
		DB:          db,
		Redis:       redisClient,
		Metrics:     metrics,
		Advancement: advancement,
		Transitions: transitions,
		Reports:     service.NewReportService(reportStore, logr),
	}, nil
}

// Close pushes collected metrics and releases connections.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Metrics.Push(ctx); err != nil {
		a.Logger.Warn("failed to push metrics", zap.Error(err))
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Warn("failed to close database", zap.Error(err))
	}
}
