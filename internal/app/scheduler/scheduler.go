// Package scheduler собирает процесс планировщика напоминаний об окончании доступа.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/tutor-bot/internal/cache"
	"github.com/magabrotheeeer/tutor-bot/internal/config"
	"github.com/magabrotheeeer/tutor-bot/internal/lib/date"
	"github.com/magabrotheeeer/tutor-bot/internal/lib/sl"
	"github.com/magabrotheeeer/tutor-bot/internal/rabbitmq"
	schedulerservice "github.com/magabrotheeeer/tutor-bot/internal/services/scheduler"
	"github.com/magabrotheeeer/tutor-bot/internal/storage"
)

// App представляет приложение планировщика.
type App struct {
	schedulerService *schedulerservice.Service
	interval         time.Duration
	db               *storage.Storage
	cache            *cache.Cache
	conn             *amqp.Connection
	ch               *amqp.Channel
	logger           *slog.Logger
}

// waitForDB ждёт, пока процесс бота применит миграции.
func waitForDB(ctx context.Context, db *storage.Storage) error {
	for range 10 {
		err := storage.CheckDatabaseReady(ctx, db)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}
	return fmt.Errorf("database not ready after retries")
}

// New создает новый экземпляр приложения планировщика.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	loc, err := cfg.Clock.Loc()
	if err != nil {
		return nil, fmt.Errorf("invalid clock location: %w", err)
	}

	a := &App{interval: cfg.Scheduler.Interval, logger: logger}

	a.conn, err = rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}
	a.ch, err = rabbitmq.SetupChannel(a.conn, rabbitmq.Exchange, rabbitmq.GetSubscriptionQueues())
	if err != nil {
		a.closeResources()
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	a.db, err = storage.New(cfg.StorageConnectionString)
	if err != nil {
		a.closeResources()
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	if err := waitForDB(ctx, a.db); err != nil {
		a.closeResources()
		return nil, err
	}

	a.cache, err = cache.InitServer(ctx, cfg.Redis)
	if err != nil {
		a.closeResources()
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}

	a.schedulerService = schedulerservice.NewService(
		a.db,
		rabbitmq.NewPublisher(a.ch, rabbitmq.Exchange),
		a.cache,
		date.NewCalendar(loc),
		logger,
	)
	return a, nil
}

// Run запускает планировщик и журнал событий о выдаче доступа.
func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumerMessage(ctx, a.ch, rabbitmq.QueueGrants, 1, a.logger, a.schedulerService.GrantEventHandler())
	if err != nil {
		a.closeResources()
		return fmt.Errorf("failed to start %s consumer: %w", rabbitmq.QueueGrants, err)
	}

	a.schedulerService.Run(ctx, a.interval)

	a.logger.Info("shutting down scheduler service")
	a.closeResources()
	return nil
}

func (a *App) closeResources() {
	if a.ch != nil {
		if err := a.ch.Close(); err != nil {
			a.logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Error("failed to close connection", sl.Err(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close cache", sl.Err(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("failed to close storage", sl.Err(err))
		}
	}
}
