// Package bot собирает процесс чат-бота: хранилище, кэш, брокер, внешние сервисы,
// обработчик действий, транспорт Telegram и служебный HTTP-сервер.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/streadway/amqp"
	"golang.org/x/sync/errgroup"

	"github.com/magabrotheeeer/tutor-bot/internal/cache"
	"github.com/magabrotheeeer/tutor-bot/internal/collaborator/ai"
	"github.com/magabrotheeeer/tutor-bot/internal/collaborator/ocr"
	"github.com/magabrotheeeer/tutor-bot/internal/config"
	"github.com/magabrotheeeer/tutor-bot/internal/http/handlers/health"
	"github.com/magabrotheeeer/tutor-bot/internal/lib/date"
	"github.com/magabrotheeeer/tutor-bot/internal/lib/limiter"
	"github.com/magabrotheeeer/tutor-bot/internal/lib/sl"
	"github.com/magabrotheeeer/tutor-bot/internal/metrics"
	"github.com/magabrotheeeer/tutor-bot/internal/migrations"
	"github.com/magabrotheeeer/tutor-bot/internal/rabbitmq"
	"github.com/magabrotheeeer/tutor-bot/internal/services/access"
	"github.com/magabrotheeeer/tutor-bot/internal/services/gate"
	"github.com/magabrotheeeer/tutor-bot/internal/services/grant"
	"github.com/magabrotheeeer/tutor-bot/internal/services/subscription"
	"github.com/magabrotheeeer/tutor-bot/internal/storage"
	"github.com/magabrotheeeer/tutor-bot/internal/telegram"
)

// App процесс чат-бота. Владеет всеми соединениями и закрывает их при остановке.
type App struct {
	cfg     *config.Config
	server  *http.Server
	api     *tgbotapi.BotAPI
	bot     *telegram.Bot
	limiter *limiter.PerUser
	subs    *subscription.Service
	db      *storage.Storage
	cache   *cache.Cache
	conn    *amqp.Connection
	ch      *amqp.Channel
	logger  *slog.Logger
}

// New создает приложение и подключается ко всем зависимостям.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	loc, err := cfg.Clock.Loc()
	if err != nil {
		return nil, fmt.Errorf("invalid clock location: %w", err)
	}
	cal := date.NewCalendar(loc)

	a := &App{cfg: cfg, logger: logger}

	a.db, err = storage.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	if err = migrations.Run(a.db.DB, cfg.MigrationsPath); err != nil {
		a.closeResources()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	a.cache, err = cache.InitServer(ctx, cfg.Redis)
	if err != nil {
		a.closeResources()
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}

	a.conn, err = rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		a.closeResources()
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}
	a.ch, err = rabbitmq.SetupChannel(a.conn, rabbitmq.Exchange, rabbitmq.GetSubscriptionQueues())
	if err != nil {
		a.closeResources()
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	if err = tgbotapi.SetLogger(telegram.NewAPILogger(logger, cfg.Telegram.Token)); err != nil {
		a.closeResources()
		return nil, fmt.Errorf("failed to set telegram logger: %w", err)
	}
	httpClient := &http.Client{Timeout: cfg.Telegram.RequestTimeout}
	a.api, err = tgbotapi.NewBotAPIWithClient(cfg.Telegram.Token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		a.closeResources()
		return nil, fmt.Errorf("failed to init telegram bot api: %w", err)
	}
	a.api.Debug = cfg.Telegram.Debug

	m := metrics.New(prometheus.DefaultRegisterer)
	a.subs = subscription.NewService(a.db, a.cache, cfg.Redis.TTL, logger)
	eval := access.NewEvaluator(a.subs, cal)
	engine := grant.NewEngine(a.subs, cal, cfg.Plan.TrialDays, cfg.Plan.PaidDays,
		rabbitmq.NewPublisher(a.ch, rabbitmq.Exchange), m, logger)

	g := gate.New(gate.Deps{
		Subscriptions: a.subs,
		Grants:        engine,
		Evaluator:     eval,
		AI:            ai.New(cfg.OpenAI),
		OCR:           ocr.New(cfg.OCR),
		Images:        telegram.NewFetcher(a.api, httpClient, cfg.Telegram.MaxImageBytes),
		Metrics:       m,
	}, logger)

	a.limiter = limiter.New(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst, cfg.RateLimit.IdleTTL)
	a.bot = telegram.New(a.api, g, a.limiter, cfg.Telegram, cfg.Plan, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, map[string]health.Pinger{
		"postgres": a.db,
		"redis":    a.cache,
	}, a.subs, eval)

	a.server = &http.Server{
		Addr:         cfg.HTTPServer.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.TimeoutHTTP,
		WriteTimeout: cfg.HTTPServer.TimeoutHTTP,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	logger.Info("bot authorized", slog.String("username", a.api.Self.UserName))
	return a, nil
}

// Run запускает бота, потребителя напоминаний и HTTP-сервер. Возвращает управление
// после отмены ctx или падения любой из частей, предварительно закрыв соединения.
func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumerMessage(ctx, a.ch, rabbitmq.QueueExpiring, a.cfg.Telegram.Workers, a.logger, a.bot.ExpiryNoticeHandler(a.subs))
	if err != nil {
		a.closeResources()
		return fmt.Errorf("failed to start %s consumer: %w", rabbitmq.QueueExpiring, err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = a.cfg.Telegram.PollTimeout
	updates := a.api.GetUpdatesChan(u)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.bot.Run(gctx, updates)
	})
	g.Go(func() error {
		a.limiter.RunCleanup(gctx, a.cfg.RateLimit.IdleTTL)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.api.StopReceivingUpdates()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		return a.server.Shutdown(timeoutCtx)
	})

	err = g.Wait()
	a.closeResources()
	return err
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
