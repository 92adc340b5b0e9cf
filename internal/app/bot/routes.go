package bot

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/magabrotheeeer/tutor-bot/internal/http/handlers/health"
	"github.com/magabrotheeeer/tutor-bot/internal/http/handlers/subscription/read"
)

// RegisterRoutes регистрирует служебные маршруты: проверку готовности, метрики
// и просмотр окна доступа пользователя.
func RegisterRoutes(r chi.Router, logger *slog.Logger, checks map[string]health.Pinger, subs read.Service, eval read.Evaluator) {
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
	)

	r.Get("/health", health.New(logger, checks, 3*time.Second).ServeHTTP)
	r.Get("/subscriptions/{user_id}", read.New(logger, subs, eval).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
}
