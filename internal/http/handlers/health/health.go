// Package health реализует проверку готовности зависимостей бота.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/tutor-bot/internal/http/response"
	"github.com/magabrotheeeer/tutor-bot/internal/lib/sl"
)

// Pinger зависимость, доступность которой можно проверить.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler опрашивает зависимости и отвечает 200, если все доступны, иначе 503.
type Handler struct {
	log     *slog.Logger
	checks  map[string]Pinger
	timeout time.Duration
}

// New создаёт Handler. checks сопоставляет имя зависимости и способ её проверки.
func New(log *slog.Logger, checks map[string]Pinger, timeout time.Duration) *Handler {
	return &Handler{
		log:     log,
		checks:  checks,
		timeout: timeout,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.health"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	statuses := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			log.Warn("dependency unavailable", slog.String("dependency", name), sl.Err(err))
			statuses[name] = "unavailable"
			healthy = false
			continue
		}
		statuses[name] = "ok"
	}

	if !healthy {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, response.ErrorWithData("dependency unavailable", statuses))
		return
	}
	render.JSON(w, r, response.OKWithData(statuses))
}
