// Package read реализует служебный HTTP-обработчик просмотра окна доступа пользователя.
//
// Handler извлекает идентификатор пользователя из URL, читает запись и сообщает,
// действует ли доступ на текущий момент.
package read

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/tutor-bot/internal/http/response"
	"github.com/magabrotheeeer/tutor-bot/internal/lib/date"
	"github.com/magabrotheeeer/tutor-bot/internal/lib/sl"
	"github.com/magabrotheeeer/tutor-bot/internal/models"
)

// Service читает окно доступа пользователя.
type Service interface {
	Get(ctx context.Context, userID int64) (*models.Subscription, error)
}

// Evaluator проверяет окно доступа на момент времени.
type Evaluator interface {
	Check(sub *models.Subscription, now time.Time) bool
}

// View представление записи в ответе.
type View struct {
	UserID    int64  `json:"user_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Entitled  bool   `json:"entitled"`
}

// Handler обрабатывает запросы GET /subscriptions/{user_id}.
type Handler struct {
	log     *slog.Logger
	service Service
	eval    Evaluator
	now     func() time.Time
}

// New создает новый Handler.
func New(log *slog.Logger, service Service, eval Evaluator) *Handler {
	return &Handler{
		log:     log,
		service: service,
		eval:    eval,
		now:     time.Now,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.read"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil || userID <= 0 {
		log.Warn("failed to decode user id from url", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid user id"))
		return
	}

	sub, err := h.service.Get(r.Context(), userID)
	if err != nil {
		log.Error("failed to read subscription", sl.UserID(userID), sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not read subscription"))
		return
	}
	if sub == nil {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("subscription not found"))
		return
	}

	render.JSON(w, r, response.OKWithData(View{
		UserID:    sub.UserID,
		StartDate: date.Format(sub.StartDate),
		EndDate:   date.Format(sub.EndDate),
		Entitled:  h.eval.Check(sub, h.now()),
	}))
}
