// Package scheduler находит пользователей, у которых сегодня последний день доступа,
// и публикует для них напоминания.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/tutor-bot/internal/lib/date"
	"github.com/magabrotheeeer/tutor-bot/internal/lib/sl"
	"github.com/magabrotheeeer/tutor-bot/internal/models"
	"github.com/magabrotheeeer/tutor-bot/internal/rabbitmq"
)

const reminderTTL = 48 * time.Hour

// Repository ищет окна доступа, заканчивающиеся в заданный день.
type Repository interface {
	FindExpiringOn(ctx context.Context, day time.Time) ([]*models.Subscription, error)
}

// Publisher публикует сообщения в брокер.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// Deduper отмечает уже отправленные напоминания.
type Deduper interface {
	Add(ctx context.Context, key string, value any, expiration time.Duration) (bool, error)
}

// Service планировщик напоминаний.
type Service struct {
	repo   Repository
	events Publisher
	dedup  Deduper
	cal    date.Calendar
	log    *slog.Logger
}

// NewService создает новый экземпляр Service. dedup может быть nil.
func NewService(repo Repository, events Publisher, dedup Deduper, cal date.Calendar, log *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		events: events,
		dedup:  dedup,
		cal:    cal,
		log:    log,
	}
}

// Run выполняет проход сразу и затем каждые interval, пока не отменён ctx.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	s.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) runOnce(ctx context.Context) {
	if _, err := s.RunOnce(ctx, time.Now()); err != nil {
		s.log.Error("failed to publish expiry reminders", sl.Err(err))
	}
}

// RunOnce публикует напоминания для окон, заканчивающихся в день now,
// и возвращает количество опубликованных сообщений.
func (s *Service) RunOnce(ctx context.Context, now time.Time) (int, error) {
	const op = "scheduler.RunOnce"
	today := s.cal.Day(now)
	log := s.log.With(slog.String("op", op), slog.String("day", date.Format(today)))

	subs, err := s.repo.FindExpiringOn(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if len(subs) == 0 {
		log.Info("no expiring subscriptions found")
		return 0, nil
	}
	log.Info("found expiring subscriptions", slog.Int("count", len(subs)))

	published := 0
	for _, sub := range subs {
		if !s.firstReminder(ctx, log, sub) {
			continue
		}
		notice := models.ExpiryNotice{UserID: sub.UserID, EndDate: date.Format(sub.EndDate)}
		if err := s.events.Publish(ctx, rabbitmq.RoutingExpiring, notice); err != nil {
			log.Error("failed to publish message", sl.UserID(sub.UserID), sl.Err(err))
			continue
		}
		published++
	}
	return published, nil
}

// firstReminder сообщает, что напоминание об этом окне ещё не отправлялось.
// При недоступности Redis напоминание отправляется.
func (s *Service) firstReminder(ctx context.Context, log *slog.Logger, sub *models.Subscription) bool {
	if s.dedup == nil {
		return true
	}
	key := fmt.Sprintf("reminder:%d:%s", sub.UserID, date.Format(sub.EndDate))
	added, err := s.dedup.Add(ctx, key, true, reminderTTL)
	if err != nil {
		log.Warn("reminder dedup unavailable", sl.UserID(sub.UserID), sl.Err(err))
		return true
	}
	return added
}

// GrantEventHandler возвращает обработчик событий о выдаче доступа,
// который записывает их в журнал аудита.
func (s *Service) GrantEventHandler() func([]byte) error {
	log := s.log.With(slog.String("op", "scheduler.GrantEvent"))
	return func(body []byte) error {
		var event models.GrantEvent
		if err := json.Unmarshal(body, &event); err != nil {
			log.Error("failed to decode grant event", sl.Err(err))
			return nil
		}
		log.Info("access granted",
			slog.String("kind", event.Kind),
			sl.UserID(event.UserID),
			slog.String("start_date", event.StartDate),
			slog.String("end_date", event.EndDate),
			slog.String("transaction_ref", event.TransactionRef),
		)
		return nil
	}
}
