// Package grant реализует переходы состояния подписки: выдачу пробного периода
// при первом обращении и продление после подтверждённого платежа.
package grant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/tutor-bot/internal/lib/date"
	"github.com/magabrotheeeer/tutor-bot/internal/lib/sl"
	"github.com/magabrotheeeer/tutor-bot/internal/models"
	"github.com/magabrotheeeer/tutor-bot/internal/rabbitmq"
)

var (
	// ErrTrialAlreadyUsed у пользователя уже есть запись, пробный период не выдаётся повторно.
	ErrTrialAlreadyUsed = errors.New("trial already used")
	// ErrDuplicatePayment платёж с этим идентификатором уже применён.
	ErrDuplicatePayment = errors.New("payment already applied")
)

// Kinds выдачи доступа.
const (
	KindTrial   = "trial"
	KindPayment = "payment"
)

// Store хранилище окон доступа.
type Store interface {
	Get(ctx context.Context, userID int64) (*models.Subscription, error)
	CreateIfAbsent(ctx context.Context, sub models.Subscription) (bool, error)
	ApplyPayment(ctx context.Context, payment models.Payment, sub models.Subscription) (bool, error)
}

// Publisher публикует события о выдаче доступа.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// Recorder учитывает выдачи доступа в метриках.
type Recorder interface {
	Grant(kind, result string)
}

// Engine единственный источник переходов состояния подписки.
type Engine struct {
	store     Store
	cal       date.Calendar
	trialDays int
	paidDays  int
	events    Publisher
	metrics   Recorder
	log       *slog.Logger
}

// NewEngine создаёт Engine. trialDays и paidDays задают длину окон.
func NewEngine(store Store, cal date.Calendar, trialDays, paidDays int, events Publisher, metrics Recorder, log *slog.Logger) *Engine {
	return &Engine{
		store:     store,
		cal:       cal,
		trialDays: trialDays,
		paidDays:  paidDays,
		events:    events,
		metrics:   metrics,
		log:       log,
	}
}

func (e *Engine) window(userID int64, now time.Time, days int) models.Subscription {
	today := e.cal.Day(now)
	return models.Subscription{
		UserID:    userID,
		StartDate: today,
		EndDate:   date.AddDays(today, days),
	}
}

// ActivateTrial выдаёт пробный период пользователю без записи.
// Если запись уже есть (активная или истёкшая), возвращает ErrTrialAlreadyUsed
// и существующее окно не меняет.
func (e *Engine) ActivateTrial(ctx context.Context, userID int64, now time.Time) (*models.Subscription, error) {
	const op = "grant.ActivateTrial"
	log := e.log.With(slog.String("op", op), sl.UserID(userID))

	sub := e.window(userID, now, e.trialDays)
	created, err := e.store.CreateIfAbsent(ctx, sub)
	if err != nil {
		e.metrics.Grant(KindTrial, "error")
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !created {
		e.metrics.Grant(KindTrial, "rejected")
		log.Info("trial rejected, record already exists")
		return nil, fmt.Errorf("%s: %w", op, ErrTrialAlreadyUsed)
	}

	e.metrics.Grant(KindTrial, "created")
	log.Info("trial activated", slog.String("end_date", date.Format(sub.EndDate)))
	e.publish(ctx, log, rabbitmq.RoutingTrialActivated, models.GrantEvent{
		Kind:      KindTrial,
		UserID:    userID,
		StartDate: date.Format(sub.StartDate),
		EndDate:   date.Format(sub.EndDate),
	})
	return &sub, nil
}

// ConfirmPayment замещает окно пользователя платным периодом, отсчитанным от now.
// Повторное применение того же платежа ничего не меняет: возвращается текущее окно
// и ErrDuplicatePayment.
func (e *Engine) ConfirmPayment(ctx context.Context, payment models.Payment, now time.Time) (*models.Subscription, error) {
	const op = "grant.ConfirmPayment"
	log := e.log.With(slog.String("op", op), sl.UserID(payment.UserID),
		slog.String("transaction_ref", payment.TransactionRef))

	if payment.TransactionRef == "" {
		return nil, fmt.Errorf("%s: empty transaction ref", op)
	}

	sub := e.window(payment.UserID, now, e.paidDays)
	applied, err := e.store.ApplyPayment(ctx, payment, sub)
	if err != nil {
		e.metrics.Grant(KindPayment, "error")
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !applied {
		e.metrics.Grant(KindPayment, "duplicate")
		log.Info("duplicate payment ignored")
		current, err := e.store.Get(ctx, payment.UserID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return current, fmt.Errorf("%s: %w", op, ErrDuplicatePayment)
	}

	e.metrics.Grant(KindPayment, "applied")
	log.Info("payment applied", slog.String("end_date", date.Format(sub.EndDate)))
	e.publish(ctx, log, rabbitmq.RoutingPaymentConfirmed, models.GrantEvent{
		Kind:           KindPayment,
		UserID:         payment.UserID,
		StartDate:      date.Format(sub.StartDate),
		EndDate:        date.Format(sub.EndDate),
		TransactionRef: payment.TransactionRef,
	})
	return &sub, nil
}

// publish отправляет событие; неудача не отменяет уже записанную выдачу.
func (e *Engine) publish(ctx context.Context, log *slog.Logger, routingKey string, event models.GrantEvent) {
	if e.events == nil {
		return
	}
	if err := e.events.Publish(ctx, routingKey, event); err != nil {
		log.Warn("failed to publish grant event", slog.String("routing_key", routingKey), sl.Err(err))
	}
}
