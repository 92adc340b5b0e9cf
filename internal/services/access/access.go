// Package access принимает решение о доступе пользователя к платным функциям.
package access

import (
	"context"
	"fmt"
	"time"

	"github.com/magabrotheeeer/tutor-bot/internal/lib/date"
	"github.com/magabrotheeeer/tutor-bot/internal/models"
)

// Reader читает окно доступа пользователя.
type Reader interface {
	Get(ctx context.Context, userID int64) (*models.Subscription, error)
}

// Entitled сообщает, действует ли окно sub в день today.
// Доступ действует по EndDate включительно; отсутствие записи означает отказ.
func Entitled(sub *models.Subscription, today time.Time) bool {
	if sub == nil {
		return false
	}
	return !today.After(sub.EndDate)
}

// Evaluator переводит момент времени в дату опорного календаря и проверяет окно.
type Evaluator struct {
	subs Reader
	cal  date.Calendar
}

// NewEvaluator создаёт Evaluator.
func NewEvaluator(subs Reader, cal date.Calendar) *Evaluator {
	return &Evaluator{subs: subs, cal: cal}
}

// Check детерминированно проверяет окно sub на момент now.
func (e *Evaluator) Check(sub *models.Subscription, now time.Time) bool {
	return Entitled(sub, e.cal.Day(now))
}

// IsEntitled читает запись пользователя и проверяет её на момент now.
func (e *Evaluator) IsEntitled(ctx context.Context, userID int64, now time.Time) (bool, error) {
	const op = "access.IsEntitled"
	sub, err := e.subs.Get(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return e.Check(sub, now), nil
}
