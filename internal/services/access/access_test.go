package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/tutor-bot/internal/lib/date"
	"github.com/magabrotheeeer/tutor-bot/internal/models"
)

type readerStub struct {
	sub *models.Subscription
	err error
}

func (r readerStub) Get(_ context.Context, _ int64) (*models.Subscription, error) {
	return r.sub, r.err
}

func TestEntitled(t *testing.T) {
	sub := &models.Subscription{
		UserID:    1,
		StartDate: date.Of(2024, 1, 1),
		EndDate:   date.Of(2024, 1, 4),
	}

	tests := []struct {
		name  string
		sub   *models.Subscription
		today time.Time
		want  bool
	}{
		{name: "no record", sub: nil, today: date.Of(2024, 1, 1), want: false},
		{name: "start date", sub: sub, today: date.Of(2024, 1, 1), want: true},
		{name: "inside window", sub: sub, today: date.Of(2024, 1, 3), want: true},
		{name: "end date inclusive", sub: sub, today: date.Of(2024, 1, 4), want: true},
		{name: "day after end", sub: sub, today: date.Of(2024, 1, 5), want: false},
		{name: "long after end", sub: sub, today: date.Of(2025, 1, 1), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Entitled(tt.sub, tt.today))
		})
	}
}

func TestEvaluator_CheckUsesReferenceClock(t *testing.T) {
	moscow := time.FixedZone("MSK", 3*60*60)
	sub := &models.Subscription{StartDate: date.Of(2024, 1, 1), EndDate: date.Of(2024, 1, 4)}

	utc := NewEvaluator(readerStub{}, date.NewCalendar(time.UTC))
	msk := NewEvaluator(readerStub{}, date.NewCalendar(moscow))

	// 22:00 UTC 4 января это уже 5 января по Москве.
	now := time.Date(2024, 1, 4, 22, 0, 0, 0, time.UTC)
	assert.True(t, utc.Check(sub, now))
	assert.False(t, msk.Check(sub, now))

	// Время суток внутри последнего дня не влияет на решение.
	assert.True(t, utc.Check(sub, time.Date(2024, 1, 4, 23, 59, 59, 0, time.UTC)))
	assert.False(t, utc.Check(sub, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)))
}

func TestEvaluator_IsEntitled(t *testing.T) {
	now := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	cal := date.NewCalendar(time.UTC)

	t.Run("active", func(t *testing.T) {
		e := NewEvaluator(readerStub{sub: &models.Subscription{StartDate: date.Of(2024, 1, 1), EndDate: date.Of(2024, 1, 4)}}, cal)
		ok, err := e.IsEntitled(context.Background(), 1, now)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("absent", func(t *testing.T) {
		e := NewEvaluator(readerStub{}, cal)
		ok, err := e.IsEntitled(context.Background(), 1, now)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("store error", func(t *testing.T) {
		storeErr := errors.New("store down")
		e := NewEvaluator(readerStub{err: storeErr}, cal)
		ok, err := e.IsEntitled(context.Background(), 1, now)
		require.ErrorIs(t, err, storeErr)
		assert.False(t, ok)
	})
}
