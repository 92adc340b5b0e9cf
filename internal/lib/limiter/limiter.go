// Package limiter ограничивает частоту действий каждого пользователя отдельно.
package limiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// PerUser хранит по одному rate.Limiter на пользователя и забывает тех,
// кто не появлялся дольше idleTTL.
type PerUser struct {
	mu      sync.Mutex
	users   map[int64]*entry
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

// New создаёт PerUser с perSecond событий в секунду и запасом burst.
func New(perSecond float64, burst int, idleTTL time.Duration) *PerUser {
	return &PerUser{
		users:   make(map[int64]*entry),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idleTTL: idleTTL,
		now:     time.Now,
	}
}

// Allow сообщает, можно ли обработать ещё одно действие пользователя userID.
func (l *PerUser) Allow(userID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.users[userID]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.users[userID] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Cleanup удаляет лимитеры пользователей, неактивных дольше idleTTL.
func (l *PerUser) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for id, e := range l.users {
		if now.Sub(e.lastSeen) > l.idleTTL {
			delete(l.users, id)
			removed++
		}
	}
	return removed
}

// Len количество отслеживаемых пользователей.
func (l *PerUser) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}

// RunCleanup периодически вызывает Cleanup, пока не отменён ctx.
func (l *PerUser) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Cleanup()
		case <-ctx.Done():
			return
		}
	}
}
