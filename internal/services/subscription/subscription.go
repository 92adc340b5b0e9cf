// Package subscription реализует хранилище окон доступа с кешированием:
// чтение идёт через кеш, запись всегда в базу, после чего кеш обновляется.
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/tutor-bot/internal/lib/sl"
	"github.com/magabrotheeeer/tutor-bot/internal/models"
)

// Repository определяет методы для работы с окнами доступа в хранилище.
type Repository interface {
	// Get возвращает запись пользователя или nil, если её нет.
	Get(ctx context.Context, userID int64) (*models.Subscription, error)
	// Upsert создаёт или замещает запись.
	Upsert(ctx context.Context, sub models.Subscription) error
	// CreateIfAbsent создаёт запись, только если её ещё нет.
	CreateIfAbsent(ctx context.Context, sub models.Subscription) (bool, error)
	// ApplyPayment регистрирует платёж и замещает запись; false, если платёж уже применён.
	ApplyPayment(ctx context.Context, payment models.Payment, sub models.Subscription) (bool, error)
}

// Cache описывает методы для кеширования данных.
type Cache interface {
	// Get пытается получить значение из кеша по ключу.
	Get(ctx context.Context, key string, result any) (bool, error)
	// Set сохраняет значение в кеш с временем жизни.
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	// Add сохраняет значение, только если ключа ещё нет.
	Add(ctx context.Context, key string, value any, expiration time.Duration) (bool, error)
	// Invalidate удаляет значение из кеша по ключу.
	Invalidate(ctx context.Context, key string) error
}

// Service хранилище окон доступа с кешем перед базой.
// Отсутствие записи не кешируется, чтобы первая выдача доступа была видна сразу.
type Service struct {
	repo  Repository
	cache Cache
	ttl   time.Duration
	log   *slog.Logger
}

// NewService создает новый экземпляр Service.
func NewService(repo Repository, cache Cache, ttl time.Duration, log *slog.Logger) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		ttl:   ttl,
		log:   log,
	}
}

func cacheKey(userID int64) string {
	return fmt.Sprintf("subscription:%d", userID)
}

// Get возвращает окно доступа пользователя, используя кеш или репозиторий.
// Ошибки кеша не прерывают чтение.
func (s *Service) Get(ctx context.Context, userID int64) (*models.Subscription, error) {
	key := cacheKey(userID)

	var cached models.Subscription
	found, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.log.Warn("failed to read from cache", slog.String("key", key), sl.Err(err))
	}
	if found {
		return &cached, nil
	}

	sub, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, nil
	}

	// Add не перезаписывает значение, которое успел положить параллельный писатель.
	if _, err := s.cache.Add(ctx, key, sub, s.ttl); err != nil {
		s.log.Warn("failed to add to cache", slog.String("key", key), sl.Err(err))
	}
	return sub, nil
}

// Upsert создаёт или замещает окно доступа и обновляет кеш.
func (s *Service) Upsert(ctx context.Context, sub models.Subscription) error {
	if err := s.repo.Upsert(ctx, sub); err != nil {
		return err
	}
	s.refresh(ctx, sub)
	return nil
}

// CreateIfAbsent создаёт окно доступа, если записи нет, и кеширует его.
func (s *Service) CreateIfAbsent(ctx context.Context, sub models.Subscription) (bool, error) {
	created, err := s.repo.CreateIfAbsent(ctx, sub)
	if err != nil {
		return false, err
	}
	if created {
		s.refresh(ctx, sub)
	}
	return created, nil
}

// ApplyPayment применяет платёж и обновляет кеш, если окно изменилось.
func (s *Service) ApplyPayment(ctx context.Context, payment models.Payment, sub models.Subscription) (bool, error) {
	applied, err := s.repo.ApplyPayment(ctx, payment, sub)
	if err != nil {
		return false, err
	}
	if applied {
		s.refresh(ctx, sub)
	}
	return applied, nil
}

// refresh записывает новое окно в кеш; при неудаче удаляет ключ,
// чтобы следующее чтение пошло в базу.
func (s *Service) refresh(ctx context.Context, sub models.Subscription) {
	key := cacheKey(sub.UserID)
	if err := s.cache.Set(ctx, key, sub, s.ttl); err != nil {
		s.log.Warn("failed to cache subscription", slog.String("key", key), sl.Err(err))
		if err := s.cache.Invalidate(ctx, key); err != nil {
			s.log.Error("failed to invalidate cache", slog.String("key", key), sl.Err(err))
		}
	}
}
