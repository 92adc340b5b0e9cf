// Package storage реализует хранилище окон доступа на основе PostgreSQL.
// Хранилище единственный владелец состояния подписок: одна запись на пользователя,
// новая выдача доступа замещает прежнюю запись.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/magabrotheeeer/tutor-bot/internal/lib/date"
	"github.com/magabrotheeeer/tutor-bot/internal/models"
)

// ErrStoreUnavailable оборачивает любые ошибки слоя хранения.
var ErrStoreUnavailable = errors.New("subscription store unavailable")

// Storage инкапсулирует соединение с базой данных PostgreSQL.
type Storage struct {
	DB *sql.DB
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// New создаёт подключение к PostgreSQL и проверяет его доступность.
func New(storageConnectionString string) (*Storage, error) {
	const op = "storage.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{
		DB: db,
	}, nil
}

// CheckDatabaseReady проверяет, что миграции применены.
func CheckDatabaseReady(ctx context.Context, storage *Storage) error {
	var exists bool
	err := storage.DB.QueryRowContext(ctx, `SELECT EXISTS (
        SELECT FROM information_schema.tables 
        WHERE table_name = 'subscriptions'
    )`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check table subscriptions: %w", err)
	}
	if !exists {
		return errors.New("required table subscriptions missing")
	}
	return nil
}

// Ping проверяет доступность базы данных.
func (s *Storage) Ping(ctx context.Context) error {
	if err := s.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("storage.Ping: %w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Close закрывает пул соединений.
func (s *Storage) Close() error {
	return s.DB.Close()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// Get возвращает окно доступа пользователя. Если записи нет, возвращает nil без ошибки.
func (s *Storage) Get(ctx context.Context, userID int64) (*models.Subscription, error) {
	const op = "storage.Get"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT user_id, start_date, end_date
			  FROM subscriptions
			  WHERE user_id = $1`
	var sub models.Subscription
	err := s.DB.QueryRowContext(ctx, query, userID).Scan(&sub.UserID, &sub.StartDate, &sub.EndDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(op, err)
	}
	normalize(&sub)
	return &sub, nil
}

// Upsert создаёт или замещает окно доступа пользователя.
// Повтор с теми же аргументами не меняет результат.
func (s *Storage) Upsert(ctx context.Context, sub models.Subscription) error {
	const op = "storage.Upsert"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	if err := validateWindow(sub); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := upsert(ctx, s.DB, sub); err != nil {
		return unavailable(op, err)
	}
	return nil
}

// CreateIfAbsent создаёт окно доступа, только если у пользователя ещё нет записи.
// Возвращает false, если запись уже существовала; существующая запись не меняется.
func (s *Storage) CreateIfAbsent(ctx context.Context, sub models.Subscription) (bool, error) {
	const op = "storage.CreateIfAbsent"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	if err := validateWindow(sub); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	query := `INSERT INTO subscriptions (user_id, start_date, end_date)
			  VALUES ($1, $2::date, $3::date)
			  ON CONFLICT (user_id) DO NOTHING`
	result, err := s.DB.ExecContext(ctx, query, sub.UserID, date.Format(sub.StartDate), date.Format(sub.EndDate))
	if err != nil {
		return false, unavailable(op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, unavailable(op, err)
	}
	return rowsAffected == 1, nil
}

// ApplyPayment в одной транзакции регистрирует платёж и замещает окно доступа.
// Если платёж с таким TransactionRef уже применён, окно не меняется и возвращается false.
func (s *Storage) ApplyPayment(ctx context.Context, payment models.Payment, sub models.Subscription) (bool, error) {
	const op = "storage.ApplyPayment"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	if payment.TransactionRef == "" {
		return false, fmt.Errorf("%s: empty transaction ref", op)
	}
	if err := validateWindow(sub); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, unavailable(op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `INSERT INTO payments (transaction_ref, user_id, amount, currency, start_date, end_date)
			  VALUES ($1, $2, $3, $4, $5::date, $6::date)
			  ON CONFLICT (transaction_ref) DO NOTHING`
	result, err := tx.ExecContext(ctx, query,
		payment.TransactionRef, payment.UserID, payment.Amount, payment.Currency,
		date.Format(sub.StartDate), date.Format(sub.EndDate))
	if err != nil {
		return false, unavailable(op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, unavailable(op, err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	if err := upsert(ctx, tx, sub); err != nil {
		return false, unavailable(op, err)
	}
	if err := tx.Commit(); err != nil {
		return false, unavailable(op, err)
	}
	return true, nil
}

// FindExpiringOn возвращает записи, окно которых заканчивается в день day.
func (s *Storage) FindExpiringOn(ctx context.Context, day time.Time) ([]*models.Subscription, error) {
	const op = "storage.FindExpiringOn"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT user_id, start_date, end_date
			  FROM subscriptions
			  WHERE end_date = $1::date
			  ORDER BY user_id`
	rows, err := s.DB.QueryContext(ctx, query, date.Format(day))
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Subscription
	for rows.Next() {
		var sub models.Subscription
		if err := rows.Scan(&sub.UserID, &sub.StartDate, &sub.EndDate); err != nil {
			return nil, unavailable(op, err)
		}
		normalize(&sub)
		result = append(result, &sub)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return result, nil
}

func upsert(ctx context.Context, db execer, sub models.Subscription) error {
	query := `INSERT INTO subscriptions (user_id, start_date, end_date)
			  VALUES ($1, $2::date, $3::date)
			  ON CONFLICT (user_id) DO UPDATE
			  SET start_date = EXCLUDED.start_date,
			      end_date = EXCLUDED.end_date`
	_, err := db.ExecContext(ctx, query, sub.UserID, date.Format(sub.StartDate), date.Format(sub.EndDate))
	return err
}

func validateWindow(sub models.Subscription) error {
	if sub.EndDate.Before(sub.StartDate) {
		return fmt.Errorf("end date %s is before start date %s",
			date.Format(sub.EndDate), date.Format(sub.StartDate))
	}
	return nil
}

// normalize приводит прочитанные даты к полуночи UTC.
func normalize(sub *models.Subscription) {
	sub.StartDate = date.Of(sub.StartDate.Year(), sub.StartDate.Month(), sub.StartDate.Day())
	sub.EndDate = date.Of(sub.EndDate.Year(), sub.EndDate.Month(), sub.EndDate.Day())
}
