// Package models содержит доменные структуры: окно доступа пользователя,
// платёж и входящее действие из чата.
package models

import "time"

// Subscription описывает окно доступа пользователя.
// Даты хранятся с точностью до дня (полночь UTC), доступ действует
// по EndDate включительно.
type Subscription struct {
	UserID    int64     `json:"user_id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// Payment описывает подтверждённый платёж. TransactionRef служит ключом
// идемпотентности: один и тот же платёж применяется не более одного раза.
type Payment struct {
	TransactionRef string
	UserID         int64
	Amount         int
	Currency       string
}

// ExpiryNotice сообщение о том, что окно доступа пользователя заканчивается.
type ExpiryNotice struct {
	UserID  int64  `json:"user_id"`
	EndDate string `json:"end_date"`
}

// GrantEvent сообщение о выдаче или продлении доступа.
type GrantEvent struct {
	Kind           string `json:"kind"`
	UserID         int64  `json:"user_id"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	TransactionRef string `json:"transaction_ref,omitempty"`
}
