package models

import "time"

// ActionKind тип входящего действия пользователя.
type ActionKind string

const (
	ActionStart            ActionKind = "start"
	ActionHelp             ActionKind = "help"
	ActionStatus           ActionKind = "status"
	ActionSolve            ActionKind = "solve"
	ActionExplain          ActionKind = "explain"
	ActionImage            ActionKind = "image"
	ActionSubscribe        ActionKind = "subscribe"
	ActionPreCheckout      ActionKind = "pre_checkout"
	ActionPaymentCompleted ActionKind = "payment_completed"
)

// RequiresEntitlement сообщает, обращается ли действие к платным внешним сервисам.
func (k ActionKind) RequiresEntitlement() bool {
	switch k {
	case ActionSolve, ActionExplain, ActionImage:
		return true
	}
	return false
}

// Action входящее действие пользователя, полученное от транспорта.
type Action struct {
	RequestID string     `validate:"required"`
	UserID    int64      `validate:"required"`
	ChatID    int64      `validate:"required"`
	Kind      ActionKind `validate:"required"`
	Timestamp time.Time  `validate:"required"`

	// Payload аргумент команды (/solve, /explain).
	Payload string
	// ImageRef ссылка транспорта на изображение.
	ImageRef string
	// MessageID сообщение, на которое отвечаем.
	MessageID int

	// Поля платежа. QueryID идентификатор запроса pre-checkout.
	QueryID        string
	TransactionRef string
	Amount         int
	Currency       string
}
