// Package telegram связывает Telegram Bot API с обработчиком действий:
// переводит обновления в models.Action и отправляет ответы, счета и напоминания.
package telegram

import (
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/magabrotheeeer/tutor-bot/internal/models"
)

var commands = map[string]models.ActionKind{
	"start":     models.ActionStart,
	"help":      models.ActionHelp,
	"status":    models.ActionStatus,
	"solve":     models.ActionSolve,
	"explain":   models.ActionExplain,
	"subscribe": models.ActionSubscribe,
}

// ToAction переводит обновление в действие. Возвращает false, если обновление боту неинтересно.
// now используется как время действия, если в обновлении нет своего.
func ToAction(upd tgbotapi.Update, requestID string, now time.Time) (models.Action, bool) {
	if q := upd.PreCheckoutQuery; q != nil {
		if q.From == nil {
			return models.Action{}, false
		}
		return models.Action{
			RequestID: requestID,
			UserID:    q.From.ID,
			ChatID:    q.From.ID,
			Kind:      models.ActionPreCheckout,
			Timestamp: now,
			QueryID:   q.ID,
			Amount:    q.TotalAmount,
			Currency:  q.Currency,
		}, true
	}

	msg := upd.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return models.Action{}, false
	}

	action := models.Action{
		RequestID: requestID,
		UserID:    msg.From.ID,
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		Timestamp: msg.Time(),
	}
	if msg.Date == 0 {
		action.Timestamp = now
	}

	switch {
	case msg.SuccessfulPayment != nil:
		p := msg.SuccessfulPayment
		action.Kind = models.ActionPaymentCompleted
		action.TransactionRef = p.TelegramPaymentChargeID
		action.Amount = p.TotalAmount
		action.Currency = p.Currency
	case len(msg.Photo) > 0:
		// Последний размер самый крупный.
		action.Kind = models.ActionImage
		action.ImageRef = msg.Photo[len(msg.Photo)-1].FileID
	case msg.IsCommand():
		kind, ok := commands[msg.Command()]
		if !ok {
			kind = models.ActionHelp
		}
		action.Kind = kind
		action.Payload = msg.CommandArguments()
	default:
		return models.Action{}, false
	}
	return action, true
}
