package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/tutor-bot/internal/config"
	"github.com/magabrotheeeer/tutor-bot/internal/lib/date"
	"github.com/magabrotheeeer/tutor-bot/internal/lib/sl"
	"github.com/magabrotheeeer/tutor-bot/internal/models"
	"github.com/magabrotheeeer/tutor-bot/internal/services/gate"
)

const messageLimit = 4096

// Sender отправляет запросы в Bot API. Реализуется *tgbotapi.BotAPI.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Handler обрабатывает действие пользователя.
type Handler interface {
	Handle(ctx context.Context, action models.Action) gate.Outcome
}

// Limiter ограничивает частоту действий пользователя.
type Limiter interface {
	Allow(userID int64) bool
}

// Subscriptions читает текущее окно доступа пользователя.
type Subscriptions interface {
	Get(ctx context.Context, userID int64) (*models.Subscription, error)
}

// Bot принимает обновления и отвечает на них.
type Bot struct {
	api           Sender
	handler       Handler
	limiter       Limiter
	plan          config.Plan
	providerToken string
	workers       int
	timeout       time.Duration
	log           *slog.Logger
	now           func() time.Time
}

// New создаёт Bot.
func New(api Sender, handler Handler, limiter Limiter, cfg config.Telegram, plan config.Plan, log *slog.Logger) *Bot {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Bot{
		api:           api,
		handler:       handler,
		limiter:       limiter,
		plan:          plan,
		providerToken: cfg.ProviderToken,
		workers:       workers,
		timeout:       cfg.RequestTimeout,
		log:           log,
		now:           time.Now,
	}
}

// Run обрабатывает обновления из updates, пока не отменён ctx или не закрыт канал.
// Одновременно обрабатывается не больше workers обновлений. Перед возвратом
// дожидается завершения начатых обработок.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	const op = "telegram.Run"
	log := b.log.With(slog.String("op", op))
	log.Info("bot started", slog.Int("workers", b.workers))

	sem := make(chan struct{}, b.workers)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			log.Info("bot stopping")
			return nil
		case upd, ok := <-updates:
			if !ok {
				log.Info("updates channel closed")
				return nil
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			wg.Add(1)
			go func(upd tgbotapi.Update) {
				defer wg.Done()
				defer func() { <-sem }()
				defer func() {
					if r := recover(); r != nil {
						log.Error("panic while handling update", slog.Int("update_id", upd.UpdateID), slog.Any("panic", r))
					}
				}()
				b.HandleUpdate(ctx, upd)
			}(upd)
		}
	}
}

// HandleUpdate обрабатывает одно обновление. Начатая обработка не прерывается
// остановкой бота, её ограничивает только таймаут запроса.
func (b *Bot) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	action, ok := ToAction(upd, uuid.NewString(), b.now())
	if !ok {
		return
	}

	ctx = context.WithoutCancel(ctx)
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	log := b.log.With(
		slog.String("request_id", action.RequestID),
		sl.UserID(action.UserID),
		slog.String("action", string(action.Kind)),
	)

	if !paymentFlow(action.Kind) && b.limiter != nil && !b.limiter.Allow(action.UserID) {
		log.Warn("rate limited")
		b.reply(log, action, textRateLimited)
		return
	}

	out := b.handler.Handle(ctx, action)
	b.respond(log, action, out)
}

// paymentFlow действия платёжного сценария не ограничиваются по частоте.
func paymentFlow(kind models.ActionKind) bool {
	return kind == models.ActionPreCheckout || kind == models.ActionPaymentCompleted
}

func (b *Bot) respond(log *slog.Logger, action models.Action, out gate.Outcome) {
	switch {
	case action.Kind == models.ActionPreCheckout:
		b.answerCheckout(log, action.QueryID, out.Kind == gate.OutcomeCheckoutAccepted)
	case out.Kind == gate.OutcomeInvoice:
		if err := b.sendInvoice(action.ChatID); err != nil {
			log.Error("failed to send invoice", sl.Err(err))
			b.reply(log, action, textStoreFailure)
		}
	default:
		b.reply(log, action, Render(action.Kind, out, b.plan))
	}
}

func (b *Bot) reply(log *slog.Logger, action models.Action, text string) {
	for i, part := range split(text, messageLimit) {
		msg := tgbotapi.NewMessage(action.ChatID, part)
		if i == 0 && action.MessageID != 0 {
			msg.ReplyToMessageID = action.MessageID
		}
		if err := b.send(msg); err != nil {
			log.Error("failed to send message", sl.Err(err))
			return
		}
	}
}

func (b *Bot) sendInvoice(chatID int64) error {
	const op = "telegram.sendInvoice"

	invoice := tgbotapi.NewInvoice(
		chatID,
		b.plan.Title,
		b.plan.Description,
		b.plan.Payload,
		b.providerToken,
		"subscribe",
		b.plan.Currency,
		[]tgbotapi.LabeledPrice{{Label: "Подписка", Amount: b.plan.Price}},
	)
	// Bot API отклоняет счёт с suggested_tip_amounts = null.
	invoice.SuggestedTipAmounts = []int{}

	if err := b.send(invoice); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (b *Bot) answerCheckout(log *slog.Logger, queryID string, ok bool) {
	answer := tgbotapi.PreCheckoutConfig{PreCheckoutQueryID: queryID, OK: ok}
	if !ok {
		answer.ErrorMessage = textCheckoutError
	}
	if _, err := b.api.Request(answer); err != nil {
		log.Error("failed to answer pre-checkout query", sl.Err(redact(err)))
	}
}

// send отправляет сообщение. Адрес запроса содержит токен бота, поэтому
// ошибка возвращается без него.
func (b *Bot) send(c tgbotapi.Chattable) error {
	_, err := b.api.Send(c)
	return redact(err)
}

// ExpiryNoticeHandler возвращает обработчик сообщений об окончании доступа.
// Напоминание отправляется, только если окно пользователя всё ещё заканчивается
// в указанный день. Некорректные сообщения и отказы Bot API (например, пользователь
// заблокировал бота) отбрасываются, ошибки хранилища и сети возвращаются для
// повторной доставки.
func (b *Bot) ExpiryNoticeHandler(subs Subscriptions) func([]byte) error {
	const op = "telegram.ExpiryNoticeHandler"
	log := b.log.With(slog.String("op", op))

	return func(body []byte) error {
		var notice models.ExpiryNotice
		if err := json.Unmarshal(body, &notice); err != nil {
			log.Error("failed to decode expiry notice", sl.Err(err))
			return nil
		}
		endDate, err := date.Parse(notice.EndDate)
		if err != nil || notice.UserID == 0 {
			log.Error("invalid expiry notice", slog.String("body", string(body)))
			return nil
		}

		current, err := b.currentWindow(subs, notice.UserID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if current == nil || !current.EndDate.Equal(endDate) {
			log.Info("expiry notice is stale", sl.UserID(notice.UserID), slog.String("end_date", notice.EndDate))
			return nil
		}

		err = b.send(tgbotapi.NewMessage(notice.UserID, RenderExpiryNotice(endDate)))
		var apiErr *tgbotapi.Error
		switch {
		case err == nil:
			log.Info("expiry notice sent", sl.UserID(notice.UserID))
			return nil
		case errors.As(err, &apiErr):
			log.Warn("expiry notice rejected", sl.UserID(notice.UserID), sl.Err(err))
			return nil
		default:
			return fmt.Errorf("%s: %w", op, err)
		}
	}
}

func (b *Bot) currentWindow(subs Subscriptions, userID int64) (*models.Subscription, error) {
	ctx := context.Background()
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	return subs.Get(ctx, userID)
}
