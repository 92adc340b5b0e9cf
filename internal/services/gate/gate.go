// Package gate единая точка входа для действий пользователя: проверяет доступ,
// при первом обращении выдаёт пробный период и только затем обращается
// к внешним сервисам.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/tutor-bot/internal/lib/sl"
	"github.com/magabrotheeeer/tutor-bot/internal/models"
	"github.com/magabrotheeeer/tutor-bot/internal/services/grant"
)

// ErrInvalidInput действие без обязательного аргумента.
var ErrInvalidInput = errors.New("invalid input")

const (
	solvePrompt   = "Реши следующую задачу: %s"
	explainPrompt = "Объясни простыми словами тему: %s"
)

// Subscriptions читает окно доступа пользователя.
type Subscriptions interface {
	Get(ctx context.Context, userID int64) (*models.Subscription, error)
}

// Granter выполняет переходы состояния подписки.
type Granter interface {
	ActivateTrial(ctx context.Context, userID int64, now time.Time) (*models.Subscription, error)
	ConfirmPayment(ctx context.Context, payment models.Payment, now time.Time) (*models.Subscription, error)
}

// Evaluator проверяет окно доступа на момент времени.
type Evaluator interface {
	Check(sub *models.Subscription, now time.Time) bool
}

// AIResponder генерирует ответ языковой модели.
type AIResponder interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// TextExtractor распознаёт текст на изображении.
type TextExtractor interface {
	Extract(ctx context.Context, image []byte) (string, error)
}

// ImageFetcher загружает изображение по ссылке транспорта.
type ImageFetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Recorder учитывает решения и вызовы внешних сервисов в метриках.
type Recorder interface {
	Decision(action, outcome string)
	Collaborator(name string, started time.Time, err error)
}

// Gate обрабатывает действия пользователей.
type Gate struct {
	subs     Subscriptions
	grants   Granter
	eval     Evaluator
	ai       AIResponder
	ocr      TextExtractor
	images   ImageFetcher
	metrics  Recorder
	validate *validator.Validate
	log      *slog.Logger
}

// Deps зависимости Gate.
type Deps struct {
	Subscriptions Subscriptions
	Grants        Granter
	Evaluator     Evaluator
	AI            AIResponder
	OCR           TextExtractor
	Images        ImageFetcher
	Metrics       Recorder
}

// New создаёт Gate.
func New(deps Deps, log *slog.Logger) *Gate {
	return &Gate{
		subs:     deps.Subscriptions,
		grants:   deps.Grants,
		eval:     deps.Evaluator,
		ai:       deps.AI,
		ocr:      deps.OCR,
		images:   deps.Images,
		metrics:  deps.Metrics,
		validate: validator.New(),
		log:      log,
	}
}

// Handle обрабатывает одно действие. Любая ошибка превращается в Outcome,
// транспорту ошибки не возвращаются.
func (g *Gate) Handle(ctx context.Context, action models.Action) Outcome {
	const op = "gate.Handle"
	log := g.log.With(
		slog.String("op", op),
		slog.String("request_id", action.RequestID),
		sl.UserID(action.UserID),
		slog.String("action", string(action.Kind)),
	)

	var out Outcome
	if err := g.validate.Struct(action); err != nil {
		log.Warn("invalid action", sl.Err(err))
		out = Outcome{Kind: OutcomeInvalidInput}
	} else {
		out = g.dispatch(ctx, log, action)
	}

	g.metrics.Decision(string(action.Kind), string(out.Kind))
	log.Debug("action handled", slog.String("outcome", string(out.Kind)))
	return out
}

func (g *Gate) dispatch(ctx context.Context, log *slog.Logger, action models.Action) Outcome {
	now := action.Timestamp

	if action.Kind.RequiresEntitlement() {
		return g.entitled(ctx, log, action)
	}

	switch action.Kind {
	case models.ActionStart:
		return g.start(ctx, log, action.UserID, now)
	case models.ActionHelp:
		return Outcome{Kind: OutcomeHelp}
	case models.ActionStatus:
		return g.status(ctx, log, action.UserID, now)
	case models.ActionSubscribe:
		return g.subscribe(ctx, log, action.UserID, now)
	case models.ActionPreCheckout:
		return Outcome{Kind: OutcomeCheckoutAccepted}
	case models.ActionPaymentCompleted:
		return g.payment(ctx, log, action, now)
	}

	log.Warn("unknown action kind")
	return Outcome{Kind: OutcomeInvalidInput}
}

// ensureAccess возвращает запись пользователя, выдавая пробный период,
// если записи нет. created сообщает, что пробный период выдан этим вызовом.
func (g *Gate) ensureAccess(ctx context.Context, userID int64, now time.Time) (sub *models.Subscription, created bool, err error) {
	const op = "gate.ensureAccess"

	sub, err = g.subs.Get(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	if sub != nil {
		return sub, false, nil
	}

	sub, err = g.grants.ActivateTrial(ctx, userID, now)
	switch {
	case err == nil:
		return sub, true, nil
	case errors.Is(err, grant.ErrTrialAlreadyUsed):
		// Параллельное действие успело создать запись.
		sub, err = g.subs.Get(ctx, userID)
		if err != nil {
			return nil, false, fmt.Errorf("%s: %w", op, err)
		}
		if sub == nil {
			return nil, false, fmt.Errorf("%s: record vanished after trial rejection", op)
		}
		return sub, false, nil
	default:
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
}

func (g *Gate) start(ctx context.Context, log *slog.Logger, userID int64, now time.Time) Outcome {
	sub, created, err := g.ensureAccess(ctx, userID, now)
	if err != nil {
		log.Error("failed to ensure access", sl.Err(err))
		return Outcome{Kind: OutcomeStoreFailure}
	}
	entitled := g.eval.Check(sub, now)

	switch {
	case created:
		return Outcome{Kind: OutcomeTrialActivated, Subscription: sub, Entitled: entitled}
	case entitled:
		return Outcome{Kind: OutcomeWelcomeBack, Subscription: sub, Entitled: true}
	default:
		return Outcome{Kind: OutcomeExpired, Subscription: sub}
	}
}

func (g *Gate) status(ctx context.Context, log *slog.Logger, userID int64, now time.Time) Outcome {
	sub, err := g.subs.Get(ctx, userID)
	if err != nil {
		log.Error("failed to get subscription", sl.Err(err))
		return Outcome{Kind: OutcomeStoreFailure}
	}
	return Outcome{Kind: OutcomeStatus, Subscription: sub, Entitled: g.eval.Check(sub, now)}
}

func (g *Gate) subscribe(ctx context.Context, log *slog.Logger, userID int64, now time.Time) Outcome {
	sub, err := g.subs.Get(ctx, userID)
	if err != nil {
		log.Error("failed to get subscription", sl.Err(err))
		return Outcome{Kind: OutcomeStoreFailure}
	}
	if g.eval.Check(sub, now) {
		return Outcome{Kind: OutcomeAlreadySubscribed, Subscription: sub, Entitled: true}
	}
	return Outcome{Kind: OutcomeInvoice, Subscription: sub}
}

func (g *Gate) payment(ctx context.Context, log *slog.Logger, action models.Action, now time.Time) Outcome {
	if action.TransactionRef == "" {
		log.Warn("payment without transaction ref")
		return Outcome{Kind: OutcomeInvalidInput}
	}

	sub, err := g.grants.ConfirmPayment(ctx, models.Payment{
		TransactionRef: action.TransactionRef,
		UserID:         action.UserID,
		Amount:         action.Amount,
		Currency:       action.Currency,
	}, now)
	switch {
	case errors.Is(err, grant.ErrDuplicatePayment):
		return Outcome{Kind: OutcomePaymentDuplicate, Subscription: sub, Entitled: g.eval.Check(sub, now)}
	case err != nil:
		log.Error("failed to confirm payment",
			slog.String("transaction_ref", action.TransactionRef), sl.Err(err))
		return Outcome{Kind: OutcomeStoreFailure}
	}
	return Outcome{Kind: OutcomePaymentApplied, Subscription: sub, Entitled: true}
}

// authorize выдаёт пробный период при первом обращении и проверяет доступ.
// Возвращает Outcome, если действие нужно прервать.
func (g *Gate) authorize(ctx context.Context, log *slog.Logger, userID int64, now time.Time) *Outcome {
	sub, _, err := g.ensureAccess(ctx, userID, now)
	if err != nil {
		log.Error("failed to ensure access", sl.Err(err))
		return &Outcome{Kind: OutcomeStoreFailure}
	}
	if !g.eval.Check(sub, now) {
		log.Info("access denied")
		return &Outcome{Kind: OutcomeDenied, Subscription: sub}
	}
	return nil
}

// entitled обслуживает действия, обращающиеся к внешним сервисам. Пустой аргумент
// отклоняется до обращения к хранилищу, без доступа внешние сервисы не вызываются.
func (g *Gate) entitled(ctx context.Context, log *slog.Logger, action models.Action) Outcome {
	arg := strings.TrimSpace(action.Payload)
	if action.Kind == models.ActionImage {
		arg = action.ImageRef
	}
	if arg == "" {
		return Outcome{Kind: OutcomeInvalidInput}
	}

	if denied := g.authorize(ctx, log, action.UserID, action.Timestamp); denied != nil {
		return *denied
	}

	switch action.Kind {
	case models.ActionSolve:
		return g.prompt(ctx, log, fmt.Sprintf(solvePrompt, arg))
	case models.ActionExplain:
		return g.prompt(ctx, log, fmt.Sprintf(explainPrompt, arg))
	default:
		return g.image(ctx, log, arg)
	}
}

func (g *Gate) prompt(ctx context.Context, log *slog.Logger, text string) Outcome {
	started := time.Now()
	answer, err := g.ai.Generate(ctx, text)
	g.metrics.Collaborator("ai", started, err)
	if err != nil {
		log.Error("ai request failed", sl.Err(err))
		return Outcome{Kind: OutcomeCollaboratorFailure}
	}
	return Outcome{Kind: OutcomeReply, Text: answer, Entitled: true}
}

func (g *Gate) image(ctx context.Context, log *slog.Logger, imageRef string) Outcome {
	started := time.Now()
	img, err := g.images.Fetch(ctx, imageRef)
	g.metrics.Collaborator("image_fetch", started, err)
	if err != nil {
		log.Error("failed to fetch image", sl.Err(err))
		return Outcome{Kind: OutcomeCollaboratorFailure}
	}

	started = time.Now()
	text, err := g.ocr.Extract(ctx, img)
	g.metrics.Collaborator("ocr", started, err)
	if err != nil {
		log.Error("ocr request failed", sl.Err(err))
		return Outcome{Kind: OutcomeCollaboratorFailure}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return Outcome{Kind: OutcomeNoTextFound, Entitled: true}
	}
	return Outcome{Kind: OutcomeReply, Text: text, Entitled: true}
}
